// Package api exposes the admin inspection endpoints for the simulation
// daemon.
package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockquest/internal/obs"
	"stockquest/internal/scheduler"
	"stockquest/internal/simstate"
	"stockquest/internal/valuation"
)

// Server serves read-only operational views of the running simulation.
type Server struct {
	sched      *scheduler.Scheduler
	valuer     *valuation.Engine
	challenges scheduler.ChallengeRepository
	metrics    *obs.Metrics
	mux        *chi.Mux
}

// New builds the admin server and its routes.
func New(sched *scheduler.Scheduler, valuer *valuation.Engine, challenges scheduler.ChallengeRepository, metrics *obs.Metrics) *Server {
	s := &Server{
		sched:      sched,
		valuer:     valuer,
		challenges: challenges,
		metrics:    metrics,
		mux:        chi.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root http handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/admin/simulation", func(r chi.Router) {
		r.Get("/states", s.handleStates)
		r.Get("/statistics", s.handleStatistics)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/sessions/{id}/state", s.handleSessionState)
		r.Get("/sessions/{id}/valuation", s.handleSessionValuation)
	})
}

type stateView struct {
	SessionID             int64   `json:"sessionId"`
	ChallengeID           int64   `json:"challengeId"`
	SpeedFactor           int     `json:"speedFactor"`
	PeriodStart           string  `json:"periodStart"`
	PeriodEnd             string  `json:"periodEnd"`
	CurrentSimulationDate string  `json:"currentSimulationDate"`
	SimulationStartedAt   string  `json:"simulationStartedAt"`
	LastProcessedAt       string  `json:"lastProcessedAt"`
	Progress              float64 `json:"progress"`
	ElapsedRealMinutes    int64   `json:"elapsedRealMinutes"`
	EstimatedCompletionAt string  `json:"estimatedCompletionAt,omitempty"`
	Summary               string  `json:"summary"`
}

func (s *Server) stateView(st simstate.State) stateView {
	view := stateView{
		SessionID:             st.SessionID,
		ChallengeID:           st.ChallengeID,
		SpeedFactor:           st.SpeedFactor,
		PeriodStart:           st.PeriodStart.Format(time.DateOnly),
		PeriodEnd:             st.PeriodEnd.Format(time.DateOnly),
		CurrentSimulationDate: st.CurrentSimulationDate.Format(time.DateOnly),
		SimulationStartedAt:   st.SimulationStartedAt.Format(time.RFC3339),
		LastProcessedAt:       st.LastProcessedAt.Format(time.RFC3339),
		Progress:              st.Progress(),
		ElapsedRealMinutes:    st.ElapsedRealMinutes(),
		Summary:               st.Summary(),
	}
	if eta, ok := st.EstimatedCompletionAt(s.sched.Now()); ok {
		view.EstimatedCompletionAt = eta.Format(time.RFC3339)
	}
	return view
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	state, ok := s.sched.StateFor(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no simulation state for session")
		return
	}
	writeJSON(w, http.StatusOK, s.stateView(state))
}

func (s *Server) handleStates(w http.ResponseWriter, _ *http.Request) {
	states := s.sched.States()
	views := make([]stateView, 0, len(states))
	for _, st := range states {
		views = append(views, s.stateView(st))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SessionID < views[j].SessionID })
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(views),
		"states": views,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Statistics())
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := s.metrics.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"ticks":                   snap.Ticks,
		"ticksSkipped":            snap.TicksSkipped,
		"sessionsProcessed":       snap.SessionsProcessed,
		"sessionFailures":         snap.SessionFailures,
		"terminationsCompleted":   snap.TerminationsCompleted,
		"terminationsDeactivated": snap.TerminationsDeactivated,
		"statesReaped":            snap.StatesReaped,
		"recalcOk":                snap.RecalcOK,
		"recalcFailed":            snap.RecalcFailed,
		"recalcDropped":           snap.RecalcDropped,
		"priceFallbacks":          snap.FallbackCounts,
		"tickLatency": map[string]any{
			"count": snap.TickLatency.Count,
			"min":   snap.TickLatency.Min.String(),
			"max":   snap.TickLatency.Max.String(),
			"avg":   snap.TickLatency.Avg.String(),
		},
	})
}

func (s *Server) handleSessionValuation(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	state, ok := s.sched.StateFor(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no simulation state for session")
		return
	}
	challenge, err := s.challenges.FindByID(r.Context(), state.ChallengeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "challenge lookup failed")
		return
	}
	detail, err := s.valuer.ValueDetail(r.Context(), id, challenge.Instruments, state.CurrentSimulationDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "valuation failed")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func sessionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
