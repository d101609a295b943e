package scheduler

// SessionProgress pairs a session with its progress percentage.
type SessionProgress struct {
	SessionID int64   `json:"sessionId"`
	Progress  float64 `json:"progress"`
}

// Statistics aggregates the tracked simulation states for operators.
type Statistics struct {
	ActiveSessions        int              `json:"activeSessions"`
	AverageProgress       float64          `json:"averageProgress"`
	AverageElapsedMinutes float64          `json:"averageElapsedMinutes"`
	SpeedFactors          map[int]int      `json:"speedFactors"`
	Fastest               *SessionProgress `json:"fastest,omitempty"`
	Slowest               *SessionProgress `json:"slowest,omitempty"`
}

// Statistics summarizes all tracked states at this instant.
func (s *Scheduler) Statistics() Statistics {
	states := s.states.Snapshot()
	stats := Statistics{
		ActiveSessions: len(states),
		SpeedFactors:   make(map[int]int),
	}
	if len(states) == 0 {
		return stats
	}

	var progressSum, elapsedSum float64
	for id, st := range states {
		progress := st.Progress()
		progressSum += progress
		elapsedSum += float64(st.ElapsedRealMinutes())
		stats.SpeedFactors[st.SpeedFactor]++

		if stats.Fastest == nil || progress > stats.Fastest.Progress {
			stats.Fastest = &SessionProgress{SessionID: id, Progress: progress}
		}
		if stats.Slowest == nil || progress < stats.Slowest.Progress {
			stats.Slowest = &SessionProgress{SessionID: id, Progress: progress}
		}
	}
	stats.AverageProgress = progressSum / float64(len(states))
	stats.AverageElapsedMinutes = elapsedSum / float64(len(states))
	return stats
}
