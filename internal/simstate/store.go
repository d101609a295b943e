package simstate

import (
	"sync"
	"time"
)

// Store keeps per-session simulation state keyed by session id. The scheduler
// is the only writer; all mutation happens inside the store's lock so that
// admin reads never observe a torn entry. The interface exists so a
// multi-instance deployment can swap in a shared cache without touching the
// scheduler.
type Store interface {
	// Get returns a copy of the state for the session, if present.
	Get(sessionID int64) (State, bool)
	// GetOrCreate returns a copy of the session's entry, creating it with
	// create on first observation.
	GetOrCreate(sessionID int64, create func() State) State
	// Update applies fn to the session's entry under the store lock. It
	// reports whether the entry existed.
	Update(sessionID int64, fn func(*State)) bool
	// Delete removes the session's entry.
	Delete(sessionID int64)
	// Snapshot returns copies of all entries.
	Snapshot() map[int64]State
	// Len reports the number of tracked sessions.
	Len() int
	// EvictStale removes entries whose LastProcessedAt is before cutoff and
	// returns the evicted copies.
	EvictStale(cutoff time.Time) []State
}

// MemoryStore is the single-process Store. Contents do not survive a restart;
// the derived-clock design makes that loss safe.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]*State
}

// NewMemoryStore allocates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]*State)}
}

func (m *MemoryStore) Get(sessionID int64) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[sessionID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

func (m *MemoryStore) GetOrCreate(sessionID int64, create func() State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[sessionID]; ok {
		return *st
	}
	st := create()
	m.states[sessionID] = &st
	return st
}

func (m *MemoryStore) Update(sessionID int64, fn func(*State)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		return false
	}
	fn(st)
	return true
}

func (m *MemoryStore) Delete(sessionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, sessionID)
}

func (m *MemoryStore) Snapshot() map[int64]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]State, len(m.states))
	for id, st := range m.states {
		out[id] = *st
	}
	return out
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

func (m *MemoryStore) EvictStale(cutoff time.Time) []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []State
	for id, st := range m.states {
		if st.LastProcessedAt.Before(cutoff) {
			evicted = append(evicted, *st)
			delete(m.states, id)
		}
	}
	return evicted
}
