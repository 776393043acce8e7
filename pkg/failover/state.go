package failover

import (
	"sync"
	"time"
)

// State is the sticky failover position for one session. A Send holds run
// for its whole duration, so calls sharing a State are serialized; mu only
// guards the fields, so Snapshot never waits on the network.
type State struct {
	run sync.Mutex

	mu                  sync.Mutex
	currentIndex        int
	lastSuccessfulModel string
	lastUsed            time.Time
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	CurrentIndex        int    `json:"current_index"`
	LastSuccessfulModel string `json:"last_successful_model,omitempty"`
}

// Snapshot returns the current position.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{CurrentIndex: s.currentIndex, LastSuccessfulModel: s.lastSuccessfulModel}
}

// Reset points the state back at the primary model.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentIndex = 0
}

// begin clamps the index into [0,n) and returns it together with the raw
// value the call started from.
func (s *State) begin(n int) (idx, original int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	original = s.currentIndex
	if s.currentIndex < 0 || s.currentIndex >= n {
		s.currentIndex = 0
	}
	return s.currentIndex, original
}

func (s *State) advance(idx int) {
	s.mu.Lock()
	s.currentIndex = idx
	s.mu.Unlock()
}

// succeed records a success at idx. A call that had to fail over stays on
// the model that answered; a first-attempt success returns to the primary.
func (s *State) succeed(model string, idx int, failedOver bool) {
	s.mu.Lock()
	s.currentIndex = 0
	if failedOver {
		s.currentIndex = idx
	}
	s.lastSuccessfulModel = model
	s.mu.Unlock()
}

func (s *State) restore(idx int) {
	s.mu.Lock()
	s.currentIndex = idx
	s.mu.Unlock()
}

// Sessions hands out one State per session key.
type Sessions struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{states: make(map[string]*State)}
}

// Get returns the State for key, creating it on first use.
func (s *Sessions) Get(key string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &State{}
		s.states[key] = st
	}
	st.mu.Lock()
	st.lastUsed = time.Now()
	st.mu.Unlock()
	return st
}

// Lookup returns the State for key without creating or touching it.
func (s *Sessions) Lookup(key string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return st, ok
}

// Len reports how many sessions are tracked.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// EvictIdle drops sessions last handed out before cutoff and returns how
// many were removed. A session with a Send in flight is kept.
func (s *Sessions) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, st := range s.states {
		st.mu.Lock()
		idle := st.lastUsed.Before(cutoff)
		st.mu.Unlock()
		if !idle || !st.run.TryLock() {
			continue
		}
		delete(s.states, key)
		st.run.Unlock()
		n++
	}
	return n
}

// Snapshots returns the positions of every known session.
func (s *Sessions) Snapshots() map[string]Snapshot {
	s.mu.Lock()
	states := make(map[string]*State, len(s.states))
	for k, v := range s.states {
		states[k] = v
	}
	s.mu.Unlock()

	out := make(map[string]Snapshot, len(states))
	for k, st := range states {
		out[k] = st.Snapshot()
	}
	return out
}
