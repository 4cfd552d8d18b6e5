package locator

import (
	"sync"
	"time"
)

// Record describes one successful resolution of a named locator.
type Record struct {
	ResolutionID string
	Key          Key
	Expression   Expression
	Index        int
	Origin       Origin
	WasOriginal  bool
	At           time.Time
}

// Stats is a point-in-time copy of the healing bookkeeping.
type Stats struct {
	// HealedCount is the number of distinct keys that needed healing at
	// least once since the last clear.
	HealedCount       int
	Latest            map[string]Record
	History           map[string][]Expression
	AutoUpdateEnabled bool
	LearningEnabled   bool
}

// State holds the per-process healing bookkeeping. The zero value is not
// usable, use NewState.
type State struct {
	mu      sync.Mutex
	latest  map[Key]Record
	history map[Key][]Expression
	healed  map[Key]struct{}
}

func NewState() *State {
	return &State{
		latest:  make(map[Key]Record),
		history: make(map[Key][]Expression),
		healed:  make(map[Key]struct{}),
	}
}

// Record stores rec as the latest resolution for its key and appends the
// winning expression to the key's history if it is not already there.
func (s *State) Record(rec Record) {
	if rec.Key.IsZero() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[rec.Key] = rec
	if !rec.WasOriginal {
		s.healed[rec.Key] = struct{}{}
	}
	for _, e := range s.history[rec.Key] {
		if e == rec.Expression {
			return
		}
	}
	s.history[rec.Key] = append(s.history[rec.Key], rec.Expression)
}

// Latest returns the most recent record for key.
func (s *State) Latest(key Key) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.latest[key]
	return rec, ok
}

// History returns a copy of the distinct winning expressions for key, oldest first.
func (s *State) History(key Key) []Expression {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Expression(nil), s.history[key]...)
}

// Snapshot copies the current state. Map keys are Key.String().
func (s *State) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		HealedCount: len(s.healed),
		Latest:      make(map[string]Record, len(s.latest)),
		History:     make(map[string][]Expression, len(s.history)),
	}
	for k, rec := range s.latest {
		st.Latest[k.String()] = rec
	}
	for k, h := range s.history {
		st.History[k.String()] = append([]Expression(nil), h...)
	}
	return st
}

// Clear drops all records and history.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make(map[Key]Record)
	s.history = make(map[Key][]Expression)
	s.healed = make(map[Key]struct{})
}
