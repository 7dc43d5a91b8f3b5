package audit

import (
	"context"
	"sync"
)

// InMemory implements Store for tests and secret-less local runs.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

func (s *InMemory) Query(ctx context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	// Appended in time order; walk backwards for newest-first.
	for i := len(s.events) - 1; i >= 0 && len(out) < f.Limit; i-- {
		e := s.events[i]
		if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
			continue
		}
		if !f.End.IsZero() && e.Timestamp.After(f.End) {
			continue
		}
		if f.SubjectID != "" && e.SubjectID != f.SubjectID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len reports the number of stored events.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
