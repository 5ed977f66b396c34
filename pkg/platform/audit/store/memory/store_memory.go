package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	id "crvs/pkg/domain"
	audit "crvs/pkg/platform/audit"
)

// InMemoryStore keeps audit events per registration record.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.EventID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EventID] = append(s.events[event.EventID], event)
	return nil
}

func (s *InMemoryStore) ListByEvent(_ context.Context, eventID id.EventID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[eventID]...), nil
}

// ListAll returns all audit events across all records.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Event
	for _, evs := range s.events {
		all = append(all, evs...)
	}
	return all, nil
}
