// Package draft stores per-user unsaved action payloads. A user holds at most
// one draft per event; saving again replaces it.
package draft

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	"crvs/pkg/platform/sentinel"
)

type key struct {
	user  id.UserID
	event id.EventID
}

type entry struct {
	draft     *models.Draft
	expiresAt time.Time
}

// InMemoryStore keeps drafts in a map. Expired drafts are dropped on read.
type InMemoryStore struct {
	mu     sync.RWMutex
	drafts map[key]entry
	ttl    time.Duration
	now    func() time.Time
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		drafts: make(map[key]entry),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *InMemoryStore) Save(_ context.Context, d *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{draft: clone(d)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.drafts[key{d.CreatedBy, d.EventID}] = e
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID id.UserID, eventID id.EventID) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.drafts[key{userID, eventID}]
	if !ok || s.expired(e) {
		return nil, sentinel.ErrNotFound
	}
	return clone(e.draft), nil
}

// ListByUser returns the user's drafts, most recently updated first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Draft
	for k, e := range s.drafts {
		if k.user == userID && !s.expired(e) {
			out = append(out, clone(e.draft))
		}
	}
	sortDrafts(out)
	return out, nil
}

// Delete is a no-op when no draft exists.
func (s *InMemoryStore) Delete(_ context.Context, userID id.UserID, eventID id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key{userID, eventID})
	return nil
}

func (s *InMemoryStore) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func clone(d *models.Draft) *models.Draft {
	out := *d
	out.Declaration = maps.Clone(d.Declaration)
	out.Annotation = maps.Clone(d.Annotation)
	return &out
}

func sortDrafts(drafts []*models.Draft) {
	sort.Slice(drafts, func(i, j int) bool {
		if !drafts[i].UpdatedAt.Equal(drafts[j].UpdatedAt) {
			return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
		}
		return drafts[i].EventID.String() < drafts[j].EventID.String()
	})
}
