package event

import (
	"context"
	"sync"
	"time"

	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	"crvs/pkg/platform/sentinel"
)

// InMemoryStore keeps events in a map. RunInTx serialises work per event with
// sharded mutexes and stages writes until fn returns nil, so a failed
// transaction leaves nothing behind.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.Event
	order  []id.EventID

	shards  [numShards]sync.Mutex
	timeout time.Duration
}

type MemoryOption func(*InMemoryStore)

func WithMemoryTxTimeout(d time.Duration) MemoryOption {
	return func(s *InMemoryStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		events:  make(map[id.EventID]*models.Event),
		timeout: DefaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type memTxKey struct{}

type memTx struct {
	owner   *InMemoryStore
	staged  map[id.EventID]*models.Event
	created []id.EventID
}

func (s *InMemoryStore) txFrom(ctx context.Context) *memTx {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok && tx.owner == s {
		return tx
	}
	return nil
}

// RunInTx runs fn holding the lock of eventID's shard. Nested calls reuse the
// outer transaction.
func (s *InMemoryStore) RunInTx(ctx context.Context, eventID id.EventID, fn func(txCtx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	shard := hashString(eventID.String()) % numShards
	s.shards[shard].Lock()
	defer s.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memTx{owner: s, staged: make(map[id.EventID]*models.Event)}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	s.commit(tx)
	return nil
}

func (s *InMemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, eventID := range tx.created {
		if _, ok := s.events[eventID]; !ok {
			s.order = append(s.order, eventID)
		}
	}
	for eventID, e := range tx.staged {
		s.events[eventID] = e
	}
}

// load returns a private copy of the event, staged writes first.
func (s *InMemoryStore) load(ctx context.Context, eventID id.EventID) (*models.Event, bool) {
	if tx := s.txFrom(ctx); tx != nil {
		if e, ok := tx.staged[eventID]; ok {
			return e.Clone(), true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (s *InMemoryStore) save(ctx context.Context, e *models.Event, created bool) {
	if tx := s.txFrom(ctx); tx != nil {
		tx.staged[e.ID] = e
		if created {
			tx.created = append(tx.created, e.ID)
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if created {
		s.order = append(s.order, e.ID)
	}
	s.events[e.ID] = e
}

// Create stores a new event with its initial actions. Returns
// sentinel.ErrAlreadyUsed when the id exists.
func (s *InMemoryStore) Create(ctx context.Context, e *models.Event) error {
	if _, exists := s.load(ctx, e.ID); exists {
		return sentinel.ErrAlreadyUsed
	}
	s.save(ctx, e.Clone(), true)
	return nil
}

// Get returns sentinel.ErrNotFound for unknown ids.
func (s *InMemoryStore) Get(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	e, ok := s.load(ctx, eventID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e, nil
}

// Append adds one action to the end of the log. A duplicate action id,
// transaction or resolution returns sentinel.ErrAlreadyUsed.
func (s *InMemoryStore) Append(ctx context.Context, eventID id.EventID, a models.Action) error {
	e, ok := s.load(ctx, eventID)
	if !ok {
		return sentinel.ErrNotFound
	}
	if conflicts(e, a) {
		return sentinel.ErrAlreadyUsed
	}
	e.ApplyAppend(a)
	s.save(ctx, e, false)
	return nil
}

// List returns events in creation order; an empty eventType lists all.
func (s *InMemoryStore) List(_ context.Context, eventType string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Event, 0, len(s.order))
	for _, eventID := range s.order {
		e := s.events[eventID]
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}
