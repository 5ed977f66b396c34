// Package service implements the action lifecycle of registration records:
// authorisation, validation, confirmation through the country configuration
// and the append-only write path.
package service

import (
	"context"
	"log/slog"

	"crvs/internal/events/countryconfig"
	"crvs/internal/events/eventconfig"
	"crvs/internal/events/metrics"
	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	audit "crvs/pkg/platform/audit"
)

// EventStore persists action logs. Implementations return sentinel errors.
type EventStore interface {
	RunInTx(ctx context.Context, eventID id.EventID, fn func(txCtx context.Context) error) error
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, eventID id.EventID) (*models.Event, error)
	Append(ctx context.Context, eventID id.EventID, a models.Action) error
	List(ctx context.Context, eventType string) ([]*models.Event, error)
}

type DraftStore interface {
	Save(ctx context.Context, d *models.Draft) error
	Get(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Draft, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Draft, error)
	Delete(ctx context.Context, userID id.UserID, eventID id.EventID) error
}

// ConfigSource is implemented by eventconfig.Set, FileSource and RemoteSource.
type ConfigSource interface {
	Get(ctx context.Context, eventType string) (*eventconfig.EventConfig, error)
	List(ctx context.Context) ([]*eventconfig.EventConfig, error)
}

// Notifier calls the country configuration for actions that require
// confirmation.
type Notifier interface {
	Notify(ctx context.Context, n countryconfig.Notification) (countryconfig.Result, error)
}

// AuditPublisher records every appended action. Emit failures abort the
// operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service orchestrates the action lifecycle.
type Service struct {
	events   EventStore
	drafts   DraftStore
	configs  ConfigSource
	notifier Notifier

	auditPublisher AuditPublisher
	opsStore       audit.Store
	logger         *slog.Logger
	metrics        *metrics.Metrics
	newActionID    func() id.ActionID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithOperationsStore records operational audit events such as saved drafts.
func WithOperationsStore(store audit.Store) Option {
	return func(s *Service) {
		s.opsStore = store
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithActionIDs replaces the random action id source.
func WithActionIDs(next func() id.ActionID) Option {
	return func(s *Service) {
		if next != nil {
			s.newActionID = next
		}
	}
}

// New constructs a Service. notifier may be nil when no action requires
// confirmation.
func New(events EventStore, drafts DraftStore, configs ConfigSource, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		events:      events,
		drafts:      drafts,
		configs:     configs,
		notifier:    notifier,
		newActionID: id.NewActionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
