// Package compliance records the audit trail of registration records.
//
// Emit is synchronous and fail-closed: the event is written to the audit
// store (the outbox when backed by PostgreSQL) inside the caller's
// transaction, and a failed write must abort the action that produced it.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "crvs/pkg/platform/audit"
)

var (
	ErrMissingEventID = errors.New("compliance event requires an event id")
	ErrMissingAction  = errors.New("compliance event requires an action")
)

// Publisher writes compliance events to an audit store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit persists event. The returned error must fail the calling operation.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	start := time.Now()
	if err := validate(event); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}

	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "compliance audit write failed",
				"action", event.Action,
				"event_id", event.EventID,
				"action_id", event.ActionID,
				"action_type", event.ActionType,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
	return nil
}

func validate(event audit.ComplianceEvent) error {
	if event.EventID.IsNil() {
		return ErrMissingEventID
	}
	if event.Action == "" {
		return ErrMissingAction
	}
	return nil
}
