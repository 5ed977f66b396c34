package service

import (
	"context"
	"errors"

	"crvs/internal/events/aggregate"
	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	"crvs/internal/events/scope"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	"crvs/pkg/platform/sentinel"
)

// Get returns the record with its derived state.
func (s *Service) Get(ctx context.Context, eventID id.EventID) (*models.EventDocument, error) {
	e, cfg, err := s.readable(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return document(e, cfg), nil
}

// StateWithDraft overlays the caller's draft on the derived state. Nothing is
// recorded.
func (s *Service) StateWithDraft(ctx context.Context, eventID id.EventID) (*models.EventState, error) {
	e, cfg, err := s.readable(ctx, eventID)
	if err != nil {
		return nil, err
	}
	user, _ := actor(ctx)
	var draft *models.Draft
	if s.drafts != nil {
		draft, err = s.drafts.Get(ctx, user, eventID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
		}
	}
	state := aggregate.DeriveWithDraft(e, draft, aggregate.WithConfig(cfg))
	return &state, nil
}

// List returns the records the caller may read, optionally narrowed by type,
// status and assignee. Records of types the caller has no read scope for are
// left out rather than refused.
func (s *Service) List(ctx context.Context, eventType string, filter models.ListFilter) ([]*models.EventDocument, error) {
	if _, err := actor(ctx); err != nil {
		return nil, err
	}
	if eventType != "" {
		cfg, err := s.loadConfig(ctx, eventType)
		if err != nil {
			return nil, err
		}
		eventType = cfg.ID
	}
	events, err := s.events.List(ctx, eventType)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}

	configs := make(map[string]*eventconfig.EventConfig)
	out := make([]*models.EventDocument, 0, len(events))
	for _, e := range events {
		cfg, ok := configs[e.Type]
		if !ok {
			cfg, err = s.loadConfig(ctx, e.Type)
			if err != nil {
				return nil, err
			}
			configs[e.Type] = cfg
		}
		if authorize(ctx, scope.Capability{Name: scope.RecordRead, Event: cfg.ID}) != nil {
			continue
		}
		doc := document(e, cfg)
		if filter.Matches(doc.State) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// ListConfigs returns every event configuration known to the service.
func (s *Service) ListConfigs(ctx context.Context) ([]*eventconfig.EventConfig, error) {
	if _, err := actor(ctx); err != nil {
		return nil, err
	}
	cfgs, err := s.configs.List(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "event configuration unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list event configurations")
	}
	return cfgs, nil
}

// readable loads a record the caller holds record.read for.
func (s *Service) readable(ctx context.Context, eventID id.EventID) (*models.Event, *eventconfig.EventConfig, error) {
	if _, err := actor(ctx); err != nil {
		return nil, nil, err
	}
	e, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.loadConfig(ctx, e.Type)
	if err != nil {
		return nil, nil, err
	}
	if err := authorize(ctx, scope.Capability{Name: scope.RecordRead, Event: cfg.ID}); err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}
