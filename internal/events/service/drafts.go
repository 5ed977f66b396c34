package service

import (
	"context"
	"errors"

	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	audit "crvs/pkg/platform/audit"
	"crvs/pkg/platform/sentinel"
	"crvs/pkg/requestcontext"
)

// SaveDraft stores the caller's unsubmitted payload for an event, replacing
// any earlier draft. The payload is not validated.
func (s *Service) SaveDraft(ctx context.Context, req *models.SaveDraftRequest) (*models.Draft, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.drafts == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "drafts are not configured")
	}
	e, cfg, err := s.readable(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	user := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx).UTC()

	draftID, createdAt := id.NewDraftID(), now
	existing, err := s.drafts.Get(ctx, user, e.ID)
	switch {
	case err == nil:
		draftID, createdAt = existing.ID, existing.CreatedAt
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}

	draft, err := models.NewDraft(draftID, e.ID, cfg.ID, req.ActionType, user, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid draft")
	}
	draft.CreatedAt = createdAt
	draft.Declaration = req.Declaration
	draft.Annotation = req.Annotation
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save draft")
	}

	s.metrics.IncrementDraftsSaved()
	s.logOperation(ctx, audit.EventDraftSaved,
		"user_id", user.String(),
		"event_id", e.ID.String(),
		"action_type", string(req.ActionType),
	)
	return draft, nil
}

// ListDrafts returns the caller's drafts, newest first.
func (s *Service) ListDrafts(ctx context.Context) ([]*models.Draft, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if s.drafts == nil {
		return []*models.Draft{}, nil
	}
	drafts, err := s.drafts.ListByUser(ctx, user)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list drafts")
	}
	if drafts == nil {
		drafts = []*models.Draft{}
	}
	return drafts, nil
}

// DeleteDraft discards the caller's draft for an event.
func (s *Service) DeleteDraft(ctx context.Context, eventID id.EventID) error {
	user, err := actor(ctx)
	if err != nil {
		return err
	}
	if s.drafts == nil {
		return nil
	}
	if err := s.drafts.Delete(ctx, user, eventID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete draft")
	}
	return nil
}
