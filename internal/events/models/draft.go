package models

import (
	"time"

	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
)

// Draft is unsaved work on an action a user has not submitted yet. Drafts are
// never part of the action log.
type Draft struct {
	ID          id.DraftID     `json:"id"`
	EventID     id.EventID     `json:"eventId"`
	EventType   string         `json:"eventType"`
	ActionType  ActionType     `json:"actionType"`
	CreatedBy   id.UserID      `json:"createdBy"`
	Declaration map[string]any `json:"declaration,omitempty"`
	Annotation  map[string]any `json:"annotation,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func NewDraft(draftID id.DraftID, eventID id.EventID, eventType string, actionType ActionType, createdBy id.UserID, now time.Time) (*Draft, error) {
	if eventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires an event id")
	}
	if createdBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires an owner")
	}
	if !actionType.IsValid() || actionType == ActionCreate {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "draft requires a submittable action type")
	}
	return &Draft{
		ID:         draftID,
		EventID:    eventID,
		EventType:  eventType,
		ActionType: actionType,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
