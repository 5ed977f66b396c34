package models

import (
	"time"

	id "crvs/pkg/domain"
)

// PendingConfirmation is a Requested action awaiting accept or reject.
type PendingConfirmation struct {
	ActionID         id.ActionID `json:"actionId"`
	Type             ActionType  `json:"type"`
	CustomActionType string      `json:"customActionType,omitempty"`
	CreatedBy        id.UserID   `json:"createdBy"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// PendingCorrection is an open REQUEST_CORRECTION.
type PendingCorrection struct {
	RequestID   id.ActionID    `json:"requestId"`
	Declaration map[string]any `json:"declaration,omitempty"`
	Annotation  map[string]any `json:"annotation,omitempty"`
	CreatedBy   id.UserID      `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// EventState is the view derived by folding an event's actions.
type EventState struct {
	ID                   id.EventID            `json:"id"`
	Type                 string                `json:"type"`
	Status               EventStatus           `json:"status"`
	Declaration          map[string]any        `json:"declaration"`
	Flags                []string              `json:"flags"`
	AssignedTo           id.UserID             `json:"assignedTo,omitempty"`
	CreatedAt            time.Time             `json:"createdAt"`
	CreatedBy            id.UserID             `json:"createdBy,omitempty"`
	UpdatedAt            time.Time             `json:"updatedAt"`
	PendingConfirmations []PendingConfirmation `json:"pendingConfirmations"`
	PendingCorrection    *PendingCorrection    `json:"pendingCorrection,omitempty"`
}

// HasPendingConfirmation reports whether any action awaits confirmation.
func (s EventState) HasPendingConfirmation() bool {
	return len(s.PendingConfirmations) > 0
}

// IsPending reports whether actionID is an unresolved Requested action.
func (s EventState) IsPending(actionID id.ActionID) bool {
	for _, p := range s.PendingConfirmations {
		if p.ActionID == actionID {
			return true
		}
	}
	return false
}

// HasFlag reports whether flag is set on the record.
func (s EventState) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// EventDocument is the transport shape returned by every operation.
type EventDocument struct {
	Event *Event     `json:"event"`
	State EventState `json:"state"`
}

// ListFilter narrows event listings. Empty fields match everything.
type ListFilter struct {
	Type       string
	Status     EventStatus
	AssignedTo id.UserID
}

// Matches applies the derived-state parts of the filter.
func (f ListFilter) Matches(s EventState) bool {
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.AssignedTo.IsNil() && s.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}
