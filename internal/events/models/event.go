package models

import (
	"strings"
	"time"

	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
)

// Event is the aggregate root for one registration record: an append-only
// log of actions. Every derived view is a fold over Actions.
//
// Invariants:
//   - Type is non-empty
//   - Actions is append-only and its first entry is CREATE
//   - (Type, TransactionID) is unique among Actions
//   - at most one action resolves a given Requested action, and at most one
//     decision closes a given correction request
type Event struct {
	ID        id.EventID `json:"id"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Actions   []Action   `json:"actions"`
}

func NewEvent(eventID id.EventID, eventType string, now time.Time) (*Event, error) {
	if eventID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "event id is required")
	}
	if strings.TrimSpace(eventType) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "event type is required")
	}
	return &Event{
		ID:        eventID,
		Type:      eventType,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// FindAction returns the action with the given id.
func (e *Event) FindAction(actionID id.ActionID) (Action, bool) {
	for _, a := range e.Actions {
		if a.ID == actionID {
			return a, true
		}
	}
	return Action{}, false
}

// FindByTransaction returns the action recorded for (type, transactionID).
func (e *Event) FindByTransaction(t ActionType, transactionID string) (Action, bool) {
	for _, a := range e.Actions {
		if a.Type == t && a.TransactionID == transactionID {
			return a, true
		}
	}
	return Action{}, false
}

// ResolutionOf returns the accept or reject that settled requestID, if any.
func (e *Event) ResolutionOf(requestID id.ActionID) (Action, bool) {
	for _, a := range e.Actions {
		if a.IsResolution() && a.RequestID == requestID {
			return a, true
		}
	}
	return Action{}, false
}

// CorrectionDecisionOf returns the APPROVE_CORRECTION or REJECT_CORRECTION
// that closed the correction requestID, if any.
func (e *Event) CorrectionDecisionOf(requestID id.ActionID) (Action, bool) {
	for _, a := range e.Actions {
		if (a.Type == ActionApproveCorrection || a.Type == ActionRejectCorrection) && a.RequestID == requestID {
			return a, true
		}
	}
	return Action{}, false
}

// CanAppend checks the log invariants for a candidate action.
// Use with ApplyAppend inside a per-event transaction.
func (e *Event) CanAppend(a Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if len(e.Actions) == 0 && a.Type != ActionCreate {
		return dErrors.New(dErrors.CodeInvariantViolation, "first action must be CREATE")
	}
	if len(e.Actions) > 0 && a.Type == ActionCreate {
		return dErrors.New(dErrors.CodeInvariantViolation, "event already created")
	}
	if _, dup := e.FindAction(a.ID); dup {
		return dErrors.New(dErrors.CodeInvariantViolation, "action id already recorded")
	}
	if _, dup := e.FindByTransaction(a.Type, a.TransactionID); dup {
		return dErrors.New(dErrors.CodeInvariantViolation, "transaction already recorded")
	}
	if a.IsResolution() {
		if _, resolved := e.ResolutionOf(a.RequestID); resolved {
			return dErrors.New(dErrors.CodeInvariantViolation, "request already resolved")
		}
	} else if !a.RequestID.IsNil() {
		if _, decided := e.CorrectionDecisionOf(a.RequestID); decided {
			return dErrors.New(dErrors.CodeInvariantViolation, "correction already decided")
		}
	}
	return nil
}

// ApplyAppend records a and bumps UpdatedAt. Call CanAppend first.
func (e *Event) ApplyAppend(a Action) {
	e.Actions = append(e.Actions, a.Clone())
	if a.CreatedAt.After(e.UpdatedAt) {
		e.UpdatedAt = a.CreatedAt
	}
}

// Append validates and records a in one call.
func (e *Event) Append(a Action) error {
	if err := e.CanAppend(a); err != nil {
		return err
	}
	e.ApplyAppend(a)
	return nil
}

// Clone returns a deep enough copy for callers that mutate the log.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Actions = make([]Action, len(e.Actions))
	for i, a := range e.Actions {
		out.Actions[i] = a.Clone()
	}
	return &out
}
