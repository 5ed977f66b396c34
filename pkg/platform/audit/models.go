package audit

import (
	"context"
	"time"

	id "crvs/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance. Every action
	// appended to a registration record is a compliance event.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and operational visibility.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names the kind of audit record.
type AuditEvent string

const (
	EventRecordCreated   AuditEvent = "event_created"
	EventActionRequested AuditEvent = "action_requested"
	EventActionAccepted  AuditEvent = "action_accepted"
	EventActionRejected  AuditEvent = "action_rejected"
	EventDraftSaved      AuditEvent = "draft_saved"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecordCreated:   CategoryCompliance,
	EventActionRequested: CategoryCompliance,
	EventActionAccepted:  CategoryCompliance,
	EventActionRejected:  CategoryCompliance,
	EventDraftSaved:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is the stored audit record. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	ID            string
	Category      EventCategory
	Timestamp     time.Time
	Action        string
	ActorID       id.UserID
	ActorRole     string
	EventID       id.EventID
	EventType     string
	ActionID      id.ActionID
	ActionType    string
	ActionStatus  string
	TransactionID string
	RequestID     string
}

// ComplianceEvent captures one appended registration action. Use with the
// compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp     time.Time // set automatically if zero
	Action        AuditEvent
	ActorID       id.UserID
	ActorRole     string
	EventID       id.EventID
	EventType     string
	ActionID      id.ActionID
	ActionType    string
	ActionStatus  string
	TransactionID string
	RequestID     string // correlation id of the HTTP request
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:      CategoryCompliance,
		Timestamp:     e.Timestamp,
		Action:        string(e.Action),
		ActorID:       e.ActorID,
		ActorRole:     e.ActorRole,
		EventID:       e.EventID,
		EventType:     e.EventType,
		ActionID:      e.ActionID,
		ActionType:    e.ActionType,
		ActionStatus:  e.ActionStatus,
		TransactionID: e.TransactionID,
		RequestID:     e.RequestID,
	}
}

// Store persists audit events. Postgres implementations write to the outbox
// inside the caller's transaction when one is present in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEvent(ctx context.Context, eventID id.EventID) ([]Event, error)
}
