package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "crvs/pkg/domain-errors"
)

// Typed identifiers keep event, action and draft ids from being swapped at
// call sites. All are UUIDs; the zero value is the nil UUID.
type (
	EventID  uuid.UUID
	ActionID uuid.UUID
	DraftID  uuid.UUID
)

// UserID identifies an actor. It is issued by the identity provider and is
// opaque to this service, so it is not constrained to UUID form.
type UserID string

// maxIDLength bounds raw input before parsing.
const maxIDLength = 64

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(raw) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

// ParseEventID validates external input and returns an EventID.
func ParseEventID(raw string) (EventID, error) {
	parsed, err := parseUUID("event id", raw)
	return EventID(parsed), err
}

// ParseActionID validates external input and returns an ActionID.
func ParseActionID(raw string) (ActionID, error) {
	parsed, err := parseUUID("action id", raw)
	return ActionID(parsed), err
}

// ParseDraftID validates external input and returns a DraftID.
func ParseDraftID(raw string) (DraftID, error) {
	parsed, err := parseUUID("draft id", raw)
	return DraftID(parsed), err
}

// ParseUserID trims and bounds an actor identifier.
func ParseUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "user id is required")
	}
	if len(trimmed) > 128 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid user id")
	}
	return UserID(trimmed), nil
}

func NewEventID() EventID   { return EventID(uuid.New()) }
func NewActionID() ActionID { return ActionID(uuid.New()) }
func NewDraftID() DraftID   { return DraftID(uuid.New()) }

func (id EventID) String() string  { return uuid.UUID(id).String() }
func (id ActionID) String() string { return uuid.UUID(id).String() }
func (id DraftID) String() string  { return uuid.UUID(id).String() }
func (id UserID) String() string   { return string(id) }

func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DraftID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool   { return id == "" }

func (id EventID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ActionID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}
func (id DraftID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid event id")
	}
	*id = EventID(parsed)
	return nil
}

func (id *ActionID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = ActionID(uuid.Nil)
		return nil
	}
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid action id")
	}
	*id = ActionID(parsed)
	return nil
}

func (id *DraftID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid draft id")
	}
	*id = DraftID(parsed)
	return nil
}
