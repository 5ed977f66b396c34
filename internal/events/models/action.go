package models

import (
	"maps"
	"strings"
	"time"

	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
)

// ActionType names a state transition on a registration record.
type ActionType string

const (
	ActionCreate            ActionType = "CREATE"
	ActionNotify            ActionType = "NOTIFY"
	ActionDeclare           ActionType = "DECLARE"
	ActionValidate          ActionType = "VALIDATE"
	ActionRegister          ActionType = "REGISTER"
	ActionReject            ActionType = "REJECT"
	ActionArchive           ActionType = "ARCHIVE"
	ActionPrintCertificate  ActionType = "PRINT_CERTIFICATE"
	ActionRequestCorrection ActionType = "REQUEST_CORRECTION"
	ActionApproveCorrection ActionType = "APPROVE_CORRECTION"
	ActionRejectCorrection  ActionType = "REJECT_CORRECTION"
	ActionAssign            ActionType = "ASSIGN"
	ActionUnassign          ActionType = "UNASSIGN"
	ActionCustom            ActionType = "CUSTOM"
)

var validActionTypes = map[ActionType]bool{
	ActionCreate:            true,
	ActionNotify:            true,
	ActionDeclare:           true,
	ActionValidate:          true,
	ActionRegister:          true,
	ActionReject:            true,
	ActionArchive:           true,
	ActionPrintCertificate:  true,
	ActionRequestCorrection: true,
	ActionApproveCorrection: true,
	ActionRejectCorrection:  true,
	ActionAssign:            true,
	ActionUnassign:          true,
	ActionCustom:            true,
}

func (t ActionType) IsValid() bool {
	return validActionTypes[t]
}

func (t ActionType) String() string {
	return string(t)
}

// ParseActionType accepts the canonical upper-case form and the kebab/camel
// forms used in routes (print-certificate, printCertificate).
func ParseActionType(raw string) (ActionType, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_"))
	if t := ActionType(normalized); t.IsValid() {
		return t, nil
	}
	// camelCase: insert underscores before inner capitals
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	if t := ActionType(strings.ToUpper(b.String())); t.IsValid() {
		return t, nil
	}
	return "", dErrors.New(dErrors.CodeBadRequest, "unknown action type: "+raw)
}

// ActionStatus is the confirmation state of a recorded action.
type ActionStatus string

const (
	ActionStatusRequested ActionStatus = "Requested"
	ActionStatusAccepted  ActionStatus = "Accepted"
	ActionStatusRejected  ActionStatus = "Rejected"
)

func (s ActionStatus) IsValid() bool {
	switch s {
	case ActionStatusRequested, ActionStatusAccepted, ActionStatusRejected:
		return true
	}
	return false
}

// Action is one immutable entry in an event's log.
//
// Invariants:
//   - ID and TransactionID are non-empty
//   - A resolving action carries RequestID of the Requested action it settles
//     and the same Type; APPROVE_CORRECTION and REJECT_CORRECTION carry the
//     REQUEST_CORRECTION id instead
//   - Once appended an action is never modified
type Action struct {
	ID                id.ActionID    `json:"id"`
	Type              ActionType     `json:"type"`
	Status            ActionStatus   `json:"status"`
	TransactionID     string         `json:"transactionId"`
	CreatedBy         id.UserID      `json:"createdBy"`
	CreatedByRole     string         `json:"createdByRole,omitempty"`
	CreatedAtLocation string         `json:"createdAtLocation,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	Declaration       map[string]any `json:"declaration,omitempty"`
	Annotation        map[string]any `json:"annotation,omitempty"`
	CustomActionType  string         `json:"customActionType,omitempty"`
	RequestID         id.ActionID    `json:"requestId,omitzero"`
	AssignedTo        id.UserID      `json:"assignedTo,omitempty"`
	Reason            string         `json:"reason,omitempty"`
}

// IsResolution reports whether a settles an earlier Requested action of the
// same type.
func (a Action) IsResolution() bool {
	if a.RequestID.IsNil() {
		return false
	}
	return a.Type != ActionApproveCorrection && a.Type != ActionRejectCorrection
}

// Clone returns a copy whose payload maps can be modified freely.
func (a Action) Clone() Action {
	a.Declaration = maps.Clone(a.Declaration)
	a.Annotation = maps.Clone(a.Annotation)
	return a
}

// Validate checks the structural invariants of a single action.
func (a Action) Validate() error {
	if a.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "action id is required")
	}
	if !a.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown action type")
	}
	if !a.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown action status")
	}
	if strings.TrimSpace(a.TransactionID) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "transaction id is required")
	}
	if a.CreatedBy.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "action creator is required")
	}
	if a.Type == ActionCustom && a.CustomActionType == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "custom action type is required")
	}
	if a.Type == ActionAssign && a.AssignedTo.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "assignee is required")
	}
	return nil
}
