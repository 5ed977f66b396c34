package models

import (
	"strings"

	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
)

const maxTransactionIDLength = 128

// CreateEventRequest starts a new registration record.
type CreateEventRequest struct {
	Type          string `json:"type"`
	TransactionID string `json:"transactionId"`
}

func (r *CreateEventRequest) Normalize() {
	if r == nil {
		return
	}
	r.Type = strings.TrimSpace(r.Type)
	r.TransactionID = strings.TrimSpace(r.TransactionID)
}

func (r *CreateEventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	return validateTransactionID(r.TransactionID)
}

// ActionRequest submits one action against an existing record. EventID and
// Type come from the route.
type ActionRequest struct {
	EventID          id.EventID     `json:"-"`
	Type             ActionType     `json:"-"`
	CustomActionType string         `json:"customActionType,omitempty"`
	TransactionID    string         `json:"transactionId"`
	Declaration      map[string]any `json:"declaration,omitempty"`
	Annotation       map[string]any `json:"annotation,omitempty"`
	Reason           string         `json:"reason,omitempty"`
}

func (r *ActionRequest) Normalize() {
	if r == nil {
		return
	}
	r.CustomActionType = strings.TrimSpace(r.CustomActionType)
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	r.Reason = strings.TrimSpace(r.Reason)
}

// Follows validation order: Required -> Syntax -> Semantic.
func (r *ActionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.EventID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "event id is required")
	}
	if err := validateTransactionID(r.TransactionID); err != nil {
		return err
	}
	if !r.Type.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown action type")
	}
	switch r.Type {
	case ActionCreate, ActionAssign, ActionUnassign, ActionApproveCorrection, ActionRejectCorrection:
		return dErrors.New(dErrors.CodeBadRequest, "action type has a dedicated operation")
	case ActionCustom:
		if r.CustomActionType == "" {
			return dErrors.New(dErrors.CodeBadRequest, "customActionType is required")
		}
	default:
		if r.CustomActionType != "" {
			return dErrors.New(dErrors.CodeBadRequest, "customActionType is only allowed on CUSTOM actions")
		}
	}
	return nil
}

// Decision settles a Requested action or an open correction.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionReject
}

// ResolveRequest is the country configuration's answer to a pending
// confirmation. RequestID is the id of the Requested action.
type ResolveRequest struct {
	EventID       id.EventID     `json:"-"`
	RequestID     id.ActionID    `json:"-"`
	Decision      Decision       `json:"-"`
	TransactionID string         `json:"transactionId"`
	Declaration   map[string]any `json:"declaration,omitempty"`
	Annotation    map[string]any `json:"annotation,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

func (r *ResolveRequest) Normalize() {
	if r == nil {
		return
	}
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.EventID.IsNil() || r.RequestID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "event id and request id are required")
	}
	if !r.Decision.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "decision must be accept or reject")
	}
	return validateTransactionID(r.TransactionID)
}

// CorrectionDecisionRequest approves or rejects an open correction request.
type CorrectionDecisionRequest struct {
	EventID       id.EventID     `json:"-"`
	RequestID     id.ActionID    `json:"-"`
	TransactionID string         `json:"transactionId"`
	Declaration   map[string]any `json:"declaration,omitempty"`
	Annotation    map[string]any `json:"annotation,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

func (r *CorrectionDecisionRequest) Normalize() {
	if r == nil {
		return
	}
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *CorrectionDecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.EventID.IsNil() || r.RequestID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "event id and request id are required")
	}
	return validateTransactionID(r.TransactionID)
}

// AssignmentRequest assigns the record to the caller, or releases it.
type AssignmentRequest struct {
	EventID       id.EventID `json:"-"`
	TransactionID string     `json:"transactionId"`
}

func (r *AssignmentRequest) Normalize() {
	if r == nil {
		return
	}
	r.TransactionID = strings.TrimSpace(r.TransactionID)
}

func (r *AssignmentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.EventID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "event id is required")
	}
	return validateTransactionID(r.TransactionID)
}

// SaveDraftRequest stores unsubmitted work. The payload is not validated.
type SaveDraftRequest struct {
	EventID     id.EventID     `json:"-"`
	ActionType  ActionType     `json:"actionType"`
	Declaration map[string]any `json:"declaration,omitempty"`
	Annotation  map[string]any `json:"annotation,omitempty"`
}

func (r *SaveDraftRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.EventID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "event id is required")
	}
	if !r.ActionType.IsValid() || r.ActionType == ActionCreate {
		return dErrors.New(dErrors.CodeValidation, "actionType must name a submittable action")
	}
	return nil
}

func validateTransactionID(tx string) error {
	if tx == "" {
		return dErrors.New(dErrors.CodeValidation, "transactionId is required")
	}
	if len(tx) > maxTransactionIDLength {
		return dErrors.New(dErrors.CodeValidation, "transactionId must be 128 characters or less")
	}
	return nil
}
