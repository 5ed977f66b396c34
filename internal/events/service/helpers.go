package service

import (
	"context"
	"errors"
	"maps"

	"github.com/google/uuid"

	"crvs/internal/events/aggregate"
	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	"crvs/internal/events/scope"
	"crvs/pkg/attrs"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	audit "crvs/pkg/platform/audit"
	"crvs/pkg/platform/sentinel"
	"crvs/pkg/requestcontext"
)

// createNamespace derives event ids from (creator, transactionId) so a
// replayed create finds the record it produced.
var createNamespace = uuid.MustParse("4f3a1c2e-8b7d-5e6f-9a0b-1c2d3e4f5a6b")

func createEventID(creator id.UserID, transactionID string) id.EventID {
	return id.EventID(uuid.NewSHA1(createNamespace, []byte(creator.String()+"\x00"+transactionID)))
}

// capabilities maps action types to the scope they require.
var capabilities = map[models.ActionType]string{
	models.ActionCreate:            scope.RecordCreate,
	models.ActionNotify:            scope.RecordDeclare,
	models.ActionDeclare:           scope.RecordDeclare,
	models.ActionValidate:          scope.RecordValidate,
	models.ActionRegister:          scope.RecordRegister,
	models.ActionPrintCertificate:  scope.RecordPrintCertificate,
	models.ActionReject:            scope.RecordReject,
	models.ActionArchive:           scope.RecordArchive,
	models.ActionRequestCorrection: scope.RecordCorrectionRequest,
	models.ActionApproveCorrection: scope.RecordCorrectionApprove,
	models.ActionRejectCorrection:  scope.RecordCorrectionApprove,
	models.ActionCustom:            scope.RecordCustomAction,
	models.ActionAssign:            scope.RecordAssign,
}

func capabilityFor(t models.ActionType, eventType, customActionType string) scope.Capability {
	c := scope.Capability{Name: capabilities[t], Event: eventType}
	if t == models.ActionCustom {
		c.CustomActionType = customActionType
	}
	return c
}

func actor(ctx context.Context) (id.UserID, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return userID, nil
}

func authorize(ctx context.Context, required scope.Capability) error {
	if !scope.Authorize(requestcontext.Scopes(ctx), required) {
		return dErrors.New(dErrors.CodeForbidden, "missing scope "+required.String())
	}
	return nil
}

func (s *Service) loadEvent(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	return e, nil
}

func (s *Service) loadConfig(ctx context.Context, eventType string) (*eventconfig.EventConfig, error) {
	cfg, err := s.configs.Get(ctx, eventType)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown event type "+eventType)
	case errors.Is(err, sentinel.ErrUnavailable):
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "event configuration unavailable")
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event configuration")
	}
}

func document(e *models.Event, cfg *eventconfig.EventConfig) *models.EventDocument {
	return &models.EventDocument{
		Event: e,
		State: aggregate.DeriveEvent(e, aggregate.WithConfig(cfg)),
	}
}

// newAction stamps the actor, request time and office on a fresh Accepted
// action.
func (s *Service) newAction(ctx context.Context, t models.ActionType, transactionID string) models.Action {
	return models.Action{
		ID:                s.newActionID(),
		Type:              t,
		Status:            models.ActionStatusAccepted,
		TransactionID:     transactionID,
		CreatedBy:         requestcontext.UserID(ctx),
		CreatedByRole:     requestcontext.Role(ctx),
		CreatedAtLocation: requestcontext.PrimaryOfficeID(ctx),
		CreatedAt:         requestcontext.Now(ctx).UTC(),
	}
}

// append records a on e inside the caller's transaction and emits the audit
// event. e is updated in place.
func (s *Service) append(ctx context.Context, e *models.Event, a models.Action) error {
	if err := e.CanAppend(a); err != nil {
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
			return dErrors.New(dErrors.CodeConflict, de.Message)
		}
		return err
	}
	if err := s.events.Append(ctx, e.ID, a); err != nil {
		return translateWriteErr(err)
	}
	e.ApplyAppend(a)
	if err := s.emit(ctx, e, a); err != nil {
		return err
	}
	s.metrics.IncrementAppended(string(a.Type), string(a.Status))
	return nil
}

func translateWriteErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "action already recorded")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "event not found")
	case dErrors.HasCode(err, dErrors.CodeTimeout):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record action")
	}
}

func auditEventFor(a models.Action) audit.AuditEvent {
	if a.Type == models.ActionCreate {
		return audit.EventRecordCreated
	}
	switch a.Status {
	case models.ActionStatusRequested:
		return audit.EventActionRequested
	case models.ActionStatusRejected:
		return audit.EventActionRejected
	default:
		return audit.EventActionAccepted
	}
}

func (s *Service) emit(ctx context.Context, e *models.Event, a models.Action) error {
	if s.auditPublisher == nil {
		return nil
	}
	actionType := string(a.Type)
	if a.Type == models.ActionCustom {
		actionType += ":" + a.CustomActionType
	}
	err := s.auditPublisher.Emit(ctx, audit.ComplianceEvent{
		Timestamp:     a.CreatedAt,
		Action:        auditEventFor(a),
		ActorID:       a.CreatedBy,
		ActorRole:     a.CreatedByRole,
		EventID:       e.ID,
		EventType:     e.Type,
		ActionID:      a.ID,
		ActionType:    actionType,
		ActionStatus:  string(a.Status),
		TransactionID: a.TransactionID,
		RequestID:     requestcontext.RequestID(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

// logOperation writes an operational audit log line and, when an operations
// store is configured, keeps the record.
func (s *Service) logOperation(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if s.logger != nil {
		args := append(attributes, "event", string(event), "log_type", "audit")
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.opsStore == nil {
		return
	}
	record := audit.Event{
		Category:  event.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    string(event),
		ActorID:   id.UserID(attrs.ExtractString(attributes, "user_id")),
		RequestID: attrs.ExtractString(attributes, "request_id"),
	}
	if eventID, err := id.ParseEventID(attrs.ExtractString(attributes, "event_id")); err == nil {
		record.EventID = eventID
	}
	if err := s.opsStore.Append(ctx, record); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to store operational audit event", "event", string(event), "error", err)
	}
}

// refused counts a failed request and passes err through.
func (s *Service) refused(operation string, err error) error {
	if err != nil {
		s.metrics.IncrementRefused(operation, string(dErrors.CodeOf(err)))
	}
	return err
}

func mergePayload(base, update map[string]any) map[string]any {
	if len(update) == 0 {
		return base
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(update))
	}
	maps.Copy(out, update)
	return out
}
