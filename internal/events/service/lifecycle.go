package service

import (
	"context"
	"errors"
	"time"

	"crvs/internal/events/aggregate"
	"crvs/internal/events/countryconfig"
	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	"crvs/internal/events/scope"
	"crvs/internal/events/validation"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	"crvs/pkg/platform/sentinel"
	"crvs/pkg/requestcontext"
)

// Create starts a record with a CREATE action and assigns it to the creator.
// Both actions share the request's transaction id; replaying the request
// returns the record it created.
func (s *Service) Create(ctx context.Context, req *models.CreateEventRequest) (*models.EventDocument, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.refused(string(models.ActionCreate), err)
	}
	creator, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadConfig(ctx, req.Type)
	if err != nil {
		return nil, s.refused(string(models.ActionCreate), err)
	}
	if err := authorize(ctx, capabilityFor(models.ActionCreate, cfg.ID, "")); err != nil {
		return nil, s.refused(string(models.ActionCreate), err)
	}

	eventID := createEventID(creator, req.TransactionID)
	var doc *models.EventDocument
	err = s.inTx(ctx, eventID, func(txCtx context.Context) error {
		existing, err := s.events.Get(txCtx, eventID)
		switch {
		case err == nil:
			if existing.Type != cfg.ID {
				return dErrors.New(dErrors.CodeConflict, "transaction id already used for another event type")
			}
			s.metrics.IncrementReplay()
			doc = document(existing, cfg)
			return nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
		}

		now := requestcontext.Now(txCtx).UTC()
		e, err := models.NewEvent(eventID, cfg.ID, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
		}
		create := s.newAction(txCtx, models.ActionCreate, req.TransactionID)
		assign := s.newAction(txCtx, models.ActionAssign, req.TransactionID)
		assign.AssignedTo = creator
		for _, a := range []models.Action{create, assign} {
			if err := e.Append(a); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build event")
			}
		}
		if err := s.events.Create(txCtx, e); err != nil {
			return translateWriteErr(err)
		}
		for _, a := range e.Actions {
			if err := s.emit(txCtx, e, a); err != nil {
				return err
			}
			s.metrics.IncrementAppended(string(a.Type), string(a.Status))
		}
		doc = document(e, cfg)
		return nil
	})
	if err != nil {
		return nil, s.refused(string(models.ActionCreate), err)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "event created", "event_id", eventID.String(), "event_type", cfg.ID)
	}
	return doc, nil
}

// Act submits NOTIFY, DECLARE, VALIDATE, REGISTER, PRINT_CERTIFICATE, REJECT,
// ARCHIVE, REQUEST_CORRECTION or CUSTOM. Actions configured with
// requiresConfirmation are sent to the country configuration first and are
// recorded Accepted or Requested depending on its answer. A failed call
// records nothing.
func (s *Service) Act(ctx context.Context, req *models.ActionRequest) (*models.EventDocument, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.refused(string(req.Type), err)
	}
	doc, err := s.act(ctx, req)
	return doc, s.refused(string(req.Type), err)
}

// RequestCorrection opens a correction on a registered record.
func (s *Service) RequestCorrection(ctx context.Context, req *models.ActionRequest) (*models.EventDocument, error) {
	req.Type = models.ActionRequestCorrection
	return s.Act(ctx, req)
}

func (s *Service) act(ctx context.Context, req *models.ActionRequest) (*models.EventDocument, error) {
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadConfig(ctx, e.Type)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, capabilityFor(req.Type, cfg.ID, req.CustomActionType)); err != nil {
		return nil, err
	}
	if req.Type == models.ActionCustom {
		if _, ok := cfg.CustomAction(req.CustomActionType); !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown custom action type "+req.CustomActionType)
		}
	}

	var (
		doc    *models.EventDocument
		replay bool
	)
	err = s.inTx(ctx, req.EventID, func(txCtx context.Context) error {
		e, err := s.loadEvent(txCtx, req.EventID)
		if err != nil {
			return err
		}
		if _, done := e.FindByTransaction(req.Type, req.TransactionID); done {
			replay = true
			doc = document(e, cfg)
			return nil
		}

		state := aggregate.DeriveEvent(e, aggregate.WithConfig(cfg))
		if err := requireAssignee(state, user); err != nil {
			return err
		}
		if err := checkPreconditions(cfg, state, req.Type, req.CustomActionType); err != nil {
			return err
		}
		if err := validation.Validate(cfg, validation.Input{
			ActionType:         req.Type,
			CustomActionType:   req.CustomActionType,
			Declaration:        req.Declaration,
			Annotation:         req.Annotation,
			CurrentDeclaration: state.Declaration,
		}); err != nil {
			return err
		}

		a := s.newAction(txCtx, req.Type, req.TransactionID)
		a.CustomActionType = req.CustomActionType
		a.Declaration = req.Declaration
		a.Annotation = req.Annotation
		a.Reason = req.Reason
		if cfg.RequiresConfirmation(req.Type, req.CustomActionType) {
			if err := s.confirm(txCtx, e, &a); err != nil {
				return err
			}
		}
		if err := s.append(txCtx, e, a); err != nil {
			return err
		}
		doc = document(e, cfg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replay {
		s.metrics.IncrementReplay()
		return doc, nil
	}
	s.clearDraft(ctx, user, req.EventID)
	return doc, nil
}

// confirm calls the country configuration and sets a's status from the
// outcome. A synchronous answer may add annotation fields.
func (s *Service) confirm(ctx context.Context, e *models.Event, a *models.Action) error {
	if s.notifier == nil {
		return dErrors.New(dErrors.CodeInternal, "country config client is not configured")
	}
	res, err := s.notifier.Notify(ctx, countryconfig.Notification{
		ActionID:         a.ID,
		EventID:          e.ID,
		EventType:        e.Type,
		ActionType:       string(a.Type),
		CustomActionType: a.CustomActionType,
		TransactionID:    a.TransactionID,
		CreatedBy:        a.CreatedBy,
		Declaration:      a.Declaration,
		Annotation:       a.Annotation,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "country config refused action",
				"event_id", e.ID.String(), "action_type", string(a.Type), "error", err)
		}
		if _, coded := dErrors.As(err); coded {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeUpstream, "country config call failed")
	}
	switch res.Outcome {
	case countryconfig.OutcomeSyncOK:
		a.Status = models.ActionStatusAccepted
		a.Annotation = mergePayload(a.Annotation, res.Annotation)
	case countryconfig.OutcomePending:
		a.Status = models.ActionStatusRequested
	default:
		return dErrors.New(dErrors.CodeUpstream, "country config call failed")
	}
	return nil
}

// Resolve settles a Requested action on behalf of the country configuration.
// The resolving action repeats the original type and references it through
// RequestID. A callback may echo the transaction id of the requested action;
// the resolution is then recorded under resolutionTxID of it. A declaration
// sent with the resolution is validated like the original action's.
func (s *Service) Resolve(ctx context.Context, req *models.ResolveRequest) (*models.EventDocument, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := actor(ctx); err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.loadConfig(ctx, e.Type)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, scope.Capability{Name: scope.RecordConfirmAction, Event: cfg.ID}); err != nil {
		return nil, err
	}

	var doc *models.EventDocument
	err = s.inTx(ctx, req.EventID, func(txCtx context.Context) error {
		e, err := s.loadEvent(txCtx, req.EventID)
		if err != nil {
			return err
		}
		orig, ok := e.FindAction(req.RequestID)
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "requested action not found")
		}
		txID := req.TransactionID
		if txID == orig.TransactionID {
			txID = resolutionTxID(orig)
		}
		if prior, ok := e.FindByTransaction(orig.Type, txID); ok {
			if prior.RequestID == orig.ID {
				s.metrics.IncrementReplay()
				doc = document(e, cfg)
				return nil
			}
			return dErrors.New(dErrors.CodeConflict, "transaction id already used")
		}
		if orig.Status != models.ActionStatusRequested || orig.IsResolution() {
			return dErrors.New(dErrors.CodeConflict, "action is not awaiting confirmation")
		}
		if _, resolved := e.ResolutionOf(orig.ID); resolved {
			return dErrors.New(dErrors.CodeConflict, "action already resolved")
		}

		if len(req.Declaration) > 0 {
			state := aggregate.DeriveEvent(e, aggregate.WithConfig(cfg))
			if err := validation.Validate(cfg, validation.Input{
				ActionType:         orig.Type,
				CustomActionType:   orig.CustomActionType,
				Declaration:        req.Declaration,
				Annotation:         orig.Annotation,
				CurrentDeclaration: state.Declaration,
			}); err != nil {
				return err
			}
		}

		a := s.newAction(txCtx, orig.Type, txID)
		a.CustomActionType = orig.CustomActionType
		a.RequestID = orig.ID
		a.Declaration = req.Declaration
		a.Annotation = req.Annotation
		a.Reason = req.Reason
		if req.Decision == models.DecisionReject {
			a.Status = models.ActionStatusRejected
		}
		if err := s.append(txCtx, e, a); err != nil {
			return err
		}
		doc = document(e, cfg)
		return nil
	})
	if err != nil {
		return nil, s.refused("RESOLVE", err)
	}
	return doc, nil
}

// resolutionTxID keys the resolution of orig when the callback reuses orig's
// transaction id.
func resolutionTxID(orig models.Action) string {
	return orig.TransactionID + "#resolution"
}

// ApproveCorrection applies an open correction.
func (s *Service) ApproveCorrection(ctx context.Context, req *models.CorrectionDecisionRequest) (*models.EventDocument, error) {
	return s.decideCorrection(ctx, models.ActionApproveCorrection, req)
}

// RejectCorrection closes an open correction without effect.
func (s *Service) RejectCorrection(ctx context.Context, req *models.CorrectionDecisionRequest) (*models.EventDocument, error) {
	return s.decideCorrection(ctx, models.ActionRejectCorrection, req)
}

func (s *Service) decideCorrection(ctx context.Context, t models.ActionType, req *models.CorrectionDecisionRequest) (*models.EventDocument, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.refused(string(t), err)
	}
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, s.refused(string(t), err)
	}
	cfg, err := s.loadConfig(ctx, e.Type)
	if err != nil {
		return nil, s.refused(string(t), err)
	}
	if err := authorize(ctx, capabilityFor(t, cfg.ID, "")); err != nil {
		return nil, s.refused(string(t), err)
	}

	var doc *models.EventDocument
	err = s.inTx(ctx, req.EventID, func(txCtx context.Context) error {
		e, err := s.loadEvent(txCtx, req.EventID)
		if err != nil {
			return err
		}
		if prior, ok := e.FindByTransaction(t, req.TransactionID); ok {
			if prior.RequestID == req.RequestID {
				s.metrics.IncrementReplay()
				doc = document(e, cfg)
				return nil
			}
			return dErrors.New(dErrors.CodeConflict, "transaction id already used")
		}
		origin, ok := e.FindAction(req.RequestID)
		if !ok || origin.Type != models.ActionRequestCorrection {
			return dErrors.New(dErrors.CodeNotFound, "correction request not found")
		}

		state := aggregate.DeriveEvent(e, aggregate.WithConfig(cfg))
		if err := requireAssignee(state, user); err != nil {
			return err
		}
		if state.PendingCorrection == nil || state.PendingCorrection.RequestID != req.RequestID {
			return dErrors.New(dErrors.CodeConflict, "correction request is not open")
		}
		if err := validation.Validate(cfg, validation.Input{
			ActionType:         t,
			Declaration:        req.Declaration,
			Annotation:         req.Annotation,
			CurrentDeclaration: state.Declaration,
		}); err != nil {
			return err
		}

		a := s.newAction(txCtx, t, req.TransactionID)
		a.RequestID = req.RequestID
		a.Declaration = req.Declaration
		a.Annotation = req.Annotation
		a.Reason = req.Reason
		if err := s.append(txCtx, e, a); err != nil {
			return err
		}
		doc = document(e, cfg)
		return nil
	})
	if err != nil {
		return nil, s.refused(string(t), err)
	}
	s.clearDraft(ctx, user, req.EventID)
	return doc, nil
}

// Assign assigns the record to the caller. Assigning a record the caller
// already holds records nothing.
func (s *Service) Assign(ctx context.Context, req *models.AssignmentRequest) (*models.EventDocument, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.refused(string(models.ActionAssign), err)
	}
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, s.refused(string(models.ActionAssign), err)
	}
	cfg, err := s.loadConfig(ctx, e.Type)
	if err != nil {
		return nil, s.refused(string(models.ActionAssign), err)
	}
	if err := authorize(ctx, capabilityFor(models.ActionAssign, cfg.ID, "")); err != nil {
		return nil, s.refused(string(models.ActionAssign), err)
	}

	var doc *models.EventDocument
	err = s.inTx(ctx, req.EventID, func(txCtx context.Context) error {
		e, err := s.loadEvent(txCtx, req.EventID)
		if err != nil {
			return err
		}
		if _, done := e.FindByTransaction(models.ActionAssign, req.TransactionID); done {
			s.metrics.IncrementReplay()
			doc = document(e, cfg)
			return nil
		}
		state := aggregate.DeriveEvent(e, aggregate.WithConfig(cfg))
		if !state.Status.Permits(models.ActionAssign) {
			return dErrors.New(dErrors.CodeConflict, "event cannot be assigned in status "+string(state.Status))
		}
		switch state.AssignedTo {
		case user:
			doc = document(e, cfg)
			return nil
		case "":
		default:
			return dErrors.New(dErrors.CodeConflict, "event is assigned to another user")
		}

		a := s.newAction(txCtx, models.ActionAssign, req.TransactionID)
		a.AssignedTo = user
		if err := s.append(txCtx, e, a); err != nil {
			return err
		}
		doc = document(e, cfg)
		return nil
	})
	if err != nil {
		return nil, s.refused(string(models.ActionAssign), err)
	}
	return doc, nil
}

// Unassign releases the record. Releasing someone else's assignment needs
// record.unassign-others; releasing one's own needs record.assign.
func (s *Service) Unassign(ctx context.Context, req *models.AssignmentRequest) (*models.EventDocument, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.refused(string(models.ActionUnassign), err)
	}
	user, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return nil, s.refused(string(models.ActionUnassign), err)
	}
	cfg, err := s.loadConfig(ctx, e.Type)
	if err != nil {
		return nil, s.refused(string(models.ActionUnassign), err)
	}

	var doc *models.EventDocument
	err = s.inTx(ctx, req.EventID, func(txCtx context.Context) error {
		e, err := s.loadEvent(txCtx, req.EventID)
		if err != nil {
			return err
		}
		state := aggregate.DeriveEvent(e, aggregate.WithConfig(cfg))
		required := scope.Capability{Name: scope.RecordAssign, Event: cfg.ID}
		if !state.AssignedTo.IsNil() && state.AssignedTo != user {
			required.Name = scope.RecordUnassignOthers
		}
		if err := authorize(txCtx, required); err != nil {
			return err
		}
		if _, done := e.FindByTransaction(models.ActionUnassign, req.TransactionID); done {
			s.metrics.IncrementReplay()
			doc = document(e, cfg)
			return nil
		}
		if state.AssignedTo.IsNil() {
			return dErrors.New(dErrors.CodeConflict, "event is not assigned")
		}

		if err := s.append(txCtx, e, s.newAction(txCtx, models.ActionUnassign, req.TransactionID)); err != nil {
			return err
		}
		doc = document(e, cfg)
		return nil
	})
	if err != nil {
		return nil, s.refused(string(models.ActionUnassign), err)
	}
	return doc, nil
}

// inTx runs fn in the per-event transaction and records its duration.
func (s *Service) inTx(ctx context.Context, eventID id.EventID, fn func(txCtx context.Context) error) error {
	start := time.Now()
	defer func() {
		s.metrics.ObserveAppendLatency(time.Since(start))
	}()
	return s.events.RunInTx(ctx, eventID, fn)
}

func requireAssignee(state models.EventState, user id.UserID) error {
	if state.AssignedTo.IsNil() {
		return dErrors.New(dErrors.CodeConflict, "event must be assigned to you before acting on it")
	}
	if state.AssignedTo != user {
		return dErrors.New(dErrors.CodeConflict, "event is assigned to another user")
	}
	return nil
}

// checkPreconditions applies the status table, the pending-confirmation guard
// and the single-open-correction rule.
func checkPreconditions(cfg *eventconfig.EventConfig, state models.EventState, t models.ActionType, customActionType string) error {
	if t == models.ActionCustom {
		ca, _ := cfg.CustomAction(customActionType)
		if ca == nil || !ca.Permits(state.Status) {
			return dErrors.New(dErrors.CodeConflict, "custom action "+customActionType+" is not allowed in status "+string(state.Status))
		}
	} else if !state.Status.Permits(t) {
		return dErrors.New(dErrors.CodeConflict, string(t)+" is not allowed in status "+string(state.Status))
	}

	if models.ChangesStatus(t) && state.HasPendingConfirmation() {
		return dErrors.New(dErrors.CodeConflict, "another action is awaiting confirmation")
	}

	if t == models.ActionRequestCorrection {
		if state.PendingCorrection != nil {
			return dErrors.New(dErrors.CodeConflict, "a correction is already open")
		}
		for _, p := range state.PendingConfirmations {
			if p.Type == models.ActionRequestCorrection {
				return dErrors.New(dErrors.CodeConflict, "a correction request is awaiting confirmation")
			}
		}
	}
	return nil
}

func (s *Service) clearDraft(ctx context.Context, user id.UserID, eventID id.EventID) {
	if s.drafts == nil {
		return
	}
	if err := s.drafts.Delete(ctx, user, eventID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to delete draft", "event_id", eventID.String(), "error", err)
	}
}
