// Package aggregate derives the state of a registration record by folding its
// action log. Derive is pure: the same log always yields the same state.
package aggregate

import (
	"maps"

	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	id "crvs/pkg/domain"
)

type options struct {
	cfg *eventconfig.EventConfig
}

// Option configures a fold.
type Option func(*options)

// WithConfig supplies the event configuration that defines the effects of
// custom actions. Without it accepted custom actions only appear in the log.
func WithConfig(cfg *eventconfig.EventConfig) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// Derive folds actions strictly in recorded order.
func Derive(actions []models.Action, opts ...Option) models.EventState {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	f := folder{
		cfg: o.cfg,
		state: models.EventState{
			Declaration:          map[string]any{},
			Flags:                []string{},
			PendingConfirmations: []models.PendingConfirmation{},
		},
		requested: map[id.ActionID]models.Action{},
	}
	for _, a := range actions {
		f.step(a)
	}
	return f.state
}

// DeriveEvent folds e's log and stamps the record identity.
func DeriveEvent(e *models.Event, opts ...Option) models.EventState {
	state := Derive(e.Actions, opts...)
	state.ID = e.ID
	state.Type = e.Type
	if state.CreatedAt.IsZero() {
		state.CreatedAt = e.CreatedAt
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = e.UpdatedAt
	}
	return state
}

// DeriveWithDraft overlays a draft's declaration on the folded state without
// recording it. A nil draft returns the plain state.
func DeriveWithDraft(e *models.Event, draft *models.Draft, opts ...Option) models.EventState {
	state := DeriveEvent(e, opts...)
	if draft == nil || len(draft.Declaration) == 0 {
		return state
	}
	overlay := maps.Clone(state.Declaration)
	maps.Copy(overlay, draft.Declaration)
	state.Declaration = overlay
	return state
}

type folder struct {
	cfg       *eventconfig.EventConfig
	state     models.EventState
	requested map[id.ActionID]models.Action
}

func (f *folder) step(a models.Action) {
	if a.Type == models.ActionCreate {
		f.state.CreatedAt = a.CreatedAt
		f.state.CreatedBy = a.CreatedBy
	}
	if a.CreatedAt.After(f.state.UpdatedAt) {
		f.state.UpdatedAt = a.CreatedAt
	}

	if a.IsResolution() {
		f.resolve(a)
		return
	}
	switch a.Status {
	case models.ActionStatusRequested:
		f.requested[a.ID] = a
		f.state.PendingConfirmations = append(f.state.PendingConfirmations, models.PendingConfirmation{
			ActionID:         a.ID,
			Type:             a.Type,
			CustomActionType: a.CustomActionType,
			CreatedBy:        a.CreatedBy,
			CreatedAt:        a.CreatedAt,
		})
	case models.ActionStatusAccepted:
		f.apply(a.ID, a)
	}
}

// resolve settles a Requested action. An accepted resolution applies the
// original action's effect together with anything the resolver supplied.
func (f *folder) resolve(r models.Action) {
	orig, ok := f.requested[r.RequestID]
	if !ok || orig.Type != r.Type {
		return
	}
	delete(f.requested, r.RequestID)
	f.dropPending(r.RequestID)
	if r.Status != models.ActionStatusAccepted {
		return
	}
	effective := orig.Clone()
	effective.Declaration = mergeMaps(orig.Declaration, r.Declaration)
	effective.Annotation = mergeMaps(orig.Annotation, r.Annotation)
	f.apply(orig.ID, effective)
}

func (f *folder) dropPending(actionID id.ActionID) {
	pending := f.state.PendingConfirmations[:0]
	for _, p := range f.state.PendingConfirmations {
		if p.ActionID != actionID {
			pending = append(pending, p)
		}
	}
	f.state.PendingConfirmations = pending
}

// apply runs the effect of an accepted action. originID is the id under which
// the action was first recorded.
func (f *folder) apply(originID id.ActionID, a models.Action) {
	if status, ok := models.ResultingStatus(a.Type); ok {
		f.state.Status = status
	}

	switch a.Type {
	case models.ActionCreate, models.ActionNotify, models.ActionDeclare, models.ActionValidate, models.ActionRegister:
		f.mergeDeclaration(a.Declaration)
	case models.ActionAssign:
		f.state.AssignedTo = a.AssignedTo
	case models.ActionUnassign:
		f.state.AssignedTo = ""
	case models.ActionRequestCorrection:
		f.state.PendingCorrection = &models.PendingCorrection{
			RequestID:   originID,
			Declaration: maps.Clone(a.Declaration),
			Annotation:  maps.Clone(a.Annotation),
			CreatedBy:   a.CreatedBy,
			CreatedAt:   a.CreatedAt,
		}
	case models.ActionApproveCorrection:
		if pc := f.state.PendingCorrection; pc != nil && pc.RequestID == a.RequestID {
			f.mergeDeclaration(pc.Declaration)
			f.mergeDeclaration(a.Declaration)
			f.state.PendingCorrection = nil
		}
	case models.ActionRejectCorrection:
		if pc := f.state.PendingCorrection; pc != nil && pc.RequestID == a.RequestID {
			f.state.PendingCorrection = nil
		}
	case models.ActionCustom:
		f.applyCustom(a)
	}
}

func (f *folder) applyCustom(a models.Action) {
	if f.cfg == nil {
		return
	}
	ca, ok := f.cfg.CustomAction(a.CustomActionType)
	if !ok {
		return
	}
	if ca.Flag != "" && !f.state.HasFlag(ca.Flag) {
		f.state.Flags = append(f.state.Flags, ca.Flag)
	}
	if ca.UpdatesDeclaration {
		f.mergeDeclaration(a.Declaration)
	}
}

func (f *folder) mergeDeclaration(update map[string]any) {
	maps.Copy(f.state.Declaration, update)
}

func mergeMaps(base, update map[string]any) map[string]any {
	if len(base) == 0 && len(update) == 0 {
		return nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(update))
	}
	maps.Copy(out, update)
	return out
}
