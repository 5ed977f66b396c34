package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	id "crvs/pkg/domain"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type logBuilder struct {
	actions []models.Action
	n       int
}

func (b *logBuilder) add(a models.Action) models.Action {
	b.n++
	if a.ID.IsNil() {
		a.ID = id.NewActionID()
	}
	if a.Status == "" {
		a.Status = models.ActionStatusAccepted
	}
	a.TransactionID = "tx"
	a.CreatedBy = "officer"
	a.CreatedAt = t0.Add(time.Duration(b.n) * time.Minute)
	b.actions = append(b.actions, a)
	return a
}

func tennisConfig() *eventconfig.EventConfig {
	return &eventconfig.EventConfig{
		ID: "tennis-club-membership",
		CustomActions: []eventconfig.CustomActionConfig{
			{Type: "CONFIRM", RequiresConfirmation: true, Flag: "membership-confirmed"},
			{Type: "UPDATE_CONTACT", UpdatesDeclaration: true},
		},
	}
}

func TestDerive_StatusFollowsRecordedOrder(t *testing.T) {
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	b.add(models.Action{Type: models.ActionDeclare, Declaration: map[string]any{"name": "Ada"}})
	b.add(models.Action{Type: models.ActionValidate})
	b.add(models.Action{Type: models.ActionRegister, Declaration: map[string]any{"regNo": "R1"}})
	b.add(models.Action{Type: models.ActionPrintCertificate})

	state := Derive(b.actions)
	assert.Equal(t, models.StatusCertified, state.Status)
	assert.Equal(t, map[string]any{"name": "Ada", "regNo": "R1"}, state.Declaration)
	assert.Equal(t, id.UserID("officer"), state.CreatedBy)
	assert.Equal(t, b.actions[0].CreatedAt, state.CreatedAt)
	assert.Equal(t, b.actions[4].CreatedAt, state.UpdatedAt)
}

func TestDerive_NeverReorders(t *testing.T) {
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	declare := b.add(models.Action{Type: models.ActionDeclare})
	reject := b.add(models.Action{Type: models.ActionReject})

	assert.Equal(t, models.StatusRejected, Derive(b.actions).Status)

	// same actions recorded in another order fold differently even though
	// timestamps would sort them back
	swapped := []models.Action{b.actions[0], reject, declare}
	assert.Equal(t, models.StatusDeclared, Derive(swapped).Status)
}

func TestDerive_Deterministic(t *testing.T) {
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	b.add(models.Action{Type: models.ActionNotify, Declaration: map[string]any{"a": 1.0, "b": "x", "c": true}})
	req := b.add(models.Action{Type: models.ActionCustom, CustomActionType: "CONFIRM", Status: models.ActionStatusRequested})
	b.add(models.Action{Type: models.ActionCustom, CustomActionType: "CONFIRM", RequestID: req.ID})
	b.add(models.Action{Type: models.ActionCustom, CustomActionType: "UPDATE_CONTACT", Declaration: map[string]any{"d": "y"}})

	cfg := tennisConfig()
	first := Derive(b.actions, WithConfig(cfg))
	for range 20 {
		assert.Equal(t, first, Derive(b.actions, WithConfig(cfg)))
	}
}

func TestDerive_AsyncConfirmation(t *testing.T) {
	cfg := tennisConfig()
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	b.add(models.Action{Type: models.ActionDeclare})
	req := b.add(models.Action{
		Type:             models.ActionCustom,
		CustomActionType: "CONFIRM",
		Status:           models.ActionStatusRequested,
		Annotation:       map[string]any{"notes": "Confirmed membership"},
	})

	pending := Derive(b.actions, WithConfig(cfg))
	require.Len(t, pending.PendingConfirmations, 1)
	assert.Equal(t, req.ID, pending.PendingConfirmations[0].ActionID)
	assert.True(t, pending.IsPending(req.ID))
	assert.Empty(t, pending.Flags)
	assert.Equal(t, models.StatusDeclared, pending.Status)

	t.Run("accepted applies the effect", func(t *testing.T) {
		accepted := append([]models.Action{}, b.actions...)
		accepted = append(accepted, models.Action{
			ID: id.NewActionID(), Type: models.ActionCustom, CustomActionType: "CONFIRM",
			Status: models.ActionStatusAccepted, RequestID: req.ID, TransactionID: "tx2", CreatedBy: "country-config",
		})
		state := Derive(accepted, WithConfig(cfg))
		assert.Empty(t, state.PendingConfirmations)
		assert.Equal(t, []string{"membership-confirmed"}, state.Flags)
	})

	t.Run("rejected has no effect", func(t *testing.T) {
		rejected := append([]models.Action{}, b.actions...)
		rejected = append(rejected, models.Action{
			ID: id.NewActionID(), Type: models.ActionCustom, CustomActionType: "CONFIRM",
			Status: models.ActionStatusRejected, RequestID: req.ID, TransactionID: "tx2", CreatedBy: "country-config",
		})
		state := Derive(rejected, WithConfig(cfg))
		assert.Empty(t, state.PendingConfirmations)
		assert.Empty(t, state.Flags)
	})
}

func TestDerive_RequestedStatusChangeWaitsForAcceptance(t *testing.T) {
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	b.add(models.Action{Type: models.ActionDeclare, Declaration: map[string]any{"name": "Ada"}})
	reg := b.add(models.Action{Type: models.ActionRegister, Status: models.ActionStatusRequested, Declaration: map[string]any{"regNo": "R1"}})

	state := Derive(b.actions)
	assert.Equal(t, models.StatusDeclared, state.Status)
	assert.NotContains(t, state.Declaration, "regNo")

	b.add(models.Action{Type: models.ActionRegister, RequestID: reg.ID, Annotation: map[string]any{"registrationNumber": "R1"}})
	state = Derive(b.actions)
	assert.Equal(t, models.StatusRegistered, state.Status)
	assert.Equal(t, "R1", state.Declaration["regNo"])
}

func TestDerive_Corrections(t *testing.T) {
	setup := func() (*logBuilder, models.Action) {
		b := &logBuilder{}
		b.add(models.Action{Type: models.ActionCreate})
		b.add(models.Action{Type: models.ActionDeclare, Declaration: map[string]any{"name": "Ada"}})
		b.add(models.Action{Type: models.ActionRegister})
		corr := b.add(models.Action{Type: models.ActionRequestCorrection, Declaration: map[string]any{"name": "Ada Lovelace"}})
		return b, corr
	}

	t.Run("open correction leaves declaration untouched", func(t *testing.T) {
		b, corr := setup()
		state := Derive(b.actions)
		require.NotNil(t, state.PendingCorrection)
		assert.Equal(t, corr.ID, state.PendingCorrection.RequestID)
		assert.Equal(t, "Ada", state.Declaration["name"])
		assert.Equal(t, models.StatusRegistered, state.Status)
	})

	t.Run("approval merges the correction", func(t *testing.T) {
		b, corr := setup()
		b.add(models.Action{Type: models.ActionApproveCorrection, RequestID: corr.ID})
		state := Derive(b.actions)
		assert.Nil(t, state.PendingCorrection)
		assert.Equal(t, "Ada Lovelace", state.Declaration["name"])
	})

	t.Run("rejection closes without effect", func(t *testing.T) {
		b, corr := setup()
		b.add(models.Action{Type: models.ActionRejectCorrection, RequestID: corr.ID})
		state := Derive(b.actions)
		assert.Nil(t, state.PendingCorrection)
		assert.Equal(t, "Ada", state.Declaration["name"])
	})

	t.Run("decision for another request is ignored", func(t *testing.T) {
		b, _ := setup()
		b.add(models.Action{Type: models.ActionApproveCorrection, RequestID: id.NewActionID()})
		state := Derive(b.actions)
		assert.NotNil(t, state.PendingCorrection)
	})

	t.Run("confirmed correction request opens under its original id", func(t *testing.T) {
		b := &logBuilder{}
		b.add(models.Action{Type: models.ActionCreate})
		b.add(models.Action{Type: models.ActionRegister})
		req := b.add(models.Action{Type: models.ActionRequestCorrection, Status: models.ActionStatusRequested, Declaration: map[string]any{"name": "B"}})
		assert.Nil(t, Derive(b.actions).PendingCorrection)

		b.add(models.Action{Type: models.ActionRequestCorrection, RequestID: req.ID})
		state := Derive(b.actions)
		require.NotNil(t, state.PendingCorrection)
		assert.Equal(t, req.ID, state.PendingCorrection.RequestID)
		assert.Equal(t, "B", state.PendingCorrection.Declaration["name"])
	})
}

func TestDerive_Assignment(t *testing.T) {
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	b.add(models.Action{Type: models.ActionAssign, AssignedTo: "officer"})
	assert.Equal(t, id.UserID("officer"), Derive(b.actions).AssignedTo)

	b.add(models.Action{Type: models.ActionUnassign})
	assert.True(t, Derive(b.actions).AssignedTo.IsNil())
}

func TestDerive_CustomWithoutConfigOnlyRecords(t *testing.T) {
	b := &logBuilder{}
	b.add(models.Action{Type: models.ActionCreate})
	b.add(models.Action{Type: models.ActionCustom, CustomActionType: "UPDATE_CONTACT", Declaration: map[string]any{"phone": "1"}})
	state := Derive(b.actions)
	assert.Empty(t, state.Declaration)
	assert.Equal(t, models.StatusInProgress, state.Status)

	state = Derive(b.actions, WithConfig(tennisConfig()))
	assert.Equal(t, "1", state.Declaration["phone"])
}

func TestDeriveWithDraft(t *testing.T) {
	e, err := models.NewEvent(id.NewEventID(), "birth", t0)
	require.NoError(t, err)
	require.NoError(t, e.Append(models.Action{
		ID: id.NewActionID(), Type: models.ActionCreate, Status: models.ActionStatusAccepted,
		TransactionID: "tx", CreatedBy: "officer", CreatedAt: t0,
	}))
	require.NoError(t, e.Append(models.Action{
		ID: id.NewActionID(), Type: models.ActionNotify, Status: models.ActionStatusAccepted,
		TransactionID: "tx", CreatedBy: "officer", CreatedAt: t0.Add(time.Minute),
		Declaration: map[string]any{"name": "Ada", "dob": "2000-01-01"},
	}))

	draft := &models.Draft{Declaration: map[string]any{"name": "Ada L."}}
	state := DeriveWithDraft(e, draft)
	assert.Equal(t, e.ID, state.ID)
	assert.Equal(t, "birth", state.Type)
	assert.Equal(t, "Ada L.", state.Declaration["name"])
	assert.Equal(t, "2000-01-01", state.Declaration["dob"])

	// overlay is never recorded
	assert.Equal(t, "Ada", DeriveEvent(e).Declaration["name"])
	assert.Equal(t, "Ada", DeriveWithDraft(e, nil).Declaration["name"])
}
