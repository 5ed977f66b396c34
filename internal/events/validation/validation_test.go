package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	dErrors "crvs/pkg/domain-errors"
)

func tennisConfig(t *testing.T) *eventconfig.EventConfig {
	t.Helper()
	cfg := &eventconfig.EventConfig{
		ID: "tennis-club-membership",
		Declaration: []eventconfig.Field{
			{ID: "applicant.firstname", Type: eventconfig.FieldText, Required: true},
			{ID: "applicant.dob", Type: eventconfig.FieldDate, Required: true},
			{ID: "applicant.email", Type: eventconfig.FieldEmail},
			{ID: "applicant.age", Type: eventconfig.FieldNumber},
			{ID: "applicant.consent", Type: eventconfig.FieldCheckbox},
			{ID: "applicant.level", Type: eventconfig.FieldSelect, Options: []eventconfig.SelectOption{{Value: "beginner"}, {Value: "advanced"}}},
			{ID: "applicant.coach", Type: eventconfig.FieldText, Required: true, ShowWhen: &eventconfig.Condition{Field: "applicant.level", Equals: "advanced"}},
			{ID: "applicant.membershipNumber", Type: eventconfig.FieldText, Validation: []eventconfig.Rule{{Pattern: `^[A-Z]{2}[0-9]{4}$`, Message: "membership number must look like AB1234"}}},
		},
		Actions: []eventconfig.ActionConfig{
			{Type: models.ActionNotify},
			{Type: models.ActionDeclare},
			{Type: models.ActionValidate},
			{Type: models.ActionReject, Annotation: []eventconfig.Field{{ID: "reason", Type: eventconfig.FieldTextArea, Required: true}}},
		},
		CustomActions: []eventconfig.CustomActionConfig{
			{Type: "CONFIRM", RequiresConfirmation: true, Annotation: []eventconfig.Field{{ID: "notes", Type: eventconfig.FieldTextArea, Required: true}}},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func fieldIDs(t *testing.T, err error) []string {
	t.Helper()
	de, ok := dErrors.As(err)
	require.True(t, ok, "expected domain error, got %v", err)
	require.Equal(t, dErrors.CodeValidation, de.Code)
	ids := make([]string, len(de.Fields))
	for i, f := range de.Fields {
		ids[i] = f.Field
	}
	return ids
}

func TestValidate_ResolvesActionSchema(t *testing.T) {
	cfg := tennisConfig(t)

	t.Run("unknown custom action type is bad request", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionCustom, CustomActionType: "INVALID_ACTION"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("custom action without type is bad request", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionCustom})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unconfigured built-in action is bad request", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionRegister})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("unknown action type is bad request", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: "TELEPORT"})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("built-in actions need no entry", func(t *testing.T) {
		for _, at := range []models.ActionType{models.ActionCreate, models.ActionAssign, models.ActionUnassign, models.ActionApproveCorrection, models.ActionRejectCorrection} {
			assert.NoError(t, Validate(cfg, Input{ActionType: at}), at)
		}
	})
}

func TestValidate_CustomAnnotation(t *testing.T) {
	cfg := tennisConfig(t)

	t.Run("required annotation present", func(t *testing.T) {
		err := Validate(cfg, Input{
			ActionType:       models.ActionCustom,
			CustomActionType: "CONFIRM",
			Annotation:       map[string]any{"notes": "Confirmed membership"},
		})
		assert.NoError(t, err)
	})

	t.Run("required annotation missing", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionCustom, CustomActionType: "CONFIRM"})
		assert.Equal(t, []string{"notes"}, fieldIDs(t, err))
	})

	t.Run("extra keys are accepted", func(t *testing.T) {
		err := Validate(cfg, Input{
			ActionType:       models.ActionCustom,
			CustomActionType: "CONFIRM",
			Annotation:       map[string]any{"notes": "ok", "non-required-field": 42},
		})
		assert.NoError(t, err)
	})
}

func TestValidate_DeclarationCompleteness(t *testing.T) {
	cfg := tennisConfig(t)

	t.Run("notify accepts incomplete declaration", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionNotify, Declaration: map[string]any{"applicant.firstname": "Ada"}})
		assert.NoError(t, err)
	})

	t.Run("declare requires every visible required field", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionDeclare, Declaration: map[string]any{"applicant.firstname": "Ada"}})
		assert.Equal(t, []string{"applicant.dob"}, fieldIDs(t, err))
	})

	t.Run("declare counts the current declaration", func(t *testing.T) {
		err := Validate(cfg, Input{
			ActionType:         models.ActionDeclare,
			Declaration:        map[string]any{"applicant.dob": "1990-01-31"},
			CurrentDeclaration: map[string]any{"applicant.firstname": "Ada"},
		})
		assert.NoError(t, err)
	})

	t.Run("blank strings are missing", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionDeclare, Declaration: map[string]any{
			"applicant.firstname": "  ",
			"applicant.dob":       "1990-01-31",
		}})
		assert.Equal(t, []string{"applicant.firstname"}, fieldIDs(t, err))
	})

	t.Run("conditional field required only when shown", func(t *testing.T) {
		base := map[string]any{"applicant.firstname": "Ada", "applicant.dob": "1990-01-31"}

		beginner := map[string]any{"applicant.level": "beginner"}
		for k, v := range base {
			beginner[k] = v
		}
		assert.NoError(t, Validate(cfg, Input{ActionType: models.ActionDeclare, Declaration: beginner}))

		advanced := map[string]any{"applicant.level": "advanced"}
		for k, v := range base {
			advanced[k] = v
		}
		err := Validate(cfg, Input{ActionType: models.ActionDeclare, Declaration: advanced})
		assert.Equal(t, []string{"applicant.coach"}, fieldIDs(t, err))
	})

	t.Run("validate checks the merged state", func(t *testing.T) {
		err := Validate(cfg, Input{ActionType: models.ActionValidate, CurrentDeclaration: map[string]any{"applicant.firstname": "Ada"}})
		assert.Equal(t, []string{"applicant.dob"}, fieldIDs(t, err))
	})
}

func TestValidate_FieldTypes(t *testing.T) {
	cfg := tennisConfig(t)

	tests := []struct {
		name  string
		field string
		value any
		ok    bool
	}{
		{"text", "applicant.firstname", "Ada", true},
		{"text wrong type", "applicant.firstname", 7, false},
		{"date", "applicant.dob", "2001-02-03", true},
		{"date wrong format", "applicant.dob", "03/02/2001", false},
		{"email", "applicant.email", "ada@example.com", true},
		{"email with display name", "applicant.email", "Ada <ada@example.com>", false},
		{"email invalid", "applicant.email", "not-an-email", false},
		{"number float", "applicant.age", 31.0, true},
		{"number int", "applicant.age", 31, true},
		{"number as text", "applicant.age", "31", false},
		{"checkbox", "applicant.consent", false, true},
		{"checkbox wrong type", "applicant.consent", "yes", false},
		{"select option", "applicant.level", "advanced", true},
		{"select unknown", "applicant.level", "pro", false},
		{"pattern ok", "applicant.membershipNumber", "AB1234", true},
		{"pattern fails", "applicant.membershipNumber", "ab-12", false},
		{"unknown keys pass", "applicant.favouriteColour", []any{"blue"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(cfg, Input{ActionType: models.ActionNotify, Declaration: map[string]any{tt.field: tt.value}})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, []string{tt.field}, fieldIDs(t, err))
		})
	}
}

func TestValidate_ReportsRuleMessage(t *testing.T) {
	cfg := tennisConfig(t)
	err := Validate(cfg, Input{ActionType: models.ActionNotify, Declaration: map[string]any{"applicant.membershipNumber": "x"}})
	de, ok := dErrors.As(err)
	require.True(t, ok)
	require.Len(t, de.Fields, 1)
	assert.Equal(t, "membership number must look like AB1234", de.Fields[0].Message)
}

func TestValidate_ListsEveryOffendingField(t *testing.T) {
	cfg := tennisConfig(t)
	err := Validate(cfg, Input{
		ActionType:  models.ActionReject,
		Declaration: map[string]any{"applicant.dob": "yesterday", "applicant.age": "old"},
	})
	assert.ElementsMatch(t, []string{"applicant.dob", "applicant.age", "reason"}, fieldIDs(t, err))
}
