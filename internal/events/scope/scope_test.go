package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("bare name", func(t *testing.T) {
		s, err := Parse("record.read")
		require.NoError(t, err)
		assert.Equal(t, "record.read", s.Name)
		assert.Empty(t, s.Constraints)
	})

	t.Run("constraints and alternatives", func(t *testing.T) {
		s, err := Parse("record.custom-action[event=BIRTH|death,customActionType=CONFIRM]")
		require.NoError(t, err)
		assert.Equal(t, "record.custom-action", s.Name)
		assert.Equal(t, []string{"birth", "death"}, s.Constraints[KeyEvent])
		assert.Equal(t, []string{"CONFIRM"}, s.Constraints[KeyCustomActionType])
	})

	for _, raw := range []string{
		"",
		"[event=birth]",
		"record.read[event=birth",
		"record.read[event]",
		"record.read[event=]",
		"record.read[event=a,event=b]",
		"record.read[event=a|]",
		"record.read]",
	} {
		t.Run("malformed "+raw, func(t *testing.T) {
			_, err := Parse(raw)
			assert.Error(t, err)
		})
	}
}

func TestAuthorize(t *testing.T) {
	confirm := Capability{
		Name:             RecordCustomAction,
		Event:            "tennis-club-membership",
		CustomActionType: "CONFIRM",
	}

	tests := []struct {
		name    string
		granted []string
		want    bool
	}{
		{"exact grant", []string{"record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]"}, true},
		{"no scopes", nil, false},
		{"wrong event", []string{"record.custom-action[event=birth,customActionType=CONFIRM]"}, false},
		{"wrong custom action type", []string{"record.custom-action[event=tennis-club-membership,customActionType=APPROVE]"}, false},
		{"two scopes each insufficient", []string{
			"record.custom-action[event=birth,customActionType=CONFIRM]",
			"record.custom-action[event=tennis-club-membership,customActionType=APPROVE]",
		}, false},
		{"missing constraint is wildcard", []string{"record.custom-action[event=tennis-club-membership]"}, true},
		{"bare name is wildcard", []string{"record.custom-action"}, true},
		{"alternatives", []string{"record.custom-action[event=birth|tennis-club-membership,customActionType=CONFIRM]"}, true},
		{"different capability", []string{"record.create[event=tennis-club-membership]"}, false},
		{"malformed scope ignored", []string{"record.custom-action[event=tennis-club-membership", "garbage"}, false},
		{"unknown constraint key denies", []string{"record.custom-action[event=tennis-club-membership,office=123]"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.granted, confirm))
		})
	}
}

func TestAuthorize_EventSlugNormalised(t *testing.T) {
	create := Capability{Name: RecordCreate, Event: "TENNIS_CLUB_MEMBERSHIP"}
	assert.True(t, Authorize([]string{"record.create[event=tennis-club-membership]"}, create))
	assert.True(t, Authorize([]string{"record.create[event=TENNIS_CLUB_MEMBERSHIP]"}, create))
}

func TestAuthorize_ConstraintCapabilityLacks(t *testing.T) {
	// A grant restricted by customActionType never covers a request without one.
	create := Capability{Name: RecordCreate, Event: "birth"}
	assert.False(t, Authorize([]string{"record.create[event=birth,customActionType=X]"}, create))
}

func TestCapabilityString(t *testing.T) {
	c := Capability{Name: RecordCustomAction, Event: "TENNIS_CLUB_MEMBERSHIP", CustomActionType: "CONFIRM"}
	assert.Equal(t, "record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]", c.String())
	assert.Equal(t, "record.read", Capability{Name: RecordRead}.String())
}
