package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{
			name:     "blank entries dropped",
			input:    []string{" ", "", "record.read"},
			expected: []string{"record.read"},
		},
		{
			name:     "order kept and duplicates removed",
			input:    []string{" record.declare[event=birth] ", "record.read", "record.declare[event=birth]"},
			expected: []string{"record.declare[event=birth]", "record.read"},
		},
		{
			name:     "case is significant",
			input:    []string{"record.read", "RECORD.READ"},
			expected: []string{"record.read", "RECORD.READ"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestFields(t *testing.T) {
	assert.Equal(t,
		[]string{"record.read", "record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]"},
		Fields("  record.read record.custom-action[event=tennis-club-membership,customActionType=CONFIRM]\trecord.read "),
	)
	assert.Empty(t, Fields("   "))
}
