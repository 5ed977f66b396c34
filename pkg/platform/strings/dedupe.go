// Package strings provides string list helpers.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and blanks from values, trimming each
// element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}

// Fields splits a space separated claim such as a token's scope into its
// distinct entries.
func Fields(s string) []string {
	return DedupeAndTrim(strings.Fields(s))
}
