// Package scope parses permission scope strings and matches them against a
// required capability.
//
// A scope is "name" or "name[key=value,key=value]". A value may list
// alternatives separated by "|". A granted scope matches a capability when
// the names are equal and every granted constraint is satisfied by the
// capability; constraints the grant omits are wildcards. Authorisation is
// decided per scope: constraints from different grants never combine.
package scope

import (
	"errors"
	"strings"
)

// Capability names.
const (
	RecordCreate            = "record.create"
	RecordRead              = "record.read"
	RecordDeclare           = "record.declare"
	RecordValidate          = "record.validate"
	RecordRegister          = "record.register"
	RecordPrintCertificate  = "record.print-certificate"
	RecordReject            = "record.reject"
	RecordArchive           = "record.archive"
	RecordCorrectionRequest = "record.correction-request"
	RecordCorrectionApprove = "record.correction-approve"
	RecordCustomAction      = "record.custom-action"
	RecordAssign            = "record.assign"
	RecordUnassignOthers    = "record.unassign-others"
	RecordConfirmAction     = "record.confirm-action"
)

// Constraint keys.
const (
	KeyEvent            = "event"
	KeyCustomActionType = "customActionType"
)

var errMalformed = errors.New("malformed scope")

// Capability is what an operation requires.
type Capability struct {
	Name             string
	Event            string
	CustomActionType string
}

// value returns the capability's field for a constraint key. Keys the
// capability does not carry report false.
func (c Capability) value(key string) (string, bool) {
	switch key {
	case KeyEvent:
		return Slug(c.Event), c.Event != ""
	case KeyCustomActionType:
		return c.CustomActionType, c.CustomActionType != ""
	}
	return "", false
}

func (c Capability) String() string {
	var parts []string
	if c.Event != "" {
		parts = append(parts, KeyEvent+"="+Slug(c.Event))
	}
	if c.CustomActionType != "" {
		parts = append(parts, KeyCustomActionType+"="+c.CustomActionType)
	}
	if len(parts) == 0 {
		return c.Name
	}
	return c.Name + "[" + strings.Join(parts, ",") + "]"
}

// Scope is a parsed grant.
type Scope struct {
	Name        string
	Constraints map[string][]string
}

// Parse reads one scope string.
func Parse(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	open := strings.IndexByte(raw, '[')
	if open == -1 {
		if raw == "" || strings.ContainsAny(raw, "]=,") {
			return Scope{}, errMalformed
		}
		return Scope{Name: raw}, nil
	}
	if !strings.HasSuffix(raw, "]") || open == 0 {
		return Scope{}, errMalformed
	}
	s := Scope{Name: raw[:open], Constraints: map[string][]string{}}
	body := raw[open+1 : len(raw)-1]
	if strings.ContainsAny(body, "[]") {
		return Scope{}, errMalformed
	}
	if strings.TrimSpace(body) == "" {
		return s, nil
	}
	for _, pair := range strings.Split(body, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return Scope{}, errMalformed
		}
		if _, dup := s.Constraints[key]; dup {
			return Scope{}, errMalformed
		}
		var alts []string
		for _, alt := range strings.Split(value, "|") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				return Scope{}, errMalformed
			}
			if key == KeyEvent {
				alt = Slug(alt)
			}
			alts = append(alts, alt)
		}
		s.Constraints[key] = alts
	}
	return s, nil
}

// Matches reports whether this single grant satisfies c.
func (s Scope) Matches(c Capability) bool {
	if s.Name != c.Name {
		return false
	}
	for key, alts := range s.Constraints {
		have, ok := c.value(key)
		if !ok {
			return false
		}
		if !contains(alts, have) {
			return false
		}
	}
	return true
}

// Authorize reports whether any one granted scope matches required.
// Unparseable grants are ignored.
func Authorize(granted []string, required Capability) bool {
	for _, raw := range granted {
		s, err := Parse(raw)
		if err != nil {
			continue
		}
		if s.Matches(required) {
			return true
		}
	}
	return false
}

// Slug normalises an event type for comparison: lower case, "_" becomes "-".
func Slug(eventType string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(eventType)), "_", "-")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
