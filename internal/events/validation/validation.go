// Package validation checks action payloads against the country-declared
// event configuration.
package validation

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	dErrors "crvs/pkg/domain-errors"
)

// Input is the payload of one proposed action.
type Input struct {
	ActionType       models.ActionType
	CustomActionType string
	Declaration      map[string]any
	Annotation       map[string]any
	// CurrentDeclaration is the folded declaration of the record, used to
	// judge completeness of the merged result.
	CurrentDeclaration map[string]any
}

// builtIn action types need no entry in the configuration.
var builtIn = map[models.ActionType]bool{
	models.ActionCreate:            true,
	models.ActionAssign:            true,
	models.ActionUnassign:          true,
	models.ActionApproveCorrection: true,
	models.ActionRejectCorrection:  true,
}

// completeDeclaration lists actions that require every visible required
// declaration field to be filled once merged with the current state.
var completeDeclaration = map[models.ActionType]bool{
	models.ActionDeclare:  true,
	models.ActionValidate: true,
	models.ActionRegister: true,
}

// Validate returns nil, a BAD_REQUEST error when the action cannot be
// resolved against cfg, or a VALIDATION error listing every offending field.
func Validate(cfg *eventconfig.EventConfig, in Input) error {
	if cfg == nil {
		return dErrors.New(dErrors.CodeBadRequest, "event configuration is required")
	}
	annotationSchema, err := resolveAnnotationSchema(cfg, in)
	if err != nil {
		return err
	}

	var fields []dErrors.FieldError

	merged := mergeDeclaration(in.CurrentDeclaration, in.Declaration)
	fields = append(fields, checkValues(cfg.Declaration, in.Declaration, merged)...)
	if completeDeclaration[in.ActionType] {
		fields = append(fields, checkRequired(cfg.Declaration, merged)...)
	}

	fields = append(fields, checkValues(annotationSchema, in.Annotation, in.Annotation)...)
	fields = append(fields, checkRequired(annotationSchema, in.Annotation)...)

	if len(fields) > 0 {
		return dErrors.WithFields(dErrors.CodeValidation, "action payload is invalid", dedupe(fields))
	}
	return nil
}

func resolveAnnotationSchema(cfg *eventconfig.EventConfig, in Input) ([]eventconfig.Field, error) {
	switch {
	case !in.ActionType.IsValid():
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown action type %q", in.ActionType))
	case in.ActionType == models.ActionCustom:
		if strings.TrimSpace(in.CustomActionType) == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "customActionType is required")
		}
		ca, ok := cfg.CustomAction(in.CustomActionType)
		if !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("custom action type %q is not configured for %s", in.CustomActionType, cfg.ID))
		}
		return ca.Annotation, nil
	case builtIn[in.ActionType]:
		return nil, nil
	default:
		ac, ok := cfg.Action(in.ActionType)
		if !ok {
			return nil, dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("action %s is not configured for %s", in.ActionType, cfg.ID))
		}
		return ac.Annotation, nil
	}
}

// checkValues type-checks the values present in payload. Visibility is judged
// against scope, the full set of values the form would show.
func checkValues(schema []eventconfig.Field, payload, scope map[string]any) []dErrors.FieldError {
	var out []dErrors.FieldError
	for i := range schema {
		f := &schema[i]
		v, present := payload[f.ID]
		if !present || isEmpty(v) || !visible(f, scope) {
			continue
		}
		if msg := checkType(f, v); msg != "" {
			out = append(out, dErrors.FieldError{Field: f.ID, Message: msg})
			continue
		}
		if msg := checkRules(f, v); msg != "" {
			out = append(out, dErrors.FieldError{Field: f.ID, Message: msg})
		}
	}
	return out
}

func checkRequired(schema []eventconfig.Field, values map[string]any) []dErrors.FieldError {
	var out []dErrors.FieldError
	for i := range schema {
		f := &schema[i]
		if !f.Required || !visible(f, values) {
			continue
		}
		if v, ok := values[f.ID]; !ok || isEmpty(v) {
			out = append(out, dErrors.FieldError{Field: f.ID, Message: "required"})
		}
	}
	return out
}

func visible(f *eventconfig.Field, values map[string]any) bool {
	if f.ShowWhen == nil {
		return true
	}
	return equalValues(values[f.ShowWhen.Field], f.ShowWhen.Equals)
}

func checkType(f *eventconfig.Field, v any) string {
	switch f.Type {
	case eventconfig.FieldText, eventconfig.FieldTextArea:
		if _, ok := v.(string); !ok {
			return "must be text"
		}
	case eventconfig.FieldNumber:
		if _, ok := toFloat(v); !ok {
			return "must be a number"
		}
	case eventconfig.FieldCheckbox:
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
	case eventconfig.FieldDate:
		s, ok := v.(string)
		if !ok {
			return "must be a date"
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return "must be a date in YYYY-MM-DD form"
		}
	case eventconfig.FieldEmail:
		s, ok := v.(string)
		if !ok {
			return "must be an email address"
		}
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s {
			return "must be an email address"
		}
	case eventconfig.FieldSelect:
		s, ok := v.(string)
		if !ok || !f.HasOption(s) {
			return "must be one of the listed options"
		}
	}
	return ""
}

func checkRules(f *eventconfig.Field, v any) string {
	if len(f.Validation) == 0 {
		return ""
	}
	s := fmt.Sprint(v)
	for i := range f.Validation {
		rule := &f.Validation[i]
		if !rule.Match(s) {
			if rule.Message != "" {
				return rule.Message
			}
			return "does not match " + rule.Pattern
		}
	}
	return ""
}

func mergeDeclaration(current, update map[string]any) map[string]any {
	out := make(map[string]any, len(current)+len(update))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// equalValues compares JSON-decoded values with YAML-decoded ones, where
// numbers may differ in Go type.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// dedupe keeps the first message per field.
func dedupe(fields []dErrors.FieldError) []dErrors.FieldError {
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if seen[f.Field] {
			continue
		}
		seen[f.Field] = true
		out = append(out, f)
	}
	return out
}
