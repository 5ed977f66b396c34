// Package eventconfig holds the country-declared event schemas and the
// sources they are loaded from.
package eventconfig

import (
	"fmt"
	"regexp"
	"strings"

	"crvs/internal/events/models"
	"crvs/internal/events/scope"
)

// FieldType is the declared kind of a form field.
type FieldType string

const (
	FieldText     FieldType = "TEXT"
	FieldTextArea FieldType = "TEXTAREA"
	FieldNumber   FieldType = "NUMBER"
	FieldCheckbox FieldType = "CHECKBOX"
	FieldDate     FieldType = "DATE"
	FieldEmail    FieldType = "EMAIL"
	FieldSelect   FieldType = "SELECT"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldText, FieldTextArea, FieldNumber, FieldCheckbox, FieldDate, FieldEmail, FieldSelect:
		return true
	}
	return false
}

// SelectOption is one allowed value of a SELECT field.
type SelectOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Condition hides a field unless another field equals a value.
type Condition struct {
	Field  string `json:"field" yaml:"field"`
	Equals any    `json:"equals" yaml:"equals"`
}

// Rule is a country-declared pattern a present value must match.
type Rule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`

	re *regexp.Regexp
}

// Match reports whether value satisfies the rule. Rules are compiled when
// their configuration is validated.
func (r *Rule) Match(value string) bool {
	if r.re == nil {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return false
		}
		r.re = re
	}
	return r.re.MatchString(value)
}

// Field is one entry in a declaration or annotation schema.
type Field struct {
	ID         string         `json:"id" yaml:"id"`
	Type       FieldType      `json:"type" yaml:"type"`
	Label      string         `json:"label,omitempty" yaml:"label,omitempty"`
	Required   bool           `json:"required,omitempty" yaml:"required,omitempty"`
	Options    []SelectOption `json:"options,omitempty" yaml:"options,omitempty"`
	ShowWhen   *Condition     `json:"showWhen,omitempty" yaml:"showWhen,omitempty"`
	Validation []Rule         `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// HasOption reports whether v is one of a SELECT field's options.
func (f Field) HasOption(v string) bool {
	for _, o := range f.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// ActionConfig declares a built-in action for an event type.
type ActionConfig struct {
	Type                 models.ActionType `json:"type" yaml:"type"`
	Label                string            `json:"label,omitempty" yaml:"label,omitempty"`
	RequiresConfirmation bool              `json:"requiresConfirmation,omitempty" yaml:"requiresConfirmation,omitempty"`
	Annotation           []Field           `json:"annotation,omitempty" yaml:"annotation,omitempty"`
}

// CustomActionConfig declares a country-specific action type.
type CustomActionConfig struct {
	Type                 string               `json:"type" yaml:"type"`
	Label                string               `json:"label,omitempty" yaml:"label,omitempty"`
	RequiresConfirmation bool                 `json:"requiresConfirmation,omitempty" yaml:"requiresConfirmation,omitempty"`
	UpdatesDeclaration   bool                 `json:"updatesDeclaration,omitempty" yaml:"updatesDeclaration,omitempty"`
	Flag                 string               `json:"flag,omitempty" yaml:"flag,omitempty"`
	AllowedStatuses      []models.EventStatus `json:"allowedStatuses,omitempty" yaml:"allowedStatuses,omitempty"`
	Annotation           []Field              `json:"annotation,omitempty" yaml:"annotation,omitempty"`
}

// Permits reports whether the custom action may run in status s.
func (c CustomActionConfig) Permits(s models.EventStatus) bool {
	if len(c.AllowedStatuses) == 0 {
		return s.Permits(models.ActionCustom)
	}
	for _, allowed := range c.AllowedStatuses {
		if allowed == s {
			return true
		}
	}
	return false
}

// EventConfig is the schema of one event type.
type EventConfig struct {
	ID            string               `json:"id" yaml:"id"`
	Label         string               `json:"label,omitempty" yaml:"label,omitempty"`
	Declaration   []Field              `json:"declaration" yaml:"declaration"`
	Actions       []ActionConfig       `json:"actions" yaml:"actions"`
	CustomActions []CustomActionConfig `json:"customActions,omitempty" yaml:"customActions,omitempty"`
}

// Action returns the configuration of built-in action t.
func (c *EventConfig) Action(t models.ActionType) (*ActionConfig, bool) {
	for i := range c.Actions {
		if c.Actions[i].Type == t {
			return &c.Actions[i], true
		}
	}
	return nil, false
}

// CustomAction returns the configuration of custom action type name.
func (c *EventConfig) CustomAction(name string) (*CustomActionConfig, bool) {
	for i := range c.CustomActions {
		if c.CustomActions[i].Type == name {
			return &c.CustomActions[i], true
		}
	}
	return nil, false
}

// RequiresConfirmation reports whether an action needs the country config to
// confirm it before it takes effect.
func (c *EventConfig) RequiresConfirmation(t models.ActionType, customActionType string) bool {
	if t == models.ActionCustom {
		ca, ok := c.CustomAction(customActionType)
		return ok && ca.RequiresConfirmation
	}
	ac, ok := c.Action(t)
	return ok && ac.RequiresConfirmation
}

// Slug is the normalised id used for lookups and webhook paths.
func (c *EventConfig) Slug() string {
	return scope.Slug(c.ID)
}

// Validate checks the configuration and compiles its rules.
func (c *EventConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("event config id is required")
	}
	if err := validateFields(c.ID+".declaration", c.Declaration); err != nil {
		return err
	}
	seenActions := map[models.ActionType]bool{}
	for i := range c.Actions {
		a := &c.Actions[i]
		if !a.Type.IsValid() || a.Type == models.ActionCustom {
			return fmt.Errorf("%s: invalid action type %q", c.ID, a.Type)
		}
		if seenActions[a.Type] {
			return fmt.Errorf("%s: duplicate action %s", c.ID, a.Type)
		}
		seenActions[a.Type] = true
		if a.RequiresConfirmation && unconfirmable[a.Type] {
			return fmt.Errorf("%s.actions.%s: requiresConfirmation is not supported for this action", c.ID, a.Type)
		}
		if err := validateFields(fmt.Sprintf("%s.actions.%s", c.ID, a.Type), a.Annotation); err != nil {
			return err
		}
	}
	seenCustom := map[string]bool{}
	for i := range c.CustomActions {
		ca := &c.CustomActions[i]
		if strings.TrimSpace(ca.Type) == "" {
			return fmt.Errorf("%s: custom action type is required", c.ID)
		}
		if seenCustom[ca.Type] {
			return fmt.Errorf("%s: duplicate custom action %s", c.ID, ca.Type)
		}
		seenCustom[ca.Type] = true
		for _, s := range ca.AllowedStatuses {
			if !s.IsValid() {
				return fmt.Errorf("%s: custom action %s: invalid status %q", c.ID, ca.Type, s)
			}
		}
		if err := validateFields(fmt.Sprintf("%s.customActions.%s", c.ID, ca.Type), ca.Annotation); err != nil {
			return err
		}
	}
	return nil
}

// unconfirmable actions are recorded without calling the country
// configuration.
var unconfirmable = map[models.ActionType]bool{
	models.ActionCreate:            true,
	models.ActionAssign:            true,
	models.ActionUnassign:          true,
	models.ActionApproveCorrection: true,
	models.ActionRejectCorrection:  true,
}

func validateFields(path string, fields []Field) error {
	seen := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("%s: field id is required", path)
		}
		if seen[f.ID] {
			return fmt.Errorf("%s: duplicate field %s", path, f.ID)
		}
		seen[f.ID] = true
		if !f.Type.IsValid() {
			return fmt.Errorf("%s.%s: unknown field type %q", path, f.ID, f.Type)
		}
		if f.Type == FieldSelect && len(f.Options) == 0 {
			return fmt.Errorf("%s.%s: select field needs options", path, f.ID)
		}
		for j := range f.Validation {
			re, err := regexp.Compile(f.Validation[j].Pattern)
			if err != nil {
				return fmt.Errorf("%s.%s: invalid pattern: %w", path, f.ID, err)
			}
			f.Validation[j].re = re
		}
	}
	for _, f := range fields {
		if f.ShowWhen != nil && !seen[f.ShowWhen.Field] {
			return fmt.Errorf("%s.%s: showWhen references unknown field %s", path, f.ID, f.ShowWhen.Field)
		}
	}
	return nil
}
