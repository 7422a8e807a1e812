package workspace

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/liamcoop/sqlgen/rules"
)

// ErrValidation marks input rejected by ValidateRule or ValidateTemplate
var ErrValidation = errors.New("validation failed")

const (
	maxNameLength     = 255
	maxCategoryLength = 100
	maxMappings       = 200
)

// ValidateRule checks a rule before it is stored
func ValidateRule(rule *rules.Rule) error {
	if err := validateName("rule", rule.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(rule.Category) > maxCategoryLength {
		return invalid("category exceeds %d characters", maxCategoryLength)
	}
	if rule.TemplateID <= 0 {
		return invalid("templateId is required")
	}

	if len(rule.ColumnMappings) > maxMappings {
		return invalid("rule has %d column mappings, maximum allowed is %d", len(rule.ColumnMappings), maxMappings)
	}
	for placeholder, column := range rule.ColumnMappings {
		if strings.TrimSpace(placeholder) == "" {
			return invalid("column mapping has an empty placeholder name")
		}
		if strings.Contains(placeholder, "}") {
			return invalid("placeholder %q cannot contain '}'", placeholder)
		}
		if column == "" {
			return invalid("placeholder %q maps to an empty column", placeholder)
		}
	}

	return validateTrigger(rule.TriggerCondition)
}

// validateTrigger rejects JSON triggers that no condition type accepts.
// Text that is not JSON is a column list and always valid.
func validateTrigger(raw string) error {
	switch c := rules.ParseCondition(raw).(type) {
	case rules.UnknownCondition:
		if c.Kind == "" {
			return invalid("trigger condition must be a JSON object with a type")
		}
		return invalid("trigger condition type %q is not supported or is missing required fields", c.Kind)
	case rules.ValueCondition:
		if c.Column == "" {
			return invalid("value_condition requires a column")
		}
		switch c.Operator {
		case rules.OpEqual, rules.OpNotEqual, rules.OpContains, rules.OpStartsWith,
			rules.OpEndsWith, rules.OpGreaterThan, rules.OpLessThan:
		default:
			return invalid("value_condition operator %q is not supported", c.Operator)
		}
	case rules.Expression:
		if c.Err != nil {
			return invalid("expression trigger: %v", c.Err)
		}
	}
	return nil
}

// ValidateTemplate checks a template before it is stored
func ValidateTemplate(tmpl *rules.Template) error {
	if err := validateName("template", tmpl.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(tmpl.Category) > maxCategoryLength {
		return invalid("category exceeds %d characters", maxCategoryLength)
	}
	if strings.TrimSpace(tmpl.Content) == "" {
		return invalid("template content is required")
	}
	return nil
}

func validateName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("%s name is required", kind)
	}
	if n := utf8.RuneCountInString(name); n > maxNameLength {
		return invalid("%s name length %d exceeds maximum of %d characters", kind, n, maxNameLength)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
