package workspace

import (
	"errors"
	"strings"
	"testing"

	"github.com/liamcoop/sqlgen/rules"
)

func validRule() *rules.Rule {
	return &rules.Rule{
		Name:             "Update accounts",
		TriggerCondition: `{"type":"column_match","columns":["id"]}`,
		TemplateID:       1,
		ColumnMappings:   map[string]string{"id": "id"},
	}
}

// TestValidateRule_Valid verifies a complete rule passes
func TestValidateRule_Valid(t *testing.T) {
	if err := ValidateRule(validRule()); err != nil {
		t.Fatalf("Expected valid rule, got: %v", err)
	}
}

// TestValidateRule_Rejections verifies each rejected field with the message it produces
func TestValidateRule_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*rules.Rule)
		wantMsg string
	}{
		{"empty name", func(r *rules.Rule) { r.Name = "  " }, "name is required"},
		{"long name", func(r *rules.Rule) { r.Name = strings.Repeat("n", 256) }, "255"},
		{"long category", func(r *rules.Rule) { r.Category = strings.Repeat("c", 101) }, "category"},
		{"missing template", func(r *rules.Rule) { r.TemplateID = 0 }, "templateId"},
		{"empty placeholder", func(r *rules.Rule) { r.ColumnMappings = map[string]string{"": "id"} }, "empty placeholder"},
		{"brace in placeholder", func(r *rules.Rule) { r.ColumnMappings = map[string]string{"a}": "id"} }, "cannot contain"},
		{"empty column", func(r *rules.Rule) { r.ColumnMappings = map[string]string{"id": ""} }, "empty column"},
		{"unknown type", func(r *rules.Rule) { r.TriggerCondition = `{"type":"fuzzy"}` }, `"fuzzy"`},
		{"json array", func(r *rules.Rule) { r.TriggerCondition = `[1,2]` }, "JSON object"},
		{"column_match without columns", func(r *rules.Rule) { r.TriggerCondition = `{"type":"column_match"}` }, "column_match"},
		{"value without column", func(r *rules.Rule) {
			r.TriggerCondition = `{"type":"value_condition","operator":"=","value":1}`
		}, "requires a column"},
		{"value with bad operator", func(r *rules.Rule) {
			r.TriggerCondition = `{"type":"value_condition","column":"a","operator":"~","value":1}`
		}, `"~"`},
		{"bad expression", func(r *rules.Rule) {
			r.TriggerCondition = `{"type":"expression","expression":"row.a +"}`
		}, "expression trigger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(rule)

			err := ValidateRule(rule)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected ErrValidation, got: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error to mention %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

// TestValidateRule_AcceptedTriggers verifies every supported trigger form passes
func TestValidateRule_AcceptedTriggers(t *testing.T) {
	triggers := []string{
		"",
		"id, name",
		`{"type":"column_match","columns":"id"}`,
		`{"type":"all_columns","columns":["id","name"]}`,
		`{"type":"regex","pattern":"^acc"}`,
		`{"type":"regex","pattern":"("}`,
		`{"type":"value_condition","column":"status","operator":"startsWith","value":"act"}`,
		`{"type":"expression","expression":"row.amount > 10"}`,
	}

	for _, trigger := range triggers {
		t.Run(trigger, func(t *testing.T) {
			rule := validRule()
			rule.TriggerCondition = trigger
			if err := ValidateRule(rule); err != nil {
				t.Errorf("Expected trigger to be accepted, got: %v", err)
			}
		})
	}
}

// TestValidateRule_TooManyMappings verifies the mapping limit
func TestValidateRule_TooManyMappings(t *testing.T) {
	rule := validRule()
	rule.ColumnMappings = make(map[string]string)
	for i := 0; i < 201; i++ {
		rule.ColumnMappings["p"+strings.Repeat("x", i)] = "col"
	}

	err := ValidateRule(rule)
	if err == nil || !strings.Contains(err.Error(), "200") {
		t.Errorf("Expected error about max 200 mappings, got: %v", err)
	}
}

// TestValidateTemplate verifies name and content are required
func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name    string
		tmpl    rules.Template
		wantErr bool
	}{
		{"valid", rules.Template{Name: "t", Content: "SELECT 1"}, false},
		{"missing name", rules.Template{Content: "SELECT 1"}, true},
		{"blank content", rules.Template{Name: "t", Content: "  \n"}, true},
		{"long category", rules.Template{Name: "t", Content: "SELECT 1", Category: strings.Repeat("c", 101)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(&tt.tmpl)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTemplate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
