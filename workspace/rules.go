package workspace

import (
	"errors"
	"fmt"
	"maps"

	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/rules"
)

// RuleInput carries the client-supplied fields of a rule. Nil fields are
// left unchanged on update. TemplateID may be a JSON number or a string.
type RuleInput struct {
	Name             *string           `json:"name"`
	Description      *string           `json:"description"`
	Category         *string           `json:"category"`
	TriggerCondition *string           `json:"triggerCondition"`
	TemplateID       any               `json:"templateId"`
	ColumnMappings   map[string]string `json:"columnMappings"`
	IsEnabled        *bool             `json:"isEnabled"`
}

// RuleSummary is a rule list entry with the name of its template
type RuleSummary struct {
	*rules.Rule
	TemplateName string `json:"templateName"`
}

// CreateRule stores a new rule. Rules are enabled unless the input says otherwise.
func (w *Workspace) CreateRule(in RuleInput) (*rules.Rule, error) {
	rule := &rules.Rule{IsEnabled: true, OwnerID: w.OwnerID}
	in.apply(rule)

	if err := w.checkRule(rule); err != nil {
		return nil, err
	}
	if err := w.Rules.Add(rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	logger.Info("rule created", "owner", w.OwnerID, "rule_id", rule.ID, "name", rule.Name)
	return rule, nil
}

// UpdateRule applies the non-nil fields of in. A templateId that is not a
// number is ignored.
func (w *Workspace) UpdateRule(id int64, in RuleInput) (*rules.Rule, error) {
	rule, err := w.Rules.Get(id)
	if err != nil {
		return nil, err
	}
	in.apply(rule)

	if err := w.checkRule(rule); err != nil {
		return nil, err
	}
	if err := w.Rules.Update(rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

func (in RuleInput) apply(rule *rules.Rule) {
	if in.Name != nil {
		rule.Name = *in.Name
	}
	if in.Description != nil {
		rule.Description = *in.Description
	}
	if in.Category != nil {
		rule.Category = *in.Category
	}
	if in.TriggerCondition != nil {
		rule.TriggerCondition = *in.TriggerCondition
	}
	if in.TemplateID != nil {
		if id, ok := rules.ParseID(rules.Stringify(in.TemplateID)); ok {
			rule.TemplateID = id
		}
	}
	if in.ColumnMappings != nil {
		rule.ColumnMappings = maps.Clone(in.ColumnMappings)
	}
	if in.IsEnabled != nil {
		rule.IsEnabled = *in.IsEnabled
	}
}

// checkRule validates rule and requires its template to exist
func (w *Workspace) checkRule(rule *rules.Rule) error {
	if err := ValidateRule(rule); err != nil {
		return err
	}
	if _, err := w.Templates.Get(rule.TemplateID); err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			return invalid("template %d does not exist", rule.TemplateID)
		}
		return err
	}
	return nil
}

// GetRule returns a rule by id
func (w *Workspace) GetRule(id int64) (*rules.Rule, error) {
	return w.Rules.Get(id)
}

// ListRules returns rules newest first, filtered by category when non-empty
func (w *Workspace) ListRules(category string) ([]RuleSummary, error) {
	list, err := w.Rules.List(category)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	names := make(map[int64]string)
	templates, err := w.Templates.List(false)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	for _, t := range templates {
		names[t.ID] = t.Name
	}

	out := make([]RuleSummary, 0, len(list))
	for _, r := range list {
		out = append(out, RuleSummary{Rule: r, TemplateName: names[r.TemplateID]})
	}
	return out, nil
}

// RuleCategories returns the distinct rule categories
func (w *Workspace) RuleCategories() ([]string, error) {
	return w.Rules.Categories()
}

// DeleteRule removes a rule
func (w *Workspace) DeleteRule(id int64) error {
	if err := w.Rules.Delete(id); err != nil {
		return err
	}
	logger.Info("rule deleted", "owner", w.OwnerID, "rule_id", id)
	return nil
}

// CopyRule stores a duplicate of rule id named "<name> (copy)"
func (w *Workspace) CopyRule(id int64) (*rules.Rule, error) {
	src, err := w.Rules.Get(id)
	if err != nil {
		return nil, err
	}

	dup := &rules.Rule{
		Name:             src.Name + copySuffix,
		Description:      src.Description,
		Category:         src.Category,
		TriggerCondition: src.TriggerCondition,
		TemplateID:       src.TemplateID,
		ColumnMappings:   maps.Clone(src.ColumnMappings),
		IsEnabled:        src.IsEnabled,
		OwnerID:          w.OwnerID,
	}
	if dup.ColumnMappings == nil {
		dup.ColumnMappings = map[string]string{}
	}
	if err := w.Rules.Add(dup); err != nil {
		return nil, fmt.Errorf("failed to copy rule: %w", err)
	}
	return dup, nil
}

// SetRuleEnabled enables or disables a rule
func (w *Workspace) SetRuleEnabled(id int64, enabled bool) (*rules.Rule, error) {
	rule, err := w.Rules.Get(id)
	if err != nil {
		return nil, err
	}
	rule.IsEnabled = enabled
	if err := w.Rules.Update(rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return rule, nil
}

const copySuffix = " (copy)"
