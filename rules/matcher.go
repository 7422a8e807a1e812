package rules

import (
	"errors"
	"fmt"
)

// MatchRules keeps the enabled candidates whose trigger condition holds for
// headers and whose template exists, in candidate order. A rule whose
// template is missing is skipped without error.
func MatchRules(headers []string, candidates []*Rule, templates TemplateStore) ([]*MatchedRule, error) {
	matched := make([]*MatchedRule, 0, len(candidates))
	for _, rule := range candidates {
		if !rule.IsEnabled {
			continue
		}

		cond := ParseCondition(rule.TriggerCondition)
		if !MatchHeaders(cond, headers) {
			continue
		}

		tmpl, err := templates.Get(rule.TemplateID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load template for rule %d: %w", rule.ID, err)
		}

		matched = append(matched, &MatchedRule{
			Rule:            *cloneRule(rule),
			TemplateContent: tmpl.Content,
			Condition:       cond,
		})
	}
	return matched, nil
}
