package rules

import (
	"fmt"
	"maps"
	"strconv"
)

// Engine turns a stored dataset and the enabled rules into SQL text.
// It keeps no state between runs, so Generate may be called concurrently.
type Engine struct {
	datasets  DatasetStore
	rules     RuleStore
	templates TemplateStore
}

// NewEngine creates an engine reading from the given stores
func NewEngine(datasets DatasetStore, rules RuleStore, templates TemplateStore) *Engine {
	return &Engine{
		datasets:  datasets,
		rules:     rules,
		templates: templates,
	}
}

// Generate renders every matched rule against every row of the dataset.
// ruleIDs restricts the candidate rules when non-empty; ids that are not
// integers are dropped. Render failures are collected per row and rule and
// never stop the run.
func (en *Engine) Generate(datasetID int64, ruleIDs []string) (*GenerationResult, error) {
	ds, err := en.datasets.Get(datasetID)
	if err != nil {
		return nil, err
	}
	if ds.Headers == nil || ds.Rows == nil {
		return nil, fmt.Errorf("dataset %d: %w", datasetID, ErrInvalidData)
	}

	candidates, err := en.candidates(ruleIDs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoRulesAvailable
	}

	matched, err := MatchRules(ds.Headers, candidates, en.templates)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, ErrNoRulesMatched
	}

	return Run(ds, matched), nil
}

func (en *Engine) candidates(ruleIDs []string) ([]*Rule, error) {
	if len(ruleIDs) == 0 {
		return en.rules.ListEnabled()
	}
	ids := ParseIDs(ruleIDs)
	if len(ids) == 0 {
		return nil, nil
	}
	return en.rules.ListEnabledByIDs(ids)
}

// Run evaluates matched rules against each row of ds. Row indexes start at 1.
func Run(ds *Dataset, matched []*MatchedRule) *GenerationResult {
	result := &GenerationResult{
		SQLResults:        []SQLResult{},
		TotalRows:         len(ds.Rows),
		MatchedRulesCount: len(matched),
	}

	conds := make([]Condition, len(matched))
	for j, rule := range matched {
		conds[j] = rule.Condition
		if conds[j] == nil {
			conds[j] = ParseCondition(rule.TriggerCondition)
		}
	}

	for i, row := range ds.Rows {
		rowIndex := i + 1
		for j, rule := range matched {
			if !MatchRow(conds[j], row, ds.Headers) {
				continue
			}

			rendered, err := Render(rule, row, ds.Headers)
			if err != nil {
				result.Errors = append(result.Errors, RowError{
					RowIndex: rowIndex,
					RuleName: rule.Name,
					Error:    err.Error(),
				})
				continue
			}

			result.SQLResults = append(result.SQLResults, SQLResult{
				RuleID:   strconv.FormatInt(rule.ID, 10),
				RuleName: rule.Name,
				Category: rule.Category,
				SQL:      rendered.SQL,
				RowData:  maps.Clone(row),
				RowIndex: rowIndex,
			})
		}
	}

	return result
}
