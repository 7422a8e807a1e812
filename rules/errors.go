package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a dataset, rule, template or history
	// record does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when a dataset has no headers or rows
	ErrInvalidData = errors.New("dataset has no headers or rows")

	// ErrNoRulesAvailable is returned when no enabled rule survives the id filter
	ErrNoRulesAvailable = errors.New("no rules available, create and enable a rule first")

	// ErrNoRulesMatched is returned when no rule's trigger matches the dataset headers
	ErrNoRulesMatched = errors.New("no rules matched, check the rules' trigger conditions")
)

// previewLimit caps the SQL text quoted in a RenderError
const previewLimit = 100

// RenderError reports a template that could not be turned into a valid statement.
// Preview holds at most the first 100 characters of the offending SQL.
type RenderError struct {
	Message string
	Preview string
}

func (e *RenderError) Error() string {
	return e.Message
}

func errEmptyTemplate() *RenderError {
	return &RenderError{Message: "rule template content is empty"}
}

func errInvalidSQL(sql string) *RenderError {
	preview := sql
	if r := []rune(sql); len(r) > previewLimit {
		preview = string(r[:previewLimit])
	}
	return &RenderError{
		Message: fmt.Sprintf("generated SQL is invalid: %s...", preview),
		Preview: preview,
	}
}
