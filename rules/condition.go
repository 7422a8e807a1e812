package rules

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
)

// Trigger condition types stored in the "type" field of a JSON trigger
const (
	TypeColumnMatch    = "column_match"
	TypeAllColumns     = "all_columns"
	TypeRegex          = "regex"
	TypeValueCondition = "value_condition"
	TypeExpression     = "expression"
)

// Value condition operators
const (
	OpEqual       = "="
	OpNotEqual    = "!="
	OpContains    = "contains"
	OpStartsWith  = "startsWith"
	OpEndsWith    = "endsWith"
	OpGreaterThan = ">"
	OpLessThan    = "<"
)

// Condition is a parsed trigger condition. It is one of NoCondition,
// ColumnMatch, AllColumns, Regex, ValueCondition, Expression,
// LiteralColumnList or UnknownCondition.
type Condition interface {
	Type() string
	matchHeaders(headers []string) bool
	matchRow(row Row, headers []string) bool
}

// NoCondition always applies
type NoCondition struct{}

// ColumnMatch applies when any of Columns is a header
type ColumnMatch struct {
	Columns []string
}

// AllColumns applies when every one of Columns is a header
type AllColumns struct {
	Columns []string
}

// regexTimeout bounds a single header match against a backtracking pattern
const regexTimeout = 100 * time.Millisecond

// Regex applies when Pattern, an ECMAScript regular expression, matches any
// header. A pattern that does not compile falls back to matching the raw
// trigger text as a column list.
type Regex struct {
	Pattern  string
	re       *regexp2.Regexp
	fallback LiteralColumnList
}

// ValueCondition requires Column to exist among the headers and, per row,
// the cell to satisfy Operator against Value
type ValueCondition struct {
	Column   string
	Operator string
	Value    string
}

// LiteralColumnList is the interpretation of a trigger that is not JSON:
// a comma separated list of column names
type LiteralColumnList struct {
	Raw string
}

// UnknownCondition is JSON that names no supported condition type
type UnknownCondition struct {
	Kind string
}

func (NoCondition) Type() string       { return "" }
func (ColumnMatch) Type() string       { return TypeColumnMatch }
func (AllColumns) Type() string        { return TypeAllColumns }
func (Regex) Type() string             { return TypeRegex }
func (ValueCondition) Type() string    { return TypeValueCondition }
func (LiteralColumnList) Type() string { return "literal" }
func (u UnknownCondition) Type() string {
	return u.Kind
}

// ParseCondition interprets a raw trigger string. Empty text means the rule
// always applies; text that is not a JSON value (or is JSON null) becomes a
// LiteralColumnList.
func ParseCondition(raw string) Condition {
	if raw == "" {
		return NoCondition{}
	}

	if !json.Valid([]byte(raw)) {
		return LiteralColumnList{Raw: raw}
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || v == nil {
		return LiteralColumnList{Raw: raw}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return UnknownCondition{}
	}
	kind, _ := obj["type"].(string)

	switch kind {
	case TypeColumnMatch:
		switch cols := obj["columns"].(type) {
		case string:
			return ColumnMatch{Columns: []string{cols}}
		case []any:
			return ColumnMatch{Columns: columnNames(cols)}
		}
	case TypeAllColumns:
		if cols, ok := obj["columns"].([]any); ok {
			return AllColumns{Columns: columnNames(cols)}
		}
	case TypeRegex:
		if truthy(obj["pattern"]) {
			pattern := Stringify(obj["pattern"])
			re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
			if err != nil {
				return Regex{Pattern: pattern, fallback: LiteralColumnList{Raw: raw}}
			}
			re.MatchTimeout = regexTimeout
			return Regex{Pattern: pattern, re: re}
		}
	case TypeValueCondition:
		vc := ValueCondition{Value: "undefined"}
		if truthy(obj["column"]) {
			vc.Column = Stringify(obj["column"])
		}
		vc.Operator, _ = obj["operator"].(string)
		if val, ok := obj["value"]; ok {
			vc.Value = Stringify(val)
		}
		return vc
	case TypeExpression:
		src, _ := obj["expression"].(string)
		return compileExpression(src)
	}

	return UnknownCondition{Kind: kind}
}

// MatchHeaders evaluates a condition against a dataset's header set
func MatchHeaders(c Condition, headers []string) bool {
	if c == nil {
		return true
	}
	if _, ok := c.(NoCondition); ok {
		return true
	}
	if len(headers) == 0 {
		return false
	}
	return c.matchHeaders(headers)
}

// MatchRow evaluates a condition against a single row. Only value and
// expression conditions are evaluated here; column_match, all_columns and
// regex conditions never pass at row level.
func MatchRow(c Condition, row Row, headers []string) bool {
	if c == nil {
		return true
	}
	return c.matchRow(row, headers)
}

func (NoCondition) matchHeaders([]string) bool  { return true }
func (NoCondition) matchRow(Row, []string) bool { return true }

func (c ColumnMatch) matchHeaders(headers []string) bool {
	set := normalizedHeaders(headers)
	return slices.ContainsFunc(c.Columns, func(col string) bool {
		return slices.Contains(set, normalize(col))
	})
}

func (ColumnMatch) matchRow(Row, []string) bool { return false }

func (c AllColumns) matchHeaders(headers []string) bool {
	set := normalizedHeaders(headers)
	for _, col := range c.Columns {
		if !slices.Contains(set, normalize(col)) {
			return false
		}
	}
	return true
}

func (AllColumns) matchRow(Row, []string) bool { return false }

func (c Regex) matchHeaders(headers []string) bool {
	if c.re == nil {
		return c.fallback.matchHeaders(headers)
	}
	return slices.ContainsFunc(headers, func(h string) bool {
		ok, err := c.re.MatchString(h)
		return err == nil && ok
	})
}

func (Regex) matchRow(Row, []string) bool { return false }

func (c ValueCondition) matchHeaders(headers []string) bool {
	if c.Column == "" {
		return false
	}
	return slices.Contains(normalizedHeaders(headers), normalize(c.Column))
}

func (c ValueCondition) matchRow(row Row, headers []string) bool {
	if c.Column == "" {
		return false
	}
	idx := slices.Index(normalizedHeaders(headers), normalize(c.Column))
	if idx == -1 {
		return false
	}
	cell, ok := row[headers[idx]]
	if !ok || cell == nil {
		return false
	}
	return compare(Stringify(cell), c.Operator, c.Value)
}

func (c LiteralColumnList) matchHeaders(headers []string) bool {
	list := trimJS(c.Raw)
	set := normalizedHeaders(headers)
	if strings.Contains(list, ",") {
		for _, col := range strings.Split(list, ",") {
			if slices.Contains(set, normalize(col)) {
				return true
			}
		}
		return false
	}
	return slices.Contains(set, normalize(list))
}

// matchRow checks the untrimmed trigger text verbatim against the headers
func (c LiteralColumnList) matchRow(_ Row, headers []string) bool {
	return slices.Contains(headers, c.Raw)
}

func (UnknownCondition) matchHeaders([]string) bool  { return false }
func (UnknownCondition) matchRow(Row, []string) bool { return false }

func compare(a, op, b string) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpContains:
		return strings.Contains(a, b)
	case OpStartsWith:
		return strings.HasPrefix(a, b)
	case OpEndsWith:
		return strings.HasSuffix(a, b)
	case OpGreaterThan, OpLessThan:
		na, okA := parseLeadingFloat(a)
		nb, okB := parseLeadingFloat(b)
		if !okA || !okB {
			return false
		}
		if op == OpGreaterThan {
			return na > nb
		}
		return na < nb
	default:
		return false
	}
}

func columnNames(cols []any) []string {
	names := make([]string, len(cols))
	for i, col := range cols {
		if truthy(col) {
			names[i] = Stringify(col)
		}
	}
	return names
}

func normalizedHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = normalize(h)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(trimJS(s))
}

func trimJS(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

// truthy reports whether a decoded JSON value counts as set
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}
