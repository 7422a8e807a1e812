package rules

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// statementKeywords are the leading keywords accepted for generated SQL
var statementKeywords = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"}

// Rendered is a statement produced from a template and a row.
// MissingPlaceholders lists placeholders whose value was nil or absent and
// were replaced by nothing; it does not fail the render.
type Rendered struct {
	SQL                 string
	MissingPlaceholders []string
}

// Render substitutes the row's values into the rule's template content.
// headers is accepted alongside the row but not used for substitution.
func Render(rule *MatchedRule, row Row, headers []string) (*Rendered, error) {
	if rule.TemplateContent == "" {
		return nil, errEmptyTemplate()
	}

	mappings := ColumnMappings(rule.ColumnMappings, row)
	var missing []string

	content := rule.TemplateContent
	var b strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(content, -1) {
		b.WriteString(content[last:loc[0]])
		last = loc[1]

		name := trimJS(content[loc[2]:loc[3]])
		var value any
		if col := mappings[name]; col != "" {
			value = row[col]
		} else {
			value = row[name]
		}

		if value == nil {
			missing = append(missing, name)
			continue
		}
		b.WriteString(EscapeValue(value))
	}
	b.WriteString(content[last:])

	sql := b.String()
	if !ValidStatement(sql) {
		return nil, errInvalidSQL(sql)
	}

	return &Rendered{
		SQL:                 trimJS(sql),
		MissingPlaceholders: missing,
	}, nil
}

// ColumnMappings returns the placeholder to column mapping for a row. An
// empty rule mapping becomes the identity mapping over the row's columns.
func ColumnMappings(ruleMappings map[string]string, row Row) map[string]string {
	mappings := make(map[string]string, len(ruleMappings))
	for k, v := range ruleMappings {
		mappings[k] = v
	}
	if len(mappings) == 0 {
		for k := range row {
			mappings[k] = k
		}
	}
	return mappings
}

// EscapeValue renders a non-nil value as a SQL literal: numbers as decimal
// text, bools as 1 or 0, everything else single quoted with quotes doubled
func EscapeValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if isNumber(v) {
		return Stringify(v)
	}
	if b, ok := v.(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return "'" + strings.ReplaceAll(Stringify(v), "'", "''") + "'"
}

// ValidStatement reports whether sql starts with a supported statement keyword
func ValidStatement(sql string) bool {
	upper := strings.ToUpper(trimJS(sql))
	if upper == "" {
		return false
	}
	for _, kw := range statementKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}
