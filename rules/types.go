package rules

import "time"

// Rule selects a template and decides, through its trigger condition,
// which datasets and rows the template is rendered for
type Rule struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description"`
	Category         string            `json:"category"`
	TriggerCondition string            `json:"triggerCondition"`
	TemplateID       int64             `json:"templateId"`
	ColumnMappings   map[string]string `json:"columnMappings"`
	IsEnabled        bool              `json:"isEnabled"`
	OwnerID          string            `json:"-"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Template holds SQL text with ${name} placeholders
type Template struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Content     string    `json:"content"`
	IsEnabled   bool      `json:"isEnabled"`
	OwnerID     string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Row maps a header name to a scalar cell value: nil, int64, float64,
// json.Number, string or bool
type Row map[string]any

// Dataset is the parsed content of an uploaded sheet
type Dataset struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"originalName"`
	FileName     string    `json:"fileName"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimetype"`
	Headers      []string  `json:"headers"`
	Rows         []Row     `json:"data"`
	OwnerID      string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MatchedRule is a rule that passed header-level matching, carrying a copy
// of its template content and its parsed trigger condition
type MatchedRule struct {
	Rule
	TemplateContent string    `json:"templateContent"`
	Condition       Condition `json:"-"`
}

// SQLResult is one rendered statement
type SQLResult struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Category string `json:"category"`
	SQL      string `json:"sql"`
	RowData  Row    `json:"rowData"`
	RowIndex int    `json:"rowIndex"`
}

// RowError records a failed render for one row and rule pair
type RowError struct {
	RowIndex int    `json:"rowIndex"`
	RuleName string `json:"ruleName"`
	Error    string `json:"error"`
}

// GenerationResult is the output of a single Generate call
type GenerationResult struct {
	SQLResults        []SQLResult `json:"sqlResults"`
	Errors            []RowError  `json:"errors,omitempty"`
	TotalRows         int         `json:"totalRows"`
	MatchedRulesCount int         `json:"matchedRulesCount"`
}

// History is a persisted record of a generation run
type History struct {
	ID         string    `json:"id"`
	DatasetID  int64     `json:"datasetId"`
	RuleIDs    []int64   `json:"ruleIds"`
	SQLCount   int       `json:"sqlCount"`
	SQLResults []string  `json:"sqlResults"`
	OwnerID    string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
