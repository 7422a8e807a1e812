package main

import (
	"github.com/liamcoop/sqlgen/rules"
	"github.com/liamcoop/sqlgen/workspace"
)

// API request and response models

// MessageResponse reports a mutation together with the affected record
type MessageResponse struct {
	Message  string          `json:"message"`
	Rule     *rules.Rule     `json:"rule,omitempty"`
	Template *rules.Template `json:"template,omitempty"`
}

// ImportTemplatesRequest is the body of a template import
type ImportTemplatesRequest struct {
	Templates []workspace.ExportedTemplate `json:"templates"`
}

// ImportTemplatesResponse lists imported templates and rejected items
type ImportTemplatesResponse struct {
	Message string `json:"message"`
	*workspace.ImportResult
}

// DatasetSummary identifies an uploaded file
type DatasetSummary struct {
	ID           int64  `json:"id"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	Message string         `json:"message"`
	File    DatasetSummary `json:"file"`
}

// DatasetContent is the parsed sheet of a dataset
type DatasetContent struct {
	Headers []string    `json:"headers"`
	Data    []rules.Row `json:"data"`
}

// DatasetResponse is a dataset with all of its rows
type DatasetResponse struct {
	DatasetSummary
	Data DatasetContent `json:"data"`
}

// GenerateRequest selects the dataset and, optionally, the rules of a run.
// Ids may be JSON numbers or strings.
type GenerateRequest struct {
	DatasetID any   `json:"datasetId"`
	RuleIDs   []any `json:"ruleIds,omitempty"`
}

func (req GenerateRequest) ruleIDs() []string {
	if len(req.RuleIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(req.RuleIDs))
	for _, id := range req.RuleIDs {
		ids = append(ids, rules.Stringify(id))
	}
	return ids
}
