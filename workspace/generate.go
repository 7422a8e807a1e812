package workspace

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/sqlgen/dataset"
	"github.com/liamcoop/sqlgen/internal/logger"
	"github.com/liamcoop/sqlgen/rules"
)

// HistoryLimit caps the number of records ListHistory returns
const HistoryLimit = 100

// unknownDataset names the dataset of a history record whose dataset is gone
const unknownDataset = "unknown file"

// Generation is the result of a run together with its history record id
type Generation struct {
	*rules.GenerationResult

	Success   bool   `json:"success"`
	SQLCount  int    `json:"sqlCount"`
	HistoryID string `json:"historyId"`
}

// Generate runs the engine over a dataset and records the run. An empty
// ruleIDs selects every enabled rule.
func (w *Workspace) Generate(datasetID int64, ruleIDs []string) (*Generation, error) {
	start := time.Now()

	result, err := w.Engine.Generate(datasetID, ruleIDs)
	if err != nil {
		return nil, err
	}
	logger.CountRenderErrors(len(result.Errors))

	h := &rules.History{
		ID:         uuid.NewString(),
		DatasetID:  datasetID,
		RuleIDs:    make([]int64, 0, len(result.SQLResults)),
		SQLCount:   len(result.SQLResults),
		SQLResults: make([]string, 0, len(result.SQLResults)),
		OwnerID:    w.OwnerID,
	}
	for _, r := range result.SQLResults {
		if id, ok := rules.ParseID(r.RuleID); ok {
			h.RuleIDs = append(h.RuleIDs, id)
		}
		h.SQLResults = append(h.SQLResults, r.SQL)
	}
	if err := w.History.Add(h); err != nil {
		return nil, fmt.Errorf("failed to record generation history: %w", err)
	}

	logger.Info("sql generated",
		"owner", w.OwnerID,
		"dataset_id", datasetID,
		"rows", result.TotalRows,
		"matched_rules", result.MatchedRulesCount,
		"statements", len(result.SQLResults),
		"errors", len(result.Errors),
		"duration", time.Since(start))

	return &Generation{
		Success:          true,
		SQLCount:         len(result.SQLResults),
		GenerationResult: result,
		HistoryID:        h.ID,
	}, nil
}

// HistorySummary is a history list entry
type HistorySummary struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	FileSize  int64     `json:"fileSize"`
	SQLCount  int       `json:"sqlCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListHistory returns the latest runs, newest first
func (w *Workspace) ListHistory() ([]HistorySummary, error) {
	list, err := w.History.List(HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	datasets := make(map[int64]*rules.Dataset)
	out := make([]HistorySummary, 0, len(list))
	for _, h := range list {
		entry := HistorySummary{
			ID:        h.ID,
			FileName:  unknownDataset,
			SQLCount:  h.SQLCount,
			CreatedAt: h.CreatedAt,
		}

		ds, ok := datasets[h.DatasetID]
		if !ok {
			ds, err = w.lookupDataset(h.DatasetID)
			if err != nil {
				return nil, err
			}
			datasets[h.DatasetID] = ds
		}
		if ds != nil {
			entry.FileName = ds.OriginalName
			entry.FileSize = ds.Size
		}
		out = append(out, entry)
	}
	return out, nil
}

// HistoryRule is a rule referenced by a history record
type HistoryRule struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HistoryStatement is one recorded statement
type HistoryStatement struct {
	SQL string `json:"sql"`
}

// HistoryDetail is a run with its dataset preview and the rules that produced it
type HistoryDetail struct {
	ID         string             `json:"id"`
	FileID     *int64             `json:"fileId"`
	FileName   string             `json:"fileName"`
	FileData   *dataset.Preview   `json:"fileData"`
	Rules      []HistoryRule      `json:"rules"`
	SQLCount   int                `json:"sqlCount"`
	SQLResults []HistoryStatement `json:"sqlResults"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// HistoryDetail returns a run by id. Rules deleted since the run are left out.
func (w *Workspace) HistoryDetail(id string) (*HistoryDetail, error) {
	h, err := w.History.Get(id)
	if err != nil {
		return nil, err
	}

	detail := &HistoryDetail{
		ID:         h.ID,
		FileName:   unknownDataset,
		Rules:      []HistoryRule{},
		SQLCount:   h.SQLCount,
		SQLResults: make([]HistoryStatement, 0, len(h.SQLResults)),
		CreatedAt:  h.CreatedAt,
	}

	ds, err := w.lookupDataset(h.DatasetID)
	if err != nil {
		return nil, err
	}
	if ds != nil {
		detail.FileID = &ds.ID
		detail.FileName = ds.OriginalName
		if preview, err := dataset.NewPreview(ds, dataset.DefaultPreviewRows); err == nil {
			detail.FileData = preview
		}
	}

	seen := make(map[int64]bool)
	for _, ruleID := range h.RuleIDs {
		if seen[ruleID] {
			continue
		}
		seen[ruleID] = true

		rule, err := w.Rules.Get(ruleID)
		if errors.Is(err, rules.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		detail.Rules = append(detail.Rules, HistoryRule{ID: rule.ID, Name: rule.Name, Description: rule.Description})
	}

	for _, sql := range h.SQLResults {
		detail.SQLResults = append(detail.SQLResults, HistoryStatement{SQL: sql})
	}
	return detail, nil
}

// lookupDataset returns nil without error when the dataset does not exist
func (w *Workspace) lookupDataset(id int64) (*rules.Dataset, error) {
	ds, err := w.Datasets.Get(id)
	if errors.Is(err, rules.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %d: %w", id, err)
	}
	return ds, nil
}
