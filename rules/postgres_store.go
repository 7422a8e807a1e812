package rules

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const ruleColumns = `id, name, description, category, trigger_condition, template_id,
	column_mappings, is_enabled, created_at, updated_at`

// PostgresRuleStore implements RuleStore backed by PostgreSQL, scoped to one owner
type PostgresRuleStore struct {
	db      *sql.DB
	ownerID string
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore for a specific owner
func NewPostgresRuleStore(db *sql.DB, ownerID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:      db,
		ownerID: ownerID,
	}
}

// Add inserts a new rule and sets its ID and timestamps
func (s *PostgresRuleStore) Add(rule *Rule) error {
	mappings, err := encodeMappings(rule.ColumnMappings)
	if err != nil {
		return err
	}

	now := time.Now()
	err = s.db.QueryRow(`
		INSERT INTO rules (owner_id, name, description, category, trigger_condition,
			template_id, column_mappings, is_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`, s.ownerID, rule.Name, rule.Description, rule.Category, nullString(rule.TriggerCondition),
		rule.TemplateID, mappings, rule.IsEnabled, now).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	rule.OwnerID = s.ownerID
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

// Get retrieves a rule by ID
func (s *PostgresRuleStore) Get(id int64) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND owner_id = $2
	`, id, s.ownerID)

	rule, err := s.scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns the owner's rules, newest first
func (s *PostgresRuleStore) List(category string) ([]*Rule, error) {
	if category == "" {
		return s.query(`
			SELECT `+ruleColumns+` FROM rules
			WHERE owner_id = $1
			ORDER BY created_at DESC, id DESC
		`, s.ownerID)
	}
	return s.query(`
		SELECT `+ruleColumns+` FROM rules
		WHERE owner_id = $1 AND COALESCE(category, '') = $2
		ORDER BY created_at DESC, id DESC
	`, s.ownerID, category)
}

// ListEnabled returns the owner's enabled rules in ID order
func (s *PostgresRuleStore) ListEnabled() ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+` FROM rules
		WHERE owner_id = $1 AND is_enabled = true
		ORDER BY id ASC
	`, s.ownerID)
}

// ListEnabledByIDs returns the owner's enabled rules among ids
func (s *PostgresRuleStore) ListEnabledByIDs(ids []int64) ([]*Rule, error) {
	return s.query(`
		SELECT `+ruleColumns+` FROM rules
		WHERE owner_id = $1 AND is_enabled = true AND id = ANY($2)
		ORDER BY id ASC
	`, s.ownerID, pq.Array(ids))
}

// Categories returns the owner's distinct rule categories
func (s *PostgresRuleStore) Categories() ([]string, error) {
	return queryStrings(s.db, `
		SELECT DISTINCT COALESCE(category, '') FROM rules
		WHERE owner_id = $1
		ORDER BY 1
	`, s.ownerID)
}

// Update modifies an existing rule
func (s *PostgresRuleStore) Update(rule *Rule) error {
	mappings, err := encodeMappings(rule.ColumnMappings)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()
	result, err := s.db.Exec(`
		UPDATE rules
		SET name = $1, description = $2, category = $3, trigger_condition = $4,
			template_id = $5, column_mappings = $6, is_enabled = $7, updated_at = $8
		WHERE id = $9 AND owner_id = $10
	`, rule.Name, rule.Description, rule.Category, nullString(rule.TriggerCondition),
		rule.TemplateID, mappings, rule.IsEnabled, rule.UpdatedAt, rule.ID, s.ownerID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return expectAffected(result, "rule", rule.ID)
}

// Delete removes a rule from the database
func (s *PostgresRuleStore) Delete(id int64) error {
	result, err := s.db.Exec(`
		DELETE FROM rules
		WHERE id = $1 AND owner_id = $2
	`, id, s.ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return expectAffected(result, "rule", id)
}

func (s *PostgresRuleStore) query(q string, args ...any) ([]*Rule, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		r, err := s.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresRuleStore) scanRule(sc scanner) (*Rule, error) {
	var (
		r                     Rule
		description, category sql.NullString
		trigger               sql.NullString
		mappings              []byte
	)
	if err := sc.Scan(&r.ID, &r.Name, &description, &category, &trigger, &r.TemplateID,
		&mappings, &r.IsEnabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Description = description.String
	r.Category = category.String
	r.TriggerCondition = trigger.String
	r.OwnerID = s.ownerID
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &r.ColumnMappings); err != nil {
			return nil, fmt.Errorf("invalid column mappings for rule %d: %w", r.ID, err)
		}
	}
	return &r, nil
}

const templateColumns = `id, name, description, category, content, is_enabled, created_at, updated_at`

// PostgresTemplateStore implements TemplateStore backed by PostgreSQL
type PostgresTemplateStore struct {
	db      *sql.DB
	ownerID string
}

func NewPostgresTemplateStore(db *sql.DB, ownerID string) *PostgresTemplateStore {
	return &PostgresTemplateStore{db: db, ownerID: ownerID}
}

func (s *PostgresTemplateStore) Add(tmpl *Template) error {
	now := time.Now()
	err := s.db.QueryRow(`
		INSERT INTO templates (owner_id, name, description, category, content, is_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, s.ownerID, tmpl.Name, tmpl.Description, tmpl.Category, tmpl.Content, tmpl.IsEnabled, now).Scan(&tmpl.ID)
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	tmpl.OwnerID = s.ownerID
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	return nil
}

func (s *PostgresTemplateStore) Get(id int64) (*Template, error) {
	row := s.db.QueryRow(`
		SELECT `+templateColumns+` FROM templates
		WHERE id = $1 AND owner_id = $2
	`, id, s.ownerID)

	tmpl, err := s.scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tmpl, nil
}

func (s *PostgresTemplateStore) List(onlyEnabled bool) ([]*Template, error) {
	return s.query(`
		SELECT `+templateColumns+` FROM templates
		WHERE owner_id = $1 AND (NOT $2::boolean OR is_enabled)
		ORDER BY id ASC
	`, s.ownerID, onlyEnabled)
}

func (s *PostgresTemplateStore) ListByIDs(ids []int64) ([]*Template, error) {
	if len(ids) == 0 {
		return s.List(false)
	}
	return s.query(`
		SELECT `+templateColumns+` FROM templates
		WHERE owner_id = $1 AND id = ANY($2)
		ORDER BY id ASC
	`, s.ownerID, pq.Array(ids))
}

func (s *PostgresTemplateStore) Categories() ([]string, error) {
	return queryStrings(s.db, `
		SELECT DISTINCT COALESCE(category, '') FROM templates
		WHERE owner_id = $1
		ORDER BY 1
	`, s.ownerID)
}

func (s *PostgresTemplateStore) Update(tmpl *Template) error {
	tmpl.UpdatedAt = time.Now()
	result, err := s.db.Exec(`
		UPDATE templates
		SET name = $1, description = $2, category = $3, content = $4, is_enabled = $5, updated_at = $6
		WHERE id = $7 AND owner_id = $8
	`, tmpl.Name, tmpl.Description, tmpl.Category, tmpl.Content, tmpl.IsEnabled, tmpl.UpdatedAt, tmpl.ID, s.ownerID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	return expectAffected(result, "template", tmpl.ID)
}

func (s *PostgresTemplateStore) Delete(id int64) error {
	result, err := s.db.Exec(`DELETE FROM templates WHERE id = $1 AND owner_id = $2`, id, s.ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return expectAffected(result, "template", id)
}

func (s *PostgresTemplateStore) query(q string, args ...any) ([]*Template, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := s.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return out, nil
}

func (s *PostgresTemplateStore) scanTemplate(sc scanner) (*Template, error) {
	var (
		t                     Template
		description, category sql.NullString
	)
	if err := sc.Scan(&t.ID, &t.Name, &description, &category, &t.Content, &t.IsEnabled,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Category = category.String
	t.OwnerID = s.ownerID
	return &t, nil
}

// datasetPayload is the JSONB layout of datasets.data
type datasetPayload struct {
	Headers []string `json:"headers"`
	Data    []Row    `json:"data"`
}

// PostgresDatasetStore implements DatasetStore backed by PostgreSQL
type PostgresDatasetStore struct {
	db      *sql.DB
	ownerID string
}

func NewPostgresDatasetStore(db *sql.DB, ownerID string) *PostgresDatasetStore {
	return &PostgresDatasetStore{db: db, ownerID: ownerID}
}

func (s *PostgresDatasetStore) Add(ds *Dataset) error {
	payload, err := json.Marshal(datasetPayload{Headers: ds.Headers, Data: ds.Rows})
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}

	err = s.db.QueryRow(`
		INSERT INTO datasets (owner_id, original_name, file_name, size, mimetype, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, s.ownerID, ds.OriginalName, ds.FileName, ds.Size, ds.MimeType, payload).Scan(&ds.ID, &ds.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}
	ds.OwnerID = s.ownerID
	return nil
}

// Get loads a dataset. Numbers in the stored rows decode as json.Number.
func (s *PostgresDatasetStore) Get(id int64) (*Dataset, error) {
	var (
		ds      Dataset
		payload []byte
	)
	err := s.db.QueryRow(`
		SELECT id, original_name, file_name, size, mimetype, data, created_at
		FROM datasets
		WHERE id = $1 AND owner_id = $2
	`, id, s.ownerID).Scan(&ds.ID, &ds.OriginalName, &ds.FileName, &ds.Size, &ds.MimeType, &payload, &ds.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	var data datasetPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("dataset %d: %w: %v", id, ErrInvalidData, err)
	}
	ds.Headers = data.Headers
	ds.Rows = data.Data
	ds.OwnerID = s.ownerID
	return &ds, nil
}

// PostgresHistoryStore implements HistoryStore backed by PostgreSQL
type PostgresHistoryStore struct {
	db      *sql.DB
	ownerID string
}

func NewPostgresHistoryStore(db *sql.DB, ownerID string) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db, ownerID: ownerID}
}

func (s *PostgresHistoryStore) Add(h *History) error {
	ruleIDs, err := json.Marshal(nonNil(h.RuleIDs))
	if err != nil {
		return fmt.Errorf("failed to encode rule ids: %w", err)
	}
	results, err := json.Marshal(nonNil(h.SQLResults))
	if err != nil {
		return fmt.Errorf("failed to encode sql results: %w", err)
	}

	err = s.db.QueryRow(`
		INSERT INTO histories (id, owner_id, dataset_id, rule_ids, sql_count, sql_results)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, h.ID, s.ownerID, h.DatasetID, ruleIDs, h.SQLCount, results).Scan(&h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	h.OwnerID = s.ownerID
	return nil
}

func (s *PostgresHistoryStore) Get(id string) (*History, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("history %s: %w", id, ErrNotFound)
	}

	rows, err := s.db.Query(`
		SELECT id, dataset_id, rule_ids, sql_count, sql_results, created_at
		FROM histories
		WHERE id = $1 AND owner_id = $2
	`, id, s.ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	list, err := s.scanAll(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("history %s: %w", id, ErrNotFound)
	}
	return list[0], nil
}

func (s *PostgresHistoryStore) List(limit int) ([]*History, error) {
	rows, err := s.db.Query(`
		SELECT id, dataset_id, rule_ids, sql_count, sql_results, created_at
		FROM histories
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, s.ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return s.scanAll(rows)
}

func (s *PostgresHistoryStore) scanAll(rows *sql.Rows) ([]*History, error) {
	defer rows.Close()

	var out []*History
	for rows.Next() {
		var (
			h                History
			ruleIDs, results []byte
		)
		if err := rows.Scan(&h.ID, &h.DatasetID, &ruleIDs, &h.SQLCount, &results, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if err := json.Unmarshal(ruleIDs, &h.RuleIDs); err != nil {
			return nil, fmt.Errorf("invalid rule ids in history %s: %w", h.ID, err)
		}
		if err := json.Unmarshal(results, &h.SQLResults); err != nil {
			return nil, fmt.Errorf("invalid sql results in history %s: %w", h.ID, err)
		}
		h.OwnerID = s.ownerID
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}

func encodeMappings(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column mappings: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func expectAffected(result sql.Result, kind string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}

func queryStrings(db *sql.DB, q string, args ...any) ([]string, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
