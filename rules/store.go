package rules

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"
)

// RuleStore manages rule persistence and retrieval
type RuleStore interface {
	// Add a new rule, assigning its ID
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id int64) (*Rule, error)

	// List all rules, newest first, optionally restricted to a category
	List(category string) ([]*Rule, error)

	// ListEnabled returns enabled rules in ID order
	ListEnabled() ([]*Rule, error)

	// ListEnabledByIDs returns the enabled rules among ids in ID order
	ListEnabledByIDs(ids []int64) ([]*Rule, error)

	// Categories returns the distinct rule categories
	Categories() ([]string, error)

	// Update an existing rule
	Update(rule *Rule) error

	// Delete a rule
	Delete(id int64) error
}

// TemplateStore manages SQL templates
type TemplateStore interface {
	Add(tmpl *Template) error
	Get(id int64) (*Template, error)
	// List returns templates in ID order
	List(onlyEnabled bool) ([]*Template, error)
	// ListByIDs returns all templates when ids is empty
	ListByIDs(ids []int64) ([]*Template, error)
	Categories() ([]string, error)
	Update(tmpl *Template) error
	Delete(id int64) error
}

// DatasetStore keeps parsed uploads
type DatasetStore interface {
	Add(ds *Dataset) error
	Get(id int64) (*Dataset, error)
}

// HistoryStore records generation runs
type HistoryStore interface {
	Add(h *History) error
	Get(id string) (*History, error)
	// List returns the newest records first
	List(limit int) ([]*History, error)
}

// InMemoryRuleStore implements RuleStore using an in-memory map
type InMemoryRuleStore struct {
	rules  map[int64]*Rule
	nextID int64
	mu     sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[int64]*Rule),
	}
}

// Add stores a copy of rule, assigning the next ID when rule.ID is zero
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == 0 {
		s.nextID++
		rule.ID = s.nextID
	} else if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule with ID %d already exists", rule.ID)
	} else if rule.ID > s.nextID {
		s.nextID = rule.ID
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id int64) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	return cloneRule(rule), nil
}

// List returns rules newest first
func (s *InMemoryRuleStore) List(category string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if category == "" || rule.Category == category {
			out = append(out, cloneRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListEnabled returns all enabled rules
func (s *InMemoryRuleStore) ListEnabled() ([]*Rule, error) {
	return s.listEnabled(func(*Rule) bool { return true })
}

// ListEnabledByIDs returns the enabled rules whose ID is in ids
func (s *InMemoryRuleStore) ListEnabledByIDs(ids []int64) ([]*Rule, error) {
	return s.listEnabled(func(r *Rule) bool { return slices.Contains(ids, r.ID) })
}

func (s *InMemoryRuleStore) listEnabled(keep func(*Rule) bool) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var enabled []*Rule
	for _, id := range slices.Sorted(maps.Keys(s.rules)) {
		rule := s.rules[id]
		if rule.IsEnabled && keep(rule) {
			enabled = append(enabled, cloneRule(rule))
		}
	}
	return enabled, nil
}

// Categories returns the sorted distinct categories
func (s *InMemoryRuleStore) Categories() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rule := range s.rules {
		seen[rule.Category] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// Update replaces an existing rule, preserving CreatedAt
func (s *InMemoryRuleStore) Update(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %d: %w", rule.ID, ErrNotFound)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}

	delete(s.rules, id)
	return nil
}

func cloneRule(r *Rule) *Rule {
	c := *r
	c.ColumnMappings = maps.Clone(r.ColumnMappings)
	return &c
}

// InMemoryTemplateStore implements TemplateStore using an in-memory map
type InMemoryTemplateStore struct {
	templates map[int64]*Template
	nextID    int64
	mu        sync.RWMutex
}

// NewInMemoryTemplateStore creates a new in-memory template store
func NewInMemoryTemplateStore() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{
		templates: make(map[int64]*Template),
	}
}

func (s *InMemoryTemplateStore) Add(tmpl *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tmpl.ID == 0 {
		s.nextID++
		tmpl.ID = s.nextID
	} else if _, exists := s.templates[tmpl.ID]; exists {
		return fmt.Errorf("template with ID %d already exists", tmpl.ID)
	} else if tmpl.ID > s.nextID {
		s.nextID = tmpl.ID
	}

	now := time.Now()
	tmpl.CreatedAt = now
	tmpl.UpdatedAt = now
	c := *tmpl
	s.templates[tmpl.ID] = &c
	return nil
}

func (s *InMemoryTemplateStore) Get(id int64) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmpl, exists := s.templates[id]
	if !exists {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	c := *tmpl
	return &c, nil
}

func (s *InMemoryTemplateStore) List(onlyEnabled bool) ([]*Template, error) {
	return s.list(func(t *Template) bool { return !onlyEnabled || t.IsEnabled })
}

func (s *InMemoryTemplateStore) ListByIDs(ids []int64) ([]*Template, error) {
	return s.list(func(t *Template) bool { return len(ids) == 0 || slices.Contains(ids, t.ID) })
}

func (s *InMemoryTemplateStore) list(keep func(*Template) bool) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Template
	for _, id := range slices.Sorted(maps.Keys(s.templates)) {
		if tmpl := s.templates[id]; keep(tmpl) {
			c := *tmpl
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *InMemoryTemplateStore) Categories() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tmpl := range s.templates {
		seen[tmpl.Category] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *InMemoryTemplateStore) Update(tmpl *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.templates[tmpl.ID]
	if !exists {
		return fmt.Errorf("template %d: %w", tmpl.ID, ErrNotFound)
	}

	tmpl.CreatedAt = existing.CreatedAt
	tmpl.UpdatedAt = time.Now()
	c := *tmpl
	s.templates[tmpl.ID] = &c
	return nil
}

func (s *InMemoryTemplateStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.templates[id]; !exists {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	delete(s.templates, id)
	return nil
}

// InMemoryDatasetStore implements DatasetStore using an in-memory map.
// Stored datasets are treated as immutable.
type InMemoryDatasetStore struct {
	datasets map[int64]*Dataset
	nextID   int64
	mu       sync.RWMutex
}

func NewInMemoryDatasetStore() *InMemoryDatasetStore {
	return &InMemoryDatasetStore{
		datasets: make(map[int64]*Dataset),
	}
}

func (s *InMemoryDatasetStore) Add(ds *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds.ID == 0 {
		s.nextID++
		ds.ID = s.nextID
	} else if _, exists := s.datasets[ds.ID]; exists {
		return fmt.Errorf("dataset with ID %d already exists", ds.ID)
	} else if ds.ID > s.nextID {
		s.nextID = ds.ID
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now()
	}
	s.datasets[ds.ID] = ds
	return nil
}

func (s *InMemoryDatasetStore) Get(id int64) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, exists := s.datasets[id]
	if !exists {
		return nil, fmt.Errorf("dataset %d: %w", id, ErrNotFound)
	}
	return ds, nil
}

// InMemoryHistoryStore implements HistoryStore using a slice
type InMemoryHistoryStore struct {
	records []*History
	mu      sync.RWMutex
}

func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{}
}

func (s *InMemoryHistoryStore) Add(h *History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}
	s.records = append(s.records, h)
	return nil
}

func (s *InMemoryHistoryStore) Get(id string) (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range s.records {
		if h.ID == id {
			return h, nil
		}
	}
	return nil, fmt.Errorf("history %s: %w", id, ErrNotFound)
}

func (s *InMemoryHistoryStore) List(limit int) ([]*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*History, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
