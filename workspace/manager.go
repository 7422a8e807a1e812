// Package workspace keeps one set of stores and one generation engine per
// owner and implements the management operations behind the HTTP API.
package workspace

import (
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/liamcoop/sqlgen/rules"
)

// Stores bundles the persistence of one owner
type Stores struct {
	Datasets  rules.DatasetStore
	Rules     rules.RuleStore
	Templates rules.TemplateStore
	History   rules.HistoryStore
}

// StoreFactory builds the stores for an owner
type StoreFactory func(ownerID string) Stores

// PostgresStores returns a factory of owner-scoped PostgreSQL stores sharing db
func PostgresStores(db *sql.DB) StoreFactory {
	return func(ownerID string) Stores {
		return Stores{
			Datasets:  rules.NewPostgresDatasetStore(db, ownerID),
			Rules:     rules.NewPostgresRuleStore(db, ownerID),
			Templates: rules.NewPostgresTemplateStore(db, ownerID),
			History:   rules.NewPostgresHistoryStore(db, ownerID),
		}
	}
}

// MemoryStores returns a factory of in-memory stores, one set per owner
func MemoryStores() StoreFactory {
	return func(string) Stores {
		return Stores{
			Datasets:  rules.NewInMemoryDatasetStore(),
			Rules:     rules.NewInMemoryRuleStore(),
			Templates: rules.NewInMemoryTemplateStore(),
			History:   rules.NewInMemoryHistoryStore(),
		}
	}
}

// Workspace is one owner's stores and engine. The rule store is wrapped
// with the enabled-rules cache.
type Workspace struct {
	OwnerID string
	Stores
	Engine *rules.Engine
	cache  *rules.CachedRuleStore
}

// CacheStats returns the rule cache hit and miss counts
func (w *Workspace) CacheStats() (hits, misses int64) {
	return w.cache.Stats()
}

// Manager creates workspaces on first use and keeps them for reuse
type Manager struct {
	workspaces  map[string]*Workspace
	factory     StoreFactory
	cacheConfig rules.CacheConfig
	mu          sync.RWMutex
}

// NewManager creates a manager building stores with factory
func NewManager(factory StoreFactory, cacheConfig rules.CacheConfig) *Manager {
	return &Manager{
		workspaces:  make(map[string]*Workspace),
		factory:     factory,
		cacheConfig: cacheConfig,
	}
}

// Get returns the workspace of ownerID, creating it when needed
func (m *Manager) Get(ownerID string) (*Workspace, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	m.mu.RLock()
	ws, ok := m.workspaces[ownerID]
	m.mu.RUnlock()
	if ok {
		return ws, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.workspaces[ownerID]; ok {
		return ws, nil
	}

	stores := m.factory(ownerID)
	cached := rules.NewCachedRuleStore(stores.Rules, rules.NewInMemoryRulesCache(m.cacheConfig))
	stores.Rules = cached

	ws = &Workspace{
		OwnerID: ownerID,
		Stores:  stores,
		Engine:  rules.NewEngine(stores.Datasets, cached, stores.Templates),
		cache:   cached,
	}
	m.workspaces[ownerID] = ws
	return ws, nil
}

// ListOwners returns the owners with a loaded workspace, sorted
func (m *Manager) ListOwners() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	owners := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		owners = append(owners, id)
	}
	slices.Sort(owners)
	return owners
}

// Evict drops a loaded workspace. Persisted data is not touched.
func (m *Manager) Evict(ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workspaces[ownerID]; !exists {
		return fmt.Errorf("workspace %s: %w", ownerID, rules.ErrNotFound)
	}
	delete(m.workspaces, ownerID)
	return nil
}
