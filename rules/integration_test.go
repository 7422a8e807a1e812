//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/sqlgen/rules"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "sqlgen_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=sqlgen_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err = db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func TestPostgresRuleStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "owner-1")

	rule := &rules.Rule{
		Name:             "flag-vip",
		Category:         "accounts",
		TriggerCondition: `{"type":"column_match","columns":["acct"]}`,
		TemplateID:       7,
		ColumnMappings:   map[string]string{"id": "acct"},
		IsEnabled:        true,
	}
	if err := store.Add(rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("Expected an assigned ID")
	}

	retrieved, err := store.Get(rule.ID)
	if err != nil {
		t.Fatalf("Failed to get rule: %v", err)
	}
	if retrieved.Name != "flag-vip" {
		t.Errorf("Expected name 'flag-vip', got '%s'", retrieved.Name)
	}
	if retrieved.ColumnMappings["id"] != "acct" {
		t.Errorf("Expected mapping id->acct, got %v", retrieved.ColumnMappings)
	}
	if retrieved.Description != "" {
		t.Errorf("Expected empty description, got '%s'", retrieved.Description)
	}

	enabled, err := store.ListEnabled()
	if err != nil {
		t.Fatalf("Failed to list enabled rules: %v", err)
	}
	if len(enabled) != 1 {
		t.Errorf("Expected 1 enabled rule, got %d", len(enabled))
	}

	byID, err := store.ListEnabledByIDs([]int64{rule.ID, 999})
	if err != nil {
		t.Fatalf("Failed to list rules by id: %v", err)
	}
	if len(byID) != 1 {
		t.Errorf("Expected 1 rule by id, got %d", len(byID))
	}

	rule.IsEnabled = false
	if err := store.Update(rule); err != nil {
		t.Fatalf("Failed to update rule: %v", err)
	}
	enabled, err = store.ListEnabled()
	if err != nil {
		t.Fatalf("Failed to list enabled rules: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("Expected 0 enabled rules, got %d", len(enabled))
	}

	cats, err := store.Categories()
	if err != nil {
		t.Fatalf("Failed to list categories: %v", err)
	}
	if len(cats) != 1 || cats[0] != "accounts" {
		t.Errorf("Expected [accounts], got %v", cats)
	}

	if err := store.Delete(rule.ID); err != nil {
		t.Fatalf("Failed to delete rule: %v", err)
	}
	if _, err := store.Get(rule.ID); !errors.Is(err, rules.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(rule.ID); !errors.Is(err, rules.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestPostgresRuleStore_OwnerIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storeA := rules.NewPostgresRuleStore(db, "owner-a")
	storeB := rules.NewPostgresRuleStore(db, "owner-b")

	ruleA := &rules.Rule{Name: "a", TemplateID: 1, IsEnabled: true}
	if err := storeA.Add(ruleA); err != nil {
		t.Fatalf("Failed to add rule for owner A: %v", err)
	}
	ruleB := &rules.Rule{Name: "b", TemplateID: 1, IsEnabled: true}
	if err := storeB.Add(ruleB); err != nil {
		t.Fatalf("Failed to add rule for owner B: %v", err)
	}

	if _, err := storeA.Get(ruleB.ID); err == nil {
		t.Error("Owner A should not be able to see owner B's rule")
	}
	if err := storeB.Delete(ruleA.ID); err == nil {
		t.Error("Owner B should not be able to delete owner A's rule")
	}

	rulesA, err := storeA.ListEnabled()
	if err != nil {
		t.Fatalf("Failed to list rules for owner A: %v", err)
	}
	if len(rulesA) != 1 || rulesA[0].Name != "a" {
		t.Errorf("Expected only rule 'a' for owner A, got %v", rulesA)
	}
}

func TestPostgresTemplateStore_ListFilters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresTemplateStore(db, "owner-1")
	on := &rules.Template{Name: "on", Content: "SELECT 1", IsEnabled: true}
	off := &rules.Template{Name: "off", Content: "SELECT 2"}
	for _, tmpl := range []*rules.Template{on, off} {
		if err := store.Add(tmpl); err != nil {
			t.Fatalf("Failed to add template: %v", err)
		}
	}

	all, err := store.List(false)
	if err != nil {
		t.Fatalf("Failed to list templates: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 templates, got %d", len(all))
	}

	enabled, err := store.List(true)
	if err != nil {
		t.Fatalf("Failed to list enabled templates: %v", err)
	}
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("Expected only 'on', got %v", enabled)
	}

	picked, err := store.ListByIDs([]int64{off.ID})
	if err != nil {
		t.Fatalf("Failed to list templates by id: %v", err)
	}
	if len(picked) != 1 || picked[0].Name != "off" {
		t.Errorf("Expected only 'off', got %v", picked)
	}
}

func TestPostgresStores_GenerateAndHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	const owner = "owner-1"
	datasets := rules.NewPostgresDatasetStore(db, owner)
	ruleStore := rules.NewPostgresRuleStore(db, owner)
	templates := rules.NewPostgresTemplateStore(db, owner)
	history := rules.NewPostgresHistoryStore(db, owner)

	tmpl := &rules.Template{Name: "vip", Content: "UPDATE t SET vip=1 WHERE acct=${acct}", IsEnabled: true}
	if err := templates.Add(tmpl); err != nil {
		t.Fatalf("Failed to add template: %v", err)
	}
	rule := &rules.Rule{
		Name:             "vip",
		TriggerCondition: `{"type":"value_condition","column":"amount","operator":">","value":"100"}`,
		TemplateID:       tmpl.ID,
		IsEnabled:        true,
	}
	if err := ruleStore.Add(rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}

	ds := &rules.Dataset{
		OriginalName: "accounts.xlsx",
		FileName:     "accounts.xlsx",
		Size:         10,
		MimeType:     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Headers:      []string{"acct", "amount"},
		Rows: []rules.Row{
			{"acct": int64(1), "amount": int64(150)},
			{"acct": int64(2), "amount": int64(50)},
		},
	}
	if err := datasets.Add(ds); err != nil {
		t.Fatalf("Failed to add dataset: %v", err)
	}

	engine := rules.NewEngine(datasets, ruleStore, templates)
	result, err := engine.Generate(ds.ID, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(result.SQLResults) != 1 {
		t.Fatalf("Expected 1 statement, got %d", len(result.SQLResults))
	}
	if got := result.SQLResults[0].SQL; got != "UPDATE t SET vip=1 WHERE acct=1" {
		t.Errorf("Unexpected SQL: %s", got)
	}

	rec := &rules.History{
		ID:         uuid.New().String(),
		DatasetID:  ds.ID,
		RuleIDs:    []int64{rule.ID},
		SQLCount:   1,
		SQLResults: []string{result.SQLResults[0].SQL},
	}
	if err := history.Add(rec); err != nil {
		t.Fatalf("Failed to add history: %v", err)
	}

	got, err := history.Get(rec.ID)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	if got.SQLCount != 1 || len(got.SQLResults) != 1 || got.RuleIDs[0] != rule.ID {
		t.Errorf("Unexpected history record: %+v", got)
	}

	list, err := history.List(100)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 history record, got %d", len(list))
	}

	if _, err := history.Get(uuid.New().String()); !errors.Is(err, rules.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
