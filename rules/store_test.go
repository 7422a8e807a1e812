package rules

import (
	"errors"
	"testing"
	"time"
)

// TestInMemoryRuleStoreAdd verifies ID assignment and timestamps
func TestInMemoryRuleStoreAdd(t *testing.T) {
	store := NewInMemoryRuleStore()

	first := &Rule{Name: "first", IsEnabled: true}
	second := &Rule{Name: "second"}
	for _, r := range []*Rule{first, second} {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}

	if first.ID != 1 || second.ID != 2 {
		t.Errorf("Expected IDs 1 and 2, got %d and %d", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() || !first.CreatedAt.Equal(first.UpdatedAt) {
		t.Error("Expected CreatedAt and UpdatedAt to be set and equal")
	}
}

// TestInMemoryRuleStoreAddDuplicate verifies explicit IDs cannot collide
func TestInMemoryRuleStoreAddDuplicate(t *testing.T) {
	store := NewInMemoryRuleStore()
	if err := store.Add(&Rule{ID: 5, Name: "a"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := store.Add(&Rule{ID: 5, Name: "b"}); err == nil {
		t.Error("Expected duplicate ID error")
	}

	next := &Rule{Name: "c"}
	if err := store.Add(next); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if next.ID != 6 {
		t.Errorf("Expected next ID 6, got %d", next.ID)
	}
}

// TestInMemoryRuleStoreIsolation verifies stored rules are copies
func TestInMemoryRuleStoreIsolation(t *testing.T) {
	store := NewInMemoryRuleStore()
	r := &Rule{Name: "a", ColumnMappings: map[string]string{"x": "y"}}
	if err := store.Add(r); err != nil {
		t.Fatal(err)
	}

	r.Name = "changed"
	r.ColumnMappings["x"] = "z"

	got, err := store.Get(r.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "a" || got.ColumnMappings["x"] != "y" {
		t.Errorf("Stored rule was mutated through caller pointer: %+v", got)
	}
}

// TestInMemoryRuleStoreNotFound verifies ErrNotFound is wrapped
func TestInMemoryRuleStoreNotFound(t *testing.T) {
	store := NewInMemoryRuleStore()

	if _, err := store.Get(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if err := store.Update(&Rule{ID: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

// TestInMemoryRuleStoreUpdate verifies CreatedAt is kept and UpdatedAt advances
func TestInMemoryRuleStoreUpdate(t *testing.T) {
	store := NewInMemoryRuleStore()
	r := &Rule{Name: "a"}
	if err := store.Add(r); err != nil {
		t.Fatal(err)
	}
	created := r.CreatedAt

	time.Sleep(2 * time.Millisecond)
	update := &Rule{ID: r.ID, Name: "b"}
	if err := store.Update(update); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, _ := store.Get(r.ID)
	if got.Name != "b" {
		t.Errorf("Expected name 'b', got %q", got.Name)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("CreatedAt should be preserved")
	}
	if !got.UpdatedAt.After(created) {
		t.Error("UpdatedAt should advance")
	}
}

// TestInMemoryRuleStoreListing verifies ordering, category filter and enabled filters
func TestInMemoryRuleStoreListing(t *testing.T) {
	store := NewInMemoryRuleStore()
	for _, r := range []*Rule{
		{Name: "a", Category: "x", IsEnabled: true},
		{Name: "b", Category: "y", IsEnabled: false},
		{Name: "c", Category: "x", IsEnabled: true},
	} {
		if err := store.Add(r); err != nil {
			t.Fatal(err)
		}
		time.Sleep(time.Millisecond)
	}

	all, _ := store.List("")
	if len(all) != 3 || all[0].Name != "c" || all[2].Name != "a" {
		t.Errorf("Expected newest first, got %v", names(all))
	}

	x, _ := store.List("x")
	if len(x) != 2 {
		t.Errorf("Expected 2 rules in category x, got %d", len(x))
	}

	enabled, _ := store.ListEnabled()
	if got := names(enabled); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("Expected enabled [a c] in ID order, got %v", got)
	}

	byIDs, _ := store.ListEnabledByIDs([]int64{2, 3})
	if got := names(byIDs); len(got) != 1 || got[0] != "c" {
		t.Errorf("Expected [c], got %v", got)
	}

	cats, _ := store.Categories()
	if len(cats) != 2 || cats[0] != "x" || cats[1] != "y" {
		t.Errorf("Expected [x y], got %v", cats)
	}
}

// TestInMemoryTemplateStore verifies filters and not-found handling
func TestInMemoryTemplateStore(t *testing.T) {
	store := NewInMemoryTemplateStore()
	on := &Template{Name: "on", Content: "SELECT 1", IsEnabled: true}
	off := &Template{Name: "off", Content: "SELECT 2"}
	for _, tmpl := range []*Template{on, off} {
		if err := store.Add(tmpl); err != nil {
			t.Fatal(err)
		}
	}

	enabled, _ := store.List(true)
	if len(enabled) != 1 || enabled[0].Name != "on" {
		t.Errorf("Expected only 'on', got %d templates", len(enabled))
	}

	all, _ := store.ListByIDs(nil)
	if len(all) != 2 {
		t.Errorf("Expected all templates for empty ids, got %d", len(all))
	}

	picked, _ := store.ListByIDs([]int64{off.ID})
	if len(picked) != 1 || picked[0].Name != "off" {
		t.Errorf("Expected only 'off'")
	}

	if err := store.Delete(on.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(on.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestInMemoryHistoryStore verifies newest-first listing with a limit
func TestInMemoryHistoryStore(t *testing.T) {
	store := NewInMemoryHistoryStore()
	for _, id := range []string{"h1", "h2", "h3"} {
		if err := store.Add(&History{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	list, _ := store.List(2)
	if len(list) != 2 || list[0].ID != "h3" || list[1].ID != "h2" {
		t.Errorf("Unexpected history list: %v", list)
	}

	if _, err := store.Get("h1"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func names(rules []*Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}
