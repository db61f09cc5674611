package db

import (
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}

	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s: expected version %d, got %d", m.Name, i+1, m.Version)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("migration %s is empty", m.Name)
		}
	}

	if !strings.Contains(migrations[0].SQL, "appointments_active_slot") {
		t.Error("expected core migration to define the active slot unique index")
	}
}
