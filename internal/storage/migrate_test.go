package storage

import (
	"path/filepath"
	"testing"
)

func TestMigrationManager_UpDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migration-test.db")

	if err := Migrate(dbPath); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	// Running again is a no-op.
	if err := Migrate(dbPath); err != nil {
		t.Fatalf("Failed to rerun migrations: %v", err)
	}

	mgr, err := NewMigrationManager(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen migration manager: %v", err)
	}
	defer mgr.Close()

	version, dirty, err := mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if dirty {
		t.Error("Database is in dirty state after migrations")
	}
	if version != 2 {
		t.Errorf("Expected migration version 2, got %d", version)
	}

	if err := mgr.Down(); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}
	version, _, err = mgr.Version()
	if err != nil {
		t.Fatalf("Failed to get migration version: %v", err)
	}
	if version != 0 {
		t.Errorf("Expected version 0 after rollback, got %d", version)
	}
}
