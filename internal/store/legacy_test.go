package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

// writeLegacyDB creates a marker table so the moved file can be identified.
func writeLegacyDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("opening legacy db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE legacy_marker (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("writing legacy db: %v", err)
	}
}

func TestLegacyStoreFileMoved(t *testing.T) {
	cfg := testConfig(t.TempDir())
	writeLegacyDB(t, cfg.LegacyDBPath)

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	if fileExists(cfg.LegacyDBPath) {
		t.Error("legacy store file still present after relocation")
	}

	// The live store is the relocated file: the marker table survives
	// alongside the freshly initialized schema.
	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='legacy_marker'",
	).Scan(&name)
	if err != nil {
		t.Errorf("legacy data not carried over: %v", err)
	}
}

func TestLegacyStoreNeverOverwrites(t *testing.T) {
	cfg := testConfig(t.TempDir())

	// A store already exists at the current location.
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("creating current store: %v", err)
	}
	s.Close()

	// A legacy file appearing later must leave both files alone.
	writeLegacyDB(t, cfg.LegacyDBPath)

	s, err = Open(cfg)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s.Close()

	if !fileExists(cfg.LegacyDBPath) {
		t.Error("legacy store file removed despite existing destination")
	}

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='legacy_marker'",
	).Scan(&name)
	if err == nil {
		t.Error("current store was overwritten by the legacy file")
	}
}

func TestLegacyBackupsMoved(t *testing.T) {
	cfg := testConfig(t.TempDir())

	if err := os.MkdirAll(cfg.LegacyBackupDir, 0o755); err != nil {
		t.Fatalf("creating legacy backup dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.LegacyBackupDir, "a.db"), []byte("aaa"), 0o644); err != nil {
		t.Fatalf("writing legacy backup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.LegacyBackupDir, "b.db"), []byte("legacy"), 0o644); err != nil {
		t.Fatalf("writing legacy backup: %v", err)
	}

	// b.db already exists at the destination and must not be overwritten.
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		t.Fatalf("creating backup dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.BackupDir, "b.db"), []byte("current"), 0o644); err != nil {
		t.Fatalf("writing current backup: %v", err)
	}

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	if !fileExists(filepath.Join(cfg.BackupDir, "a.db")) {
		t.Error("a.db not moved into the backup directory")
	}

	got, err := os.ReadFile(filepath.Join(cfg.BackupDir, "b.db"))
	if err != nil || string(got) != "current" {
		t.Errorf("b.db destination overwritten: %q %v", got, err)
	}

	// The colliding file stays behind, so the legacy dir survives.
	if !fileExists(filepath.Join(cfg.LegacyBackupDir, "b.db")) {
		t.Error("colliding legacy backup was removed")
	}
}

func TestLegacyBackupDirRemovedWhenEmptied(t *testing.T) {
	cfg := testConfig(t.TempDir())

	if err := os.MkdirAll(cfg.LegacyBackupDir, 0o755); err != nil {
		t.Fatalf("creating legacy backup dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.LegacyBackupDir, "only.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing legacy backup: %v", err)
	}

	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(cfg.LegacyBackupDir); !os.IsNotExist(err) {
		t.Error("emptied legacy backup directory not removed")
	}
	if !fileExists(filepath.Join(cfg.BackupDir, "only.db")) {
		t.Error("legacy backup not moved")
	}
}
