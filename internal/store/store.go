// Package store owns the Clockwerk live store: the single SQLite database
// file backing the running application.
//
// Opening a store runs the full startup lifecycle in order:
// legacy layout relocation, connection setup, idempotent schema creation,
// and additive migrations. The returned Store holds the one shared database
// handle used by every component for the process lifetime.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.clockwerk/clockwerk.db"

// DefaultBackupDir is the default snapshot directory.
const DefaultBackupDir = "~/.clockwerk/backups"

// FileExt is the extension of the store file and of every snapshot of it.
const FileExt = ".db"

// Config holds configuration for Open.
type Config struct {
	DBPath    string
	BackupDir string

	// Deprecated locations checked once at startup. Empty values use the
	// historical defaults; set explicitly in tests.
	LegacyDBPath    string
	LegacyBackupDir string
}

// Store is the live store. All statement execution goes through the single
// shared *sql.DB it owns.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if necessary) the live store and brings its schema
// up to the current shape.
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = ExpandPath(DefaultDBPath)
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = ExpandPath(DefaultBackupDir)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	if err := migrateLegacyLayout(cfg); err != nil {
		return nil, fmt.Errorf("relocating legacy layout: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them, not just
	// the one that happens to execute a PRAGMA statement.
	db, err := sql.Open("sqlite", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{db: db, dbPath: cfg.DBPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	if failed := s.runMigrations(); failed > 0 {
		log.Printf("store: %d migration step(s) failed; schema may be partially migrated", failed)
	}

	return s, nil
}

func dsn(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
}

// DB returns the shared database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the location of the store file.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats holds observability statistics about the store.
type Stats struct {
	UserCount      int64 `json:"userCount"`
	ProjectCount   int64 `json:"projectCount"`
	TaskCount      int64 `json:"taskCount"`
	TimeEntryCount int64 `json:"timeEntryCount"`
	DBSizeBytes    int64 `json:"dbSizeBytes"`
}

// Stats returns row counts for the main tables and the store file size.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM users", &st.UserCount},
		{"SELECT COUNT(*) FROM projects", &st.ProjectCount},
		{"SELECT COUNT(*) FROM tasks", &st.TaskCount},
		{"SELECT COUNT(*) FROM time_entries", &st.TimeEntryCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}

	if fi, err := os.Stat(s.dbPath); err == nil {
		st.DBSizeBytes = fi.Size()
	}

	return st, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
