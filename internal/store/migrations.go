package store

import (
	"fmt"
	"log"
	"strings"
)

// Migrations are additive and self-gating: each step introspects the live
// schema and writes only when the target shape is missing. There is no
// version ledger; re-running the runner against a current schema performs
// introspection reads only.
//
// Steps run independently. A failing step is logged and the remaining steps
// still run, so one stuck migration never takes down startup.

type migrationStep struct {
	name string
	fn   func(*Store) error
}

// runMigrations applies every migration step and returns the number of
// steps that failed.
func (s *Store) runMigrations() int {
	steps := []migrationStep{
		{"tasks.sort_order", (*Store).migrateTaskSortOrder},
		{"tasks.estimate_minutes", (*Store).migrateTaskEstimate},
		{"projects.archived", (*Store).migrateProjectArchived},
		{"releases.released_at", (*Store).migrateReleaseReleasedAt},
		{"time_entries.note", (*Store).migrateTimeEntryNote},
		{"late indexes", (*Store).migrateLateIndexes},
		{"expired token purge", (*Store).purgeExpiredTokens},
	}

	failed := 0
	for _, step := range steps {
		if err := step.fn(s); err != nil {
			log.Printf("store: migration %q failed: %v", step.name, err)
			failed++
		}
	}
	return failed
}

// columnExists reports whether a table has a column of the given name.
func (s *Store) columnExists(table, column string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

// indexExists reports whether a named index exists.
func (s *Store) indexExists(name string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking index %s: %w", name, err)
	}
	return count > 0, nil
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// addColumn adds a column to a table if it is missing, running the ALTER and
// any follow-up statements (index creation, backfill) in one transaction.
func (s *Store) addColumn(table, column, alter string, followup ...string) error {
	exists, err := s.columnExists(table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s.%s migration: %w", table, column, err)
	}
	defer tx.Rollback()

	for _, stmt := range append([]string{alter}, followup...) {
		if _, err := tx.Exec(stmt); err != nil {
			if isDuplicateColumnError(err) {
				continue
			}
			return fmt.Errorf("executing %q: %w", truncate(stmt, 60), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s.%s migration: %w", table, column, err)
	}
	return nil
}

// migrateTaskSortOrder adds the manual-ordering column to tasks. Existing
// rows are backfilled from their insertion order so boards keep their
// current arrangement after the upgrade.
func (s *Store) migrateTaskSortOrder() error {
	return s.addColumn("tasks", "sort_order",
		`ALTER TABLE tasks ADD COLUMN sort_order INTEGER NOT NULL DEFAULT 0`,
		`UPDATE tasks SET sort_order = (SELECT COUNT(*) FROM tasks o WHERE o.id <= tasks.id)`,
	)
}

func (s *Store) migrateTaskEstimate() error {
	return s.addColumn("tasks", "estimate_minutes",
		`ALTER TABLE tasks ADD COLUMN estimate_minutes INTEGER NOT NULL DEFAULT 0`,
	)
}

func (s *Store) migrateProjectArchived() error {
	return s.addColumn("projects", "archived",
		`ALTER TABLE projects ADD COLUMN archived INTEGER NOT NULL DEFAULT 0`,
	)
}

func (s *Store) migrateReleaseReleasedAt() error {
	return s.addColumn("releases", "released_at",
		`ALTER TABLE releases ADD COLUMN released_at DATETIME`,
	)
}

func (s *Store) migrateTimeEntryNote() error {
	return s.addColumn("time_entries", "note",
		`ALTER TABLE time_entries ADD COLUMN note TEXT`,
	)
}

// migrateLateIndexes creates indexes introduced after their tables first
// shipped. Gated on sqlite_master so a current schema sees reads only.
func (s *Store) migrateLateIndexes() error {
	indexes := map[string]string{
		"idx_tasks_sort":         `CREATE INDEX idx_tasks_sort ON tasks(project_id, sort_order)`,
		"idx_auth_tokens_expiry": `CREATE INDEX idx_auth_tokens_expiry ON auth_tokens(expires_at)`,
	}

	for name, ddl := range indexes {
		exists, err := s.indexExists(name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("creating index %s: %w", name, err)
		}
	}
	return nil
}

// purgeExpiredTokens deletes one-time and session tokens past their expiry.
// Runs on every startup; a DELETE with no matching rows is a no-op.
func (s *Store) purgeExpiredTokens() error {
	res, err := s.db.Exec(
		`DELETE FROM auth_tokens WHERE expires_at IS NOT NULL AND expires_at < CURRENT_TIMESTAMP`,
	)
	if err != nil {
		return fmt.Errorf("purging expired tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Printf("store: purged %d expired auth token(s)", n)
	}
	return nil
}
