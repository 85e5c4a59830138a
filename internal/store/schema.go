package store

import "fmt"

// initSchema creates every table and index the application needs. Each
// statement is IF NOT EXISTS, so running it against a current schema is a
// no-op. Migrations in migrations.go assume these base tables exist.
func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name  TEXT NOT NULL DEFAULT '',
			is_admin      INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			color       TEXT NOT NULL DEFAULT '#808080',
			archived    INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS releases (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			due_date    DATETIME,
			released_at DATETIME,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id       INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			release_id       INTEGER REFERENCES releases(id) ON DELETE SET NULL,
			assignee_id      INTEGER REFERENCES users(id) ON DELETE SET NULL,
			title            TEXT NOT NULL,
			notes            TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open','active','blocked','done','dropped')),
			priority         INTEGER NOT NULL DEFAULT 0,
			estimate_minutes INTEGER NOT NULL DEFAULT 0,
			sort_order       INTEGER NOT NULL DEFAULT 0,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at     DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS task_checklist (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id    INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			label      TEXT NOT NULL,
			done       INTEGER NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS time_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id    INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			started_at DATETIME NOT NULL,
			ended_at   DATETIME,
			minutes    INTEGER NOT NULL DEFAULT 0,
			note       TEXT
		)`,

		// One-time and session tokens; expired rows are purged at startup.
		`CREATE TABLE IF NOT EXISTS auth_tokens (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token      TEXT UNIQUE NOT NULL,
			purpose    TEXT NOT NULL DEFAULT 'session' CHECK(purpose IN ('session','api','reset','invite')),
			expires_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_releases_project ON releases(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_checklist_task ON task_checklist(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_task ON time_entries(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_time_entries_user ON time_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_auth_tokens_expiry ON auth_tokens(expires_at)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}

	return nil
}

// truncate shortens a string for error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
