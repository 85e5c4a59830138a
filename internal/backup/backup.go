// Package backup implements snapshot management for the Clockwerk live
// store: point-in-time backup files via SQLite's VACUUM INTO, transactional
// restores, and retention housekeeping. All snapshot files live in a single
// backup directory and are named per a fixed pattern; every operation that
// accepts a file name validates it first.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/clockwerk-io/clockwerk/internal/store"
)

// namePrefix is the stem of generated snapshot names, e.g.
// clockwerk_backup_20240101_120530.db.
const namePrefix = "clockwerk_backup_"

// nameTimestampFormat gives generated names second-level resolution.
const nameTimestampFormat = "20060102_150405"

// Snapshot describes one backup file.
type Snapshot struct {
	FileName  string    `json:"fileName"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager creates, lists, and deletes snapshot files of the live store.
type Manager struct {
	store *store.Store
	dir   string
}

// NewManager returns a Manager writing snapshots to dir. The directory is
// created lazily on first use.
func NewManager(st *store.Store, dir string) *Manager {
	return &Manager{store: st, dir: dir}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create produces a new snapshot of the live store. An empty name generates
// a timestamped one. The copy is taken with VACUUM INTO, which is safe
// while the store is in use; the result is verified with an integrity check
// and any partial file is removed on failure.
func (m *Manager) Create(ctx context.Context, name string) (*Snapshot, error) {
	if name == "" {
		name = GenerateName(time.Now())
	}

	path, err := resolveBackupPath(m.dir, name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrConflict, name)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking %s: %w", name, err)
	}

	if _, err := m.store.DB().ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("vacuum into %s: %w", name, err)
	}

	if err := verifySnapshot(path); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("verifying %s: %w", name, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}

	return &Snapshot{FileName: name, SizeBytes: fi.Size(), CreatedAt: fi.ModTime()}, nil
}

// List returns all snapshots in the backup directory, newest first. Files
// not matching the snapshot name pattern are ignored.
func (m *Manager) List(ctx context.Context) ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !namePattern.MatchString(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			FileName:  entry.Name(),
			SizeBytes: fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

// Delete removes a snapshot file.
func (m *Manager) Delete(ctx context.Context, name string) error {
	path, err := resolveBackupPath(m.dir, name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("checking %s: %w", name, err)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// GenerateName builds a timestamped snapshot name with second resolution.
func GenerateName(t time.Time) string {
	return namePrefix + t.Format(nameTimestampFormat) + store.FileExt
}

// verifySnapshot opens a snapshot file and runs PRAGMA integrity_check to
// confirm the copy is a valid, uncorrupted database.
func verifySnapshot(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
