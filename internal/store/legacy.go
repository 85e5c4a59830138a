package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Pre-directory-layout locations. Early releases kept a single store file
// and a sibling backup directory directly under the home directory.
const (
	legacyDBPath    = "~/.clockwerk.db"
	legacyBackupDir = "~/.clockwerk-backups"
)

// migrateLegacyLayout relocates a pre-existing single-file store and backup
// directory into the current layout. It runs once per startup, before the
// database is opened. Purely additive: it never deletes data and never
// overwrites an existing destination file.
func migrateLegacyLayout(cfg Config) error {
	oldDB := cfg.LegacyDBPath
	if oldDB == "" {
		oldDB = ExpandPath(legacyDBPath)
	}
	oldBackups := cfg.LegacyBackupDir
	if oldBackups == "" {
		oldBackups = ExpandPath(legacyBackupDir)
	}

	if err := moveLegacyDB(oldDB, cfg.DBPath); err != nil {
		return err
	}
	return moveLegacyBackups(oldBackups, cfg.BackupDir)
}

func moveLegacyDB(oldPath, newPath string) error {
	if !fileExists(oldPath) || fileExists(newPath) {
		return nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("moving legacy store %s: %w", oldPath, err)
	}
	log.Printf("store: moved legacy store file %s -> %s", oldPath, newPath)
	return nil
}

func moveLegacyBackups(oldDir, newDir string) error {
	entries, err := os.ReadDir(oldDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading legacy backup directory: %w", err)
	}

	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	moved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(oldDir, entry.Name())
		dst := filepath.Join(newDir, entry.Name())
		if fileExists(dst) {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("moving legacy backup %s: %w", entry.Name(), err)
		}
		moved++
	}
	if moved > 0 {
		log.Printf("store: moved %d legacy backup(s) %s -> %s", moved, oldDir, newDir)
	}

	// Remove the legacy directory only once nothing is left behind.
	if remaining, err := os.ReadDir(oldDir); err == nil && len(remaining) == 0 {
		if err := os.Remove(oldDir); err != nil {
			return fmt.Errorf("removing legacy backup directory: %w", err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
