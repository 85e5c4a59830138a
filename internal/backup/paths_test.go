package backup

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveBackupPath(t *testing.T) {
	dir := t.TempDir()

	rejected := []string{
		"",
		"../../etc/passwd.db",
		"report.txt",
		"back up.db",
		"sub/file.db",
		"..\\evil.db",
		".db",
		"nul?.db",
		"clockwerk_backup_20240101_120530",
	}
	for _, name := range rejected {
		if _, err := resolveBackupPath(dir, name); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error for %q, got %v", name, err)
		}
	}

	accepted := []string{
		"time_tracker_backup_20240101_120530.db",
		"clockwerk_backup_20240101_120530.db",
		"pre-release.snapshot.db",
		"a.db",
	}
	for _, name := range accepted {
		path, err := resolveBackupPath(dir, name)
		if err != nil {
			t.Errorf("expected %q to validate, got %v", name, err)
			continue
		}
		if filepath.Dir(path) != dir {
			t.Errorf("resolved path %q not a direct child of %q", path, dir)
		}
		if filepath.Base(path) != name {
			t.Errorf("resolved path %q lost the file name %q", path, name)
		}
	}
}

func TestGenerateNameValidates(t *testing.T) {
	name := GenerateName(mustParseTime(t, "2024-01-01T12:05:30Z"))
	if name != "clockwerk_backup_20240101_120530.db" {
		t.Errorf("unexpected generated name %q", name)
	}
	if _, err := resolveBackupPath(t.TempDir(), name); err != nil {
		t.Errorf("generated name %q failed validation: %v", name, err)
	}
}
