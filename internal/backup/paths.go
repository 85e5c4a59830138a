package backup

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/clockwerk-io/clockwerk/internal/store"
)

// Snapshot file names are a single path component of [A-Za-z0-9._-] ending
// in the store extension. Anything else (separators, spaces, wrong
// extension, empty) is rejected before the name ever reaches the
// filesystem.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+` + regexp.QuoteMeta(store.FileExt) + `$`)

// resolveBackupPath validates a caller-supplied snapshot name and returns
// the absolute path of that name inside dir. After the pattern check the
// resolved path must still be a direct child of dir, which catches OS-level
// path tricks the pattern alone could miss.
func resolveBackupPath(dir, name string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrValidation, name)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: resolving backup directory: %v", ErrValidation, err)
	}

	path, err := filepath.Abs(filepath.Join(absDir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrValidation, name)
	}
	if filepath.Dir(path) != absDir || filepath.Base(path) != name {
		return "", fmt.Errorf("%w: %q escapes the backup directory", ErrValidation, name)
	}

	return path, nil
}
