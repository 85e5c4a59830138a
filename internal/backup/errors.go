package backup

import (
	"errors"
	"fmt"
)

// The API layer maps these to user-facing responses (400/404/409/500); this
// package never formats for users.
var (
	// ErrValidation marks a malformed or unsafe snapshot file name.
	ErrValidation = errors.New("invalid backup file name")

	// ErrConflict marks a create targeting an existing snapshot file.
	ErrConflict = errors.New("backup file already exists")

	// ErrNotFound marks a reference to a snapshot file that does not exist.
	ErrNotFound = errors.New("backup file not found")
)

// RestoreError reports a failed restore. The live store is unchanged when
// this is returned: either no write happened, or the transaction rolled
// back before any change became visible.
type RestoreError struct {
	Snapshot string
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restoring from %s: %v", e.Snapshot, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
