package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/clockwerk-io/clockwerk/internal/store"
)

// restoreAlias is the private schema name the snapshot is attached under
// for the duration of a restore.
const restoreAlias = "restore_src"

// Restorer replaces the contents of the live store with the contents of a
// chosen snapshot file.
type Restorer struct {
	store *store.Store
	dir   string
}

// NewRestorer returns a Restorer reading snapshots from dir.
func NewRestorer(st *store.Store, dir string) *Restorer {
	return &Restorer{store: st, dir: dir}
}

// Restore atomically replaces every table present in both the live store
// and the snapshot with the snapshot's rows. Tables that exist only in the
// live store are left untouched, so restoring an older snapshot never
// destroys data a newer application version added.
//
// Foreign-key enforcement is disabled for the duration because tables are
// emptied and reloaded in arbitrary order. Detaching the snapshot and
// re-enabling enforcement run unconditionally, so a failed restore never
// leaves the connection degraded.
func (r *Restorer) Restore(ctx context.Context, name string) (err error) {
	path, err := resolveBackupPath(r.dir, name)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("checking %s: %w", name, statErr)
	}

	// Foreign-key state is per-connection, so pin one connection and run
	// every statement of the restore on it.
	conn, err := r.store.DB().Conn(ctx)
	if err != nil {
		return fmt.Errorf("pinning connection: %w", err)
	}
	defer conn.Close()

	// Cleanup must run even when the caller cancels mid-restore, or the
	// connection goes back to the pool with the snapshot still attached and
	// enforcement off.
	cleanupCtx := context.WithoutCancel(ctx)

	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := conn.ExecContext(cleanupCtx, "PRAGMA foreign_keys = ON"); fkErr != nil && err == nil {
			err = fmt.Errorf("re-enabling foreign keys: %w", fkErr)
		}
	}()

	// The alias is only ever read from; nothing below writes to it.
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+restoreAlias, path); err != nil {
		return &RestoreError{Snapshot: name, Err: fmt.Errorf("attaching snapshot: %w", err)}
	}
	defer func() {
		if _, dErr := conn.ExecContext(cleanupCtx, "DETACH DATABASE "+restoreAlias); dErr != nil && err == nil {
			err = fmt.Errorf("detaching snapshot: %w", dErr)
		}
	}()

	tables, err := sharedTables(ctx, conn)
	if err != nil {
		return &RestoreError{Snapshot: name, Err: err}
	}
	if len(tables) == 0 {
		return &RestoreError{Snapshot: name, Err: errors.New("no tables in common with the live store")}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &RestoreError{Snapshot: name, Err: fmt.Errorf("beginning transaction: %w", err)}
	}
	committed := false
	defer func() {
		if !committed {
			// Rollback before the deferred DETACH runs. On a canceled
			// context the pool's own rollback may have won the race; the
			// driver serializes either one ahead of the cleanup statements.
			_ = tx.Rollback()
		}
	}()

	for _, table := range tables {
		if rErr := replaceTable(ctx, tx, table); rErr != nil {
			return &RestoreError{Snapshot: name, Err: rErr}
		}
	}

	// Carry the autoincrement high-water marks over so future generated ids
	// continue from the snapshot's sequence instead of colliding with ids
	// of rows deleted since the snapshot was taken.
	if sErr := replaceSequenceTable(ctx, tx); sErr != nil {
		return &RestoreError{Snapshot: name, Err: sErr}
	}

	if cErr := tx.Commit(); cErr != nil {
		return &RestoreError{Snapshot: name, Err: fmt.Errorf("committing: %w", cErr)}
	}
	committed = true
	return nil
}

// sharedTables returns the user tables present in both the live store and
// the attached snapshot, in deterministic order.
func sharedTables(ctx context.Context, conn *sql.Conn) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT m.name
		FROM main.sqlite_master m
		JOIN `+restoreAlias+`.sqlite_master s ON s.name = m.name
		WHERE m.type = 'table' AND s.type = 'table'
		  AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing shared tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// replaceTable empties the live table and reloads it from the snapshot.
// Only columns present on both sides are copied: a snapshot taken by an
// older application version simply leaves later-added columns at their
// defaults.
func replaceTable(ctx context.Context, tx *sql.Tx, table string) error {
	cols, err := sharedColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("table %s has no columns in common with the snapshot", table)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM main.`+quoteIdent(table)); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}

	colList := make([]string, len(cols))
	for i, c := range cols {
		colList[i] = quoteIdent(c)
	}
	list := strings.Join(colList, ", ")

	insert := fmt.Sprintf(
		"INSERT INTO main.%s (%s) SELECT %s FROM %s.%s",
		quoteIdent(table), list, list, restoreAlias, quoteIdent(table),
	)
	if _, err := tx.ExecContext(ctx, insert); err != nil {
		return fmt.Errorf("reloading %s: %w", table, err)
	}
	return nil
}

// sharedColumns returns the column names a table has in both the live
// store and the snapshot, in snapshot order.
func sharedColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	live, err := tableColumns(ctx, tx, table, "main")
	if err != nil {
		return nil, err
	}
	snap, err := tableColumns(ctx, tx, table, restoreAlias)
	if err != nil {
		return nil, err
	}

	liveSet := make(map[string]bool, len(live))
	for _, c := range live {
		liveSet[c] = true
	}

	var shared []string
	for _, c := range snap {
		if liveSet[c] {
			shared = append(shared, c)
		}
	}
	return shared, nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table, schema string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT name FROM pragma_table_info(?, ?) ORDER BY cid", table, schema,
	)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// replaceSequenceTable copies the snapshot's sqlite_sequence bookkeeping
// into the live store when both sides have one.
func replaceSequenceTable(ctx context.Context, tx *sql.Tx) error {
	for _, schema := range []string{"main", restoreAlias} {
		var count int
		query := fmt.Sprintf(
			"SELECT COUNT(*) FROM %s.sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'",
			schema,
		)
		if err := tx.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return fmt.Errorf("checking %s sequence table: %w", schema, err)
		}
		if count == 0 {
			return nil
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM main.sqlite_sequence"); err != nil {
		return fmt.Errorf("clearing sequence table: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO main.sqlite_sequence (name, seq) SELECT name, seq FROM "+restoreAlias+".sqlite_sequence",
	); err != nil {
		return fmt.Errorf("reloading sequence table: %w", err)
	}
	return nil
}

// quoteIdent quotes a SQL identifier. Table names come from sqlite_master,
// not from callers, but quoting keeps odd names safe.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
