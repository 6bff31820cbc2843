package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpungsan/venvkeep/internal/errors"
)

// Run is one persisted execution summary.
type Run struct {
	ID               string
	Kind             string // "execute", "restore", "migrate", "install_missing"
	Interpreter      string
	Mirror           string
	SucceededCount   int
	FailedCount      int
	UninstalledCount int
	SkippedCount     int
	Cancelled        bool
	StartedAt        int64
	FinishedAt       int64
}

// RunFailure is one failed item of a run, in execution order.
type RunFailure struct {
	Spec   string
	Reason string
}

// Interpreter is one remembered interpreter path.
type Interpreter struct {
	Path       string
	PipVersion string
	UseCount   int
	LastUsedAt int64
}

// LoadScanCache returns manifest paths previously verified as satisfied
// for root under interpreter.
func LoadScanCache(ctx context.Context, db *sql.DB, root, interpreter string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT path FROM scan_cache
		WHERE root = ? AND interpreter = ?
		ORDER BY path
	`, root, interpreter)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.NewInternal(err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return paths, nil
}

// SaveScanCache replaces the verified set for root under interpreter.
func SaveScanCache(ctx context.Context, db *sql.DB, root, interpreter string, paths []string, verifiedAt int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_cache WHERE root = ? AND interpreter = ?`, root, interpreter); err != nil {
		return errors.NewInternal(err)
	}
	for _, p := range paths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scan_cache (root, interpreter, path, verified_at) VALUES (?, ?, ?, ?)
		`, root, interpreter, p, verifiedAt); err != nil {
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ClearScanCache drops cached scan results for an interpreter.
// An empty root clears every root.
func ClearScanCache(ctx context.Context, db *sql.DB, root, interpreter string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if root == "" {
		res, err = db.ExecContext(ctx, `DELETE FROM scan_cache WHERE interpreter = ?`, interpreter)
	} else {
		res, err = db.ExecContext(ctx, `DELETE FROM scan_cache WHERE root = ? AND interpreter = ?`, root, interpreter)
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// TouchInterpreter records a use of an interpreter path.
// pipVersion is only overwritten when non-empty.
func TouchInterpreter(ctx context.Context, db *sql.DB, path, pipVersion string, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO interpreters (path, pip_version, use_count, last_used_at)
		VALUES (?, NULLIF(?, ''), 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			use_count = use_count + 1,
			last_used_at = excluded.last_used_at,
			pip_version = COALESCE(excluded.pip_version, interpreters.pip_version)
	`, path, pipVersion, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListInterpreters returns remembered interpreters, most recently used first.
func ListInterpreters(ctx context.Context, db *sql.DB, limit int) ([]Interpreter, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT path, COALESCE(pip_version, ''), use_count, last_used_at
		FROM interpreters
		ORDER BY last_used_at DESC, path
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	items := []Interpreter{}
	for rows.Next() {
		var it Interpreter
		if err := rows.Scan(&it.Path, &it.PipVersion, &it.UseCount, &it.LastUsedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return items, nil
}

// InsertRun stores a run and its failed items atomically.
func InsertRun(ctx context.Context, db *sql.DB, r *Run, failures []RunFailure) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, kind, interpreter, mirror,
			succeeded_count, failed_count, uninstalled_count, skipped_count,
			cancelled, started_at, finished_at
		) VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Kind, r.Interpreter, r.Mirror,
		r.SucceededCount, r.FailedCount, r.UninstalledCount, r.SkippedCount,
		boolToInt(r.Cancelled), r.StartedAt, r.FinishedAt)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("insert run: %w", err))
	}

	for i, f := range failures {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_failures (run_id, seq, spec, reason) VALUES (?, ?, ?, ?)
		`, r.ID, i, f.Spec, f.Reason); err != nil {
			return errors.NewInternal(fmt.Errorf("insert run failure: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func ListRuns(ctx context.Context, db *sql.DB, limit, offset int) ([]Run, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return runs, total, nil
}

// GetRunFailures returns a run's failed items in execution order.
func GetRunFailures(ctx context.Context, db *sql.DB, runID string) ([]RunFailure, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT spec, reason FROM run_failures WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	failures := []RunFailure{}
	for rows.Next() {
		var f RunFailure
		if err := rows.Scan(&f.Spec, &f.Reason); err != nil {
			return nil, errors.NewInternal(err)
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return failures, nil
}

// DeleteRunsBefore purges runs that started before cutoff. Failures cascade.
func DeleteRunsBefore(ctx context.Context, db *sql.DB, cutoff int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const runColumns = `id, kind, interpreter, COALESCE(mirror, ''),
	succeeded_count, failed_count, uninstalled_count, skipped_count,
	cancelled, started_at, finished_at`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var cancelled int
	err := row.Scan(&r.ID, &r.Kind, &r.Interpreter, &r.Mirror,
		&r.SucceededCount, &r.FailedCount, &r.UninstalledCount, &r.SkippedCount,
		&cancelled, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	r.Cancelled = cancelled != 0
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
