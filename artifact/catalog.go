package artifact

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Catalog is a SQLite-backed discovery index over sealed runs. It is purely
// an accelerator: the run directory described in the on-disk layout remains
// the single source of truth, and a missing or corrupt catalog file never
// prevents Load from reading a run directory directly.
type Catalog struct {
	db *sql.DB
}

// CatalogEntry is one indexed run.
type CatalogEntry struct {
	RunID             string
	Dir               string
	Status            Status
	TerminationReason TerminationReason
	Truncated         bool
	CreatedAt         time.Time
}

// OpenCatalog opens (creating if needed) a catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("artifact: create catalog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("artifact: open catalog: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("artifact: catalog pragma %q: %w", pragma, err)
		}
	}
	const schema = `
		CREATE TABLE IF NOT EXISTS runs (
			run_id             TEXT PRIMARY KEY,
			dir                TEXT NOT NULL,
			status             TEXT NOT NULL,
			termination_reason TEXT,
			truncated          INTEGER NOT NULL DEFAULT 0,
			created_at         TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("artifact: catalog migrate: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database connection.
func (c *Catalog) Close() error { return c.db.Close() }

// Index upserts the catalog entry for a sealed run, reading its terminal
// metadata from disk.
func (c *Catalog) Index(runDir string) error {
	meta, err := readMeta(runDir)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		`INSERT INTO runs (run_id, dir, status, termination_reason, truncated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   dir = excluded.dir,
		   status = excluded.status,
		   termination_reason = excluded.termination_reason,
		   truncated = excluded.truncated,
		   created_at = excluded.created_at`,
		meta.RunID, runDir, string(meta.Status), string(meta.TerminationReason),
		// Fixed-width UTC timestamps so List's text ORDER BY is chronological.
		meta.Truncated, meta.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("artifact: catalog index: %w", err)
	}
	return nil
}

// List returns catalog entries, optionally filtered by status, newest first.
func (c *Catalog) List(status Status) ([]CatalogEntry, error) {
	query := `SELECT run_id, dir, status, ifnull(termination_reason, ''), truncated, created_at FROM runs`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("artifact: catalog list: %w", err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var statusStr, reasonStr, createdStr string
		if err := rows.Scan(&e.RunID, &e.Dir, &statusStr, &reasonStr, &e.Truncated, &createdStr); err != nil {
			return nil, fmt.Errorf("artifact: catalog scan: %w", err)
		}
		e.Status = Status(statusStr)
		e.TerminationReason = TerminationReason(reasonStr)
		if t, err := time.Parse(time.RFC3339Nano, createdStr); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
