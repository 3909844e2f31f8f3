package statestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // postgres driver, registered via side effect
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver, registered via side effect

	"github.com/forgeflow/orchestrator/pkg/model"
)

// SQLIndex is an optional queryable mirror of audit records and error
// patterns. The canonical JSON files under Store's directory tree remain
// the source of truth; SQLIndex exists only so "list the last 50 audit
// records for change X" doesn't require scanning every file on disk.
type SQLIndex struct {
	db *sql.DB
}

// OpenSQLIndex opens a sqlite3 or postgres database at dsn and ensures
// its schema exists.
func OpenSQLIndex(driver, dsn string) (*SQLIndex, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("statestore: unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s index: %w", driver, err)
	}
	idx := &SQLIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *SQLIndex) migrate() error {
	_, err := i.db.Exec(`
CREATE TABLE IF NOT EXISTS audit_records (
	audit_id TEXT PRIMARY KEY,
	change_id TEXT NOT NULL,
	status TEXT NOT NULL,
	timestamp TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS error_patterns (
	pattern_hash TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	total_occurrences INTEGER NOT NULL,
	recent_occurrences INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("statestore: migrate sql index: %w", err)
	}
	return nil
}

// IndexAudit upserts a denormalized row for fast audit lookups by
// change id or status.
func (i *SQLIndex) IndexAudit(a model.AuditRecord) error {
	_, err := i.db.Exec(`
INSERT INTO audit_records (audit_id, change_id, status, timestamp)
VALUES ($1, $2, $3, $4)
ON CONFLICT (audit_id) DO UPDATE SET status = excluded.status
`, a.AuditID, a.ChangeID, string(a.Execution.Status), a.Timestamp.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("statestore: index audit %s: %w", a.AuditID, err)
	}
	return nil
}

// AuditsForChange returns every indexed audit id for a given change id,
// most recent first.
func (i *SQLIndex) AuditsForChange(changeID string) ([]string, error) {
	rows, err := i.db.Query(`SELECT audit_id FROM audit_records WHERE change_id = $1 ORDER BY timestamp DESC`, changeID)
	if err != nil {
		return nil, fmt.Errorf("statestore: query audits for change %s: %w", changeID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IndexErrorPattern upserts a denormalized row summarizing an error
// pattern's frequency counters.
func (i *SQLIndex) IndexErrorPattern(patternHash, category string, total, recent int) error {
	_, err := i.db.Exec(`
INSERT INTO error_patterns (pattern_hash, category, total_occurrences, recent_occurrences, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (pattern_hash) DO UPDATE SET
	total_occurrences = excluded.total_occurrences,
	recent_occurrences = excluded.recent_occurrences,
	updated_at = excluded.updated_at
`, patternHash, category, total, recent, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("statestore: index error pattern %s: %w", patternHash, err)
	}
	return nil
}

// TopErrorPatterns returns the limit most frequently occurring error
// pattern hashes, most frequent first.
func (i *SQLIndex) TopErrorPatterns(limit int) ([]string, error) {
	rows, err := i.db.Query(`SELECT pattern_hash FROM error_patterns ORDER BY total_occurrences DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("statestore: query top error patterns: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Close closes the underlying database handle.
func (i *SQLIndex) Close() error {
	return i.db.Close()
}
