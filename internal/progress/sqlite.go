package progress

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteState keeps markers in a local SQLite database.
type SQLiteState struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS job_sessions (
	job        TEXT PRIMARY KEY,
	marker     TEXT NOT NULL,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_units (
	job          TEXT NOT NULL,
	unit         TEXT NOT NULL,
	marker       TEXT NOT NULL,
	completed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (job, unit)
);
`

// NewSQLite opens (and migrates) the database at dsn in WAL mode.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteState, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "progress: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "progress: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "progress: migrate sqlite")
	}
	return &SQLiteState{db: db}, nil
}

func (s *SQLiteState) Load(ctx context.Context, job string) (Snapshot, error) {
	snap := Snapshot{Job: job, Units: map[string]string{}}
	err := s.db.QueryRowContext(ctx, `SELECT marker FROM job_sessions WHERE job = ?`, job).Scan(&snap.Session)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, eris.Wrapf(err, "progress: load session %s", job)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT unit, marker FROM job_units WHERE job = ?`, job)
	if err != nil {
		return snap, eris.Wrapf(err, "progress: load units %s", job)
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var unit, marker string
		if err := rows.Scan(&unit, &marker); err != nil {
			return snap, eris.Wrap(err, "progress: scan unit")
		}
		snap.Units[unit] = marker
	}
	return snap, eris.Wrap(rows.Err(), "progress: iterate units")
}

func (s *SQLiteState) StartSession(ctx context.Context, job, marker string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_sessions (job, marker, started_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(job) DO UPDATE SET marker = excluded.marker, started_at = excluded.started_at`,
		job, marker,
	)
	return eris.Wrapf(err, "progress: start session %s", job)
}

func (s *SQLiteState) MarkUnit(ctx context.Context, job, unit, marker string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_units (job, unit, marker, completed_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT(job, unit) DO UPDATE SET marker = excluded.marker, completed_at = excluded.completed_at`,
		job, unit, marker,
	)
	return eris.Wrapf(err, "progress: mark %s/%s", job, unit)
}

func (s *SQLiteState) Clear(ctx context.Context, job string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "progress: begin clear")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_units WHERE job = ?`, job); err != nil {
		return eris.Wrapf(err, "progress: clear units %s", job)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_sessions WHERE job = ?`, job); err != nil {
		return eris.Wrapf(err, "progress: clear session %s", job)
	}
	return eris.Wrap(tx.Commit(), "progress: commit clear")
}

func (s *SQLiteState) Close() error {
	return s.db.Close()
}
