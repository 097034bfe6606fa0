package progress

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/race-sync/internal/db"
)

// PostgresState keeps markers in Postgres, for runs shared across hosts.
type PostgresState struct {
	pool db.Pool
}

// NewPostgres wraps pool. Call Migrate once before use.
func NewPostgres(pool db.Pool) *PostgresState {
	return &PostgresState{pool: pool}
}

// Migrate creates the schema and tables.
func (s *PostgresState) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE SCHEMA IF NOT EXISTS race_sync;
CREATE TABLE IF NOT EXISTS race_sync.job_sessions (
	job        TEXT PRIMARY KEY,
	marker     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS race_sync.job_units (
	job          TEXT NOT NULL,
	unit         TEXT NOT NULL,
	marker       TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job, unit)
);`)
	return eris.Wrap(err, "progress: migrate postgres")
}

func (s *PostgresState) Load(ctx context.Context, job string) (Snapshot, error) {
	snap := Snapshot{Job: job, Units: map[string]string{}}
	err := s.pool.QueryRow(ctx, `SELECT marker FROM race_sync.job_sessions WHERE job = $1`, job).Scan(&snap.Session)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return snap, eris.Wrapf(err, "progress: load session %s", job)
	}

	rows, err := s.pool.Query(ctx, `SELECT unit, marker FROM race_sync.job_units WHERE job = $1`, job)
	if err != nil {
		return snap, eris.Wrapf(err, "progress: load units %s", job)
	}
	defer rows.Close()
	for rows.Next() {
		var unit, marker string
		if err := rows.Scan(&unit, &marker); err != nil {
			return snap, eris.Wrap(err, "progress: scan unit")
		}
		snap.Units[unit] = marker
	}
	return snap, eris.Wrap(rows.Err(), "progress: iterate units")
}

func (s *PostgresState) StartSession(ctx context.Context, job, marker string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO race_sync.job_sessions (job, marker, started_at) VALUES ($1, $2, now())
		 ON CONFLICT (job) DO UPDATE SET marker = EXCLUDED.marker, started_at = EXCLUDED.started_at`,
		job, marker,
	)
	return eris.Wrapf(err, "progress: start session %s", job)
}

func (s *PostgresState) MarkUnit(ctx context.Context, job, unit, marker string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO race_sync.job_units (job, unit, marker, completed_at) VALUES ($1, $2, $3, now())
		 ON CONFLICT (job, unit) DO UPDATE SET marker = EXCLUDED.marker, completed_at = EXCLUDED.completed_at`,
		job, unit, marker,
	)
	return eris.Wrapf(err, "progress: mark %s/%s", job, unit)
}

func (s *PostgresState) Clear(ctx context.Context, job string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "progress: begin clear")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM race_sync.job_units WHERE job = $1`, job); err != nil {
		return eris.Wrapf(err, "progress: clear units %s", job)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM race_sync.job_sessions WHERE job = $1`, job); err != nil {
		return eris.Wrapf(err, "progress: clear session %s", job)
	}
	return eris.Wrap(tx.Commit(ctx), "progress: commit clear")
}

func (s *PostgresState) Close() error {
	s.pool.Close()
	return nil
}
