// Package state persists learned per-job statistics in SQLite.
package state

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/job"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles persistence of job state
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates a new job state store over a migrated database
func NewStore(db *sql.DB, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = logger.Logger
	}
	return &Store{db: db, logger: log}
}

// Load returns the state of every job that has completed at least once.
func (s *Store) Load(ctx context.Context) (map[string]*job.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, avg_duration_seconds, last_run_at
		FROM job_state
		ORDER BY job_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query job state")
	}
	defer rows.Close()

	states := make(map[string]*job.State)
	skipped := 0
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			// one bad row must not cost every other job its cooldown
			skipped++
			s.logger.Warnw("Skipping malformed job state",
				logger.FieldJobID, st.JobID,
				logger.FieldError, err,
			)
			continue
		}
		states[st.JobID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate job state")
	}

	runs, err := s.db.QueryContext(ctx, `
		SELECT job_id, duration_seconds
		FROM job_runs
		ORDER BY job_id, id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query job runs")
	}
	defer runs.Close()

	for runs.Next() {
		var id string
		var seconds float64
		if err := runs.Scan(&id, &seconds); err != nil {
			skipped++
			s.logger.Warnw("Skipping malformed job run",
				logger.FieldJobID, id,
				logger.FieldError, err,
			)
			continue
		}
		if st, ok := states[id]; ok {
			st.History = append(st.History, secondsToDuration(seconds))
		}
	}
	if err := runs.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate job runs")
	}

	if skipped > 0 {
		s.logger.Warnw("Loaded job state with malformed rows",
			logger.FieldCount, len(states),
			"skipped", skipped,
		)
	}
	return states, nil
}

// Get returns the state of one job, or an error wrapping errors.ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*job.State, error) {
	return get(ctx, s.db, jobID)
}

// RecordCompletion appends a run of duration finished at completedAt, keeps
// the newest job.HistoryLimit runs, refreshes the average and last run time,
// all in one transaction.
func (s *Store) RecordCompletion(ctx context.Context, jobID string, duration time.Duration, completedAt time.Time) (*job.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() // no-op after commit

	st, err := get(ctx, tx, jobID)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			return nil, err
		}
		st = &job.State{JobID: jobID}
	}
	st.Record(duration, completedAt)

	stamp := completedAt.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_state (job_id, avg_duration_seconds, last_run_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			avg_duration_seconds = excluded.avg_duration_seconds,
			last_run_at = excluded.last_run_at,
			updated_at = excluded.updated_at
	`, jobID, st.AvgDuration.Seconds(), stamp, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, errors.Wrapf(err, "failed to upsert state for %s", jobID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_runs (job_id, duration_seconds, completed_at)
		VALUES (?, ?, ?)
	`, jobID, duration.Seconds(), stamp); err != nil {
		return nil, errors.Wrapf(err, "failed to append run for %s", jobID)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM job_runs
		WHERE job_id = ? AND id NOT IN (
			SELECT id FROM job_runs WHERE job_id = ? ORDER BY id DESC LIMIT ?
		)
	`, jobID, jobID, job.HistoryLimit); err != nil {
		return nil, errors.Wrapf(err, "failed to trim history for %s", jobID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "failed to commit state for %s", jobID)
	}

	s.logger.Debugw("Recorded completion",
		logger.FieldJobID, jobID,
		logger.FieldDurationMS, duration.Milliseconds(),
		"avg_duration", st.AvgDuration,
		"history", len(st.History),
	)
	return st, nil
}

// Reset forgets everything learned about a job. It reports whether a row existed.
// Runs are deleted explicitly rather than through the foreign key cascade.
func (s *Store) Reset(ctx context.Context, jobID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_runs WHERE job_id = ?`, jobID); err != nil {
		return false, errors.Wrapf(err, "failed to reset runs for %s", jobID)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM job_state WHERE job_id = ?`, jobID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to reset state for %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrapf(err, "failed to commit reset for %s", jobID)
	}
	return n > 0, nil
}

func get(ctx context.Context, q querier, jobID string) (*job.State, error) {
	row := q.QueryRowContext(ctx, `
		SELECT job_id, avg_duration_seconds, last_run_at
		FROM job_state
		WHERE job_id = ?
	`, jobID)
	st, err := scanState(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("job state %s", jobID)
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT duration_seconds FROM job_runs WHERE job_id = ? ORDER BY id
	`, jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query runs for %s", jobID)
	}
	defer rows.Close()
	for rows.Next() {
		var seconds float64
		if err := rows.Scan(&seconds); err != nil {
			return nil, errors.Wrap(err, "failed to scan job run")
		}
		st.History = append(st.History, secondsToDuration(seconds))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate job runs")
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanState reads one job_state row. On a parse failure the returned state
// still carries the job id, for logging.
func scanState(sc scanner) (*job.State, error) {
	var st job.State
	var avgSeconds float64
	var lastRun sql.NullString
	if err := sc.Scan(&st.JobID, &avgSeconds, &lastRun); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &st, err
		}
		return &st, errors.Wrap(err, "failed to scan job state")
	}
	st.AvgDuration = secondsToDuration(avgSeconds)
	if lastRun.Valid && lastRun.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastRun.String)
		if err != nil {
			return &st, errors.Wrapf(err, "invalid last_run_at for %s", st.JobID)
		}
		st.LastRunAt = &t
	}
	return &st, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
