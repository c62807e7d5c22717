package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type jobRow struct {
	ID          string         `db:"id"`
	Type        string         `db:"type"`
	PayloadJSON string         `db:"payload_json"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	RunAfter    string         `db:"run_after"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	LastError   sql.NullString `db:"last_error"`
}

func (r jobRow) toJob() (*Job, error) {
	j := &Job{
		ID:          r.ID,
		Type:        r.Type,
		PayloadJSON: r.PayloadJSON,
		Status:      r.Status,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		LastError:   r.LastError.String,
	}
	var err error
	if j.RunAfter, err = parseTime(r.RunAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", r.ID, err)
	}
	if j.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", r.ID, err)
	}
	if j.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", r.ID, err)
	}
	return j, nil
}

const jobColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error`

// EnqueueJob inserts a pending job. MaxAttempts defaults to 1: jobs are not
// retried unless the caller asks for it.
func (s *Store) EnqueueJob(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := formatTime(time.Now())
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = formatTime(job.RunAfter)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`),
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	if err != nil {
		return fmt.Errorf("enqueueing %s job: %w", job.Type, err)
	}
	return nil
}

// ClaimNextJob atomically moves the oldest runnable job of one of the given
// types to "running" and returns it. Returns nil, nil when nothing is runnable.
func (s *Store) ClaimNextJob(ctx context.Context, types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := formatTime(time.Now())
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	var r jobRow
	err = tx.GetContext(ctx, &r, tx.Rebind(query), args...)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`), now, r.ID)
	if err != nil {
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	r.Status = "running"
	r.UpdatedAt = now
	return r.toJob()
}

func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var r jobRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toJob()
}

func (s *Store) CompleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. Once attempts reach max_attempts the job
// is marked failed; otherwise it is rescheduled with exponential backoff.
func (s *Store) FailJob(ctx context.Context, id string, errMsg string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var counts struct {
		Attempts    int `db:"attempts"`
		MaxAttempts int `db:"max_attempts"`
	}
	err = tx.GetContext(ctx, &counts, tx.Rebind(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`), id)
	if isNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now()
	attempts := counts.Attempts + 1

	if attempts >= counts.MaxAttempts {
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`),
			attempts, errMsg, formatTime(now), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`),
			attempts, errMsg, formatTime(now.Add(backoff)), formatTime(now), id)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ReleaseJob hands a claimed job back to the queue without counting an
// attempt. The worker uses it when it stops in the middle of a job.
func (s *Store) ReleaseJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE jobs SET status = 'pending', updated_at = ? WHERE id = ? AND status = 'running'`), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("releasing job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueRunningJobs moves every "running" job back to "pending". Call it
// before a worker starts: a running row at that point was left behind by a
// process that exited mid-job.
func (s *Store) RequeueRunningJobs(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE jobs SET status = 'pending', updated_at = ? WHERE status = 'running'`), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("requeueing running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// CountJobs returns the number of jobs in the given status.
func (s *Store) CountJobs(ctx context.Context, status string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM jobs WHERE status = ?`), status); err != nil {
		return 0, err
	}
	return n, nil
}
