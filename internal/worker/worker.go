// Package worker drains the durable job queue off the request path.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Bharath-code/deckslayer/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	ReleaseJob(ctx context.Context, id string) error
}

// Handler processes one claimed job. A returned error marks the job failed.
type Handler func(ctx context.Context, job *storage.Job) error

// Worker claims jobs of its registered types and runs their handlers one at a
// time.
type Worker struct {
	store    JobStore
	handlers map[string]Handler
	poll     time.Duration
	observe  func(jobType, outcome string)
	logger   *slog.Logger
}

// NewWorker creates a Worker with no handlers.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]Handler),
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Handle registers h for jobType. Call before Run.
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// SetObserver installs a callback receiving each job's type and outcome
// ("completed", "failed" or "released").
func (w *Worker) SetObserver(fn func(jobType, outcome string)) {
	w.observe = fn
}

func (w *Worker) types() []string {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if len(w.handlers) == 0 {
		return false, nil
	}
	job, err := w.store.ClaimNextJob(ctx, w.types())
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.handlers[job.Type](ctx, job); err != nil {
		if ctx.Err() != nil {
			// Stopped mid-job: the job goes back to the queue for the next
			// process instead of burning its only attempt.
			w.logger.Info("releasing interrupted job", "job_id", job.ID, "type", job.Type)
			w.record(job.Type, "released")
			if relErr := w.store.ReleaseJob(context.WithoutCancel(ctx), job.ID); relErr != nil {
				w.logger.Error("failed to release job", "job_id", job.ID, "error", relErr)
			}
			return true, nil
		}
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "error", err)
		w.record(job.Type, "failed")
		// The claim is settled even if ctx was cancelled mid-job.
		if failErr := w.store.FailJob(context.WithoutCancel(ctx), job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	w.record(job.Type, "completed")
	if err := w.store.CompleteJob(context.WithoutCancel(ctx), job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) record(jobType, outcome string) {
	if w.observe != nil {
		w.observe(jobType, outcome)
	}
}
