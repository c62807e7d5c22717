package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueJob(ctx, Job{ID: "job-1", Type: "market_insight", PayloadJSON: `{"analysis_id":"a1"}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob(ctx, []string{"market_insight"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("ClaimNextJob returned nil, want job")
	}
	if job.ID != "job-1" {
		t.Errorf("ID = %q, want %q", job.ID, "job-1")
	}
	if job.Status != "running" {
		t.Errorf("Status = %q, want running", job.Status)
	}
	if job.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", job.MaxAttempts)
	}

	again, err := s.ClaimNextJob(ctx, []string{"market_insight"})
	if err != nil {
		t.Fatalf("second ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("second ClaimNextJob = %+v, want nil", again)
	}
}

func TestClaimNextJobRespectsTypeAndRunAfter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "other", Type: "other", PayloadJSON: "{}"})
	s.EnqueueJob(ctx, Job{ID: "later", Type: "market_insight", PayloadJSON: "{}", RunAfter: time.Now().Add(time.Hour)})

	job, err := s.ClaimNextJob(ctx, []string{"market_insight"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job != nil {
		t.Errorf("ClaimNextJob = %s, want nil", job.ID)
	}
}

func TestFailJobWithSingleAttemptIsTerminal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "j", Type: "market_insight", PayloadJSON: "{}"})
	if _, err := s.ClaimNextJob(ctx, []string{"market_insight"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob(ctx, "j", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	job, err := s.GetJob(ctx, "j")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "failed" {
		t.Errorf("Status = %q, want failed", job.Status)
	}
	if job.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", job.LastError)
	}
}

func TestFailJobReschedulesWhenAttemptsRemain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "j", Type: "t", PayloadJSON: "{}", MaxAttempts: 3})
	s.ClaimNextJob(ctx, []string{"t"})
	if err := s.FailJob(ctx, "j", "transient"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	job, _ := s.GetJob(ctx, "j")
	if job.Status != "pending" {
		t.Errorf("Status = %q, want pending", job.Status)
	}
	if !job.RunAfter.After(time.Now()) {
		t.Errorf("RunAfter = %v, want in the future", job.RunAfter)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "j", Type: "t", PayloadJSON: "{}"})
	if err := s.CompleteJob(ctx, "j"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if n, _ := s.CountJobs(ctx, "completed"); n != 1 {
		t.Errorf("completed jobs = %d, want 1", n)
	}
	if err := s.CompleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing) error = %v, want ErrNotFound", err)
	}
}

func TestReleaseJobReturnsClaimWithoutAttempt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "job-1", Type: "market_insight", PayloadJSON: "{}"})
	if _, err := s.ClaimNextJob(ctx, []string{"market_insight"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.ReleaseJob(ctx, "job-1"); err != nil {
		t.Fatalf("ReleaseJob: %v", err)
	}

	job, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "pending" || job.Attempts != 0 {
		t.Errorf("job = %s/%d attempts, want pending/0", job.Status, job.Attempts)
	}

	// A pending job is not held by anyone.
	if err := s.ReleaseJob(ctx, "job-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second ReleaseJob error = %v, want ErrNotFound", err)
	}
}

func TestRequeueRunningJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueJob(ctx, Job{ID: "stale", Type: "market_insight", PayloadJSON: "{}"})
	s.EnqueueJob(ctx, Job{ID: "done", Type: "market_insight", PayloadJSON: "{}"})
	for range 2 {
		if _, err := s.ClaimNextJob(ctx, []string{"market_insight"}); err != nil {
			t.Fatalf("ClaimNextJob: %v", err)
		}
	}
	if err := s.CompleteJob(ctx, "done"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	n, err := s.RequeueRunningJobs(ctx)
	if err != nil {
		t.Fatalf("RequeueRunningJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("requeued = %d, want 1", n)
	}

	job, err := s.ClaimNextJob(ctx, []string{"market_insight"})
	if err != nil {
		t.Fatalf("ClaimNextJob after requeue: %v", err)
	}
	if job == nil || job.ID != "stale" {
		t.Fatalf("claimed = %+v, want stale", job)
	}
	if completed, _ := s.CountJobs(ctx, "completed"); completed != 1 {
		t.Errorf("completed jobs = %d, want 1", completed)
	}
}
