package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"vpo/internal/catalog"
	"vpo/internal/services"
	"vpo/internal/testsupport"
)

func TestClaimJobHonorsPriorityThenAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	low := testsupport.NewJob(t, store, 0, "/library/low.mkv")
	high, err := store.NewJob(ctx, &catalog.Job{
		Type:     catalog.JobTypeProcess,
		FilePath: "/library/high.mkv",
		Priority: 10,
	})
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}

	claimed, err := store.ClaimJob(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if claimed == nil || claimed.ID != high.ID {
		t.Fatalf("expected high-priority job first, got %#v", claimed)
	}
	if claimed.Status != catalog.JobStatusRunning || claimed.WorkerID != "worker-1" {
		t.Fatalf("claim must mark running with worker, got %#v", claimed)
	}
	if claimed.StartedAt == nil {
		t.Fatal("claim must stamp started_at")
	}

	second, err := store.ClaimJob(ctx, "worker-2")
	if err != nil {
		t.Fatalf("second ClaimJob failed: %v", err)
	}
	if second == nil || second.ID != low.ID {
		t.Fatalf("expected remaining job, got %#v", second)
	}

	empty, err := store.ClaimJob(ctx, "worker-3")
	if err != nil {
		t.Fatalf("empty ClaimJob failed: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil on empty queue, got %#v", empty)
	}
}

func TestJobLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, 0, "/library/a.mkv")
	claimed, err := store.ClaimJob(ctx, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimJob failed: %v %#v", err, claimed)
	}

	if err := store.UpdateJobProgress(ctx, claimed.ID, 42.5, "transcoding"); err != nil {
		t.Fatalf("UpdateJobProgress failed: %v", err)
	}
	fetched, err := store.JobByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("JobByID failed: %v", err)
	}
	if fetched.ProgressPercent != 42.5 || fetched.ProgressMessage != "transcoding" {
		t.Fatalf("unexpected progress: %#v", fetched)
	}

	if err := store.CompleteJob(ctx, claimed.ID, `{"changes":3}`, "/library/a.mkv"); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	fetched, err = store.JobByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("JobByID after complete: %v", err)
	}
	if fetched.Status != catalog.JobStatusCompleted || fetched.FinishedAt == nil {
		t.Fatalf("expected terminal completed job, got %#v", fetched)
	}
	if fetched.SummaryJSON != `{"changes":3}` || fetched.OutputPath != "/library/a.mkv" {
		t.Fatalf("expected summary recorded, got %#v", fetched)
	}

	if err := store.CompleteJob(ctx, claimed.ID, "", ""); err == nil {
		t.Fatal("completing a terminal job must fail")
	}
}

func TestFailJobRecordsClass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, 0, "/library/a.mkv")
	claimed, err := store.ClaimJob(ctx, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}

	if err := store.FailJob(ctx, claimed.ID, "mkvmerge exited 2", string(services.ClassPermanent)); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	fetched, err := store.JobByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("JobByID failed: %v", err)
	}
	if fetched.Status != catalog.JobStatusFailed || fetched.ErrorClass != "permanent" {
		t.Fatalf("unexpected failed job: %#v", fetched)
	}

	retried, err := store.RetryJobs(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("RetryJobs failed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected one retried job, got %d", retried)
	}
	fetched, err = store.JobByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("JobByID after retry: %v", err)
	}
	if fetched.Status != catalog.JobStatusQueued || fetched.ErrorMessage != "" || fetched.WorkerID != "" {
		t.Fatalf("retry must reset job, got %#v", fetched)
	}
}

func TestCancelJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	queued := testsupport.NewJob(t, store, 0, "/library/a.mkv")
	cancelled, err := store.CancelJob(ctx, queued.ID)
	if err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}
	if !cancelled {
		t.Fatal("expected queued job to cancel")
	}

	fetched, err := store.JobByID(ctx, queued.ID)
	if err != nil {
		t.Fatalf("JobByID failed: %v", err)
	}
	if fetched.Status != catalog.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %q", fetched.Status)
	}

	again, err := store.CancelJob(ctx, queued.ID)
	if err != nil {
		t.Fatalf("second CancelJob failed: %v", err)
	}
	if again {
		t.Fatal("terminal job must not cancel twice")
	}
}

func TestResolveJobID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, 0, "/library/a.mkv")

	resolved, err := store.ResolveJobID(ctx, job.ID)
	if err != nil {
		t.Fatalf("full id resolve failed: %v", err)
	}
	if resolved.ID != job.ID {
		t.Fatalf("resolved wrong job: %s", resolved.ID)
	}

	resolved, err = store.ResolveJobID(ctx, job.ID[:8])
	if err != nil {
		t.Fatalf("prefix resolve failed: %v", err)
	}
	if resolved.ID != job.ID {
		t.Fatalf("prefix resolved wrong job: %s", resolved.ID)
	}

	if _, err := store.ResolveJobID(ctx, job.ID[:4]); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("short prefix must be rejected, got %v", err)
	}
	if _, err := store.ResolveJobID(ctx, "ffffffff"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown prefix must be not found, got %v", err)
	}
}

func TestReclaimStaleJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, 0, "/library/a.mkv")
	claimed, err := store.ClaimJob(ctx, "worker-dead")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}

	reclaimed, err := store.ReclaimStaleJobs(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleJobs failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaimed job, got %d", reclaimed)
	}

	fetched, err := store.JobByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("JobByID failed: %v", err)
	}
	if fetched.Status != catalog.JobStatusQueued || fetched.WorkerID != "" {
		t.Fatalf("expected requeued job, got %#v", fetched)
	}
}

func TestPurgeFinishedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, 0, "/library/a.mkv")
	claimed, err := store.ClaimJob(ctx, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if err := store.CompleteJob(ctx, claimed.ID, "", ""); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	alive := testsupport.NewJob(t, store, 0, "/library/b.mkv")

	purged, err := store.PurgeFinishedJobs(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeFinishedJobs failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one purged job, got %d", purged)
	}

	remaining, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != alive.ID {
		t.Fatalf("queued job must survive purge: %#v", remaining)
	}
}

func TestCountJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, 0, "/library/a.mkv")
	testsupport.NewJob(t, store, 0, "/library/b.mkv")
	claimed, err := store.ClaimJob(ctx, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}

	counts, err := store.CountJobs(ctx)
	if err != nil {
		t.Fatalf("CountJobs failed: %v", err)
	}
	if counts.Queued != 1 || counts.Running != 1 || counts.Total() != 2 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}

func TestOperationsForJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	file := testsupport.NewFile(t, store, "/library/a.mkv")
	job := testsupport.NewJob(t, store, file.ID, file.Path)

	opID, err := store.BeginOperation(ctx, job.ID, file.ID, "set_track_flags", `{"track":1}`)
	if err != nil {
		t.Fatalf("BeginOperation failed: %v", err)
	}
	if err := store.FinishOperation(ctx, opID, catalog.OperationStatusCompleted, ""); err != nil {
		t.Fatalf("FinishOperation failed: %v", err)
	}

	ops, err := store.OperationsForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("OperationsForJob failed: %v", err)
	}
	if len(ops) != 1 || ops[0].Status != catalog.OperationStatusCompleted || ops[0].FinishedAt == nil {
		t.Fatalf("unexpected operations: %#v", ops)
	}
}
