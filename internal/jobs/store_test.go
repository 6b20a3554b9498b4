package jobs_test

import (
	"context"
	"testing"
	"time"

	"kiln/internal/jobs"
	"kiln/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.New(ctx, "tpl-runner-v3", jobs.TargetWeb, `{"lives":3}`)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.TemplateRef != "tpl-runner-v3" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
}

func TestNewRequiresTemplateRef(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.New(context.Background(), "", jobs.TargetWeb, ""); err == nil {
		t.Fatal("expected error when template ref missing")
	}
}

func TestUpdateRoundTripsResultRefs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.New(ctx, "tpl-puzzle", jobs.TargetWeb, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	now := time.Now().UTC()
	job.Status = jobs.StatusReady
	job.ResultRef = job.ID + "/web/index.html"
	job.WebArchiveRef = job.ID + "/web.zip"
	job.WebEntryRef = job.ID + "/web/index.html"
	job.CoverRef = job.ID + "/media/cover.png"
	job.SetScreenshotRefs([]string{job.ID + "/media/shot_01.png"})
	job.SetTimings(map[string]time.Duration{"build": 90 * time.Second})
	job.StartedAt = &now
	job.FinishedAt = &now
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.WebArchiveRef != job.WebArchiveRef {
		t.Fatalf("web archive ref lost: %q", fetched.WebArchiveRef)
	}
	if got := fetched.Timings()["build"]; got != 90*time.Second {
		t.Fatalf("timings lost: %v", got)
	}
	if refs := fetched.ScreenshotRefs(); len(refs) != 1 {
		t.Fatalf("screenshot refs lost: %v", refs)
	}
	if fetched.StartedAt == nil || fetched.FinishedAt == nil {
		t.Fatal("timestamps lost")
	}
}

func TestClearTargetRefsPreservesOtherTarget(t *testing.T) {
	job := &jobs.Job{
		WebArchiveRef:     "j/web.zip",
		WebEntryRef:       "j/web/index.html",
		AndroidPackageRef: "j/android/game.apk",
		ResultRef:         "j/web/index.html",
		CoverRef:          "j/media/cover.png",
	}
	job.ClearTargetRefs(jobs.TargetWeb)
	if job.WebArchiveRef != "" || job.WebEntryRef != "" {
		t.Fatal("expected web refs cleared")
	}
	if job.AndroidPackageRef != "j/android/game.apk" {
		t.Fatal("expected android ref preserved")
	}
	if job.ResultRef != "" || job.CoverRef != "" {
		t.Fatal("expected shared refs cleared")
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	queued, err := store.New(ctx, "tpl-a", jobs.TargetWeb, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	failed, err := store.New(ctx, "tpl-b", jobs.TargetAndroid, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	failed.SetFailed("engine crashed")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	list, err := store.List(ctx, jobs.StatusFailed)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != failed.ID {
		t.Fatalf("unexpected list: %#v", list)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}
	_ = queued
}

func TestResetStuckRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, err := store.New(ctx, "tpl-stuck", jobs.TargetWeb, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	job.Status = jobs.StatusRunning
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	affected, err := store.ResetStuckRunning(ctx)
	if err != nil {
		t.Fatalf("ResetStuckRunning failed: %v", err)
	}
	if affected != 1 {
		t.Fatalf("expected 1 affected, got %d", affected)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != jobs.StatusFailed || fetched.ErrorMessage != jobs.RestartReason {
		t.Fatalf("unexpected job after reset: %#v", fetched)
	}
}

func TestUpdateLastLogLine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job, err := store.New(ctx, "tpl-log", jobs.TargetWeb, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.UpdateLastLogLine(ctx, job.ID, "Compiling shaders 84%"); err != nil {
		t.Fatalf("UpdateLastLogLine failed: %v", err)
	}
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.LastLogLine != "Compiling shaders 84%" {
		t.Fatalf("unexpected last log line: %q", fetched.LastLogLine)
	}
}
