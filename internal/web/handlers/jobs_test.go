package handlers

import (
	"context"
	"testing"
	"time"
)

func TestJobManager_CreateGetDelete(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(context.Background(), "job-1", ScanJobOptions{Paths: []string{"/photos"}})
	if job.GetStatus() != JobStatusPending {
		t.Errorf("expected pending, got %s", job.GetStatus())
	}
	if got := jm.GetJob("job-1"); got != job {
		t.Fatal("expected GetJob to return the created job")
	}
	if jm.GetJob("missing") != nil {
		t.Error("expected nil for unknown job")
	}

	jm.DeleteJob("job-1")
	if jm.GetJob("job-1") != nil {
		t.Error("expected job to be deleted")
	}
}

func TestJobManager_ListJobs_NewestFirst(t *testing.T) {
	jm := NewJobManager()
	older := jm.CreateJob(context.Background(), "older", ScanJobOptions{})
	newer := jm.CreateJob(context.Background(), "newer", ScanJobOptions{})
	older.StartedAt = time.Now().Add(-time.Minute)

	jobs := jm.ListJobs()
	if len(jobs) != 2 || jobs[0] != newer || jobs[1] != older {
		t.Fatalf("expected [newer older], got %d jobs", len(jobs))
	}
}

func TestScanJob_Cancel(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(context.Background(), "job-1", ScanJobOptions{})
	ch := job.AddListener()
	defer job.RemoveListener(ch)

	if !job.Cancel() {
		t.Fatal("expected first cancel to succeed")
	}
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", job.GetStatus())
	}
	if job.ctx.Err() == nil {
		t.Error("expected job context to be cancelled")
	}
	if job.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}

	select {
	case ev := <-ch:
		if ev.Type != "cancelled" {
			t.Errorf("expected cancelled event, got %q", ev.Type)
		}
	default:
		t.Error("expected a cancelled event")
	}

	if job.Cancel() {
		t.Error("expected second cancel to be a no-op")
	}
}

func TestJobManager_CancelAll(t *testing.T) {
	jm := NewJobManager()
	running := jm.CreateJob(context.Background(), "a", ScanJobOptions{})
	done := jm.CreateJob(context.Background(), "b", ScanJobOptions{})
	done.Status = JobStatusCompleted

	jm.CancelAll()

	if running.GetStatus() != JobStatusCancelled {
		t.Errorf("expected running job cancelled, got %s", running.GetStatus())
	}
	if done.GetStatus() != JobStatusCompleted {
		t.Errorf("expected completed job untouched, got %s", done.GetStatus())
	}
}

func TestEventBroadcaster(t *testing.T) {
	var b EventBroadcaster
	first := b.AddListener()
	second := b.AddListener()

	b.SendEvent(JobEvent{Type: "progress"})
	for i, ch := range []chan JobEvent{first, second} {
		if ev := <-ch; ev.Type != "progress" {
			t.Errorf("listener %d: expected progress, got %q", i, ev.Type)
		}
	}

	b.RemoveListener(first)
	if _, ok := <-first; ok {
		t.Error("expected removed listener to be closed")
	}

	b.SendEvent(JobEvent{Type: "completed"})
	if ev := <-second; ev.Type != "completed" {
		t.Errorf("expected completed, got %q", ev.Type)
	}
	b.RemoveListener(second)
}

func TestEventBroadcaster_FullBufferDropsEvents(t *testing.T) {
	var b EventBroadcaster
	ch := b.AddListener()
	defer b.RemoveListener(ch)

	for range cap(ch) + 10 {
		b.SendEvent(JobEvent{Type: "progress"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected buffer full at %d, got %d", cap(ch), len(ch))
	}
}
