package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// waitForStatus polls a job until it reaches the wanted status or the
// deadline expires. Worker goroutines finish quickly, so a short poll keeps
// the tests fast without sleeping a fixed amount.
func waitForStatus(t *testing.T, job *Job, want Status) JobView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view := job.Snapshot()
		if view.Status == want {
			return view
		}
		if view.Status.Terminal() {
			t.Fatalf("job reached terminal status %q while waiting for %q (error=%q)", view.Status, want, view.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached status %q, last seen %q", want, job.Snapshot().Status)
	return JobView{}
}

func TestJobLifecycleSucceeds(t *testing.T) {
	registry := NewRegistry(nil)

	job := registry.Create(context.Background(), KindBacktest, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		job.AppendLog("working")
		return map[string]interface{}{"trades": 3}, nil
	})

	if job.ID() == "" {
		t.Fatalf("expected a generated job id")
	}
	if job.Kind() != KindBacktest {
		t.Fatalf("expected kind %q, got %q", KindBacktest, job.Kind())
	}

	view := waitForStatus(t, job, StatusSucceeded)
	if view.Result == nil {
		t.Fatalf("succeeded job must carry a result object")
	}
	if got, ok := view.Result["trades"].(int); !ok || got != 3 {
		t.Fatalf("expected result trades=3, got %v", view.Result["trades"])
	}
	if view.Error != "" {
		t.Fatalf("succeeded job must not carry an error, got %q", view.Error)
	}
	if len(view.Logs) != 1 || view.Logs[0] != "working" {
		t.Fatalf("expected single log line, got %v", view.Logs)
	}
	if view.CreatedTS <= 0 || view.UpdatedTS < view.CreatedTS {
		t.Fatalf("timestamps out of order: created=%d updated=%d", view.CreatedTS, view.UpdatedTS)
	}

	if _, ok := registry.Get(job.ID()); !ok {
		t.Fatalf("job missing from registry")
	}
	if _, ok := registry.Get("no-such-id"); ok {
		t.Fatalf("unknown id must not resolve")
	}
}

func TestJobFailureRecordsError(t *testing.T) {
	registry := NewRegistry(nil)

	job := registry.Create(context.Background(), KindDownloadData, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		return nil, errors.New("engine exited with code 2")
	})

	view := waitForStatus(t, job, StatusFailed)
	if view.Error != "engine exited with code 2" {
		t.Fatalf("expected failure message, got %q", view.Error)
	}
	if view.Result != nil {
		t.Fatalf("failed job must not carry a result")
	}
}

func TestJobNilResultIsFailure(t *testing.T) {
	registry := NewRegistry(nil)

	job := registry.Create(context.Background(), KindRefine, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		return nil, nil
	})

	view := waitForStatus(t, job, StatusFailed)
	if view.Error != "job returned no result object" {
		t.Fatalf("expected nil result rejection, got %q", view.Error)
	}
}

func TestJobPanicIsRecovered(t *testing.T) {
	registry := NewRegistry(nil)

	job := registry.Create(context.Background(), KindScenarioAnalysis, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		panic("boom")
	})

	view := waitForStatus(t, job, StatusFailed)
	if !strings.Contains(view.Error, "job panicked") || !strings.Contains(view.Error, "boom") {
		t.Fatalf("expected panic message, got %q", view.Error)
	}
}

func TestAppendLogNormalization(t *testing.T) {
	job := newJob("test-id", KindBacktest)

	job.AppendLog("first line\n")
	job.AppendLog("")
	job.AppendLog("\n")
	job.AppendLog("second line")

	view := job.Snapshot()
	if len(view.Logs) != 2 {
		t.Fatalf("expected 2 log lines, got %v", view.Logs)
	}
	if view.Logs[0] != "first line" {
		t.Fatalf("trailing newline must be stripped, got %q", view.Logs[0])
	}
	if view.Logs[1] != "second line" {
		t.Fatalf("unexpected second line %q", view.Logs[1])
	}

	job.mu.Lock()
	job.updatedTS = 0
	job.mu.Unlock()
	job.AppendLog("third line")
	if job.Snapshot().UpdatedTS == 0 {
		t.Fatalf("append must bump updated_ts")
	}
}

func TestSubscribeStreamsLogsAndClosesOnTerminal(t *testing.T) {
	registry := NewRegistry(nil)
	release := make(chan struct{})

	job := registry.Create(context.Background(), KindBacktest, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		<-release
		return map[string]interface{}{"ok": true}, nil
	})
	waitForStatus(t, job, StatusRunning)

	view, stream, cancel := job.Subscribe(8)
	defer cancel()
	if len(view.Logs) != 0 {
		t.Fatalf("expected empty backlog, got %d lines", len(view.Logs))
	}

	job.AppendLog("line one")
	job.AppendLog("line two\n")

	for _, want := range []string{"line one", "line two"} {
		select {
		case got := <-stream:
			if got != want {
				t.Fatalf("expected streamed line %q, got %q", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for streamed line %q", want)
		}
	}

	close(release)
	waitForStatus(t, job, StatusSucceeded)

	select {
	case _, open := <-stream:
		if open {
			t.Fatalf("expected stream to close after terminal status")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream never closed after job completed")
	}
}

func TestSubscribeAfterTerminalReturnsClosedChannel(t *testing.T) {
	registry := NewRegistry(nil)

	job := registry.Create(context.Background(), KindBacktest, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	waitForStatus(t, job, StatusSucceeded)

	view, stream, cancel := job.Subscribe(1)
	if view.Status != StatusSucceeded {
		t.Fatalf("expected terminal snapshot, got status %q", view.Status)
	}
	if _, open := <-stream; open {
		t.Fatalf("subscription on a finished job must be closed immediately")
	}
	cancel()
	cancel()
}

func TestSubscribeCancelDetaches(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	registry := NewRegistry(nil)
	job := registry.Create(context.Background(), KindBacktest, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		<-release
		return map[string]interface{}{"ok": true}, nil
	})
	waitForStatus(t, job, StatusRunning)

	_, stream, cancel := job.Subscribe(1)
	cancel()
	if _, open := <-stream; open {
		t.Fatalf("cancel must close the stream")
	}
	cancel()

	job.AppendLog("after cancel")
	if got := len(job.Snapshot().Logs); got != 1 {
		t.Fatalf("log append after cancel must still record, got %d lines", got)
	}
}

func TestPruneRemovesOnlyStaleTerminalJobs(t *testing.T) {
	registry := NewRegistry(nil)
	release := make(chan struct{})
	defer close(release)

	done := registry.Create(context.Background(), KindBacktest, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})
	waitForStatus(t, done, StatusSucceeded)

	running := registry.Create(context.Background(), KindRefine, func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		<-release
		return map[string]interface{}{"ok": true}, nil
	})
	waitForStatus(t, running, StatusRunning)

	done.mu.Lock()
	done.updatedTS = time.Now().Add(-2 * time.Hour).Unix()
	done.mu.Unlock()

	if removed := registry.Prune(time.Hour); removed != 1 {
		t.Fatalf("expected 1 pruned job, got %d", removed)
	}
	if _, ok := registry.Get(done.ID()); ok {
		t.Fatalf("stale finished job must be pruned")
	}
	if _, ok := registry.Get(running.ID()); !ok {
		t.Fatalf("running job must survive pruning")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected 1 remaining job, got %d", registry.Len())
	}
}

func TestListNewestFirst(t *testing.T) {
	registry := NewRegistry(nil)

	for _, entry := range []struct {
		id string
		ts int64
	}{
		{id: "a-old", ts: 100},
		{id: "b-new", ts: 200},
		{id: "a-new", ts: 200},
	} {
		job := newJob(entry.id, KindBacktest)
		job.createdTS = entry.ts
		registry.mu.Lock()
		registry.jobs[job.id] = job
		registry.mu.Unlock()
	}

	views := registry.List()
	if len(views) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(views))
	}
	wantOrder := []string{"b-new", "a-new", "a-old"}
	for i, want := range wantOrder {
		if views[i].ID != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, views[i].ID)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusQueued.Terminal() || StatusRunning.Terminal() {
		t.Fatalf("queued and running are not terminal")
	}
	if !StatusSucceeded.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("succeeded and failed are terminal")
	}
}
