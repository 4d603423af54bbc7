package cron

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewJob(t *testing.T) {
	job := NewJob("cleanup", Schedule{Kind: KindCron, Expr: "0 0 4 * * *"}, Payload{Kind: PayloadMemoryCleanup})
	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if job.Name != "cleanup" {
		t.Errorf("name = %q, want cleanup", job.Name)
	}
	if !job.Enabled {
		t.Error("job should be enabled by default")
	}
	if job.Payload.Kind != PayloadMemoryCleanup {
		t.Errorf("payload kind = %q", job.Payload.Kind)
	}
}

func TestService_AddAndListJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	s := NewService(path)

	job, err := s.AddJob("snapshot", Schedule{Kind: KindEvery, EveryMs: 60000}, Payload{Kind: PayloadCountingSnapshot})
	if err != nil {
		t.Fatalf("AddJob error: %v", err)
	}
	if job.Name != "snapshot" {
		t.Errorf("name = %q", job.Name)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "snapshot" {
		t.Fatalf("jobs = %+v", jobs)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var stored []Job
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != job.ID {
		t.Errorf("stored = %+v", stored)
	}
}

func TestService_EnsureJobIsIdempotent(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	first, err := s.EnsureJob("cleanup", Schedule{Kind: KindCron, Expr: "0 0 4 * * *"}, Payload{Kind: PayloadMemoryCleanup})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.EnsureJob("cleanup", Schedule{Kind: KindCron, Expr: "0 0 4 * * *"}, Payload{Kind: PayloadMemoryCleanup})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Error("EnsureJob created a duplicate")
	}
	if len(s.ListJobs()) != 1 {
		t.Errorf("jobs = %d, want 1", len(s.ListJobs()))
	}
}

func TestService_RemoveJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	job, err := s.AddJob("gone", Schedule{Kind: KindEvery, EveryMs: 1000}, Payload{})
	if err != nil {
		t.Fatal(err)
	}

	if !s.RemoveJob(job.ID) {
		t.Error("RemoveJob returned false for existing job")
	}
	if s.RemoveJob(job.ID) {
		t.Error("RemoveJob returned true for removed job")
	}
	if len(s.ListJobs()) != 0 {
		t.Error("job still listed")
	}
}

func TestService_EnableJob(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	job, err := s.AddJob("toggle", Schedule{Kind: KindEvery, EveryMs: 1000}, Payload{})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := s.EnableJob(job.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Enabled {
		t.Error("job still enabled")
	}

	if _, err := s.EnableJob("missing", true); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestService_IntervalJobFires(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	var runs atomic.Int32
	s.OnJob = func(job Job) (string, error) {
		runs.Add(1)
		return "ok", nil
	}

	if _, err := s.AddJob("fast", Schedule{Kind: KindEvery, EveryMs: 100}, Payload{Kind: PayloadMemoryCleanup}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("interval job never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestService_OneShotJobDisablesItself(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))

	var runs atomic.Int32
	s.OnJob = func(job Job) (string, error) {
		runs.Add(1)
		return "ok", nil
	}

	if _, err := s.AddJob("once", Schedule{Kind: KindAt, AtMs: time.Now().UnixMilli() - 1000}, Payload{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("one-shot job never fired")
		case <-time.After(50 * time.Millisecond):
		}
	}

	time.Sleep(1500 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("one-shot ran %d times", got)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Enabled {
		t.Errorf("one-shot not disabled: %+v", jobs)
	}
}

func TestService_ErrorRecordedInState(t *testing.T) {
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"))
	s.OnJob = func(job Job) (string, error) {
		return "", context.DeadlineExceeded
	}

	job, err := s.AddJob("failing", Schedule{Kind: KindEvery, EveryMs: 100}, Payload{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.After(5 * time.Second)
	for {
		jobs := s.ListJobs()
		if len(jobs) == 1 && jobs[0].ID == job.ID && jobs[0].State.LastStatus == "error" {
			if jobs[0].State.LastError == "" {
				t.Error("last_error empty")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("error state never recorded")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestService_LoadsExistingJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	first := NewService(path)
	if _, err := first.AddJob("persisted", Schedule{Kind: KindCron, Expr: "0 0 4 * * *"}, Payload{Kind: PayloadMemoryCleanup}); err != nil {
		t.Fatal(err)
	}

	second := NewService(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := second.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer second.Stop()

	jobs := second.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "persisted" {
		t.Errorf("jobs = %+v", jobs)
	}
}
