package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnforceRetention(t *testing.T) {
	st, dir := newTestEnv(t)
	m := NewManager(st, dir)
	ctx := context.Background()

	names := []string{"first.db", "second.db", "third.db", "fourth.db"}
	for i, name := range names {
		if _, err := m.Create(ctx, name); err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		ts := time.Now().Add(time.Duration(i-len(names)) * time.Hour)
		if err := os.Chtimes(filepath.Join(dir, name), ts, ts); err != nil {
			t.Fatalf("adjusting mtime: %v", err)
		}
	}

	s := NewScheduler(m, SchedulerConfig{Retain: 2})
	if err := s.EnforceRetention(ctx); err != nil {
		t.Fatalf("EnforceRetention failed: %v", err)
	}

	snapshots, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots after pruning, got %d", len(snapshots))
	}
	if snapshots[0].FileName != "fourth.db" || snapshots[1].FileName != "third.db" {
		t.Errorf("pruned the wrong snapshots: %v", snapshots)
	}
}

func TestEnforceRetentionDisabled(t *testing.T) {
	st, dir := newTestEnv(t)
	m := NewManager(st, dir)
	ctx := context.Background()

	for _, name := range []string{"one.db", "two.db"} {
		if _, err := m.Create(ctx, name); err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
	}

	s := NewScheduler(m, SchedulerConfig{Retain: 0})
	if err := s.EnforceRetention(ctx); err != nil {
		t.Fatalf("EnforceRetention failed: %v", err)
	}

	snapshots, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Errorf("retention disabled but %d snapshot(s) remain of 2", len(snapshots))
	}
}

func TestSetupJobsRejectsBadSchedule(t *testing.T) {
	st, dir := newTestEnv(t)
	m := NewManager(st, dir)

	s := NewScheduler(m, SchedulerConfig{Schedule: "not a cron line"})
	if err := s.SetupJobs(); err == nil {
		t.Error("expected error for malformed schedule, got none")
	}
}
