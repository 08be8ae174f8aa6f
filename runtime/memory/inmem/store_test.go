package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/noteldar/conductor/runtime/task"
)

func TestPreferenceRoundTrip(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	if err := s.PutPreference(ctx, "w1", "tone", "formal", 0.9); err != nil {
		t.Fatalf("put: %v", err)
	}
	prefs, err := s.GetPreferences(ctx, "w1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(prefs) != 1 || prefs[0].Value != "formal" {
		t.Fatalf("want formal, got %+v", prefs)
	}
}

func TestContextImmediateExpiry(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	if err := s.PutContext(ctx, "w1", "note", "hi", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	entries, err := s.GetContext(ctx, "w1", "note")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected immediate expiry to yield no entries, got %d", len(entries))
	}
}

func TestRecordResultUpdatesLearningPattern(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	r := &task.Result{TaskID: "t1", WorkerName: "w1", Status: task.StatusSuccess, CompletedAt: time.Now()}
	if err := s.RecordResult(ctx, "w1", "research", r); err != nil {
		t.Fatalf("record: %v", err)
	}
	patterns, err := s.Patterns(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	if len(patterns) != 1 || patterns[0].Frequency != 1 || patterns[0].SuccessRate != 1.0 {
		t.Fatalf("unexpected pattern state: %+v", patterns)
	}

	r2 := &task.Result{TaskID: "t2", WorkerName: "w1", Status: task.StatusSuccess, CompletedAt: time.Now()}
	if err := s.RecordResult(ctx, "w1", "research", r2); err != nil {
		t.Fatalf("record: %v", err)
	}
	patterns, _ = s.Patterns(ctx, "w1", 1)
	if patterns[0].Frequency != 2 {
		t.Fatalf("want frequency 2, got %d", patterns[0].Frequency)
	}
}

func TestRecomputePatternsSnapsToWindowTruth(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	// Three failures, long ago: RecordResult leaves the pattern untouched
	// for them, and they fall outside the recompute window.
	for i := 0; i < 3; i++ {
		r := &task.Result{TaskID: "old", WorkerName: "w1", Status: task.StatusError, CompletedAt: time.Now().Add(-2 * time.Hour)}
		s.RecordResult(ctx, "w1", "research", r)
	}
	// One recent success.
	recent := &task.Result{TaskID: "t", WorkerName: "w1", Status: task.StatusSuccess, CompletedAt: time.Now()}
	if err := s.RecordResult(ctx, "w1", "research", recent); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.RecomputePatterns(ctx, "w1", time.Hour); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	patterns, err := s.Patterns(ctx, "w1", 1)
	if err != nil {
		t.Fatalf("patterns: %v", err)
	}
	if len(patterns) != 1 || patterns[0].Frequency != 1 || patterns[0].SuccessRate != 1.0 {
		t.Fatalf("want the window-truth pattern (1 result, 100%% success), got %+v", patterns)
	}
}

func TestPurgeLoopStartStop(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	old := &task.Result{TaskID: "old", WorkerName: "w1", Status: task.StatusSuccess, CompletedAt: time.Now().Add(-48 * time.Hour)}
	s.RecordResult(ctx, "w1", "k", old)

	s.StartPurgeLoop(ctx, 5*time.Millisecond, 24*time.Hour)
	time.Sleep(40 * time.Millisecond)
	s.StopPurgeLoop()

	hist, _ := s.TaskHistory(ctx, "w1", 0)
	if len(hist) != 0 {
		t.Fatalf("want purge loop to have removed the stale result, got %+v", hist)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	old := &task.Result{TaskID: "old", WorkerName: "w1", Status: task.StatusSuccess, CompletedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &task.Result{TaskID: "fresh", WorkerName: "w1", Status: task.StatusSuccess, CompletedAt: time.Now()}
	s.RecordResult(ctx, "w1", "k", old)
	s.RecordResult(ctx, "w1", "k", fresh)

	if err := s.PurgeOlderThan(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("purge: %v", err)
	}
	hist, _ := s.TaskHistory(ctx, "w1", 0)
	if len(hist) != 1 || hist[0].TaskID != "fresh" {
		t.Fatalf("want only fresh result to survive purge, got %+v", hist)
	}
}
