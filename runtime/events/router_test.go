package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDerivePriority(t *testing.T) {
	t.Parallel()
	cases := []struct {
		kind string
		pl   map[string]any
		want Priority
	}{
		{"meeting.new", map[string]any{"starts_in": 30 * time.Minute}, Critical},
		{"meeting.new", map[string]any{"title": "URGENT: budget review", "starts_in": 5 * time.Hour}, Critical},
		{"meeting.new", map[string]any{"starts_in": 5 * time.Hour}, Low},
		{"user.feedback", nil, High},
		{"meeting.updated", nil, Medium},
		{"pattern.detected", nil, Medium},
		{"something.else", nil, Low},
	}
	for _, c := range cases {
		if got := DerivePriority(c.kind, c.pl); got != c.want {
			t.Errorf("DerivePriority(%q, %v) = %v, want %v", c.kind, c.pl, got, c.want)
		}
	}
}

func TestDeriveIDIsStable(t *testing.T) {
	t.Parallel()
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := DeriveID("alice", "meeting.new", ts)
	b := DeriveID("alice", "meeting.new", ts)
	if a != b {
		t.Fatalf("expected identical ids for identical (user, kind, timestamp), got %q and %q", a, b)
	}
	c := DeriveID("bob", "meeting.new", ts)
	if a == c {
		t.Fatalf("expected different ids for different users")
	}
}

func TestRouterDispatchesAndCachesResult(t *testing.T) {
	t.Parallel()
	r := New()
	var handled int64
	r.RegisterHandler("ping", func(ctx context.Context, evt Event) (string, error) {
		atomic.AddInt64(&handled, 1)
		return "pong", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	evt := Event{ID: "evt_1", Kind: "ping", Priority: Critical, Timestamp: time.Now()}
	if err := r.Submit(evt); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt64(&handled) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt64(&handled) != 1 {
		t.Fatalf("handler never ran")
	}

	entry, ok, err := r.Result(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !ok {
		t.Fatalf("expected cached result for evt_1")
	}
	if !entry.Success || entry.Result != "pong" {
		t.Fatalf("unexpected cache entry: %+v", entry)
	}
}

func TestRouterRetriesWithDemotionThenGivesUp(t *testing.T) {
	t.Parallel()
	r := New(WithRetryLimit(1))
	var attempts int64
	r.RegisterHandler("flaky", func(ctx context.Context, evt Event) (string, error) {
		atomic.AddInt64(&attempts, 1)
		return "", errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	evt := Event{ID: "evt_flaky", Kind: "flaky", Priority: Critical, Timestamp: time.Now()}
	if err := r.Submit(evt); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&attempts) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&attempts); got != 2 {
		t.Fatalf("expected exactly 2 attempts (1 original + 1 retry within limit), got %d", got)
	}

	entry, ok, _ := r.Result(ctx, "evt_flaky")
	if !ok || entry.Success {
		t.Fatalf("expected a cached failed entry, got ok=%v entry=%+v", ok, entry)
	}
}

func TestQueueFullReturnsDropped(t *testing.T) {
	t.Parallel()
	r := New()
	q := r.queues[Critical]
	for i := 0; i < cap(q.ch); i++ {
		q.ch <- Event{ID: "filler", Kind: "noop", Priority: Critical}
	}
	err := r.Submit(Event{ID: "overflow", Kind: "noop", Priority: Critical})
	if err == nil {
		t.Fatalf("expected ErrQueueFull when the priority queue is at capacity")
	}
}

func TestPriorityDemoteFloorsAtLow(t *testing.T) {
	t.Parallel()
	if Low.demote() != Low {
		t.Fatalf("Low should not demote further")
	}
	if Critical.demote() != High {
		t.Fatalf("Critical should demote to High")
	}
}
