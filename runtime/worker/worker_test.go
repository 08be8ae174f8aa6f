package worker

import (
	"context"
	"testing"
)

type echoWorker struct {
	*BaseWorker
}

func newEchoWorker() *echoWorker {
	return &echoWorker{BaseWorker: NewBaseWorker("echo", "echoes feedback", Capability("echo"))}
}

func TestBaseWorkerCapabilitiesAreCopied(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	caps := w.Capabilities()
	caps[Capability("mutated")] = struct{}{}
	if _, ok := w.Capabilities()[Capability("mutated")]; ok {
		t.Fatalf("Capabilities() should return a defensive copy")
	}
	if _, ok := w.Capabilities()[Capability("echo")]; !ok {
		t.Fatalf("expected declared capability to be present")
	}
}

func TestBaseWorkerStartsIdle(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	if w.Status() != StatusIdle {
		t.Fatalf("want idle, got %v", w.Status())
	}
}

func TestSetStatusFiresCallback(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	var seen Status
	w.RegisterCallback(EventStatusChange, func(_ context.Context, args ...any) {
		seen = args[0].(Status)
	})
	w.SetStatus(context.Background(), StatusWorking)
	if seen != StatusWorking {
		t.Fatalf("callback saw %v, want %v", seen, StatusWorking)
	}
	if w.Status() != StatusWorking {
		t.Fatalf("status not updated")
	}
}

func TestRecordCompletionMovingAverage(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	w.RecordCompletion(true, 100)
	w.RecordCompletion(false, 200)
	m := w.Metrics()
	if m.TotalTasks != 2 {
		t.Fatalf("TotalTasks = %d, want 2", m.TotalTasks)
	}
	if want := 0.5; m.SuccessRate != want {
		t.Fatalf("SuccessRate = %v, want %v", m.SuccessRate, want)
	}
	if want := 150.0; m.AvgExecutionMs != want {
		t.Fatalf("AvgExecutionMs = %v, want %v", m.AvgExecutionMs, want)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	w.SetStatus(context.Background(), StatusError)
	w.Reset()
	if w.Status() != StatusIdle {
		t.Fatalf("Reset() should return worker to idle, got %v", w.Status())
	}
}

func TestLearnFromFeedbackStoresPreferences(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	w.LearnFromFeedback(context.Background(), "task_1", map[string]any{"tone": "concise"})
	prefs := w.Preferences()
	if prefs["task_1.tone"] != "concise" {
		t.Fatalf("expected learned preference to be stored, got %+v", prefs)
	}
}

func TestDefaultBusHandlersAreNoops(t *testing.T) {
	t.Parallel()
	w := newEchoWorker()
	if msg, err := w.HandleMessage(context.Background(), nil); msg != nil || err != nil {
		t.Fatalf("default HandleMessage should be a no-op")
	}
	if accept, meta := w.AcceptDelegation(context.Background(), nil); accept || meta != nil {
		t.Fatalf("default AcceptDelegation should decline")
	}
}
