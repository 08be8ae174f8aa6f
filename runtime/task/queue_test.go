package task

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestQueuePriorityOrdering(t *testing.T) {
	t.Parallel()
	q := New(10)

	a := &Task{ID: "a", Priority: Low}
	b := &Task{ID: "b", Priority: Critical}
	c := &Task{ID: "c", Priority: Medium}

	for _, tk := range []*Task{a, b, c} {
		if outcome := q.Enqueue(tk, nil); outcome != Admitted {
			t.Fatalf("enqueue %s: want Admitted, got %v", tk.ID, outcome)
		}
	}

	want := []string{"b", "c", "a"}
	for i, id := range want {
		got := q.Dequeue()
		if got == nil || got.ID != id {
			t.Fatalf("dequeue %d: want %s, got %+v", i, id, got)
		}
	}
	if q.Dequeue() != nil {
		t.Fatalf("expected empty queue")
	}
}

func TestQueueFIFOTieBreak(t *testing.T) {
	t.Parallel()
	q := New(10)
	for _, id := range []string{"first", "second", "third"} {
		q.Enqueue(&Task{ID: id, Priority: Medium}, nil)
	}
	for _, want := range []string{"first", "second", "third"} {
		got := q.Dequeue()
		if got.ID != want {
			t.Fatalf("want %s, got %s", want, got.ID)
		}
	}
}

func TestQueueDropsAtCapacity(t *testing.T) {
	t.Parallel()
	q := New(1)
	if outcome := q.Enqueue(&Task{ID: "a"}, nil); outcome != Admitted {
		t.Fatalf("first enqueue should admit")
	}
	if outcome := q.Enqueue(&Task{ID: "b"}, nil); outcome != Dropped {
		t.Fatalf("second enqueue should be dropped at capacity")
	}
	if got := q.Stats().TotalDropped; got != 1 {
		t.Fatalf("want 1 dropped, got %d", got)
	}
}

func TestQueueReprioritize(t *testing.T) {
	t.Parallel()
	q := New(10)
	q.Enqueue(&Task{ID: "a", Priority: Low}, nil)
	q.Enqueue(&Task{ID: "b", Priority: Medium}, nil)

	if !q.Reprioritize("a", Critical) {
		t.Fatalf("expected reprioritize to find task a")
	}
	if got := q.Dequeue(); got.ID != "a" {
		t.Fatalf("want a first after reprioritize, got %s", got.ID)
	}
	if q.Reprioritize("missing", Critical) {
		t.Fatalf("expected not found for unknown task id")
	}
}

func TestQueueRemove(t *testing.T) {
	t.Parallel()
	q := New(10)
	q.Enqueue(&Task{ID: "a", Priority: Low}, nil)
	q.Enqueue(&Task{ID: "b", Priority: High}, nil)

	if !q.Remove("a") {
		t.Fatalf("expected a to be removed")
	}
	if q.Remove("a") {
		t.Fatalf("expected second remove of a to report not found")
	}
	if got := q.Dequeue(); got.ID != "b" {
		t.Fatalf("want b remaining, got %s", got.ID)
	}
}

func TestQueueConcurrentEnqueue(t *testing.T) {
	t.Parallel()
	q := New(1000)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Enqueue(&Task{ID: uuid.New().String(), Priority: Medium}, nil)
		}(i)
	}
	wg.Wait()
	if got := q.Size(); got != 200 {
		t.Fatalf("want 200 enqueued, got %d", got)
	}
}
