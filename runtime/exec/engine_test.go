package exec

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noteldar/conductor/runtime/task"
)

type sleepWorker struct {
	name    string
	sleep   time.Duration
	current *int64
	max     *int64
}

func (w *sleepWorker) Name() string { return w.name }

func (w *sleepWorker) ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error) {
	if w.current != nil {
		n := atomic.AddInt64(w.current, 1)
		defer atomic.AddInt64(w.current, -1)
		for {
			old := atomic.LoadInt64(w.max)
			if n <= old || atomic.CompareAndSwapInt64(w.max, old, n) {
				break
			}
		}
	}
	select {
	case <-time.After(w.sleep):
		return &task.Result{TaskID: t.ID, WorkerName: w.name, Status: task.StatusSuccess}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestConcurrencyCapNeverExceeded(t *testing.T) {
	t.Parallel()
	e := New(2)
	var current, max int64
	w := &sleepWorker{name: "w", sleep: 100 * time.Millisecond, current: &current, max: &max}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = e.Execute(context.Background(), w, &task.Task{ID: string(rune('a' + i))}, 0)
		}(i)
	}
	wg.Wait()

	if max > 2 {
		t.Fatalf("want at most 2 concurrent executions, observed %d", max)
	}
	if got := e.Stats().TotalExecuted; got != 5 {
		t.Fatalf("want 5 executed, got %d", got)
	}
}

func TestExecuteTimesOut(t *testing.T) {
	t.Parallel()
	e := New(1)
	w := &sleepWorker{name: "slow", sleep: 200 * time.Millisecond}
	result, err := e.Execute(context.Background(), w, &task.Task{ID: "t1"}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != task.StatusTimeout {
		t.Fatalf("want timeout status, got %s", result.Status)
	}
}
