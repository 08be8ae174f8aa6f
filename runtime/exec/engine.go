// Package exec implements the bounded-concurrency Execution Engine: a
// global semaphore-guarded dispatcher that times out individual
// executions, runs pre/post hooks, and tracks rolling metrics.
package exec

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/noteldar/conductor/runtime/conductorerrors"
	"github.com/noteldar/conductor/runtime/task"
	"github.com/noteldar/conductor/runtime/telemetry"
)

// Worker is the narrow surface the engine needs to run a task; exec does
// not depend on the worker package, which keeps exec reusable without bus
// (worker depends on bus and task).
type Worker interface {
	Name() string
	ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error)
}

// Hook runs before or after a task execution. Pre-hook failures are logged
// but never abort the execution, matching the specification.
type Hook func(ctx context.Context, w Worker, t *task.Task, result *task.Result)

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l telemetry.Logger) Option   { return func(e *Engine) { e.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithTracer(t telemetry.Tracer) Option   { return func(e *Engine) { e.tracer = t } }
func WithPreHook(h Hook) Option              { return func(e *Engine) { e.preHooks = append(e.preHooks, h) } }
func WithPostHook(h Hook) Option             { return func(e *Engine) { e.postHooks = append(e.postHooks, h) } }

// WithBatchRateLimit caps how fast ExecuteBatch admits new items, on top
// of the per-call perBatchCap concurrency limit, grounded on the
// teacher's features/model/middleware.AdaptiveRateLimiter token-bucket
// usage (simplified to a fixed rate — there is no provider to adapt to
// here).
func WithBatchRateLimit(r rate.Limit, burst int) Option {
	return func(e *Engine) { e.batchLimiter = rate.NewLimiter(r, burst) }
}

// Engine enforces a global concurrency cap N via a buffered-channel
// semaphore. Acquisition is strict FIFO because Go channels serve waiters
// in send order.
type Engine struct {
	permits chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc

	totalExecuted int64
	totalSuccess  int64
	totalError    int64
	totalTimeout  int64
	avgDuration   float64

	preHooks  []Hook
	postHooks []Hook

	batchLimiter *rate.Limiter

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// New builds an Engine capped at n concurrent executions.
func New(n int, opts ...Option) *Engine {
	e := &Engine{
		permits: make(chan struct{}, n),
		running: map[string]context.CancelFunc{},
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		tracer:  telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute acquires a permit (blocking in FIFO order), runs pre-hooks,
// invokes w.ExecuteTask subject to timeout if non-zero, runs post-hooks,
// and releases the permit.
func (e *Engine) Execute(ctx context.Context, w Worker, t *task.Task, timeout time.Duration) (*task.Result, error) {
	select {
	case e.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.permits }()

	ctx, span := e.tracer.Start(ctx, "exec.execute")
	defer span.End()

	for _, hook := range e.preHooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn(ctx, "pre-hook panicked", "recover", r)
				}
			}()
			hook(ctx, w, t, nil)
		}()
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	e.mu.Lock()
	e.running[t.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, t.ID)
		e.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	result, err := w.ExecuteTask(runCtx, t)
	elapsed := time.Since(start)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result = &task.Result{
			TaskID: t.ID, WorkerName: w.Name(), Status: task.StatusTimeout,
			Duration: elapsed, CompletedAt: time.Now(),
		}
		span.SetStatusError(conductorerrors.ErrWorkerTimeout)
		e.recordOutcome(task.StatusTimeout, elapsed)
	case err != nil:
		result = &task.Result{
			TaskID: t.ID, WorkerName: w.Name(), Status: task.StatusError,
			Error: err.Error(), Duration: elapsed, CompletedAt: time.Now(),
		}
		span.SetStatusError(err)
		e.recordOutcome(task.StatusError, elapsed)
	default:
		if result == nil {
			result = &task.Result{TaskID: t.ID, WorkerName: w.Name(), Status: task.StatusSuccess, Duration: elapsed, CompletedAt: time.Now()}
		} else {
			if result.Duration == 0 {
				result.Duration = elapsed
			}
			if result.CompletedAt.IsZero() {
				result.CompletedAt = time.Now()
			}
		}
		e.recordOutcome(result.Status, elapsed)
	}

	for _, hook := range e.postHooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn(ctx, "post-hook panicked", "recover", r)
				}
			}()
			hook(ctx, w, t, result)
		}()
	}

	return result, nil
}

func (e *Engine) recordOutcome(status task.Status, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalExecuted++
	switch status {
	case task.StatusSuccess:
		e.totalSuccess++
	case task.StatusError:
		e.totalError++
	case task.StatusTimeout:
		e.totalTimeout++
	}
	seconds := d.Seconds()
	if e.totalExecuted == 1 {
		e.avgDuration = seconds
	} else {
		e.avgDuration = (e.avgDuration*float64(e.totalExecuted-1) + seconds) / float64(e.totalExecuted)
	}
	e.metrics.RecordTimer("exec.duration_seconds", seconds)
	e.metrics.IncCounter("exec.total", 1)
}

// BatchResult pairs a task with its execution outcome, preserving input
// order regardless of completion order.
type BatchResult struct {
	Task   *task.Task
	Result *task.Result
	Err    error
}

// ExecuteBatch runs every (worker, task) pair concurrently, bounded by an
// optional secondary cap on top of the engine's own permits, and returns
// results in input order. Individual failures surface as error results
// rather than aborting the batch. When the engine was built with
// WithBatchRateLimit, each item additionally waits for a token before
// starting, smoothing out bursts of simultaneous batch submissions.
func (e *Engine) ExecuteBatch(ctx context.Context, items []struct {
	Worker  Worker
	Task    *task.Task
	Timeout time.Duration
}, perBatchCap int) []BatchResult {
	out := make([]BatchResult, len(items))
	var sem chan struct{}
	if perBatchCap > 0 {
		sem = make(chan struct{}, perBatchCap)
	}

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item struct {
			Worker  Worker
			Task    *task.Task
			Timeout time.Duration
		}) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			if e.batchLimiter != nil {
				if err := e.batchLimiter.Wait(ctx); err != nil {
					out[i] = BatchResult{Task: item.Task, Err: err}
					return
				}
			}
			result, err := e.Execute(ctx, item.Worker, item.Task, item.Timeout)
			out[i] = BatchResult{Task: item.Task, Result: result, Err: err}
		}(i, item)
	}
	wg.Wait()
	return out
}

// Cancel cancels an in-flight execution for taskID, if any.
func (e *Engine) Cancel(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel, ok := e.running[taskID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Running returns the ids of currently-executing tasks.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

// WaitForCapacity blocks until at least `slots` permits would be free,
// bounded by a 60-second ceiling, returning false on timeout.
func (e *Engine) WaitForCapacity(ctx context.Context, slots int) bool {
	deadline := time.After(60 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cap(e.permits)-len(e.permits) >= slots {
			return true
		}
		select {
		case <-ticker.C:
			continue
		case <-deadline:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Stats reports the engine's rolling execution metrics.
type Stats struct {
	TotalExecuted int64
	TotalSuccess  int64
	TotalError    int64
	TotalTimeout  int64
	AvgDuration   time.Duration
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		TotalExecuted: e.totalExecuted,
		TotalSuccess:  e.totalSuccess,
		TotalError:    e.totalError,
		TotalTimeout:  e.totalTimeout,
		AvgDuration:   time.Duration(e.avgDuration * float64(time.Second)),
	}
}
