// Package orchestrator wires the Task Queue, Execution Engine, Message
// Bus, and Memory Store into the scheduling loop described by the
// specification: registration, submission, dependency gating, routing to
// the best-fit idle worker, follow-up synthesis, and health monitoring.
//
// Its shape is grounded on the teacher's registry.Manager: an
// options-constructed struct holding a mutex-guarded registry map, plus
// ticker-driven background loops started and stopped via a
// context.CancelFunc/sync.WaitGroup pair.
package orchestrator

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noteldar/conductor/runtime/bus"
	"github.com/noteldar/conductor/runtime/conductorerrors"
	"github.com/noteldar/conductor/runtime/config"
	"github.com/noteldar/conductor/runtime/exec"
	"github.com/noteldar/conductor/runtime/memory"
	"github.com/noteldar/conductor/runtime/task"
	"github.com/noteldar/conductor/runtime/telemetry"
	"github.com/noteldar/conductor/runtime/worker"
)

// FollowUpGenerator lets a worker emit derived tasks from a completed
// result; the Orchestrator submits anything it returns normally.
type FollowUpGenerator func(ctx context.Context, r *task.Result) []Submission

// Submission is the caller-facing shape of a task admission request.
type Submission struct {
	Kind         string
	Description  string
	Parameters   map[string]any
	Priority     task.Priority
	RequesterID  string
	WorkerHint   string
	Dependencies []string
	Metadata     map[string]any
}

type registeredWorker struct {
	w        worker.Worker
	workload int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l telemetry.Logger) Option   { return func(o *Orchestrator) { o.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }
func WithTracer(t telemetry.Tracer) Option   { return func(o *Orchestrator) { o.tracer = t } }
func WithFollowUps(gen FollowUpGenerator) Option {
	return func(o *Orchestrator) { o.followUps = gen }
}

// Orchestrator is the runtime's top-level coordinator.
type Orchestrator struct {
	cfg   config.Config
	queue *task.Queue
	bus   *bus.Bus
	store memory.Store
	eng   *exec.Engine

	mu               sync.RWMutex
	workers          map[string]*registeredWorker
	taskKindCap      map[string][]worker.Capability // task kind -> capabilities it requires
	taskRetries      map[string]int
	lastFailedWorker map[string]string // task ID -> name of the worker instance that most recently failed it

	followUps FollowUpGenerator

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	schedCancel  context.CancelFunc
	schedWg      sync.WaitGroup
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
	proCancel    context.CancelFunc
	proWg        sync.WaitGroup
}

// New builds an Orchestrator over the given config and engine, owning its
// own Task Queue and Message Bus; the Memory Store is supplied by the
// caller.
func New(cfg config.Config, eng *exec.Engine, store memory.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:              cfg,
		queue:            task.New(cfg.TaskQueueCapacity),
		bus:              bus.New(bus.WithResponseTimeout(cfg.ResponseTimeout())),
		store:            store,
		eng:              eng,
		workers:          map[string]*registeredWorker{},
		taskKindCap:      map[string][]worker.Capability{},
		taskRetries:      map[string]int{},
		lastFailedWorker: map[string]string{},
		logger:           telemetry.NewNoopLogger(),
		metrics:          telemetry.NewNoopMetrics(),
		tracer:           telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bus exposes the owned Message Bus so workers can be wired to it.
func (o *Orchestrator) Bus() *bus.Bus { return o.bus }

// Register instantiates bookkeeping for w: Memory.Init, Bus registration,
// and entry into the routing table.
func (o *Orchestrator) Register(ctx context.Context, w worker.Worker) error {
	if err := o.store.Init(ctx, w.Name()); err != nil {
		return conductorerrors.Wrap("memory init failed", err)
	}
	o.bus.Register(w.Name(), w)

	o.mu.Lock()
	o.workers[w.Name()] = &registeredWorker{w: w}
	o.mu.Unlock()
	return nil
}

// Submit admits a task into the Task Queue, returning its generated id.
// If WorkerHint names a registered worker it bypasses routing and is
// assigned directly.
func (o *Orchestrator) Submit(ctx context.Context, s Submission) (string, error) {
	u := uuid.New()
	t := &task.Task{
		ID:           "task_" + hex.EncodeToString(u[:8]),
		Kind:         s.Kind,
		Description:  s.Description,
		Parameters:   s.Parameters,
		Priority:     s.Priority,
		RequesterID:  s.RequesterID,
		Dependencies: s.Dependencies,
		Metadata:     s.Metadata,
		CreatedAt:    time.Now(),
	}

	if err := o.checkCycle(t); err != nil {
		return "", err
	}

	if s.WorkerHint != "" {
		o.mu.RLock()
		rw, ok := o.workers[s.WorkerHint]
		o.mu.RUnlock()
		if ok {
			o.assign(ctx, rw, t)
			return t.ID, nil
		}
	}

	if outcome := o.queue.Enqueue(t, nil); outcome == task.Dropped {
		o.metrics.IncCounter("orchestrator.queue_full", 1)
		return "", conductorerrors.ErrQueueFull
	}
	return t.ID, nil
}

// checkCycle rejects a task whose dependency list names the task's own id.
// It does not check that the other dependency ids were previously
// submitted.
func (o *Orchestrator) checkCycle(t *task.Task) error {
	seen := map[string]struct{}{t.ID: {}}
	for _, dep := range t.Dependencies {
		if _, ok := seen[dep]; ok {
			return conductorerrors.ErrCycle
		}
	}
	return nil
}

// RunScheduler starts the internal scheduling loop as a background
// cooperative task, and launches the owned Message Bus's per-worker
// dispatch loops so registered workers actually receive queued messages.
func (o *Orchestrator) RunScheduler(ctx context.Context) {
	o.bus.Start(ctx)
	ctx, cancel := context.WithCancel(ctx)
	o.schedCancel = cancel
	o.schedWg.Add(1)
	go o.schedulingLoop(ctx)
}

func (o *Orchestrator) schedulingLoop(ctx context.Context) {
	defer o.schedWg.Done()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.schedulePass(ctx)
		}
	}
}

// schedulePass performs one dequeue-route-assign step, mirroring §4.6's
// internal scheduling loop exactly.
func (o *Orchestrator) schedulePass(ctx context.Context) {
	t := o.queue.Dequeue()
	if t == nil {
		return
	}

	if len(t.Dependencies) > 0 && !o.dependenciesSatisfied(ctx, t) {
		time.AfterFunc(o.cfg.DependencyBackoff(), func() {
			o.queue.Enqueue(t, nil)
		})
		return
	}

	rw := o.selectWorker(t)
	if rw == nil {
		time.AfterFunc(o.cfg.UnassignableBackoff(), func() {
			o.queue.Enqueue(t, nil)
		})
		return
	}

	o.assign(ctx, rw, t)
}

func (o *Orchestrator) dependenciesSatisfied(ctx context.Context, t *task.Task) bool {
	history, err := o.store.TaskHistory(ctx, "", 0)
	if err != nil {
		return false
	}
	succeeded := map[string]struct{}{}
	for _, r := range history {
		if r.Status == task.StatusSuccess {
			succeeded[r.TaskID] = struct{}{}
		}
	}
	for _, dep := range t.Dependencies {
		if _, ok := succeeded[dep]; !ok {
			return false
		}
	}
	return true
}

// selectWorker picks, among idle or working workers with capability
// matching t.Kind and workload strictly below the per-worker cap, the one
// with the lowest current workload. Ties are not broken by priority: the
// first such worker in map iteration order wins. A worker instance that most
// recently failed this exact task is excluded, so a retry never lands on
// the same instance twice consecutively — if that exclusion leaves no
// eligible worker, selectWorker returns nil and the scheduler backs the
// task off rather than violate the exclusion.
func (o *Orchestrator) selectWorker(t *task.Task) *registeredWorker {
	o.mu.Lock()
	defer o.mu.Unlock()

	lastFailed := o.lastFailedWorker[t.ID]

	var best *registeredWorker
	for _, rw := range o.workers {
		if rw.w.Status() != worker.StatusIdle && rw.w.Status() != worker.StatusWorking {
			continue
		}
		if rw.workload >= o.cfg.WorkerConcurrentCap {
			continue
		}
		if _, ok := rw.w.Capabilities()[worker.Capability(t.Kind)]; !ok {
			continue
		}
		if lastFailed != "" && rw.w.Name() == lastFailed {
			continue
		}
		if best == nil || rw.workload < best.workload {
			best = rw
		}
	}
	return best
}

func (o *Orchestrator) assign(ctx context.Context, rw *registeredWorker, t *task.Task) {
	o.mu.Lock()
	rw.workload++
	o.mu.Unlock()

	rw.w.SetStatus(ctx, worker.StatusWorking)
	if base, ok := any(rw.w).(interface {
		FireTaskStart(context.Context, *task.Task)
	}); ok {
		base.FireTaskStart(ctx, t)
	}

	go func() {
		timeout := time.Duration(0)
		if t.Deadline != nil {
			timeout = time.Until(*t.Deadline)
		}
		execWorker := execAdapter{rw.w}
		result, _ := o.eng.Execute(ctx, execWorker, t, timeout)
		o.onResult(ctx, rw, t, result)
	}()
}

// execAdapter narrows a worker.Worker down to the exec.Worker surface.
type execAdapter struct{ w worker.Worker }

func (a execAdapter) Name() string { return a.w.Name() }
func (a execAdapter) ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error) {
	return a.w.ExecuteTask(ctx, t)
}

func (o *Orchestrator) onResult(ctx context.Context, rw *registeredWorker, t *task.Task, r *task.Result) {
	o.mu.Lock()
	rw.workload--
	o.mu.Unlock()

	if r.Status != task.StatusSuccess && o.cfg.FailureRecovery {
		o.mu.RLock()
		exhausted := o.taskRetries[t.ID] >= o.cfg.MaxTaskRetries
		o.mu.RUnlock()
		if exhausted {
			if r.Metadata == nil {
				r.Metadata = map[string]any{}
			}
			r.Metadata["permanent_failure"] = true
		}
	}

	if err := o.store.RecordResult(ctx, rw.w.Name(), t.Kind, r); err != nil {
		o.logger.Error(ctx, "persistence failure recording result", err, "task_id", t.ID)
	}

	rw.w.SetStatus(ctx, worker.StatusIdle)
	if base, ok := any(rw.w).(interface {
		FireTaskComplete(context.Context, *task.Result)
	}); ok {
		base.FireTaskComplete(ctx, r)
	}
	if base, ok := any(rw.w).(interface {
		RecordCompletion(bool, float64)
	}); ok {
		base.RecordCompletion(r.Status == task.StatusSuccess, float64(r.Duration.Milliseconds()))
	}

	switch r.Status {
	case task.StatusSuccess:
		if o.followUps != nil {
			for _, sub := range o.followUps(ctx, r) {
				_, _ = o.Submit(ctx, sub)
			}
		}
	case task.StatusError, task.StatusTimeout:
		if o.cfg.FailureRecovery {
			o.retry(ctx, rw, t)
		}
	}
}

// retry re-queues a failed task unless it has exceeded the configured
// retry ceiling. It records which worker instance the task just failed on
// so selectWorker can exclude that instance the next time the task is
// scheduled, guaranteeing it is never sent to the same instance twice
// consecutively.
func (o *Orchestrator) retry(ctx context.Context, rw *registeredWorker, t *task.Task) {
	o.mu.Lock()
	o.taskRetries[t.ID]++
	attempts := o.taskRetries[t.ID]
	o.lastFailedWorker[t.ID] = rw.w.Name()
	o.mu.Unlock()

	if attempts > o.cfg.MaxTaskRetries {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		t.Metadata["permanent_failure"] = true
		o.logger.Warn(ctx, "task exceeded max retries, recording permanent failure", "task_id", t.ID)
		o.mu.Lock()
		delete(o.lastFailedWorker, t.ID)
		o.mu.Unlock()
		return
	}
	o.queue.Enqueue(t, nil)
}

// Shutdown cancels background loops, stops the Bus, and flushes the
// Memory Store.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	if o.schedCancel != nil {
		o.schedCancel()
	}
	if o.healthCancel != nil {
		o.healthCancel()
	}
	if o.proCancel != nil {
		o.proCancel()
	}
	o.schedWg.Wait()
	o.healthWg.Wait()
	o.proWg.Wait()
	o.bus.Stop()
	_ = o.store.SaveAll(ctx)
}

// Queue exposes the owned Task Queue for inspection/tests.
func (o *Orchestrator) Queue() *task.Queue { return o.queue }
