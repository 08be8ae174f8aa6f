// Package worker defines the uniform contract specialized workers satisfy,
// plus an embeddable BaseWorker that implements the bookkeeping every
// concrete worker shares (status, capabilities, callbacks, preferences).
package worker

import (
	"context"
	"sync"

	"github.com/noteldar/conductor/runtime/bus"
	"github.com/noteldar/conductor/runtime/task"
)

// Capability tags a supported task kind. The Orchestrator matches a task's
// kind against a worker's declared capability set.
type Capability string

// Status is a worker's current lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusWaiting Status = "waiting"
	StatusError   Status = "error"
)

// Event names a lifecycle callback hook.
type Event string

const (
	EventTaskStart    Event = "on_task_start"
	EventTaskComplete Event = "on_task_complete"
	EventTaskError    Event = "on_task_error"
	EventStatusChange Event = "on_status_change"
)

// Callback is invoked for a given Event; args depend on the event.
type Callback func(ctx context.Context, args ...any)

// Metrics is the rolling performance snapshot the Orchestrator updates
// through RecordCompletion after each execution; routing does not read it.
type Metrics struct {
	SuccessRate     float64
	AvgExecutionMs  float64
	TotalTasks      int64
}

// Worker is the contract the runtime depends on. Concrete workers
// (meeting-prep, task-decomposition, communication, research,
// schedule-optimization) embed *BaseWorker and implement ExecuteTask.
type Worker interface {
	Name() string
	Description() string
	Capabilities() map[Capability]struct{}
	Status() Status
	Metrics() Metrics
	ExecuteTask(ctx context.Context, t *task.Task) (*task.Result, error)
	HandleMessage(ctx context.Context, msg *bus.Message) (*bus.Message, error)
	HandleBroadcast(ctx context.Context, kind string, payload any)
	HandleNotification(ctx context.Context, payload any)
	AcceptDelegation(ctx context.Context, msg *bus.Message) (bool, map[string]any)
	Reset()
	RegisterCallback(event Event, fn Callback)
	LearnFromFeedback(ctx context.Context, taskID string, feedback map[string]any)
}

// BaseWorker implements every piece of the Worker contract except
// ExecuteTask, the same way the source's base agent class wraps timing,
// status transitions, and metric updates around a subclass's action.
// Concrete workers embed BaseWorker and must still implement ExecuteTask
// themselves to satisfy Worker.
type BaseWorker struct {
	mu           sync.RWMutex
	name         string
	description  string
	capabilities map[Capability]struct{}
	status       Status
	metrics      Metrics
	preferences  map[string]any
	callbacks    map[Event][]Callback
}

// NewBaseWorker constructs a BaseWorker with the given identity and
// declared capabilities, starting idle.
func NewBaseWorker(name, description string, caps ...Capability) *BaseWorker {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return &BaseWorker{
		name:         name,
		description:  description,
		capabilities: set,
		status:       StatusIdle,
		preferences:  map[string]any{},
		callbacks:    map[Event][]Callback{},
	}
}

func (b *BaseWorker) Name() string        { return b.name }
func (b *BaseWorker) Description() string { return b.description }

func (b *BaseWorker) Capabilities() map[Capability]struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Capability]struct{}, len(b.capabilities))
	for c := range b.capabilities {
		out[c] = struct{}{}
	}
	return out
}

func (b *BaseWorker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// SetStatus transitions status and fires on_status_change. Only the
// Orchestrator's scheduling/completion paths should call this — workers do
// not mutate their own workload or status directly.
func (b *BaseWorker) SetStatus(ctx context.Context, s Status) {
	b.mu.Lock()
	b.status = s
	cbs := append([]Callback(nil), b.callbacks[EventStatusChange]...)
	b.mu.Unlock()
	for _, cb := range cbs {
		cb(ctx, s)
	}
}

func (b *BaseWorker) Metrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// RecordCompletion updates the rolling metrics after a terminal execution
// outcome. durationMs is the wall-clock duration of the attempt.
func (b *BaseWorker) RecordCompletion(success bool, durationMs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.metrics.TotalTasks
	if n == 0 {
		b.metrics.AvgExecutionMs = durationMs
		if success {
			b.metrics.SuccessRate = 1.0
		} else {
			b.metrics.SuccessRate = 0.0
		}
	} else {
		b.metrics.AvgExecutionMs = (b.metrics.AvgExecutionMs*float64(n) + durationMs) / float64(n+1)
		outcome := 0.0
		if success {
			outcome = 1.0
		}
		b.metrics.SuccessRate = (b.metrics.SuccessRate*float64(n) + outcome) / float64(n+1)
	}
	b.metrics.TotalTasks = n + 1
}

func (b *BaseWorker) RegisterCallback(event Event, fn Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks[event] = append(b.callbacks[event], fn)
}

func (b *BaseWorker) fire(ctx context.Context, event Event, args ...any) {
	b.mu.RLock()
	cbs := append([]Callback(nil), b.callbacks[event]...)
	b.mu.RUnlock()
	for _, cb := range cbs {
		cb(ctx, args...)
	}
}

// FireTaskStart notifies on_task_start callbacks. Exported so the
// Orchestrator can invoke it when it assigns a task, before ExecuteTask
// runs.
func (b *BaseWorker) FireTaskStart(ctx context.Context, t *task.Task) { b.fire(ctx, EventTaskStart, t) }

// FireTaskComplete notifies on_task_complete callbacks.
func (b *BaseWorker) FireTaskComplete(ctx context.Context, r *task.Result) {
	b.fire(ctx, EventTaskComplete, r)
}

// FireTaskError notifies on_task_error callbacks.
func (b *BaseWorker) FireTaskError(ctx context.Context, err error) { b.fire(ctx, EventTaskError, err) }

// Reset returns the worker to idle. Learned preferences and metrics are
// kept.
func (b *BaseWorker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = StatusIdle
}

// LearnFromFeedback stores feedback into the worker's preference map,
// keyed "<taskID>.<key>". It does not update the persisted TaskResult's
// metadata.
func (b *BaseWorker) LearnFromFeedback(_ context.Context, taskID string, feedback map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range feedback {
		b.preferences[taskID+"."+k] = v
	}
}

// Preferences returns a shallow copy of the learned preference map.
func (b *BaseWorker) Preferences() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.preferences))
	for k, v := range b.preferences {
		out[k] = v
	}
	return out
}

// Default no-op bus integration points; concrete workers override the ones
// they care about by shadowing these methods.

func (b *BaseWorker) HandleMessage(context.Context, *bus.Message) (*bus.Message, error) { return nil, nil }
func (b *BaseWorker) HandleBroadcast(context.Context, string, any)                      {}
func (b *BaseWorker) HandleNotification(context.Context, any)                           {}
func (b *BaseWorker) AcceptDelegation(context.Context, *bus.Message) (bool, map[string]any) {
	return false, nil
}
