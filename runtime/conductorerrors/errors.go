// Package conductorerrors defines the runtime's error taxonomy.
//
// Errors carry an optional wrapped cause so callers can use errors.Is and
// errors.As across the chain, mirroring the teacher runtime's tool error
// type.
package conductorerrors

import "errors"

// Sentinel errors a caller can match with errors.Is.
var (
	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("conductor: queue full")
	// ErrNoCapableWorker names the case where routing finds no match; the
	// scheduler does not return it, it re-queues the task instead.
	ErrNoCapableWorker = errors.New("conductor: no capable worker")
	// ErrDependencyUnsatisfied marks a task whose dependencies have not all
	// succeeded; never returned to a caller, the task is re-queued.
	ErrDependencyUnsatisfied = errors.New("conductor: dependency unsatisfied")
	// ErrWorkerTimeout marks an execution that exceeded its timeout.
	ErrWorkerTimeout = errors.New("conductor: worker timeout")
	// ErrMessageTimeout is surfaced to a sender when a requested response
	// never arrives within the configured window.
	ErrMessageTimeout = errors.New("conductor: message response timeout")
	// ErrCorrelationUnknown marks a response that arrived for no pending
	// request; it is logged and dropped, never returned to a caller.
	ErrCorrelationUnknown = errors.New("conductor: unknown correlation id")
	// ErrPersistenceFailure wraps a storage operation failure.
	ErrPersistenceFailure = errors.New("conductor: persistence failure")
	// ErrShutdown marks an operation cancelled because the runtime is
	// stopping.
	ErrShutdown = errors.New("conductor: shutdown")
	// ErrNotFound marks a targeted lookup that references an unknown id.
	// task.Queue's Remove and Reprioritize report that case by returning
	// false rather than this error.
	ErrNotFound = errors.New("conductor: not found")
	// ErrCycle is returned when a task's declared dependencies would form a
	// cycle.
	ErrCycle = errors.New("conductor: dependency cycle")
)

// WorkerExecutionFailure wraps an error raised by a worker's execute_task.
// It is never returned to a caller — the Execution Engine converts it into
// a TaskResult with status=error — but workers and hooks may want to
// classify it via errors.As.
type WorkerExecutionFailure struct {
	Worker string
	Cause  error
}

func (e *WorkerExecutionFailure) Error() string {
	if e.Cause == nil {
		return "conductor: worker " + e.Worker + " execution failed"
	}
	return "conductor: worker " + e.Worker + " execution failed: " + e.Cause.Error()
}

func (e *WorkerExecutionFailure) Unwrap() error { return e.Cause }

// Wrap annotates cause with a message while preserving the chain, in the
// same shape as the teacher's ToolError.
type Wrapped struct {
	Message string
	Cause   error
}

func Wrap(message string, cause error) error {
	if cause == nil {
		return errors.New(message)
	}
	return &Wrapped{Message: message, Cause: cause}
}

func (e *Wrapped) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Wrapped) Unwrap() error { return e.Cause }
