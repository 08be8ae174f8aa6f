// Package task defines the Task/TaskResult data model and the bounded
// priority queue that holds pending tasks.
package task

import "time"

// Priority orders tasks; lower values are more urgent. The ordering matches
// the specification's enum: CRITICAL < HIGH < MEDIUM < LOW < BACKGROUND.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
	Background
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Task is an immutable unit of work submitted to the runtime. Parameters
// and Metadata are opaque to the runtime — schema validation belongs to
// the worker.
type Task struct {
	ID           string
	Kind         string
	Description  string
	Parameters   map[string]any
	Priority     Priority
	RequesterID  string
	Deadline     *time.Time
	Dependencies []string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Status is the terminal outcome of an execution attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Result records the outcome of one completed attempt to execute a Task.
// The Execution Engine creates exactly one Result per attempt; the
// Orchestrator persists it exactly once via the memory store.
type Result struct {
	TaskID       string
	WorkerName   string
	Status       Status
	Payload      any
	Error        string
	Duration     time.Duration
	Metadata     map[string]any
	CompletedAt  time.Time
}
