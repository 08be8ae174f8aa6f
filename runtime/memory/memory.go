// Package memory defines the durable Store contract. The inmem subpackage
// provides an in-memory reference implementation used for tests and local
// development; the mongo subpackage provides a production-grade backing
// store.
package memory

import (
	"context"
	"time"

	"github.com/noteldar/conductor/runtime/task"
)

// ContextEntry is a TTL-scoped blob of worker context.
type ContextEntry struct {
	ID        string
	Worker    string
	Type      string
	Payload   any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PreferenceEntry is a learned (key, worker)-scoped value with confidence.
type PreferenceEntry struct {
	Key        string
	Value      any
	Worker     string
	LearnedAt  time.Time
	Confidence float64
}

// LearningPattern tracks how often and how successfully a worker performs
// a given task kind.
type LearningPattern struct {
	ID          string
	Worker      string
	PatternType string
	Payload     any
	Frequency   int64
	SuccessRate float64
	LastUpdated time.Time
}

// Message is the persisted shape of an inter-worker interaction, distinct
// from bus.Message (which is transient). No Store method reads or writes
// it.
type Message struct {
	ID        int64
	From      string
	To        string
	Payload   any
	Response  any
	Timestamp time.Time
}

// Store is the durable persistence contract. Every operation either
// succeeds or fails atomically; transient failures are surfaced to the
// caller without retry at this layer.
type Store interface {
	Init(ctx context.Context, worker string) error
	RecordResult(ctx context.Context, worker string, kind string, r *task.Result) error
	PutPreference(ctx context.Context, worker, key string, value any, confidence float64) error
	GetPreferences(ctx context.Context, worker string) ([]PreferenceEntry, error)
	PutContext(ctx context.Context, worker, typ string, payload any, ttl time.Duration) error
	GetContext(ctx context.Context, worker, typ string) ([]ContextEntry, error)
	TaskHistory(ctx context.Context, worker string, limit int) ([]task.Result, error)
	Patterns(ctx context.Context, worker string, minFrequency int64) ([]LearningPattern, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) error
	SaveAll(ctx context.Context) error
}
