// Package telemetry defines the small ambient logging/metrics/tracing
// interfaces every conductor component accepts through functional options,
// plus a clue/OpenTelemetry-backed implementation and a no-op default.
package telemetry

import "context"

// Logger is a minimal structured logger. Implementations may ignore Debug
// in production.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, err error, kv ...any)
}

// Metrics records counters, timers and gauges for the runtime's own
// operational behavior (queue depth, execution latency, mailbox size).
type Metrics interface {
	IncCounter(name string, delta int64, tags ...string)
	RecordTimer(name string, seconds float64, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer opens spans around notable operations (task execution, message
// wait, conflict detection pass).
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// Span is the narrow span surface the runtime needs.
type Span interface {
	AddEvent(name string, kv ...any)
	SetStatusError(err error)
	End()
}
