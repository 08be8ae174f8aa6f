package telemetry

import "context"

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

// NewNoopTracer returns a Tracer that produces spans doing nothing.
func NewNoopTracer() Tracer { return noopTracer{} }

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any)        {}
func (noopLogger) Info(context.Context, string, ...any)         {}
func (noopLogger) Warn(context.Context, string, ...any)         {}
func (noopLogger) Error(context.Context, string, error, ...any) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, int64, ...string)    {}
func (noopMetrics) RecordTimer(string, float64, ...string) {}
func (noopMetrics) RecordGauge(string, float64, ...string) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) AddEvent(string, ...any)  {}
func (noopSpan) SetStatusError(error)     {}
func (noopSpan) End()                     {}
