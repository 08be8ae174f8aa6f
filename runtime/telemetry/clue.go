package telemetry

import (
	"context"

	"goa.design/clue/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ClueLogger adapts goa.design/clue/log to the Logger interface, the same
// way the upstream runtime's telemetry package does.
type ClueLogger struct{}

// NewClueLogger builds a Logger backed by clue's structured logging.
func NewClueLogger() *ClueLogger { return &ClueLogger{} }

func (l *ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, log.Message(msg), kvToFields(kv)...)
}

func (l *ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, log.Message(msg), kvToFields(kv)...)
}

func (l *ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, log.Message("WARN: "+msg), kvToFields(kv)...)
}

func (l *ClueLogger) Error(ctx context.Context, msg string, err error, kv ...any) {
	log.Error(ctx, err, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFields(kv)...)...)
}

func kvToFields(kv []any) []log.Fielder {
	fields := make([]log.Fielder, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		fields = append(fields, log.KV{K: key, V: kv[i+1]})
	}
	return fields
}

// ClueMetrics records counters/timers/gauges through an OpenTelemetry
// meter. Gauges are recorded as histograms since synchronous gauges are not
// part of the stable OTel metric API, matching the upstream runtime's
// workaround.
type ClueMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewClueMetrics builds a Metrics backed by the global OTel meter provider.
func NewClueMetrics(meterName string) *ClueMetrics {
	return &ClueMetrics{
		meter:      otel.Meter(meterName),
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
}

func (m *ClueMetrics) counter(name string) metric.Int64Counter {
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, _ := m.meter.Int64Counter(name)
	m.counters[name] = c
	return c
}

func (m *ClueMetrics) histogram(name string) metric.Float64Histogram {
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h, _ := m.meter.Float64Histogram(name)
	m.histograms[name] = h
	return h
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

func (m *ClueMetrics) IncCounter(name string, delta int64, tags ...string) {
	m.counter(name).Add(context.Background(), delta, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordTimer(name string, seconds float64, tags ...string) {
	m.histogram(name).Record(context.Background(), seconds, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	m.histogram(name + ".gauge").Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

// ClueTracer opens spans through an OTel tracer.
type ClueTracer struct {
	tracer trace.Tracer
}

// NewClueTracer builds a Tracer backed by the global OTel tracer provider.
func NewClueTracer(tracerName string) *ClueTracer {
	return &ClueTracer{tracer: otel.Tracer(tracerName)}
}

func (t *ClueTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &clueSpan{span: span}
}

type clueSpan struct {
	span trace.Span
}

func (s *clueSpan) AddEvent(name string, kv ...any) {
	s.span.AddEvent(name, trace.WithAttributes(tagsToAttrs(toStringPairs(kv))...))
}

func (s *clueSpan) SetStatusError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *clueSpan) End() { s.span.End() }

func toStringPairs(kv []any) []string {
	out := make([]string, 0, len(kv))
	for _, v := range kv {
		if s, ok := v.(string); ok {
			out = append(out, s)
			continue
		}
	}
	return out
}
