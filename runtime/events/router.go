package events

import (
	"context"
	"sync"
	"time"

	"github.com/noteldar/conductor/runtime/conductorerrors"
	"github.com/noteldar/conductor/runtime/telemetry"
)

// Handler processes one event. Returning an error triggers the router's
// retry-with-demotion policy.
type Handler func(ctx context.Context, evt Event) (string, error)

// Option configures a Router.
type Option func(*Router)

func WithLogger(l telemetry.Logger) Option     { return func(r *Router) { r.logger = l } }
func WithMetrics(m telemetry.Metrics) Option    { return func(r *Router) { r.metrics = m } }
func WithRetryLimit(n int) Option              { return func(r *Router) { r.retryLimit = n } }
func WithCacheTTL(d time.Duration) Option      { return func(r *Router) { r.cacheTTL = d } }
func WithCache(c ResultCache) Option           { return func(r *Router) { r.cache = c } }

// queue is one priority class's bounded FIFO channel, enforcing its
// minimum service delay in the consumer loop rather than on submission.
type queue struct {
	ch       chan Event
	minDelay time.Duration
}

// Router dispatches events to kind-specific handlers through four
// priority queues, each with its own capacity and minimum service delay,
// grounded on the teacher's toolregistry/executor sink-subscribe-ack
// consumer-loop idiom adapted to four in-process channels instead of one
// Pulse stream.
type Router struct {
	queues   map[Priority]*queue
	handlers map[string]Handler
	handlersMu sync.RWMutex

	retryLimit int
	cacheTTL   time.Duration
	cache      ResultCache

	logger  telemetry.Logger
	metrics telemetry.Metrics

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Router. Call Start to launch the four consumer loops.
func New(opts ...Option) *Router {
	r := &Router{
		queues:     map[Priority]*queue{},
		handlers:   map[string]Handler{},
		retryLimit: 3,
		cacheTTL:   time.Hour,
		cache:      NewInmemCache(),
		logger:     telemetry.NewNoopLogger(),
		metrics:    telemetry.NewNoopMetrics(),
	}
	for p, spec := range specs {
		r.queues[p] = &queue{ch: make(chan Event, spec.capacity), minDelay: spec.minDelay}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterHandler wires kind to the handler invoked for events of that
// kind, the static "kind -> handler" map named in the specification.
func (r *Router) RegisterHandler(kind string, h Handler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers[kind] = h
}

// Submit enqueues evt into the queue for evt.Priority as given; it does
// not derive a priority itself (DerivePriority computes one for callers
// to set). Returns ErrQueueFull if the target queue is at capacity.
func (r *Router) Submit(evt Event) error {
	q := r.queues[evt.Priority]
	select {
	case q.ch <- evt:
		r.metrics.IncCounter("events.submitted", 1, "priority", evt.Priority.String())
		return nil
	default:
		r.metrics.IncCounter("events.dropped", 1, "priority", evt.Priority.String())
		return conductorerrors.ErrQueueFull
	}
}

// Start launches one consumer loop per priority queue.
func (r *Router) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	for p, q := range r.queues {
		r.wg.Add(1)
		go r.consume(ctx, p, q)
	}
}

// Stop cancels every consumer loop and waits for it to exit.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Router) consume(ctx context.Context, p Priority, q *queue) {
	defer r.wg.Done()
	var lastDispatch time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-q.ch:
			if wait := q.minDelay - time.Since(lastDispatch); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
			lastDispatch = time.Now()
			r.dispatch(ctx, evt)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, evt Event) {
	r.handlersMu.RLock()
	h, ok := r.handlers[evt.Kind]
	r.handlersMu.RUnlock()
	if !ok {
		r.logger.Warn(ctx, "no handler registered for event kind", "kind", evt.Kind, "event_id", evt.ID)
		return
	}

	start := time.Now()
	result, err := h(ctx, evt)
	elapsed := time.Since(start)

	entry := CacheEntry{
		EventID:   evt.ID,
		Kind:      evt.Kind,
		Success:   err == nil,
		Result:    result,
		Duration:  elapsed,
		Timestamp: time.Now(),
	}
	if err != nil {
		entry.Err = err.Error()
	}
	if cacheErr := r.cache.Put(ctx, entry, r.cacheTTL); cacheErr != nil {
		r.logger.Error(ctx, "result cache write failed", cacheErr, "event_id", evt.ID)
	}

	if err == nil {
		r.metrics.IncCounter("events.processed", 1, "kind", evt.Kind)
		return
	}

	r.metrics.IncCounter("events.failed", 1, "kind", evt.Kind)
	evt.RetryCount++
	if evt.RetryCount > r.retryLimit {
		r.logger.Error(ctx, "event exceeded retry limit, recording as failed", err, "event_id", evt.ID, "kind", evt.Kind)
		return
	}
	evt.Priority = evt.Priority.demote()
	if subErr := r.Submit(evt); subErr != nil {
		r.logger.Error(ctx, "failed to resubmit event after demotion", subErr, "event_id", evt.ID)
	}
}

// Result returns the cached outcome for a previously processed event id.
func (r *Router) Result(ctx context.Context, eventID string) (CacheEntry, bool, error) {
	return r.cache.Get(ctx, eventID)
}
