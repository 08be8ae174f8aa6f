package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noteldar/conductor/runtime/conductorerrors"
	"github.com/noteldar/conductor/runtime/telemetry"
)

// Handler is the bus-integration surface a registered worker exposes.
// worker.BaseWorker satisfies this structurally.
type Handler interface {
	HandleMessage(ctx context.Context, msg *Message) (*Message, error)
	HandleBroadcast(ctx context.Context, kind string, payload any)
	HandleNotification(ctx context.Context, payload any)
	AcceptDelegation(ctx context.Context, msg *Message) (bool, map[string]any)
}

// mailbox is a single worker's inbound FIFO queue.
type mailbox struct {
	mu    sync.Mutex
	items []*Message
}

func newMailbox() *mailbox { return &mailbox{} }

func (m *mailbox) push(msg *Message) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()
}

// drain removes and returns every currently queued message, preserving
// enqueue order, or nil if empty.
func (m *mailbox) drain() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil
	}
	out := m.items
	m.items = nil
	return out
}

type pendingResponse struct {
	ch chan *Message
}

// Option configures a Bus.
type Option func(*Bus)

func WithResponseTimeout(d time.Duration) Option { return func(b *Bus) { b.responseTimeout = d } }
func WithLogger(l telemetry.Logger) Option        { return func(b *Bus) { b.logger = l } }
func WithMetrics(m telemetry.Metrics) Option      { return func(b *Bus) { b.metrics = m } }
func WithPollInterval(d time.Duration) Option     { return func(b *Bus) { b.pollInterval = d } }

// Bus implements per-worker mailbox delivery, request/response
// correlation with timeout, and broadcast fan-out, grounded on the
// teacher's channelBroadcaster (fan-out) and ResultStreamManager
// (correlation-with-timeout) patterns.
type Bus struct {
	mu              sync.RWMutex
	mailboxes       map[string]*mailbox
	handlers        map[string]Handler
	pending         map[string]*pendingResponse
	subscriptions   map[string]map[string]struct{} // worker -> channel set
	history         []*Message
	historyMu       sync.Mutex
	responseTimeout time.Duration
	pollInterval    time.Duration
	logger          telemetry.Logger
	metrics         telemetry.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// New builds an empty Bus with the given defaults.
func New(opts ...Option) *Bus {
	b := &Bus{
		mailboxes:       map[string]*mailbox{},
		handlers:        map[string]Handler{},
		pending:         map[string]*pendingResponse{},
		subscriptions:   map[string]map[string]struct{}{},
		responseTimeout: 30 * time.Second,
		pollInterval:    10 * time.Millisecond,
		logger:          telemetry.NewNoopLogger(),
		metrics:         telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates workerID's mailbox and binds its Handler.
func (b *Bus) Register(workerID string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mailboxes[workerID] = newMailbox()
	b.handlers[workerID] = h
}

// Subscribe opts workerID into a named channel.
func (b *Bus) Subscribe(workerID, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscriptions[workerID]
	if !ok {
		set = map[string]struct{}{}
		b.subscriptions[workerID] = set
	}
	set[channel] = struct{}{}
}

// Start launches one consumer goroutine per registered mailbox. Each loop
// drains its mailbox in FIFO order and dispatches by kind.
func (b *Bus) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.mu.RLock()
	ids := make([]string, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	for _, id := range ids {
		b.wg.Add(1)
		go b.consume(ctx, id)
	}
}

// Stop cancels all consumer loops and fails every pending response future
// with ErrShutdown.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	pending := b.pending
	b.pending = map[string]*pendingResponse{}
	b.mu.Unlock()

	for _, p := range pending {
		close(p.ch)
	}
	b.wg.Wait()
}

func (b *Bus) consume(ctx context.Context, workerID string) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.RLock()
			box := b.mailboxes[workerID]
			handler := b.handlers[workerID]
			b.mu.RUnlock()
			if box == nil {
				continue
			}
			for _, msg := range box.drain() {
				b.dispatch(ctx, workerID, handler, msg)
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, workerID string, handler Handler, msg *Message) {
	switch msg.Kind {
	case KindRequest, KindCollaboration:
		if handler == nil {
			return
		}
		resp, err := handler.HandleMessage(ctx, msg)
		if err != nil {
			b.logger.Warn(ctx, "handler error", "worker", workerID, "error", err.Error())
		}
		if msg.RequiresResponse {
			b.sendResponse(ctx, workerID, msg, resp)
		}
	case KindDelegation:
		if handler == nil {
			return
		}
		accepted, meta := handler.AcceptDelegation(ctx, msg)
		if msg.RequiresResponse {
			b.sendResponse(ctx, workerID, msg, &Message{Payload: map[string]any{"accepted": accepted, "metadata": meta}})
		}
	case KindResponse:
		b.completeResponse(msg)
	case KindBroadcast:
		if handler == nil {
			return
		}
		env, ok := msg.Payload.(broadcastEnvelope)
		if !ok {
			return
		}
		handler.HandleBroadcast(ctx, env.Kind, env.Payload)
	case KindNotification:
		if handler != nil {
			handler.HandleNotification(ctx, msg.Payload)
		}
	}
}

func (b *Bus) sendResponse(ctx context.Context, from string, original *Message, resp *Message) {
	if resp == nil {
		resp = &Message{}
	}
	resp.ID = uuid.New().String()
	resp.Sender = from
	resp.Recipient = original.Sender
	resp.Kind = KindResponse
	resp.CorrelationID = original.ID
	resp.Timestamp = time.Now()
	b.deliver(resp)
}

func (b *Bus) completeResponse(msg *Message) {
	b.mu.Lock()
	p, ok := b.pending[msg.CorrelationID]
	if ok {
		delete(b.pending, msg.CorrelationID)
	}
	b.mu.Unlock()
	if !ok {
		// CorrelationUnknown: a late or unsolicited response is logged and
		// silently dropped, per the specification's error taxonomy.
		b.logger.Debug(context.Background(), "dropping response with unknown correlation id",
			"correlation_id", msg.CorrelationID)
		return
	}
	p.ch <- msg
}

func (b *Bus) deliver(msg *Message) {
	b.mu.RLock()
	box := b.mailboxes[msg.Recipient]
	b.mu.RUnlock()
	if box == nil {
		return
	}
	box.push(msg)
	b.recordHistory(msg)
}

func (b *Bus) recordHistory(msg *Message) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, msg)
}

// History returns every message retained so far (bounded by periodic
// purge, driven externally by the memory retention policy).
func (b *Bus) History() []*Message {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	out := make([]*Message, len(b.history))
	copy(out, b.history)
	return out
}

// PurgeHistoryBefore drops retained messages older than cutoff.
func (b *Bus) PurgeHistoryBefore(cutoff time.Time) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	kept := b.history[:0]
	for _, m := range b.history {
		if !m.Timestamp.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	b.history = kept
}

// Send enqueues a message from sender to recipient. When requiresResponse
// is true, it blocks until a correlated response arrives or the bus's
// configured timeout elapses, returning ErrMessageTimeout in that case.
func (b *Bus) Send(ctx context.Context, sender, recipient string, kind Kind, payload any, requiresResponse bool, priority int) (*Message, error) {
	msg := &Message{
		ID:               uuid.New().String(),
		Sender:           sender,
		Recipient:        recipient,
		Kind:             kind,
		Payload:          payload,
		Timestamp:        time.Now(),
		RequiresResponse: requiresResponse,
		Priority:         priority,
	}

	if !requiresResponse {
		b.deliver(msg)
		return nil, nil
	}

	p := &pendingResponse{ch: make(chan *Message, 1)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, conductorerrors.ErrShutdown
	}
	b.pending[msg.ID] = p
	b.mu.Unlock()

	b.deliver(msg)

	timer := time.NewTimer(b.responseTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-p.ch:
		if !ok {
			return nil, conductorerrors.ErrShutdown
		}
		return resp, nil
	case <-timer.C:
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		b.metrics.IncCounter("bus.message_timeout", 1)
		return nil, conductorerrors.ErrMessageTimeout
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Broadcast fans out to every target (all other registered workers when
// recipients is empty), enqueuing a KindBroadcast message per target that
// wraps (kind, payload). Broadcasts are sent with an elevated default
// priority of 7 — advisory only, it never reorders a mailbox.
func (b *Bus) Broadcast(sender, kind string, payload any, recipients []string) {
	b.mu.RLock()
	targets := recipients
	if len(targets) == 0 {
		targets = make([]string, 0, len(b.mailboxes))
		for id := range b.mailboxes {
			if id != sender {
				targets = append(targets, id)
			}
		}
	}
	b.mu.RUnlock()

	env := broadcastEnvelope{Kind: kind, Payload: payload}
	for _, target := range targets {
		msg := &Message{
			ID:        uuid.New().String(),
			Sender:    sender,
			Recipient: target,
			Kind:      KindBroadcast,
			Payload:   env,
			Timestamp: time.Now(),
			Priority:  7,
		}
		b.deliver(msg)
	}
}

// RequestCollaboration is a Send specialization with kind=collaboration,
// requiresResponse=true.
func (b *Bus) RequestCollaboration(ctx context.Context, a, bID string, descriptor any) (*Message, error) {
	return b.Send(ctx, a, bID, KindCollaboration, descriptor, true, 5)
}

// Delegate is a Send specialization with kind=delegation.
func (b *Bus) Delegate(ctx context.Context, a, bID string, descriptor any) (*Message, error) {
	return b.Send(ctx, a, bID, KindDelegation, descriptor, true, 5)
}
