package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noteldar/conductor/runtime/conductorerrors"
)

type stubHandler struct {
	onMessage func(ctx context.Context, msg *Message) (*Message, error)
}

func (h *stubHandler) HandleMessage(ctx context.Context, msg *Message) (*Message, error) {
	if h.onMessage != nil {
		return h.onMessage(ctx, msg)
	}
	return nil, nil
}
func (h *stubHandler) HandleBroadcast(context.Context, string, any)               {}
func (h *stubHandler) HandleNotification(context.Context, any)                   {}
func (h *stubHandler) AcceptDelegation(context.Context, *Message) (bool, map[string]any) {
	return true, nil
}

func TestRequestResponseRoundTrip(t *testing.T) {
	t.Parallel()
	b := New(WithResponseTimeout(time.Second), WithPollInterval(time.Millisecond))

	worker := &stubHandler{
		onMessage: func(ctx context.Context, msg *Message) (*Message, error) {
			time.Sleep(20 * time.Millisecond)
			return &Message{Payload: "pong"}, nil
		},
	}
	b.Register("a", &stubHandler{})
	b.Register("b", worker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	resp, err := b.Send(context.Background(), "a", "b", KindRequest, "ping", true, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payload != "pong" {
		t.Fatalf("want pong, got %v", resp.Payload)
	}
	if resp.CorrelationID == "" {
		t.Fatalf("expected correlation id to be set")
	}
}

func TestRequestTimesOutWhenNoResponse(t *testing.T) {
	t.Parallel()
	b := New(WithResponseTimeout(50*time.Millisecond), WithPollInterval(time.Millisecond))
	b.Register("a", &stubHandler{})
	b.Register("b", &stubHandler{onMessage: func(context.Context, *Message) (*Message, error) {
		return nil, nil // the bus still sends an empty response on b's behalf
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	// Because the bus answers for b, simulate the "never replies" case by
	// sending to a worker with no handler, registered after Start so no
	// consumer loop drains its mailbox. This confirms the timeout fires.
	b.Register("silent", nil)
	_, err := b.Send(context.Background(), "a", "silent", KindRequest, "ping", true, 5)
	if !errors.Is(err, conductorerrors.ErrMessageTimeout) {
		t.Fatalf("want ErrMessageTimeout, got %v", err)
	}
}

func TestBroadcastTargetsEveryoneButSender(t *testing.T) {
	t.Parallel()
	received := make(chan string, 2)
	makeHandler := func(name string) *stubHandler {
		return &stubHandler{}
	}
	b := New(WithPollInterval(time.Millisecond))
	b.Register("a", makeHandler("a"))
	b.Register("b", &stubHandler{})
	b.Register("c", &stubHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	b.Broadcast("a", "notice", "hello", nil)
	time.Sleep(20 * time.Millisecond)

	history := b.History()
	count := 0
	for _, m := range history {
		if m.Kind == KindBroadcast {
			count++
			received <- m.Recipient
		}
	}
	if count != 2 {
		t.Fatalf("want 2 broadcast messages (b and c), got %d", count)
	}
}
