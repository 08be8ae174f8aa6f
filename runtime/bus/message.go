// Package bus implements per-worker mailboxes, request/response
// correlation with timeout, and broadcast fan-out — the inter-worker
// message bus.
package bus

import "time"

// Kind discriminates how a Message is routed and handled.
type Kind string

const (
	KindRequest       Kind = "request"
	KindResponse      Kind = "response"
	KindBroadcast     Kind = "broadcast"
	KindCollaboration Kind = "collaboration"
	KindDelegation    Kind = "delegation"
	KindNotification  Kind = "notification"
)

// Message is one entry in a recipient's mailbox.
type Message struct {
	ID              string
	Sender          string
	Recipient       string
	Kind            Kind
	Payload         any
	Timestamp       time.Time
	CorrelationID   string
	RequiresResponse bool
	Priority        int // 1 = highest ... 10 = lowest; advisory only, it never reorders a mailbox.
}

// Broadcast fans out into one Message per target, each carrying kind
// KindBroadcast and wrapping the original (kind, payload) pair in Payload.
type Broadcast struct {
	ID        string
	Sender    string
	Kind      string
	Payload   any
	Recipients []string // empty means every other registered worker
	Timestamp time.Time
}

// broadcastEnvelope is what ends up in Message.Payload for a fanned-out
// broadcast.
type broadcastEnvelope struct {
	Kind    string
	Payload any
}
