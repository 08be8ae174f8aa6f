// Package events implements the Real-time Event Router: four priority
// queues with distinct service deadlines, a static kind-to-handler
// dispatch table, failure retry with priority demotion, and a
// TTL-expiring result cache.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Priority is the event router's own priority axis. It is distinct from
// task.Priority — it governs which of the four queues an event lands in
// and that queue's minimum service delay, not task scheduling order.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
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
	default:
		return "unknown"
	}
}

// demote returns the next priority down, or the same priority if already
// at the floor (Low events that keep failing stay Low).
func (p Priority) demote() Priority {
	if p == Low {
		return Low
	}
	return p + 1
}

// queueSpec is the fixed per-priority capacity and minimum service delay
// named in the specification.
type queueSpec struct {
	capacity  int
	minDelay  time.Duration
}

var specs = map[Priority]queueSpec{
	Critical: {capacity: 100, minDelay: 0},
	High:     {capacity: 500, minDelay: 1 * time.Second},
	Medium:   {capacity: 1000, minDelay: 5 * time.Second},
	Low:      {capacity: 2000, minDelay: 15 * time.Second},
}

// Event is a discrete external occurrence submitted to the router.
type Event struct {
	ID         string
	Kind       string
	Payload    map[string]any
	Priority   Priority
	RetryCount int
	Timestamp  time.Time
}

// DeriveID returns a stable id for (user, kind, timestamp): identical
// submissions at the same instant yield identical ids, matching the
// specification's idempotency note.
func DeriveID(user, kind string, ts time.Time) string {
	h := sha256.Sum256([]byte(user + "|" + kind + "|" + ts.UTC().Format(time.RFC3339Nano)))
	return "evt_" + hex.EncodeToString(h[:])[:16]
}

// urgentMarkers are the lower-case title substrings that make a new-meeting
// event critical in DerivePriority.
var urgentMarkers = []string{"urgent"}

// DerivePriority implements the specification's priority-derivation
// heuristic for event submission. kind identifies the event category;
// payload may carry "title" and "starts_in" (a time.Duration) for the
// new-meeting checks.
func DerivePriority(kind string, payload map[string]any) Priority {
	switch kind {
	case "meeting.new":
		if startsIn, ok := payload["starts_in"].(time.Duration); ok && startsIn <= time.Hour && startsIn >= 0 {
			return Critical
		}
		if title, ok := payload["title"].(string); ok && containsAny(strings.ToLower(title), urgentMarkers) {
			return Critical
		}
		return Low
	case "user.feedback":
		return High
	case "meeting.updated", "meeting.cancelled", "pattern.detected":
		return Medium
	default:
		return Low
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// CacheEntry is what the result cache stores for every processed event.
type CacheEntry struct {
	EventID   string
	Kind      string
	Success   bool
	Result    string // opaque serialized payload
	Duration  time.Duration
	Timestamp time.Time
	Err       string
}

func (e CacheEntry) String() string {
	return fmt.Sprintf("CacheEntry{event=%s kind=%s success=%v}", e.EventID, e.Kind, e.Success)
}
