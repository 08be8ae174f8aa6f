package events

import (
	"context"
	"testing"
	"time"
)

func TestInmemCachePutGet(t *testing.T) {
	t.Parallel()
	c := NewInmemCache()
	ctx := context.Background()
	entry := CacheEntry{EventID: "evt_1", Kind: "ping", Success: true, Result: "ok", Timestamp: time.Now()}
	if err := c.Put(ctx, entry, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || got.Result != "ok" {
		t.Fatalf("unexpected entry: ok=%v entry=%+v", ok, got)
	}
}

func TestInmemCacheExpiresByTTL(t *testing.T) {
	t.Parallel()
	c := NewInmemCache()
	ctx := context.Background()
	entry := CacheEntry{EventID: "evt_2", Kind: "ping", Success: true, Timestamp: time.Now()}
	if err := c.Put(ctx, entry, time.Millisecond); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	_, ok, err := c.Get(ctx, "evt_2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("expected expired entry to be evicted on read")
	}
}

func TestCacheEntryRoundTripsThroughWireEncoding(t *testing.T) {
	t.Parallel()
	entry := CacheEntry{
		EventID:   "evt_3",
		Kind:      "ping",
		Success:   false,
		Result:    "",
		Duration:  250 * time.Millisecond,
		Timestamp: time.Now().Truncate(time.Second),
		Err:       "boom",
	}
	data, err := encodeCacheEntry(entry)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeCacheEntry(string(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != entry.EventID || got.Duration != entry.Duration || got.Err != entry.Err {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, entry)
	}
}
