package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// wireCacheEntry is CacheEntry's JSON-round-trippable shape (time.Duration
// is stored as nanoseconds).
type wireCacheEntry struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	Success     bool      `json:"success"`
	Result      string    `json:"result"`
	DurationNs  int64     `json:"duration_ns"`
	Timestamp   time.Time `json:"timestamp"`
	Err         string    `json:"error,omitempty"`
}

func encodeCacheEntry(e CacheEntry) ([]byte, error) {
	return json.Marshal(wireCacheEntry{
		EventID:    e.EventID,
		Kind:       e.Kind,
		Success:    e.Success,
		Result:     e.Result,
		DurationNs: int64(e.Duration),
		Timestamp:  e.Timestamp,
		Err:        e.Err,
	})
}

func decodeCacheEntry(data string) (CacheEntry, error) {
	var w wireCacheEntry
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return CacheEntry{}, err
	}
	return CacheEntry{
		EventID:   w.EventID,
		Kind:      w.Kind,
		Success:   w.Success,
		Result:    w.Result,
		Duration:  time.Duration(w.DurationNs),
		Timestamp: w.Timestamp,
		Err:       w.Err,
	}, nil
}

// ResultCache stores one CacheEntry per processed event, keyed by event
// id, evicting entries older than its configured TTL.
type ResultCache interface {
	Put(ctx context.Context, entry CacheEntry, ttl time.Duration) error
	Get(ctx context.Context, eventID string) (CacheEntry, bool, error)
}

// inmemCache is the default ResultCache: a mutex-guarded map with
// lazy expiry on read, mirroring runtime/memory/inmem's context-entry
// eviction pattern.
type inmemCache struct {
	mu      sync.Mutex
	entries map[string]inmemEntry
}

type inmemEntry struct {
	entry  CacheEntry
	expiry time.Time
}

// NewInmemCache builds the default in-process result cache.
func NewInmemCache() ResultCache {
	return &inmemCache{entries: make(map[string]inmemEntry)}
}

func (c *inmemCache) Put(_ context.Context, entry CacheEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.EventID] = inmemEntry{entry: entry, expiry: time.Now().Add(ttl)}
	return nil
}

func (c *inmemCache) Get(_ context.Context, eventID string) (CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
	e, ok := c.entries[eventID]
	if !ok {
		return CacheEntry{}, false, nil
	}
	return e.entry, true, nil
}

func (c *inmemCache) evictLocked() {
	now := time.Now()
	for id, e := range c.entries {
		if now.After(e.expiry) {
			delete(c.entries, id)
		}
	}
}

// redisCache is a cross-process result cache grounded on the teacher's
// registry.ResultStreamManager: a *redis.Client field addressed directly
// (no interface wrapper, matching result_stream.go), JSON-encoded values,
// TTL expressed natively via SET...EX rather than a background sweep.
type redisCache struct {
	rdb *redis.Client
}

// NewRedisCache builds a Redis-backed result cache.
func NewRedisCache(rdb *redis.Client) ResultCache {
	return &redisCache{rdb: rdb}
}

func (c *redisCache) key(eventID string) string { return "conductor:event:" + eventID }

func (c *redisCache) Put(ctx context.Context, entry CacheEntry, ttl time.Duration) error {
	data, err := encodeCacheEntry(entry)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(entry.EventID), data, ttl).Err()
}

func (c *redisCache) Get(ctx context.Context, eventID string) (CacheEntry, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(eventID)).Result()
	if err == redis.Nil {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, err
	}
	entry, err := decodeCacheEntry(data)
	if err != nil {
		return CacheEntry{}, false, err
	}
	return entry, true, nil
}
