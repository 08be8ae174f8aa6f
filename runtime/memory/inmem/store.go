// Package inmem is a Store implementation backed by process memory, used
// for tests and local development where a Mongo deployment isn't
// available.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/noteldar/conductor/runtime/memory"
	"github.com/noteldar/conductor/runtime/task"
)

// recordedResult pairs a task.Result with the task kind it was recorded
// under, so patterns can be recomputed from raw history later.
type recordedResult struct {
	kind string
	task.Result
}

type workerBook struct {
	results     []recordedResult
	preferences map[string]memory.PreferenceEntry // keyed by preference key
	contexts    []memory.ContextEntry
	patterns    map[string]*memory.LearningPattern // keyed by pattern type
}

// Store is a mutex-guarded map of per-worker bookkeeping. A single mutex
// serializes every operation so the result+pattern update in RecordResult
// is atomic, matching the specification's cross-operation atomicity
// requirement.
type Store struct {
	mu      sync.Mutex
	workers map[string]*workerBook
	nextSeq int64

	purgeCancel context.CancelFunc
	purgeWg     sync.WaitGroup
}

// New builds an empty Store.
func New() *Store {
	return &Store{workers: map[string]*workerBook{}}
}

func (s *Store) book(worker string) *workerBook {
	b, ok := s.workers[worker]
	if !ok {
		b = &workerBook{
			preferences: map[string]memory.PreferenceEntry{},
			patterns:    map[string]*memory.LearningPattern{},
		}
		s.workers[worker] = b
	}
	return b
}

func (s *Store) Init(_ context.Context, worker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.book(worker)
	return nil
}

// RecordResult persists r and, on success, atomically updates the
// LearningPattern keyed by (worker, kind).
func (s *Store) RecordResult(_ context.Context, worker, kind string, r *task.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	b.results = append(b.results, recordedResult{kind: kind, Result: *r})

	if r.Status == task.StatusSuccess {
		p, ok := b.patterns[kind]
		if !ok {
			b.patterns[kind] = &memory.LearningPattern{
				ID:          kind,
				Worker:      worker,
				PatternType: kind,
				Frequency:   1,
				SuccessRate: 1.0,
				LastUpdated: time.Now(),
			}
		} else {
			p.Frequency++
			p.SuccessRate = (p.SuccessRate*float64(p.Frequency-1) + 1) / float64(p.Frequency)
			p.LastUpdated = time.Now()
		}
	}
	return nil
}

func (s *Store) PutPreference(_ context.Context, worker, key string, value any, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	b.preferences[key] = memory.PreferenceEntry{
		Key:        key,
		Value:      value,
		Worker:     worker,
		LearnedAt:  time.Now(),
		Confidence: confidence,
	}
	return nil
}

func (s *Store) GetPreferences(_ context.Context, worker string) ([]memory.PreferenceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	out := make([]memory.PreferenceEntry, 0, len(b.preferences))
	for _, p := range b.preferences {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (s *Store) PutContext(_ context.Context, worker, typ string, payload any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	now := time.Now()
	b.contexts = append(b.contexts, memory.ContextEntry{
		ID:        worker + "/" + typ + "/" + now.Format(time.RFC3339Nano),
		Worker:    worker,
		Type:      typ,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	return nil
}

// GetContext first evicts expired entries, then returns remaining entries
// matching typ, newest first.
func (s *Store) GetContext(_ context.Context, worker, typ string) ([]memory.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	now := time.Now()
	live := b.contexts[:0]
	for _, c := range b.contexts {
		if c.ExpiresAt.After(now) {
			live = append(live, c)
		}
	}
	b.contexts = live

	out := make([]memory.ContextEntry, 0, len(live))
	for _, c := range live {
		if typ == "" || c.Type == typ {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) TaskHistory(_ context.Context, worker string, limit int) ([]task.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pool []task.Result
	if worker == "" {
		for _, b := range s.workers {
			for _, rr := range b.results {
				pool = append(pool, rr.Result)
			}
		}
	} else {
		for _, rr := range s.book(worker).results {
			pool = append(pool, rr.Result)
		}
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].CompletedAt.After(pool[j].CompletedAt) })
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	return pool, nil
}

func (s *Store) Patterns(_ context.Context, worker string, minFrequency int64) ([]memory.LearningPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	out := make([]memory.LearningPattern, 0, len(b.patterns))
	for _, p := range b.patterns {
		if p.Frequency >= minFrequency {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].Frequency > out[j].Frequency
	})
	return out, nil
}

func (s *Store) PurgeOlderThan(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.workers {
		kept := b.results[:0]
		for _, rr := range b.results {
			if rr.CompletedAt.After(cutoff) {
				kept = append(kept, rr)
			}
		}
		b.results = kept

		keptCtx := b.contexts[:0]
		now := time.Now()
		for _, c := range b.contexts {
			if c.ExpiresAt.After(now) && c.CreatedAt.After(cutoff) {
				keptCtx = append(keptCtx, c)
			}
		}
		b.contexts = keptCtx
	}
	return nil
}

func (s *Store) SaveAll(context.Context) error { return nil }

// RecomputePatterns rebuilds worker's LearningPatterns from scratch using
// only results completed within the trailing window, instead of folding
// each new result into the running incremental average. Callers that
// notice the incremental moving average (used by RecordResult) drifting
// from a pattern's true recent success rate can call this periodically to
// snap it back to ground truth.
func (s *Store) RecomputePatterns(_ context.Context, worker string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.book(worker)
	cutoff := time.Now().Add(-window)

	fresh := map[string]*memory.LearningPattern{}
	for _, rr := range b.results {
		if rr.CompletedAt.Before(cutoff) {
			continue
		}
		p, ok := fresh[rr.kind]
		if !ok {
			p = &memory.LearningPattern{ID: rr.kind, Worker: worker, PatternType: rr.kind}
			fresh[rr.kind] = p
		}
		p.Frequency++
		if rr.Status == task.StatusSuccess {
			p.SuccessRate += 1
		}
		p.LastUpdated = time.Now()
	}
	for _, p := range fresh {
		if p.Frequency > 0 {
			p.SuccessRate /= float64(p.Frequency)
		}
	}
	b.patterns = fresh
	return nil
}

// StartPurgeLoop launches a ticker-driven loop that calls PurgeOlderThan
// with a rolling cutoff of now-retention on every tick, mirroring the
// orchestrator's health-monitor start/stop/waitgroup idiom.
func (s *Store) StartPurgeLoop(ctx context.Context, interval, retention time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	s.purgeCancel = cancel
	s.purgeWg.Add(1)
	go func() {
		defer s.purgeWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.PurgeOlderThan(ctx, time.Now().Add(-retention))
			}
		}
	}()
}

// StopPurgeLoop cancels the purge loop and waits for it to exit.
func (s *Store) StopPurgeLoop() {
	if s.purgeCancel != nil {
		s.purgeCancel()
	}
	s.purgeWg.Wait()
}

var _ memory.Store = (*Store)(nil)
