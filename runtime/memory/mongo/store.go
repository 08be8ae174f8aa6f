package mongo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/noteldar/conductor/runtime/memory"
	"github.com/noteldar/conductor/runtime/task"
)

// Store is a thin memory.Store wrapper delegating to a Client, mirroring
// the teacher's features/memory/mongo.Store shape.
type Store struct {
	client Client

	purgeCancel context.CancelFunc
	purgeWg     sync.WaitGroup
}

// NewStore builds a Store over an already-constructed Client.
func NewStore(c Client) *Store { return &Store{client: c} }

type taskResultDoc struct {
	TaskID      string         `bson:"task_id"`
	WorkerName  string         `bson:"worker_name"`
	Status      string         `bson:"status"`
	Result      any            `bson:"result"`
	Error       string         `bson:"error,omitempty"`
	ExecutionMs float64        `bson:"execution_time"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	Timestamp   time.Time      `bson:"timestamp"`
}

type preferenceDoc struct {
	PreferenceKey   string    `bson:"preference_key"`
	PreferenceValue any       `bson:"preference_value"`
	WorkerName      string    `bson:"worker_name"`
	LearnedAt       time.Time `bson:"learned_at"`
	Confidence      float64   `bson:"confidence"`
}

type contextDoc struct {
	WorkerName  string    `bson:"worker_name"`
	ContextType string    `bson:"context_type"`
	ContextData any       `bson:"context_data"`
	Timestamp   time.Time `bson:"timestamp"`
	ExpiryDate  time.Time `bson:"expiry_date"`
}

type patternDoc struct {
	WorkerName  string    `bson:"worker_name"`
	PatternType string    `bson:"pattern_type"`
	PatternData any       `bson:"pattern_data,omitempty"`
	Frequency   int64     `bson:"frequency"`
	SuccessRate float64   `bson:"success_rate"`
	LastUpdated time.Time `bson:"last_updated"`
}

func (s *Store) Init(context.Context, string) error { return nil }

// RecordResult writes the TaskResult and atomically upserts the
// LearningPattern keyed by (worker, kind) using an aggregation-pipeline
// update so the new success_rate is computed from the document's own
// prior state in a single round trip.
func (s *Store) RecordResult(ctx context.Context, worker, kind string, r *task.Result) error {
	doc := taskResultDoc{
		TaskID:      r.TaskID,
		WorkerName:  worker,
		Status:      string(r.Status),
		Result:      r.Payload,
		Error:       r.Error,
		ExecutionMs: float64(r.Duration.Milliseconds()),
		Metadata:    r.Metadata,
		Timestamp:   r.CompletedAt,
	}
	if _, err := s.client.TaskResults().InsertOne(ctx, doc); err != nil {
		return err
	}

	if r.Status != task.StatusSuccess {
		return nil
	}

	filter := bson.M{"worker_name": worker, "pattern_type": kind}
	pipeline := mongodriver.Pipeline{
		bson.D{{Key: "$set", Value: bson.M{
			"worker_name":  worker,
			"pattern_type": kind,
			"frequency":    bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$frequency", 0}}, 1}},
			"success_rate": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{
					bson.M{"$multiply": bson.A{
						bson.M{"$ifNull": bson.A{"$success_rate", 0}},
						bson.M{"$ifNull": bson.A{"$frequency", 0}},
					}},
					1,
				}},
				bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$frequency", 0}}, 1}},
			}},
			"last_updated": time.Now(),
		}}},
	}
	_, err := s.client.LearningPatterns().UpdateOne(ctx, filter, pipeline, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) PutPreference(ctx context.Context, worker, key string, value any, confidence float64) error {
	filter := bson.M{"preference_key": key, "worker_name": worker}
	update := bson.M{
		"$setOnInsert": bson.M{"preference_key": key, "worker_name": worker},
		"$set": bson.M{
			"preference_value": value,
			"confidence":       confidence,
			"learned_at":       time.Now(),
		},
	}
	_, err := s.client.Preferences().UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) GetPreferences(ctx context.Context, worker string) ([]memory.PreferenceEntry, error) {
	filter := bson.M{}
	if worker != "" {
		filter["worker_name"] = worker
	}
	opts := options.Find().SetSort(bson.D{{Key: "confidence", Value: -1}})
	cur, err := s.client.Preferences().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []memory.PreferenceEntry
	for cur.Next(ctx) {
		var d preferenceDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, memory.PreferenceEntry{
			Key: d.PreferenceKey, Value: d.PreferenceValue, Worker: d.WorkerName,
			LearnedAt: d.LearnedAt, Confidence: d.Confidence,
		})
	}
	return out, cur.Err()
}

func (s *Store) PutContext(ctx context.Context, worker, typ string, payload any, ttl time.Duration) error {
	now := time.Now()
	doc := contextDoc{
		WorkerName: worker, ContextType: typ, ContextData: payload,
		Timestamp: now, ExpiryDate: now.Add(ttl),
	}
	_, err := s.client.ContextMemory().InsertOne(ctx, doc)
	return err
}

// GetContext first deletes expired entries, then returns the remainder
// matching typ, newest first — ensureIndexes additionally installs a TTL
// index on expiry_date as a second line of defense.
func (s *Store) GetContext(ctx context.Context, worker, typ string) ([]memory.ContextEntry, error) {
	if _, err := s.client.ContextMemory().DeleteMany(ctx, bson.M{"expiry_date": bson.M{"$lt": time.Now()}}); err != nil {
		return nil, err
	}

	filter := bson.M{"worker_name": worker}
	if typ != "" {
		filter["context_type"] = typ
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cur, err := s.client.ContextMemory().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []memory.ContextEntry
	for cur.Next(ctx) {
		var d contextDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, memory.ContextEntry{
			Worker: d.WorkerName, Type: d.ContextType, Payload: d.ContextData,
			CreatedAt: d.Timestamp, ExpiresAt: d.ExpiryDate,
		})
	}
	return out, cur.Err()
}

func (s *Store) TaskHistory(ctx context.Context, worker string, limit int) ([]task.Result, error) {
	filter := bson.M{}
	if worker != "" {
		filter["worker_name"] = worker
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.client.TaskResults().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []task.Result
	for cur.Next(ctx) {
		var d taskResultDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, task.Result{
			TaskID: d.TaskID, WorkerName: d.WorkerName, Status: task.Status(d.Status),
			Payload: d.Result, Error: d.Error, Duration: time.Duration(d.ExecutionMs) * time.Millisecond,
			Metadata: d.Metadata, CompletedAt: d.Timestamp,
		})
	}
	return out, cur.Err()
}

func (s *Store) Patterns(ctx context.Context, worker string, minFrequency int64) ([]memory.LearningPattern, error) {
	filter := bson.M{"worker_name": worker, "frequency": bson.M{"$gte": minFrequency}}
	opts := options.Find().SetSort(bson.D{{Key: "success_rate", Value: -1}, {Key: "frequency", Value: -1}})
	cur, err := s.client.LearningPatterns().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []memory.LearningPattern
	for cur.Next(ctx) {
		var d patternDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, memory.LearningPattern{
			Worker: d.WorkerName, PatternType: d.PatternType, Payload: d.PatternData,
			Frequency: d.Frequency, SuccessRate: d.SuccessRate, LastUpdated: d.LastUpdated,
		})
	}
	return out, cur.Err()
}

func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	if _, err := s.client.TaskResults().DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}}); err != nil {
		return err
	}
	if _, err := s.client.Interactions().DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}}); err != nil {
		return err
	}
	_, err := s.client.ContextMemory().DeleteMany(ctx, bson.M{"expiry_date": bson.M{"$lt": time.Now()}})
	return err
}

func (s *Store) SaveAll(context.Context) error { return nil }

// StartPurgeLoop launches a ticker-driven loop that calls PurgeOlderThan
// with a rolling cutoff of now-retention on every tick, mirroring the
// orchestrator's health-monitor start/stop/waitgroup idiom. Note there is
// no Mongo counterpart to inmem.Store.RecomputePatterns: the aggregation
// pipeline in RecordResult already recomputes success_rate from the
// document's true prior state on every write, so there is no client-side
// drift to correct here.
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
