package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/noteldar/conductor/runtime/task"
)

// fakeCollection records every write it receives; Find/FindOne/Indexes are
// unused by the Store paths this test exercises, so they return zero
// values rather than faking a live cursor.
type fakeCollection struct {
	inserts []any
	updates []struct{ filter, update any }
	deletes []any
}

func (f *fakeCollection) InsertOne(_ context.Context, doc any) (*mongodriver.InsertOneResult, error) {
	f.inserts = append(f.inserts, doc)
	return &mongodriver.InsertOneResult{}, nil
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter, update any, _ ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	f.updates = append(f.updates, struct{ filter, update any }{filter, update})
	return &mongodriver.UpdateResult{}, nil
}

func (f *fakeCollection) Find(context.Context, any, ...options.Lister[options.FindOptionsBuilder]) (*mongodriver.Cursor, error) {
	return nil, nil
}

func (f *fakeCollection) FindOne(context.Context, any, ...options.Lister[options.FindOneOptionsBuilder]) singleResult {
	return nil
}

func (f *fakeCollection) DeleteMany(_ context.Context, filter any) (*mongodriver.DeleteResult, error) {
	f.deletes = append(f.deletes, filter)
	return &mongodriver.DeleteResult{}, nil
}

func (f *fakeCollection) Indexes() indexView { return nil }

type fakeClient struct {
	taskResults      fakeCollection
	preferences      fakeCollection
	interactions     fakeCollection
	contextMemory    fakeCollection
	learningPatterns fakeCollection
}

func (c *fakeClient) Ping(context.Context) error                    { return nil }
func (c *fakeClient) TaskResults() collection                       { return &c.taskResults }
func (c *fakeClient) Preferences() collection                       { return &c.preferences }
func (c *fakeClient) Interactions() collection                      { return &c.interactions }
func (c *fakeClient) ContextMemory() collection                     { return &c.contextMemory }
func (c *fakeClient) LearningPatterns() collection                  { return &c.learningPatterns }

func TestRecordResultInsertsAndUpsertsPatternOnSuccess(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	store := NewStore(fc)

	r := &task.Result{TaskID: "t1", Status: task.StatusSuccess, Duration: 10 * time.Millisecond, CompletedAt: time.Now()}
	err := store.RecordResult(context.Background(), "researcher", "research.deep_dive", r)
	require.NoError(t, err)

	require.Len(t, fc.taskResults.inserts, 1)
	require.Len(t, fc.learningPatterns.updates, 1, "success must upsert the learning pattern")
}

func TestRecordResultSkipsPatternUpdateOnFailure(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	store := NewStore(fc)

	r := &task.Result{TaskID: "t2", Status: task.StatusError, Error: "boom", CompletedAt: time.Now()}
	err := store.RecordResult(context.Background(), "researcher", "research.deep_dive", r)
	require.NoError(t, err)

	require.Len(t, fc.taskResults.inserts, 1)
	require.Empty(t, fc.learningPatterns.updates, "failures must not touch the learning pattern")
}

func TestPutPreferenceUpserts(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	store := NewStore(fc)

	err := store.PutPreference(context.Background(), "comms", "tone", "formal", 0.8)
	require.NoError(t, err)
	require.Len(t, fc.preferences.updates, 1)
}

func TestPutContextInserts(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	store := NewStore(fc)

	err := store.PutContext(context.Background(), "comms", "thread_summary", "hello", time.Hour)
	require.NoError(t, err)
	require.Len(t, fc.contextMemory.inserts, 1)
}

func TestPurgeOlderThanDeletesResultsInteractionsAndExpiredContext(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	store := NewStore(fc)

	err := store.PurgeOlderThan(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, fc.taskResults.deletes, 1)
	require.Len(t, fc.interactions.deletes, 1)
	require.Len(t, fc.contextMemory.deletes, 1)
}
