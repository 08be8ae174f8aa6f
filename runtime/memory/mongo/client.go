// Package mongo is a MongoDB-backed memory.Store, grounded on the
// teacher's features/memory/mongo client: thin collection/index-view
// wrappers around the concrete driver types so unit tests can fake the
// database without a live deployment, upsert-on-write semantics via
// $setOnInsert/$set, and ensureIndexes run once at construction.
package mongo

import (
	"context"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"
)

// collection is the narrow surface this package needs from
// *mongodriver.Collection, mirroring the teacher's interface-over-client
// technique.
type collection interface {
	InsertOne(ctx context.Context, document any) (*mongodriver.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptionsBuilder]) (*mongodriver.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptionsBuilder]) singleResult
	DeleteMany(ctx context.Context, filter any) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateMany(ctx context.Context, models []mongodriver.IndexModel) ([]string, error)
}

type singleResult interface {
	Decode(v any) error
	Err() error
}

type mongoCollection struct{ c *mongodriver.Collection }

func (m mongoCollection) InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error) {
	return m.c.InsertOne(ctx, doc)
}

func (m mongoCollection) UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error) {
	return m.c.UpdateOne(ctx, filter, update, opts...)
}

func (m mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptionsBuilder]) (*mongodriver.Cursor, error) {
	return m.c.Find(ctx, filter, opts...)
}

func (m mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptionsBuilder]) singleResult {
	return mongoSingleResult{m.c.FindOne(ctx, filter, opts...)}
}

func (m mongoCollection) DeleteMany(ctx context.Context, filter any) (*mongodriver.DeleteResult, error) {
	return m.c.DeleteMany(ctx, filter)
}

func (m mongoCollection) Indexes() indexView { return mongoIndexView{m.c.Indexes()} }

type mongoIndexView struct{ v mongodriver.IndexView }

func (m mongoIndexView) CreateMany(ctx context.Context, models []mongodriver.IndexModel) ([]string, error) {
	return m.v.CreateMany(ctx, models)
}

type mongoSingleResult struct{ r *mongodriver.SingleResult }

func (m mongoSingleResult) Decode(v any) error { return m.r.Decode(v) }
func (m mongoSingleResult) Err() error         { return m.r.Err() }

// Client is the set of collections the Store needs, plus a health Pinger
// so the runtime can report Mongo reachability the same way the teacher's
// memory client does.
type Client interface {
	health.Pinger
	TaskResults() collection
	Preferences() collection
	Interactions() collection
	ContextMemory() collection
	LearningPatterns() collection
}

// Options configures New.
type Options struct {
	Client   *mongodriver.Client
	Database string
	Timeout  time.Duration
}

type client struct {
	db      *mongodriver.Database
	timeout time.Duration
}

// New wraps db, ensuring the indexes the specification's persisted-state
// layout calls for.
func New(ctx context.Context, opts Options) (Client, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := &client{db: opts.Client.Database(opts.Database), timeout: timeout}
	if err := c.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *client) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.TaskResults().Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: map[string]int{"worker_name": 1}},
		{Keys: map[string]int{"timestamp": -1}},
	}); err != nil {
		return err
	}
	if _, err := c.Preferences().Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: map[string]int{"preference_key": 1, "worker_name": 1}, Options: options.Index().SetUnique(true)},
		{Keys: map[string]int{"worker_name": 1}},
	}); err != nil {
		return err
	}
	if _, err := c.ContextMemory().Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: map[string]int{"worker_name": 1}},
		{Keys: map[string]int{"expiry_date": 1}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return err
	}
	return nil
}

func (c *client) Ping(ctx context.Context) error {
	return c.db.Client().Ping(ctx, readpref.Primary())
}

func (c *client) TaskResults() collection       { return mongoCollection{c.db.Collection("task_results")} }
func (c *client) Preferences() collection       { return mongoCollection{c.db.Collection("user_preferences")} }
func (c *client) Interactions() collection      { return mongoCollection{c.db.Collection("agent_interactions")} }
func (c *client) ContextMemory() collection     { return mongoCollection{c.db.Collection("context_memory")} }
func (c *client) LearningPatterns() collection  { return mongoCollection{c.db.Collection("learning_patterns")} }
