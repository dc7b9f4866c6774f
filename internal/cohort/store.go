package cohort

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrNotFound is returned when a cohort id does not exist in the store.
var ErrNotFound = errors.New("cohort not found")

// MongoStore implements Store using the MongoDB driver.
type MongoStore struct {
	client     *mongo.Client
	database   string
	collection string
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, connectionString, database string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(connectionString)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	return &MongoStore{
		client:     client,
		database:   database,
		collection: "cohorts",
	}, nil
}

func (m *MongoStore) col() *mongo.Collection {
	return m.client.Database(m.database).Collection(m.collection)
}

// Insert stores a new cohort document.
func (m *MongoStore) Insert(ctx context.Context, c *Cohort) error {
	if _, err := m.col().InsertOne(ctx, c); err != nil {
		return fmt.Errorf("inserting cohort %s: %w", c.ID, err)
	}
	return nil
}

// Update replaces the cohort document with the same id.
func (m *MongoStore) Update(ctx context.Context, c *Cohort) error {
	res, err := m.col().ReplaceOne(ctx, bson.D{{Key: "_id", Value: c.ID}}, c)
	if err != nil {
		return fmt.Errorf("updating cohort %s: %w", c.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the cohort with the given id.
func (m *MongoStore) Get(ctx context.Context, id string) (*Cohort, error) {
	var c Cohort
	err := m.col().FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching cohort %s: %w", id, err)
	}
	return &c, nil
}

// List returns all cohorts sorted by name.
func (m *MongoStore) List(ctx context.Context) ([]*Cohort, error) {
	cursor, err := m.col().Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing cohorts: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*Cohort
	for cursor.Next(ctx) {
		var c Cohort
		if err := cursor.Decode(&c); err != nil {
			return nil, fmt.Errorf("decoding cohort: %w", err)
		}
		out = append(out, &c)
	}
	return out, cursor.Err()
}

// Delete removes the cohort with the given id.
func (m *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := m.col().DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("deleting cohort %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Close disconnects from MongoDB.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// MemoryStore is an in-process Store used when no MongoDB URI is configured,
// and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	cohorts map[string]*Cohort
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cohorts: make(map[string]*Cohort)}
}

func (m *MemoryStore) Insert(_ context.Context, c *Cohort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.cohorts[c.ID] = &cp
	return nil
}

func (m *MemoryStore) Update(_ context.Context, c *Cohort) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cohorts[c.ID]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.cohorts[c.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Cohort, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cohorts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Cohort, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cohort, 0, len(m.cohorts))
	for _, c := range m.cohorts {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cohorts[id]; !ok {
		return ErrNotFound
	}
	delete(m.cohorts, id)
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }
