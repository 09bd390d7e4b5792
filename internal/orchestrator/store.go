// Package orchestrator implements the job lifecycle: create/get/list/delete,
// cancellation, the cascading-tier execution algorithm, and the
// scrape_and_answer / chat_with_job conveniences built on top of it.
//
// Grounded on internal/background/manager.go's TaskManagerImpl (bounded
// worker pool over a buffered channel, a pluggable Store interface, a
// cleanup goroutine) and internal/background/task.go's TaskStore/
// InMemoryTaskStore shape, generalized from process-ID keyed TaskResult
// blobs to status-machine-enforced Job records.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aeodev/aiscrape/pkg/models"
)

// JobStore persists Job records. Create/Get/List/Delete mirror the public
// orchestrator operations directly; Update is used internally as the job
// progresses through its lifecycle.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	List(ctx context.Context) ([]*models.Job, error)
	Delete(ctx context.Context, id string) error
}

// ErrJobNotFound is returned by Get/Update/Delete for an unknown job ID.
var ErrJobNotFound = fmt.Errorf("job not found")

// InMemoryJobStore is the default store when no MONGODB_URI is configured.
// Grounded on internal/background/task.go's InMemoryTaskStore: a mutex-
// guarded map, no eviction beyond explicit Delete.
type InMemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// NewInMemoryJobStore builds an empty store.
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: make(map[string]*models.Job)}
}

func (s *InMemoryJobStore) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *InMemoryJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *InMemoryJobStore) Update(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *InMemoryJobStore) List(_ context.Context) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// MongoJobStore persists jobs to a MongoDB collection, selected over
// InMemoryJobStore whenever MONGODB_URI is configured.
type MongoJobStore struct {
	collection *mongo.Collection
}

// NewMongoJobStore connects to uri and returns a store backed by
// database.jobs.
func NewMongoJobStore(ctx context.Context, uri, database string) (*MongoJobStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoJobStore{collection: client.Database(database).Collection("jobs")}, nil
}

func (s *MongoJobStore) Create(ctx context.Context, job *models.Job) error {
	_, err := s.collection.InsertOne(ctx, job)
	return err
}

func (s *MongoJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&job)
	if err == mongo.ErrNoDocuments {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoJobStore) Update(ctx context.Context, job *models.Job) error {
	res, err := s.collection.ReplaceOne(ctx, bson.M{"id": job.ID}, job)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *MongoJobStore) List(ctx context.Context) ([]*models.Job, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*models.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *MongoJobStore) Delete(ctx context.Context, id string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrJobNotFound
	}
	return nil
}
