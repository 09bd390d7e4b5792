package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeodev/aiscrape/pkg/models"
)

func TestInMemoryJobStoreCRUD(t *testing.T) {
	store := NewInMemoryJobStore()
	ctx := context.Background()

	job := &models.Job{ID: "j1", URL: "https://example.com", Status: models.JobStatusQueued}
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.URL)

	got.Status = models.JobStatusRunning
	require.NoError(t, store.Update(ctx, got))

	reread, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, reread.Status)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete(ctx, "j1"))
	_, err = store.Get(ctx, "j1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestInMemoryJobStoreMutationsAreIsolated(t *testing.T) {
	store := NewInMemoryJobStore()
	ctx := context.Background()
	job := &models.Job{ID: "j1", URL: "https://example.com"}
	require.NoError(t, store.Create(ctx, job))

	job.URL = "https://mutated.example.com"

	got, err := store.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.URL)
}

func TestInMemoryJobStoreUnknownID(t *testing.T) {
	store := NewInMemoryJobStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.Update(ctx, &models.Job{ID: "missing"}), ErrJobNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), ErrJobNotFound)
}
