package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrsaikumar-7/travvy/src/cache"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts Get calls so tests can tell cache hits from store
// reads.
type countingStore struct {
	store.DocumentStore
	gets atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	s.gets.Add(1)
	return s.DocumentStore.Get(ctx, collection, id)
}

// brokenCache fails every operation, simulating an unreachable cache backend.
type brokenCache struct{}

func (brokenCache) Get(key string) (any, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func (brokenCache) SetWithTTL(key string, value any, ttl time.Duration) error {
	return errors.New("cache unavailable")
}

func (brokenCache) Invalidate(key string) error {
	return errors.New("cache unavailable")
}

func newTestTrip(id string) *models.Trip {
	now := time.Now().UTC()
	return &models.Trip{
		TripID:    id,
		Status:    models.StatusPlanning,
		CreatedBy: "u1",
		Collaborators: map[string]models.Collaborator{
			"u1": models.OwnerCollaborator(now),
		},
		Metadata:  models.TripMetadata{Title: "Trip to Rome"},
		Itinerary: []models.ItineraryDay{},
		Hotels:    []models.Hotel{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTripRepository_InsertTrip_StartsAtVersionOne(t *testing.T) {
	repo := NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)

	created, err := repo.InsertTrip(context.Background(), newTestTrip("t1"))
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "Trip to Rome", created.Metadata.Title)
}

func TestTripRepository_GetTrip_NotFound(t *testing.T) {
	repo := NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)

	_, err := repo.GetTrip(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrTripNotFound)
}

func TestTripRepository_GetTrip_SecondReadServedFromCache(t *testing.T) {
	counting := &countingStore{DocumentStore: store.NewMemoryStore()}
	repo := NewTripRepository(counting, cache.NewMemoryCache(), time.Minute)

	_, err := repo.InsertTrip(context.Background(), newTestTrip("t1"))
	require.NoError(t, err)

	_, err = repo.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	firstReads := counting.gets.Load()

	trip, err := repo.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.TripID)
	assert.Equal(t, firstReads, counting.gets.Load(), "second read must not hit the store")
}

func TestTripRepository_GetTrip_CacheFailureDegradesToStore(t *testing.T) {
	repo := NewTripRepository(store.NewMemoryStore(), brokenCache{}, time.Minute)

	_, err := repo.InsertTrip(context.Background(), newTestTrip("t1"))
	require.NoError(t, err)

	trip, err := repo.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.TripID)
	assert.Equal(t, 1, trip.Version)
}

func TestTripRepository_CompareAndSwapTrip_BumpsVersionAndInvalidatesCache(t *testing.T) {
	repo := NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)

	created, err := repo.InsertTrip(context.Background(), newTestTrip("t1"))
	require.NoError(t, err)

	// Warm the cache so a stale entry would be observable after the write.
	_, err = repo.GetTrip(context.Background(), "t1")
	require.NoError(t, err)

	created.Metadata.Title = "Trip to Lisbon"
	updated, err := repo.CompareAndSwapTrip(context.Background(), created, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	reread, err := repo.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, reread.Version)
	assert.Equal(t, "Trip to Lisbon", reread.Metadata.Title)
}

func TestTripRepository_CompareAndSwapTrip_StaleVersionConflict(t *testing.T) {
	repo := NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)

	created, err := repo.InsertTrip(context.Background(), newTestTrip("t1"))
	require.NoError(t, err)

	_, err = repo.CompareAndSwapTrip(context.Background(), created, 1)
	require.NoError(t, err)

	stale := newTestTrip("t1")
	_, err = repo.CompareAndSwapTrip(context.Background(), stale, 1)
	assert.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestTripRepository_StoreVersionIsAuthoritative(t *testing.T) {
	documents := store.NewMemoryStore()
	repo := NewTripRepository(documents, cache.NewMemoryCache(), time.Minute)

	trip := newTestTrip("t1")
	trip.Version = 42 // garbage in the body must be ignored

	data, err := json.Marshal(trip)
	require.NoError(t, err)
	_, err = documents.Insert(context.Background(), "trips", "t1", data)
	require.NoError(t, err)

	loaded, err := repo.GetTrip(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Version)
}

func TestTripRepository_ListTripsForUser_ExcludesDeleted(t *testing.T) {
	repo := NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	_, err := repo.InsertTrip(ctx, newTestTrip("t1"))
	require.NoError(t, err)

	gone := newTestTrip("t2")
	gone.Status = models.StatusDeleted
	_, err = repo.InsertTrip(ctx, gone)
	require.NoError(t, err)

	trips, err := repo.ListTripsForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "t1", trips[0].TripID)
	assert.Equal(t, 1, trips[0].Version)
}
