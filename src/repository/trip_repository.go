package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrsaikumar-7/travvy/src/cache"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/store"
)

const tripCollection = "trips"

// TripRepository is the read-through adapter over the versioned document
// store. Reads go cache-first; every accepted write invalidates the cached
// entry. Store version numbers are authoritative: the version embedded in
// the document body is overwritten with the store's on load.
type TripRepository struct {
	store    store.DocumentStore
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewTripRepository creates a new trip repository.
func NewTripRepository(documentStore store.DocumentStore, c cache.Cache, cacheTTL time.Duration) *TripRepository {
	return &TripRepository{
		store:    documentStore,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

// GetTrip returns the trip through the cache-aside path: try cache, on miss
// read the store and populate the cache with a bounded TTL. Cache failures
// degrade to store reads and are logged, never fatal.
func (r *TripRepository) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	cacheKey := r.cacheKey(tripID)

	cached, ok, err := r.cache.Get(cacheKey)
	if err != nil {
		slog.Warn("Cache read failed, falling back to store", "trip_id", tripID, "error", err)
	} else if ok {
		if trip, isTrip := cached.(*models.Trip); isTrip {
			return trip, nil
		}
	}

	doc, err := r.store.Get(ctx, tripCollection, tripID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip %s: %w", tripID, err)
	}

	trip, err := decodeTrip(doc)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetWithTTL(cacheKey, trip, r.cacheTTL); err != nil {
		slog.Warn("Cache write failed", "trip_id", tripID, "error", err)
	}

	return trip, nil
}

// InsertTrip creates a new trip document at version 1.
func (r *TripRepository) InsertTrip(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	trip.Version = 1

	data, err := json.Marshal(trip)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trip %s: %w", trip.TripID, err)
	}

	doc, err := r.store.Insert(ctx, tripCollection, trip.TripID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trip %s: %w", trip.TripID, err)
	}

	return decodeTrip(doc)
}

// ListTripsForUser returns the trips the user created or collaborates on,
// newest first. Listings bypass the cache and read the store directly.
func (r *TripRepository) ListTripsForUser(ctx context.Context, userID string) ([]*models.Trip, error) {
	docs, err := r.store.ListForUser(ctx, tripCollection, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips for user %s: %w", userID, err)
	}

	trips := make([]*models.Trip, 0, len(docs))
	for _, doc := range docs {
		trip, err := decodeTrip(doc)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// CompareAndSwapTrip persists the trip body iff expectedVersion matches the
// stored version, then invalidates the cached entry. On mismatch it returns
// models.ErrVersionConflict and applies nothing; retrying is the caller's
// responsibility.
func (r *TripRepository) CompareAndSwapTrip(ctx context.Context, trip *models.Trip, expectedVersion int) (*models.Trip, error) {
	trip.Version = expectedVersion + 1
	trip.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(trip)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trip %s: %w", trip.TripID, err)
	}

	doc, err := r.store.CompareAndSwap(ctx, tripCollection, trip.TripID, expectedVersion, data)
	if errors.Is(err, store.ErrConflict) {
		return nil, models.ErrVersionConflict
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compare-and-swap trip %s: %w", trip.TripID, err)
	}

	if err := r.cache.Invalidate(r.cacheKey(trip.TripID)); err != nil {
		slog.Warn("Cache invalidation failed", "trip_id", trip.TripID, "error", err)
	}

	return decodeTrip(doc)
}

func (r *TripRepository) cacheKey(tripID string) string {
	return tripCollection + ":" + tripID
}

func decodeTrip(doc *store.Document) (*models.Trip, error) {
	var trip models.Trip
	if err := json.Unmarshal(doc.Data, &trip); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trip %s: %w", doc.ID, err)
	}
	trip.Version = doc.Version
	return &trip, nil
}
