package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/repository"

	"github.com/google/uuid"
)

// deleteRetries bounds the internal CAS retries of the idempotent
// soft-delete status patch. Client edits get no such retry: a conflicting
// Update is rejected and resubmitting is the client's job.
const deleteRetries = 3

// Broadcaster publishes a collaboration event to every session of a trip
// room except the originator.
type Broadcaster interface {
	Publish(tripID string, event models.Event, excludeUserID string)
}

// TripPatch is the set of fields an update may change. Nil fields are left
// untouched. Version, identity and creation metadata are never patchable.
type TripPatch struct {
	Metadata     *models.TripMetadata
	Itinerary    *[]models.ItineraryDay
	Hotels       *[]models.Hotel
	Status       *models.TripStatus
	AIGeneration *models.AIGeneration
	DeletedAt    *time.Time
	DeletedBy    string
}

// apply mutates trip in place and returns the names of the changed fields.
func (p TripPatch) apply(trip *models.Trip) []string {
	var fields []string
	if p.Metadata != nil {
		trip.Metadata = *p.Metadata
		fields = append(fields, "metadata")
	}
	if p.Itinerary != nil {
		trip.Itinerary = *p.Itinerary
		fields = append(fields, "itinerary")
	}
	if p.Hotels != nil {
		trip.Hotels = *p.Hotels
		fields = append(fields, "hotels")
	}
	if p.Status != nil {
		trip.Status = *p.Status
		fields = append(fields, "status")
	}
	if p.AIGeneration != nil {
		trip.AIGeneration = *p.AIGeneration
		fields = append(fields, "ai_generation")
	}
	if p.DeletedAt != nil {
		trip.DeletedAt = p.DeletedAt
		trip.DeletedBy = p.DeletedBy
		fields = append(fields, "deleted_at")
	}
	return fields
}

// TripService owns the optimistic-concurrency update protocol for trip
// documents. It is the single place where version checks happen; every
// accepted write emits a trip_update event in acceptance order.
type TripService struct {
	repo        *repository.TripRepository
	broadcaster Broadcaster
}

// NewTripService creates a new trip service.
func NewTripService(repo *repository.TripRepository, broadcaster Broadcaster) *TripService {
	return &TripService{
		repo:        repo,
		broadcaster: broadcaster,
	}
}

// Read returns the trip document and its current version through the
// cache-aside path.
func (s *TripService) Read(ctx context.Context, tripID string) (*models.Trip, error) {
	return s.repo.GetTrip(ctx, tripID)
}

// ListForUser returns the trips visible to the user: those they created or
// collaborate on, newest first, excluding soft-deleted ones.
func (s *TripService) ListForUser(ctx context.Context, userID string) ([]*models.Trip, error) {
	return s.repo.ListTripsForUser(ctx, userID)
}

// Create makes a new trip at version 1 owned by its creator.
func (s *TripService) Create(ctx context.Context, userID string, meta models.TripMetadata, status models.TripStatus) (*models.Trip, error) {
	now := time.Now().UTC()
	trip := &models.Trip{
		TripID:    uuid.New().String(),
		Status:    status,
		CreatedBy: userID,
		Collaborators: map[string]models.Collaborator{
			userID: models.OwnerCollaborator(now),
		},
		Metadata:  meta,
		Itinerary: []models.ItineraryDay{},
		Hotels:    []models.Hotel{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.InsertTrip(ctx, trip)
	if err != nil {
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	slog.Info("Trip created", "trip_id", created.TripID, "user_id", userID)
	return created, nil
}

// Update applies a patch through a single compare-and-swap. The write is
// accepted iff expectedVersion equals the stored version; otherwise
// models.ErrVersionConflict is returned, nothing is applied, and the caller
// must re-read and resubmit. On success the new state is broadcast to the
// trip room, excluding the actor.
func (s *TripService) Update(ctx context.Context, tripID, actorID string, expectedVersion int, patch TripPatch) (*models.Trip, error) {
	current, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if current.Version != expectedVersion {
		return nil, models.ErrVersionConflict
	}

	// Patch a copy: current may be shared with the read cache, and a CAS
	// rejection must leave no trace.
	next := *current
	fields := patch.apply(&next)

	updated, err := s.repo.CompareAndSwapTrip(ctx, &next, expectedVersion)
	if err != nil {
		return nil, err
	}

	slog.Info("Trip updated",
		"trip_id", tripID,
		"user_id", actorID,
		"version", updated.Version,
		"fields", fields)

	s.publishTripUpdate(updated, actorID, fields)
	return updated, nil
}

// SoftDelete marks the trip deleted through the same CAS path as any other
// write. The status patch is idempotent, so a lost race against another
// writer is absorbed by re-reading and retrying a bounded number of times.
func (s *TripService) SoftDelete(ctx context.Context, tripID, userID string) error {
	now := time.Now().UTC()
	deleted := models.StatusDeleted
	patch := TripPatch{
		Status:    &deleted,
		DeletedAt: &now,
		DeletedBy: userID,
	}

	var err error
	for attempt := 0; attempt <= deleteRetries; attempt++ {
		var current *models.Trip
		current, err = s.repo.GetTrip(ctx, tripID)
		if err != nil {
			return err
		}

		_, err = s.Update(ctx, tripID, userID, current.Version, patch)
		if err == nil {
			slog.Info("Trip soft-deleted", "trip_id", tripID, "user_id", userID)
			return nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("failed to soft-delete trip %s: %w", tripID, err)
}

// Duplicate copies a trip into a fresh document at version 1. The copy is
// owned solely by the duplicating user, regardless of the original's
// collaborators.
func (s *TripService) Duplicate(ctx context.Context, tripID, userID string) (*models.Trip, error) {
	original, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duplicate := *original
	duplicate.TripID = uuid.New().String()
	duplicate.Status = models.StatusPlanning
	duplicate.CreatedBy = userID
	duplicate.Collaborators = map[string]models.Collaborator{
		userID: models.OwnerCollaborator(now),
	}
	duplicate.Metadata.Title = "Copy of " + original.Metadata.Title
	duplicate.CreatedAt = now
	duplicate.UpdatedAt = now
	duplicate.DeletedAt = nil
	duplicate.DeletedBy = ""

	created, err := s.repo.InsertTrip(ctx, &duplicate)
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate trip %s: %w", tripID, err)
	}

	slog.Info("Trip duplicated", "trip_id", tripID, "new_trip_id", created.TripID, "user_id", userID)
	return created, nil
}

// TripStatusInfo is the processing snapshot served to pollers.
type TripStatusInfo struct {
	Status       models.TripStatus   `json:"status"`
	Version      int                 `json:"version"`
	LastUpdated  time.Time           `json:"last_updated"`
	AIGeneration models.AIGeneration `json:"ai_generation"`
}

// Status returns the trip's generation/processing snapshot.
func (s *TripService) Status(ctx context.Context, tripID string) (*TripStatusInfo, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return &TripStatusInfo{
		Status:       trip.Status,
		Version:      trip.Version,
		LastUpdated:  trip.UpdatedAt,
		AIGeneration: trip.AIGeneration,
	}, nil
}

// HasAccess reports whether the user is a collaborator on the trip.
func (s *TripService) HasAccess(ctx context.Context, tripID, userID string) (bool, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if errors.Is(err, models.ErrTripNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, ok := trip.Collaborators[userID]
	return ok, nil
}

// HasEditAccess reports whether the user holds the write permission.
func (s *TripService) HasEditAccess(ctx context.Context, tripID, userID string) (bool, error) {
	trip, err := s.repo.GetTrip(ctx, tripID)
	if errors.Is(err, models.ErrTripNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	collaborator, ok := trip.Collaborators[userID]
	if !ok {
		return false, nil
	}
	for _, permission := range collaborator.Permissions {
		if permission == models.PermissionWrite {
			return true, nil
		}
	}
	return false, nil
}

func (s *TripService) publishTripUpdate(trip *models.Trip, actorID string, fields []string) {
	if s.broadcaster == nil {
		return
	}
	event, err := models.NewEvent(models.EventTripUpdate, trip.TripID, actorID, models.TripUpdatePayload{
		Version:       trip.Version,
		UpdatedFields: fields,
	})
	if err != nil {
		slog.Error("Failed to build trip update event", "trip_id", trip.TripID, "error", err)
		return
	}
	s.broadcaster.Publish(trip.TripID, event, actorID)
}
