package service

import (
	"context"
	"testing"
	"time"

	"github.com/mrsaikumar-7/travvy/src/cache"
	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/repository"
	"github.com/mrsaikumar-7/travvy/src/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	tripID  string
	event   models.Event
	exclude string
}

// captureBroadcaster records published events instead of delivering them.
type captureBroadcaster struct {
	events []publishedEvent
}

func (b *captureBroadcaster) Publish(tripID string, event models.Event, excludeUserID string) {
	b.events = append(b.events, publishedEvent{tripID: tripID, event: event, exclude: excludeUserID})
}

func newTestService(t *testing.T) (*TripService, *captureBroadcaster) {
	t.Helper()
	repo := repository.NewTripRepository(store.NewMemoryStore(), cache.NewMemoryCache(), time.Minute)
	broadcaster := &captureBroadcaster{}
	return NewTripService(repo, broadcaster), broadcaster
}

func testMetadata(title string) models.TripMetadata {
	return models.TripMetadata{
		Title:       title,
		Destination: models.Destination{Name: "Rome", Country: "Italy"},
		Dates:       models.TripDates{StartDate: "2026-09-01", EndDate: "2026-09-05"},
		Budget:      models.Budget{Currency: "EUR", Total: 1500},
	}
}

func TestTripService_Create_OwnerAtVersionOne(t *testing.T) {
	svc, _ := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusGenerating)
	require.NoError(t, err)

	assert.NotEmpty(t, trip.TripID)
	assert.Equal(t, 1, trip.Version)
	assert.Equal(t, models.StatusGenerating, trip.Status)
	assert.Equal(t, "alice", trip.CreatedBy)

	owner, ok := trip.Collaborators["alice"]
	require.True(t, ok)
	assert.Equal(t, models.RoleOwner, owner.Role)
	assert.Contains(t, owner.Permissions, models.PermissionWrite)
	assert.Contains(t, owner.Permissions, models.PermissionDelete)
}

func TestTripService_Update_AcceptedWriteBumpsVersionAndBroadcasts(t *testing.T) {
	svc, broadcaster := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusPlanning)
	require.NoError(t, err)

	meta := testMetadata("Trip to Florence")
	updated, err := svc.Update(context.Background(), trip.TripID, "alice", 1, TripPatch{Metadata: &meta})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Trip to Florence", updated.Metadata.Title)

	require.Len(t, broadcaster.events, 1)
	published := broadcaster.events[0]
	assert.Equal(t, models.EventTripUpdate, published.event.Type)
	assert.Equal(t, trip.TripID, published.tripID)
	assert.Equal(t, "alice", published.exclude, "the actor must not receive its own update")
}

func TestTripService_Update_StaleVersionRejectedWithoutSideEffects(t *testing.T) {
	svc, broadcaster := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusPlanning)
	require.NoError(t, err)

	meta := testMetadata("Trip to Florence")
	_, err = svc.Update(context.Background(), trip.TripID, "alice", 1, TripPatch{Metadata: &meta})
	require.NoError(t, err)

	// Bob still holds version 1; his write must be rejected whole.
	bobMeta := testMetadata("Trip to Milan")
	_, err = svc.Update(context.Background(), trip.TripID, "bob", 1, TripPatch{Metadata: &bobMeta})
	assert.ErrorIs(t, err, models.ErrVersionConflict)

	current, err := svc.Read(context.Background(), trip.TripID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Version)
	assert.Equal(t, "Trip to Florence", current.Metadata.Title)
	assert.Len(t, broadcaster.events, 1, "a rejected write must not broadcast")
}

func TestTripService_Update_ConflictThenReReadAndRetrySucceeds(t *testing.T) {
	svc, _ := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusPlanning)
	require.NoError(t, err)

	// Two editors read version 1. Alice wins the slot.
	aliceMeta := testMetadata("Trip to Florence")
	_, err = svc.Update(context.Background(), trip.TripID, "alice", 1, TripPatch{Metadata: &aliceMeta})
	require.NoError(t, err)

	bobMeta := testMetadata("Trip to Milan")
	_, err = svc.Update(context.Background(), trip.TripID, "bob", 1, TripPatch{Metadata: &bobMeta})
	require.ErrorIs(t, err, models.ErrVersionConflict)

	// Bob re-reads the current state and resubmits against it.
	current, err := svc.Read(context.Background(), trip.TripID)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), trip.TripID, "bob", current.Version, TripPatch{Metadata: &bobMeta})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Version)
	assert.Equal(t, "Trip to Milan", updated.Metadata.Title)
}

func TestTripService_SoftDelete_MarksDeletedAndKeepsDocument(t *testing.T) {
	svc, _ := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusPlanning)
	require.NoError(t, err)

	require.NoError(t, svc.SoftDelete(context.Background(), trip.TripID, "alice"))

	current, err := svc.Read(context.Background(), trip.TripID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, current.Status)
	assert.Equal(t, "alice", current.DeletedBy)
	require.NotNil(t, current.DeletedAt)
	assert.Equal(t, 2, current.Version, "soft delete goes through the same versioned write path")
}

func TestTripService_Duplicate_FreshDocumentOwnedByDuplicator(t *testing.T) {
	svc, _ := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusPlanning)
	require.NoError(t, err)

	meta := testMetadata("Trip to Rome")
	_, err = svc.Update(context.Background(), trip.TripID, "alice", 1, TripPatch{Metadata: &meta})
	require.NoError(t, err)

	dup, err := svc.Duplicate(context.Background(), trip.TripID, "bob")
	require.NoError(t, err)

	assert.NotEqual(t, trip.TripID, dup.TripID)
	assert.Equal(t, 1, dup.Version, "the copy starts its own version history")
	assert.Equal(t, "Copy of Trip to Rome", dup.Metadata.Title)
	assert.Equal(t, "bob", dup.CreatedBy)
	assert.Equal(t, models.StatusPlanning, dup.Status)

	require.Len(t, dup.Collaborators, 1)
	_, ok := dup.Collaborators["bob"]
	assert.True(t, ok, "the duplicating user is the sole owner")
}

func TestTripService_Status_ReflectsCurrentVersion(t *testing.T) {
	svc, _ := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusGenerating)
	require.NoError(t, err)

	info, err := svc.Status(context.Background(), trip.TripID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, info.Status)
	assert.Equal(t, 1, info.Version)
}

func TestTripService_Access(t *testing.T) {
	svc, _ := newTestService(t)

	trip, err := svc.Create(context.Background(), "alice", testMetadata("Trip to Rome"), models.StatusPlanning)
	require.NoError(t, err)

	ok, err := svc.HasAccess(context.Background(), trip.TripID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAccess(context.Background(), trip.TripID, "mallory")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasEditAccess(context.Background(), trip.TripID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// Unknown trips report no access rather than an error.
	ok, err = svc.HasAccess(context.Background(), "missing", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}
