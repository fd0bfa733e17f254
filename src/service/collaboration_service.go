package service

import (
	"encoding/json"
	"log/slog"

	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/ws"
)

// CollaborationService couples the session registry and broadcast router:
// joining, leaving and cursor moves all produce presence events for the rest
// of the trip room.
type CollaborationService struct {
	registry *ws.Registry
	router   *ws.Router
}

// NewCollaborationService creates a new collaboration service.
func NewCollaborationService(registry *ws.Registry, router *ws.Router) *CollaborationService {
	return &CollaborationService{
		registry: registry,
		router:   router,
	}
}

// Join registers a connection in a trip room and announces the arrival to
// the other members. A reconnect of the same (trip, user) pair replaces the
// prior session.
func (s *CollaborationService) Join(tripID, userID string, conn ws.Conn) string {
	sessionID := s.registry.Register(tripID, userID, conn)
	s.publishPresence(models.EventUserJoined, tripID, userID)
	return sessionID
}

// Leave removes a session and announces the departure. It is idempotent;
// only the call that actually removed the session broadcasts.
func (s *CollaborationService) Leave(sessionID string) {
	info, ok := s.registry.Unregister(sessionID)
	if !ok {
		return
	}
	s.publishPresence(models.EventUserLeft, info.TripID, info.UserID)
}

// UpdateCursor refreshes the session's presence and shares the new cursor
// position with the rest of the room.
func (s *CollaborationService) UpdateCursor(sessionID string, cursor json.RawMessage) error {
	if err := s.registry.Touch(sessionID, cursor); err != nil {
		return err
	}

	info, ok := s.registry.Lookup(sessionID)
	if !ok {
		return models.ErrSessionNotFound
	}

	event, err := models.NewEvent(models.EventCursorUpdate, info.TripID, info.UserID, json.RawMessage(cursor))
	if err != nil {
		return err
	}
	s.router.Publish(info.TripID, event, info.UserID)
	return nil
}

// ActiveUsers lists the users currently connected to a trip room.
func (s *CollaborationService) ActiveUsers(tripID string) []string {
	return s.registry.ListActive(tripID)
}

// ActiveSessions returns per-session presence metadata for a trip room.
func (s *CollaborationService) ActiveSessions(tripID string) []models.Session {
	return s.registry.ActiveSessions(tripID)
}

// HandleEviction is the sweep callback: an idle session evicted by the
// registry leaves the room like an explicit disconnect.
func (s *CollaborationService) HandleEviction(info ws.SessionInfo) {
	s.publishPresence(models.EventUserLeft, info.TripID, info.UserID)
}

func (s *CollaborationService) publishPresence(eventType models.EventType, tripID, userID string) {
	event, err := models.NewEvent(eventType, tripID, userID, models.PresencePayload{
		ActiveUsers: s.registry.ListActive(tripID),
	})
	if err != nil {
		slog.Error("Failed to build presence event", "trip_id", tripID, "user_id", userID, "error", err)
		return
	}
	s.router.Publish(tripID, event, userID)
}
