package models

import (
	"encoding/json"
	"time"
)

// EventType identifies a collaboration event on the duplex channel
type EventType string

const (
	EventUserJoined         EventType = "user_joined"
	EventUserLeft           EventType = "user_left"
	EventCursorUpdate       EventType = "cursor_update"
	EventTripUpdate         EventType = "trip_update"
	EventGenerationProgress EventType = "generation_progress"
)

// Event is the wire message broadcast to sessions of a trip room.
type Event struct {
	Type      EventType       `json:"type"`
	TripID    string          `json:"trip_id"`
	UserID    string          `json:"user_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event stamped with the server time. The payload is
// marshalled here so publishers hand over typed structs, not raw JSON.
func NewEvent(eventType EventType, tripID, userID string, payload any) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = data
	}
	return Event{
		Type:      eventType,
		TripID:    tripID,
		UserID:    userID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// TripUpdatePayload summarizes an accepted CAS write for broadcast.
type TripUpdatePayload struct {
	Version       int      `json:"version"`
	UpdatedFields []string `json:"updated_fields"`
}

// PresencePayload lists the active users of a trip room after a join/leave.
type PresencePayload struct {
	ActiveUsers []string `json:"active_users"`
}

// GenerationProgressPayload reports pipeline progress for a trip.
type GenerationProgressPayload struct {
	JobID    string   `json:"job_id"`
	Stage    JobStage `json:"stage"`
	Progress int      `json:"progress"`
	State    JobState `json:"state"`
	Error    string   `json:"error,omitempty"`
}
