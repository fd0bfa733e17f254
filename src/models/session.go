package models

import (
	"encoding/json"
	"time"
)

// SessionState represents the presence state of a collaboration session
type SessionState string

const (
	SessionActive       SessionState = "active"
	SessionDisconnected SessionState = "disconnected"
)

// Session tracks one live duplex connection of a user inside a trip room.
// The registry only tracks the connection; it never owns its lifecycle.
type Session struct {
	SessionID string          `json:"session_id"`
	TripID    string          `json:"trip_id"`
	UserID    string          `json:"user_id"`
	State     SessionState    `json:"state"`
	LastSeen  time.Time       `json:"last_seen"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
}
