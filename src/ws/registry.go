package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mrsaikumar-7/travvy/src/models"

	"github.com/google/uuid"
)

// Conn is the handle to one duplex client connection. The transport layer
// owns the connection's lifecycle; the registry only tracks it and sends.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// SessionInfo identifies a tracked session without exposing its connection.
type SessionInfo struct {
	SessionID string
	TripID    string
	UserID    string
}

// Recipient is a broadcast target inside a trip room.
type Recipient struct {
	SessionID string
	UserID    string
	Conn      Conn
}

type session struct {
	id       string
	tripID   string
	userID   string
	conn     Conn
	state    models.SessionState
	lastSeen time.Time
	cursor   json.RawMessage
}

// room groups the sessions of one trip. Each room carries its own lock so
// broadcasts to one trip never contend with registrations on another.
type room struct {
	mu       sync.RWMutex
	sessions map[string]*session // keyed by userID
}

// Registry tracks the live sessions of every trip room. It is an injected
// instance tied to the service process; tests construct a fresh one.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
	byID  map[string]*session

	inactivityWindow time.Duration
	sweepInterval    time.Duration
}

// NewRegistry creates an empty session registry. Sessions idle longer than
// inactivityWindow are evicted by the periodic sweep.
func NewRegistry(inactivityWindow, sweepInterval time.Duration) *Registry {
	return &Registry{
		rooms:            make(map[string]*room),
		byID:             make(map[string]*session),
		inactivityWindow: inactivityWindow,
		sweepInterval:    sweepInterval,
	}
}

// Register adds a connection to a trip room and returns its session ID.
// A duplicate (tripID, userID) pair replaces the prior entry rather than
// stacking connections; the replaced connection is closed.
func (r *Registry) Register(tripID, userID string, conn Conn) string {
	sess := &session{
		id:       uuid.New().String(),
		tripID:   tripID,
		userID:   userID,
		conn:     conn,
		state:    models.SessionActive,
		lastSeen: time.Now().UTC(),
	}

	r.mu.Lock()
	rm, ok := r.rooms[tripID]
	if !ok {
		rm = &room{sessions: make(map[string]*session)}
		r.rooms[tripID] = rm
	}

	rm.mu.Lock()
	prior := rm.sessions[userID]
	rm.sessions[userID] = sess
	rm.mu.Unlock()

	if prior != nil {
		delete(r.byID, prior.id)
	}
	r.byID[sess.id] = sess
	r.mu.Unlock()

	if prior != nil {
		slog.Info("Replacing existing session on reconnect",
			"trip_id", tripID,
			"user_id", userID,
			"old_session_id", prior.id)
		if err := prior.conn.Close(); err != nil {
			slog.Warn("Failed to close replaced connection", "session_id", prior.id, "error", err)
		}
	}

	slog.Info("Session registered",
		"trip_id", tripID,
		"user_id", userID,
		"session_id", sess.id)

	return sess.id
}

// Unregister removes a session. It is idempotent and safe to call
// concurrently from a disconnect handler and from the cleanup sweep; only
// the call that actually removed the entry reports ok=true.
func (r *Registry) Unregister(sessionID string) (SessionInfo, bool) {
	r.mu.Lock()
	sess, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return SessionInfo{}, false
	}
	delete(r.byID, sessionID)

	rm := r.rooms[sess.tripID]
	if rm != nil {
		rm.mu.Lock()
		// Only remove the room entry if it still points at this session;
		// a reconnect may have replaced it already.
		if current, exists := rm.sessions[sess.userID]; exists && current.id == sessionID {
			delete(rm.sessions, sess.userID)
		}
		empty := len(rm.sessions) == 0
		rm.mu.Unlock()
		if empty {
			delete(r.rooms, sess.tripID)
		}
	}
	r.mu.Unlock()

	sess.state = models.SessionDisconnected

	slog.Info("Session unregistered",
		"trip_id", sess.tripID,
		"user_id", sess.userID,
		"session_id", sessionID)

	return SessionInfo{SessionID: sessionID, TripID: sess.tripID, UserID: sess.userID}, true
}

// ListActive returns the user IDs currently connected to a trip room.
func (r *Registry) ListActive(tripID string) []string {
	r.mu.RLock()
	rm := r.rooms[tripID]
	r.mu.RUnlock()

	if rm == nil {
		return []string{}
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	users := make([]string, 0, len(rm.sessions))
	for userID := range rm.sessions {
		users = append(users, userID)
	}
	return users
}

// ActiveSessions returns the presence metadata of every session in a trip
// room: state, last-seen and the latest cursor position.
func (r *Registry) ActiveSessions(tripID string) []models.Session {
	rm := r.roomFor(tripID)
	if rm == nil {
		return []models.Session{}
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	sessions := make([]models.Session, 0, len(rm.sessions))
	for _, sess := range rm.sessions {
		sessions = append(sessions, models.Session{
			SessionID: sess.id,
			TripID:    sess.tripID,
			UserID:    sess.userID,
			State:     sess.state,
			LastSeen:  sess.lastSeen,
			Cursor:    sess.cursor,
		})
	}
	return sessions
}

// Touch refreshes a session's last-seen timestamp and, when cursor is
// non-nil, its cursor payload.
func (r *Registry) Touch(sessionID string, cursor json.RawMessage) error {
	r.mu.RLock()
	sess, ok := r.byID[sessionID]
	r.mu.RUnlock()

	if !ok {
		return models.ErrSessionNotFound
	}

	rm := r.roomFor(sess.tripID)
	if rm == nil {
		return models.ErrSessionNotFound
	}

	rm.mu.Lock()
	sess.lastSeen = time.Now().UTC()
	if cursor != nil {
		sess.cursor = cursor
	}
	rm.mu.Unlock()
	return nil
}

// Lookup returns the identity of a session, if it is still registered.
func (r *Registry) Lookup(sessionID string) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[sessionID]
	if !ok {
		return SessionInfo{}, false
	}
	return SessionInfo{SessionID: sess.id, TripID: sess.tripID, UserID: sess.userID}, true
}

// Snapshot returns the current broadcast targets of a trip room.
func (r *Registry) Snapshot(tripID string) []Recipient {
	rm := r.roomFor(tripID)
	if rm == nil {
		return nil
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()
	recipients := make([]Recipient, 0, len(rm.sessions))
	for _, sess := range rm.sessions {
		recipients = append(recipients, Recipient{
			SessionID: sess.id,
			UserID:    sess.userID,
			Conn:      sess.conn,
		})
	}
	return recipients
}

// StartSweep launches the periodic eviction of idle sessions, running until
// ctx is cancelled. Each evicted session is reported through onEvict after
// removal, guarding against half-closed connections that never disconnect
// explicitly.
func (r *Registry) StartSweep(ctx context.Context, onEvict func(SessionInfo)) {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, info := range r.sweepOnce(time.Now().UTC()) {
					if onEvict != nil {
						onEvict(info)
					}
				}
			}
		}
	}()
}

// sweepOnce evicts every session idle past the inactivity window and returns
// the evicted sessions.
func (r *Registry) sweepOnce(now time.Time) []SessionInfo {
	cutoff := now.Add(-r.inactivityWindow)

	r.mu.RLock()
	var stale []string
	for id, sess := range r.byID {
		rm := r.rooms[sess.tripID]
		if rm == nil {
			stale = append(stale, id)
			continue
		}
		rm.mu.RLock()
		idle := sess.lastSeen.Before(cutoff)
		rm.mu.RUnlock()
		if idle {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	evicted := make([]SessionInfo, 0, len(stale))
	for _, id := range stale {
		if info, ok := r.Unregister(id); ok {
			slog.Info("Evicted idle session",
				"trip_id", info.TripID,
				"user_id", info.UserID,
				"session_id", info.SessionID)
			evicted = append(evicted, info)
		}
	}
	return evicted
}

func (r *Registry) roomFor(tripID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[tripID]
}
