package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mrsaikumar-7/travvy/src/models"
	"github.com/mrsaikumar-7/travvy/src/rabbitmq"
)

const defaultSendTimeout = 5 * time.Second

// Router fans collaboration events out to every session registered for a
// trip. Delivery is best-effort and at-most-once per session; a failed send
// evicts that session and never blocks delivery to the rest. Events are
// delivered to a given session in publish order; the router neither reorders
// nor batches.
type Router struct {
	registry    *Registry
	mirror      rabbitmq.Publisher
	exchange    string
	sendTimeout time.Duration
}

// NewRouter creates a broadcast router over the given registry. mirror may
// be nil; when set, every published event is also mirrored to the AMQP
// exchange for out-of-process consumers.
func NewRouter(registry *Registry, mirror rabbitmq.Publisher, exchange string) *Router {
	return &Router{
		registry:    registry,
		mirror:      mirror,
		exchange:    exchange,
		sendTimeout: defaultSendTimeout,
	}
}

// Publish delivers an event to all sessions of the trip room except the
// originator.
func (rt *Router) Publish(tripID string, event models.Event, excludeUserID string) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "trip_id", tripID, "type", event.Type, "error", err)
		return
	}

	for _, recipient := range rt.registry.Snapshot(tripID) {
		if excludeUserID != "" && recipient.UserID == excludeUserID {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), rt.sendTimeout)
		err := recipient.Conn.Send(ctx, data)
		cancel()

		if err != nil {
			slog.Error("Failed to send event to session, evicting",
				"trip_id", tripID,
				"user_id", recipient.UserID,
				"session_id", recipient.SessionID,
				"type", event.Type,
				"error", err)
			rt.registry.Unregister(recipient.SessionID)
			continue
		}

		if touchErr := rt.registry.Touch(recipient.SessionID, nil); touchErr != nil {
			// The session disconnected between send and touch; nothing to do.
			continue
		}
	}

	rt.mirrorEvent(tripID, event.Type, data)
}

// mirrorEvent forwards the event to the AMQP fanout exchange. Mirror
// failures are logged and never affect local delivery.
func (rt *Router) mirrorEvent(tripID string, eventType models.EventType, data []byte) {
	if rt.mirror == nil {
		return
	}
	if err := rt.mirror.Publish(rt.exchange, data); err != nil {
		slog.Warn("Failed to mirror event to exchange",
			"trip_id", tripID,
			"type", eventType,
			"exchange", rt.exchange,
			"error", err)
	}
}
