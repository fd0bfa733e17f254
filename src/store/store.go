package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Store-level sentinel errors. Callers translate these into domain errors.
var (
	// ErrNotFound indicates the document does not exist in the collection
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates the caller's expected version did not match the
	// stored version; the write was not applied
	ErrConflict = errors.New("document version conflict")
)

// Document is a versioned record in a collection. Version starts at 1 and
// increases by exactly 1 on every accepted write.
type Document struct {
	ID        string          `db:"doc_id"`
	Data      json.RawMessage `db:"data"`
	Version   int             `db:"version"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// DocumentStore is the versioned get/insert/compare-and-swap contract over a
// remote document collection. Documents are never removed physically;
// deletion is a status-field write through the same CAS path.
type DocumentStore interface {
	// Get returns the document and its current version, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Insert creates a new document at version 1.
	Insert(ctx context.Context, collection, id string, data json.RawMessage) (*Document, error)

	// CompareAndSwap replaces the document body iff expectedVersion matches
	// the stored version, incrementing the version by 1. On mismatch it
	// returns ErrConflict and applies nothing.
	CompareAndSwap(ctx context.Context, collection, id string, expectedVersion int, data json.RawMessage) (*Document, error)

	// ListForUser returns the documents the user created or collaborates
	// on, newest first. Documents whose status field is "deleted" are
	// excluded.
	ListForUser(ctx context.Context, collection, userID string) ([]*Document, error)
}
