package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mrsaikumar-7/travvy/src/db"
)

// PostgresStore keeps versioned documents in a single JSONB-backed table.
// The compare-and-swap is a conditional UPDATE on the version column, so
// concurrent writers against the same version resolve to exactly one winner
// without any locking on our side.
type PostgresStore struct {
	db *db.DB
}

// NewPostgresStore creates a document store over an open database connection.
func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// Get returns the document and its current version.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	query := `
		SELECT doc_id, data, version, updated_at
		FROM documents
		WHERE collection = $1 AND doc_id = $2
	`

	var doc Document
	err := s.db.GetConnection().GetContext(ctx, &doc, query, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	return &doc, nil
}

// Insert creates a new document at version 1.
func (s *PostgresStore) Insert(ctx context.Context, collection, id string, data json.RawMessage) (*Document, error) {
	query := `
		INSERT INTO documents (collection, doc_id, data, version, updated_at)
		VALUES ($1, $2, $3, 1, $4)
		RETURNING doc_id, data, version, updated_at
	`

	var doc Document
	err := s.db.GetConnection().GetContext(ctx, &doc, query, collection, id, []byte(data), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert document %s/%s: %w", collection, id, err)
	}

	return &doc, nil
}

// ListForUser returns the documents the user created or collaborates on,
// newest first. Soft-deleted documents are excluded. The created_by filter
// and the collaborators membership check run against the JSONB body.
func (s *PostgresStore) ListForUser(ctx context.Context, collection, userID string) ([]*Document, error) {
	query := `
		SELECT doc_id, data, version, updated_at
		FROM documents
		WHERE collection = $1
		  AND (data ->> 'created_by' = $2 OR data -> 'collaborators' ? $2)
		  AND data ->> 'status' <> 'deleted'
		ORDER BY updated_at DESC
	`

	var docs []*Document
	if err := s.db.GetConnection().SelectContext(ctx, &docs, query, collection, userID); err != nil {
		return nil, fmt.Errorf("failed to list documents in %s for user %s: %w", collection, userID, err)
	}
	return docs, nil
}

// CompareAndSwap replaces the document body iff expectedVersion matches.
// A zero-row update is disambiguated with a follow-up read: a missing row is
// ErrNotFound, an existing row with a different version is ErrConflict.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, collection, id string, expectedVersion int, data json.RawMessage) (*Document, error) {
	query := `
		UPDATE documents
		SET data = $1, version = version + 1, updated_at = $2
		WHERE collection = $3 AND doc_id = $4 AND version = $5
		RETURNING doc_id, data, version, updated_at
	`

	var doc Document
	err := s.db.GetConnection().GetContext(ctx, &doc, query,
		[]byte(data), time.Now().UTC(), collection, id, expectedVersion)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, collection, id); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compare-and-swap document %s/%s: %w", collection, id, err)
	}

	return &doc, nil
}
