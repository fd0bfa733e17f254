package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore with the same CAS semantics as
// the PostgreSQL store. Used in tests and local runs without a database.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]*Document
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*Document),
	}
}

// Get returns a copy of the document and its current version.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

// Insert creates a new document at version 1.
func (s *MemoryStore) Insert(ctx context.Context, collection, id string, data json.RawMessage) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]*Document)
	}

	doc := &Document{
		ID:        id,
		Data:      append(json.RawMessage(nil), data...),
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	s.collections[collection][id] = doc
	return copyDocument(doc), nil
}

// CompareAndSwap replaces the document body iff expectedVersion matches the
// stored version.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, collection, id string, expectedVersion int, data json.RawMessage) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	if doc.Version != expectedVersion {
		return nil, ErrConflict
	}

	doc.Data = append(json.RawMessage(nil), data...)
	doc.Version++
	doc.UpdatedAt = time.Now().UTC()
	return copyDocument(doc), nil
}

// listFields is the subset of the document body the in-memory listing
// filter reads.
type listFields struct {
	CreatedBy     string                     `json:"created_by"`
	Status        string                     `json:"status"`
	Collaborators map[string]json.RawMessage `json:"collaborators"`
}

// ListForUser returns the documents the user created or collaborates on,
// newest first, excluding soft-deleted ones.
func (s *MemoryStore) ListForUser(ctx context.Context, collection, userID string) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []*Document
	for _, doc := range s.collections[collection] {
		var fields listFields
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			continue
		}
		if _, member := fields.Collaborators[userID]; !member && fields.CreatedBy != userID {
			continue
		}
		if fields.Status == "deleted" {
			continue
		}
		docs = append(docs, copyDocument(doc))
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func copyDocument(doc *Document) *Document {
	return &Document{
		ID:        doc.ID,
		Data:      append(json.RawMessage(nil), doc.Data...),
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
	}
}
