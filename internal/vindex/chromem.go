package vindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore is the embedded backend: no external service, vectors live
// in-process and optionally persist to a directory. The full metadata is
// kept as JSON in the document content because chromem metadata only holds
// strings; the stringified copy in document metadata serves the native
// where filter.
type ChromemStore struct {
	db         *chromem.DB
	collection string

	mu  sync.RWMutex
	col *chromem.Collection
}

// NewChromemStore opens an in-memory store, or a persistent one when path
// is set.
func NewChromemStore(path, collection string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, err
		}
	}
	return &ChromemStore{db: db, collection: collection}, nil
}

// EnsureReady creates or reopens the collection.
func (s *ChromemStore) EnsureReady(ctx context.Context) error {
	col, err := s.db.GetOrCreateCollection(s.collection, nil, nil)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}
	s.mu.Lock()
	s.col = col
	s.mu.Unlock()
	return nil
}

func (s *ChromemStore) getCol() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col
}

// Upsert adds or replaces the document for id.
func (s *ChromemStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	col := s.getCol()
	if col == nil {
		return errors.New("collection not ready")
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	stringMeta := make(map[string]string, len(metadata))
	for key, value := range metadata {
		stringMeta[key] = fmt.Sprint(value)
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   string(metaJSON),
		Embedding: vector,
		Metadata:  stringMeta,
	})
}

// Search queries the collection. chromem rejects nResults larger than the
// document count, so k is clamped first.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Result, error) {
	col := s.getCol()
	if col == nil {
		return nil, errors.New("collection not ready")
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for key, value := range filter {
			where[key] = fmt.Sprint(value)
		}
	}

	hits, err := col.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		var metadata map[string]any
		if err := json.Unmarshal([]byte(hit.Content), &metadata); err != nil {
			metadata = make(map[string]any, len(hit.Metadata))
			for key, value := range hit.Metadata {
				metadata[key] = value
			}
		}
		results = append(results, Result{
			ID:       hit.ID,
			Score:    hit.Similarity,
			Metadata: metadata,
		})
	}
	return results, nil
}

// Clear drops the collection and recreates it empty.
func (s *ChromemStore) Clear(ctx context.Context) error {
	if err := s.db.DeleteCollection(s.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(s.collection, nil, nil)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	s.mu.Lock()
	s.col = col
	s.mu.Unlock()
	return nil
}

// Close releases nothing: persistence happens on every write.
func (s *ChromemStore) Close() error { return nil }
