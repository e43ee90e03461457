// Package vindex provides the swappable similarity-search index keyed by
// event id. The Index front door is fail-soft: backend failures degrade to
// no-ops and empty results with a logged warning, so the decision path never
// blocks on retrieval. An empty result means "no information", never
// "confirmed absence of similar events".
package vindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tradetape/tradetape/internal/config"
)

// ErrUnsupportedBackend is returned by New for an unknown backend selector.
// This is fatal at startup.
var ErrUnsupportedBackend = errors.New("unsupported vector backend")

// Result is one similarity hit.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Store is the backend contract: idempotent replace-by-id upserts and
// cosine-ordered search. Implementations return errors; the Index above them
// decides what degrades.
type Store interface {
	// EnsureReady creates the collection or verifies connectivity.
	EnsureReady(ctx context.Context) error

	// Upsert stores a vector with its metadata, replacing any entry with
	// the same id.
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error

	// Search returns up to k hits ordered by similarity descending. A nil
	// filter matches everything; a non-nil filter is equality over
	// metadata fields.
	Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Result, error)

	// Clear drops all entries. Test/reset contexts only.
	Clear(ctx context.Context) error

	Close() error
}

// Index is the fail-soft handle over a Store. Constructed once at startup
// via New and passed by reference; there is no package-level instance.
// Callers own timeouts: no internal deadline is imposed on backend calls.
type Index struct {
	store   Store
	backend string
	method  string

	mu    sync.Mutex
	ready bool
}

// New selects the configured backend. embedMethod is stamped into upserted
// metadata so each entry records the embedding that produced it.
func New(cfg config.VectorConfig, embedMethod string) (*Index, error) {
	idx := &Index{backend: cfg.Backend, method: embedMethod}

	switch cfg.Backend {
	case "disabled", "":
		idx.backend = "disabled"
		return idx, nil
	case "qdrant":
		idx.store = NewQdrantStore(cfg.URL, cfg.Collection, cfg.Dimension)
	case "redis":
		idx.store = NewRedisStore(cfg.Addr, cfg.Password, cfg.DB, cfg.Collection)
	case "chromem":
		store, err := NewChromemStore(cfg.Path, cfg.Collection)
		if err != nil {
			return nil, fmt.Errorf("open chromem store: %w", err)
		}
		idx.store = store
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
	return idx, nil
}

// Disabled reports whether the index is the no-op backend.
func (x *Index) Disabled() bool { return x.store == nil }

// Backend returns the active backend selector.
func (x *Index) Backend() string { return x.backend }

// Upsert stores the vector for id, stamping metadata["embed_method"] when
// absent. Backend failures are logged and swallowed.
func (x *Index) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) {
	if x.store == nil {
		return
	}
	if err := x.ensure(ctx); err != nil {
		slog.Warn("Vector backend unavailable, skipping upsert", "backend", x.backend, "id", id, "error", err)
		return
	}

	stamped := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		stamped[k] = v
	}
	if _, ok := stamped["embed_method"]; !ok && x.method != "" {
		stamped["embed_method"] = x.method
	}

	if err := x.store.Upsert(ctx, id, vector, stamped); err != nil {
		slog.Warn("Vector upsert failed", "backend", x.backend, "id", id, "error", err)
	}
}

// Search returns up to k hits ordered by similarity descending. Backend
// failures are logged and degrade to an empty result.
func (x *Index) Search(ctx context.Context, vector []float32, k int, filter map[string]any) []Result {
	if x.store == nil || k <= 0 {
		return nil
	}
	if err := x.ensure(ctx); err != nil {
		slog.Warn("Vector backend unavailable, returning no neighbors", "backend", x.backend, "error", err)
		return nil
	}

	results, err := x.store.Search(ctx, vector, k, filter)
	if err != nil {
		slog.Warn("Vector search failed", "backend", x.backend, "error", err)
		return nil
	}
	return results
}

// Clear drops the collection. Unlike Upsert/Search this surfaces the error:
// reset contexts need to know whether the wipe happened.
func (x *Index) Clear(ctx context.Context) error {
	if x.store == nil {
		return nil
	}
	x.mu.Lock()
	x.ready = false
	x.mu.Unlock()
	return x.store.Clear(ctx)
}

// Close releases the backend.
func (x *Index) Close() error {
	if x.store == nil {
		return nil
	}
	return x.store.Close()
}

func (x *Index) ensure(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ready {
		return nil
	}
	if err := x.store.EnsureReady(ctx); err != nil {
		return err
	}
	x.ready = true
	return nil
}

// matchesFilter is the post-search predicate used by backends without native
// filter pushdown. Values compare as strings so JSON round trips don't break
// equality on numbers.
func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
