package vindex

import (
	"context"
	"errors"
	"testing"

	"github.com/tradetape/tradetape/internal/config"
)

type fakeUpsert struct {
	id       string
	metadata map[string]any
}

type fakeStore struct {
	readyErr  error
	upsertErr error
	searchErr error
	clearErr  error

	readyCalls int
	upserts    []fakeUpsert
	hits       []Result
	lastK      int
	lastFilter map[string]any
	clearCalls int
	closed     bool
}

func (f *fakeStore) EnsureReady(ctx context.Context) error {
	f.readyCalls++
	return f.readyErr
}

func (f *fakeStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	f.upserts = append(f.upserts, fakeUpsert{id: id, metadata: metadata})
	return f.upsertErr
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Result, error) {
	f.lastK = k
	f.lastFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeStore) Clear(ctx context.Context) error {
	f.clearCalls++
	return f.clearErr
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func TestNewDisabled(t *testing.T) {
	for _, backend := range []string{"", "disabled"} {
		idx, err := New(config.VectorConfig{Backend: backend}, "hash/v1")
		if err != nil {
			t.Fatalf("New(%q): %v", backend, err)
		}
		if !idx.Disabled() {
			t.Fatalf("backend %q: expected disabled index", backend)
		}
		if got := idx.Backend(); got != "disabled" {
			t.Errorf("Backend() = %q, want disabled", got)
		}

		ctx := context.Background()
		idx.Upsert(ctx, "e1", []float32{1}, nil)
		if hits := idx.Search(ctx, []float32{1}, 5, nil); hits != nil {
			t.Errorf("disabled Search returned %v, want nil", hits)
		}
		if err := idx.Clear(ctx); err != nil {
			t.Errorf("disabled Clear: %v", err)
		}
		if err := idx.Close(); err != nil {
			t.Errorf("disabled Close: %v", err)
		}
	}
}

func TestNewUnsupportedBackend(t *testing.T) {
	_, err := New(config.VectorConfig{Backend: "pinecone"}, "hash/v1")
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}

func TestNewChromem(t *testing.T) {
	idx, err := New(config.VectorConfig{Backend: "chromem", Collection: "events"}, "hash/v1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if idx.Disabled() {
		t.Fatal("chromem index should not be disabled")
	}
	if got := idx.Backend(); got != "chromem" {
		t.Errorf("Backend() = %q, want chromem", got)
	}
}

func TestUpsertStampsEmbedMethod(t *testing.T) {
	store := &fakeStore{}
	idx := &Index{store: store, backend: "fake", method: "hash/v1"}

	meta := map[string]any{"ticker": "aapl"}
	idx.Upsert(context.Background(), "e1", []float32{1, 0}, meta)

	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}
	got := store.upserts[0]
	if got.id != "e1" {
		t.Errorf("upsert id = %q", got.id)
	}
	if got.metadata["embed_method"] != "hash/v1" {
		t.Errorf("embed_method = %v, want hash/v1", got.metadata["embed_method"])
	}
	if got.metadata["ticker"] != "aapl" {
		t.Errorf("ticker = %v", got.metadata["ticker"])
	}
	if _, ok := meta["embed_method"]; ok {
		t.Error("caller metadata was mutated")
	}
}

func TestUpsertKeepsCallerEmbedMethod(t *testing.T) {
	store := &fakeStore{}
	idx := &Index{store: store, backend: "fake", method: "hash/v1"}

	idx.Upsert(context.Background(), "e1", []float32{1}, map[string]any{"embed_method": "openai/custom"})

	if got := store.upserts[0].metadata["embed_method"]; got != "openai/custom" {
		t.Errorf("embed_method = %v, want openai/custom", got)
	}
}

func TestEnsureReadyOnce(t *testing.T) {
	store := &fakeStore{}
	idx := &Index{store: store, backend: "fake"}
	ctx := context.Background()

	idx.Upsert(ctx, "e1", []float32{1}, nil)
	idx.Upsert(ctx, "e2", []float32{1}, nil)
	idx.Search(ctx, []float32{1}, 3, nil)

	if store.readyCalls != 1 {
		t.Fatalf("EnsureReady called %d times, want 1", store.readyCalls)
	}
}

func TestUnavailableBackendDegrades(t *testing.T) {
	store := &fakeStore{readyErr: errors.New("connection refused")}
	idx := &Index{store: store, backend: "fake"}
	ctx := context.Background()

	idx.Upsert(ctx, "e1", []float32{1}, nil)
	if len(store.upserts) != 0 {
		t.Fatal("upsert should not reach an unavailable backend")
	}
	if hits := idx.Search(ctx, []float32{1}, 3, nil); hits != nil {
		t.Fatalf("Search = %v, want nil", hits)
	}

	// Readiness must not latch on failure: the next call retries.
	if store.readyCalls != 2 {
		t.Fatalf("EnsureReady called %d times, want 2", store.readyCalls)
	}
}

func TestSearchFailureReturnsEmpty(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("boom")}
	idx := &Index{store: store, backend: "fake"}

	if hits := idx.Search(context.Background(), []float32{1}, 3, nil); hits != nil {
		t.Fatalf("Search = %v, want nil", hits)
	}
}

func TestSearchNonPositiveK(t *testing.T) {
	store := &fakeStore{hits: []Result{{ID: "e1"}}}
	idx := &Index{store: store, backend: "fake"}

	if hits := idx.Search(context.Background(), []float32{1}, 0, nil); hits != nil {
		t.Fatalf("Search(k=0) = %v, want nil", hits)
	}
	if store.readyCalls != 0 {
		t.Fatal("k=0 should not touch the backend")
	}
}

func TestSearchPassesThrough(t *testing.T) {
	store := &fakeStore{hits: []Result{{ID: "e1", Score: 0.9}, {ID: "e2", Score: 0.5}}}
	idx := &Index{store: store, backend: "fake"}

	filter := map[string]any{"ticker": "aapl"}
	hits := idx.Search(context.Background(), []float32{1}, 7, filter)
	if len(hits) != 2 || hits[0].ID != "e1" {
		t.Fatalf("unexpected hits %v", hits)
	}
	if store.lastK != 7 {
		t.Errorf("k = %d, want 7", store.lastK)
	}
	if store.lastFilter["ticker"] != "aapl" {
		t.Errorf("filter not forwarded: %v", store.lastFilter)
	}
}

func TestClearResetsReadiness(t *testing.T) {
	store := &fakeStore{}
	idx := &Index{store: store, backend: "fake"}
	ctx := context.Background()

	idx.Upsert(ctx, "e1", []float32{1}, nil)
	if err := idx.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.clearCalls != 1 {
		t.Fatalf("Clear calls = %d, want 1", store.clearCalls)
	}

	idx.Upsert(ctx, "e2", []float32{1}, nil)
	if store.readyCalls != 2 {
		t.Fatalf("EnsureReady called %d times after Clear, want 2", store.readyCalls)
	}
}

func TestClearSurfacesError(t *testing.T) {
	store := &fakeStore{clearErr: errors.New("wipe failed")}
	idx := &Index{store: store, backend: "fake"}

	if err := idx.Clear(context.Background()); err == nil {
		t.Fatal("expected Clear to surface the backend error")
	}
}

func TestCloseReleasesStore(t *testing.T) {
	store := &fakeStore{}
	idx := &Index{store: store, backend: "fake"}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !store.closed {
		t.Fatal("store not closed")
	}
}

func TestMatchesFilter(t *testing.T) {
	meta := map[string]any{
		"ticker":   "aapl",
		"decision": "buy",
		"p_up":     float64(0.55),
	}

	if !matchesFilter(meta, nil) {
		t.Error("nil filter should match")
	}
	if !matchesFilter(meta, map[string]any{"ticker": "aapl"}) {
		t.Error("exact match failed")
	}
	if matchesFilter(meta, map[string]any{"ticker": "msft"}) {
		t.Error("mismatch should fail")
	}
	if matchesFilter(meta, map[string]any{"regime": "base"}) {
		t.Error("missing key should fail")
	}
	// Numbers compare as strings so a JSON round trip (int → float64)
	// still matches.
	if !matchesFilter(map[string]any{"k": float64(3)}, map[string]any{"k": 3}) {
		t.Error("numeric equality across types failed")
	}
}
