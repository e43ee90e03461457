package vindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// QdrantStore talks to a Qdrant instance over its REST API. Event ids are
// UUIDs, which Qdrant accepts as point ids directly.
type QdrantStore struct {
	baseURL    string
	collection string
	dimension  int
	client     *http.Client
}

// NewQdrantStore creates a store for the given endpoint and collection.
func NewQdrantStore(url, collection string, dim int) *QdrantStore {
	return &QdrantStore{
		baseURL:    url,
		collection: collection,
		dimension:  dim,
		client:     &http.Client{},
	}
}

// EnsureReady creates the collection with cosine distance if it is missing.
func (s *QdrantStore) EnsureReady(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/collections/"+s.collection, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	jsonBody, _ := json.Marshal(body)
	req, err = http.NewRequestWithContext(ctx, "PUT", s.baseURL+"/collections/"+s.collection, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create collection: %s", string(b))
	}
	return nil
}

// Upsert replaces the point for id. wait=true makes the write visible to the
// next search.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":      id,
				"vector":  vector,
				"payload": metadata,
			},
		},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant upsert failed: %s", string(b))
	}
	return nil
}

// Search queries the collection. Equality filters push down as must/match
// conditions, so qdrant applies them before the top-k cut.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Result, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if len(filter) > 0 {
		var must []map[string]any
		for key, value := range filter {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}

	jsonBody, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant search failed: %d", resp.StatusCode)
	}

	var response struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	results := make([]Result, len(response.Result))
	for i, r := range response.Result {
		results[i] = Result{
			ID:       r.ID,
			Score:    r.Score,
			Metadata: r.Payload,
		}
	}
	return results, nil
}

// Clear drops the collection; the next EnsureReady recreates it.
func (s *QdrantStore) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", s.baseURL+"/collections/"+s.collection, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant delete collection failed: %s", string(b))
	}
	return nil
}

// Close releases nothing: connections are pooled by the HTTP client.
func (s *QdrantStore) Close() error { return nil }
