package vindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per entry under "{collection}:{id}" with the
// vector as a little-endian float32 blob and the metadata as JSON. Search is
// a full SCAN with client-side cosine scoring, which is fine at journal
// scale; a real deployment past that point should move to qdrant.
type RedisStore struct {
	client     *redis.Client
	collection string
}

// NewRedisStore connects to the given redis instance.
func NewRedisStore(addr, password string, db int, collection string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		collection: collection,
	}
}

// EnsureReady pings the server.
func (s *RedisStore) EnsureReady(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return s.collection + ":" + id
}

// Upsert writes the entry hash. HSet on an existing key overwrites the
// fields, so re-upserting an id replaces its vector and metadata.
func (s *RedisStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	err = s.client.HSet(ctx, s.key(id),
		"vector", encodeFloat32s(vector),
		"metadata", string(metaJSON),
	).Err()
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Search scans every entry in the collection, scores it against the query
// vector, and returns the top k after applying the filter.
func (s *RedisStore) Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Result, error) {
	var results []Result
	iter := s.client.Scan(ctx, 0, s.collection+":*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("redis hgetall: %w", err)
		}
		stored := decodeFloat32s([]byte(fields["vector"]))
		if len(stored) != len(vector) {
			continue
		}
		var metadata map[string]any
		if raw := fields["metadata"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
				continue
			}
		}
		if !matchesFilter(metadata, filter) {
			continue
		}
		results = append(results, Result{
			ID:       key[len(s.collection)+1:],
			Score:    cosineSimilarity(vector, stored),
			Metadata: metadata,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Clear deletes every key in the collection.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.collection+":*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Close shuts down the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func encodeFloat32s(vector []float32) []byte {
	buf := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32s(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
