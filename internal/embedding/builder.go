// Package embedding maps decision event payloads to fixed-length vectors for
// similarity search. A configured semantic encoder is used when available;
// otherwise (and on any encoder failure) a deterministic hash embedding keeps
// the pipeline reproducible without network access.
package embedding

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tradetape/tradetape/internal/config"
)

// DefaultDimension is the vector length used when none is configured.
const DefaultDimension = 384

// HashMethod identifies the deterministic fallback embedding.
const HashMethod = "hash/v1"

// ErrUnknownProvider is returned by NewBuilder for an unknown provider
// selector. This is fatal at startup.
var ErrUnknownProvider = errors.New("unknown embedding provider")

// Embedding is one produced vector plus the method that generated it. Method
// is stamped into vector index metadata so mixed-method collections stay
// diagnosable.
type Embedding struct {
	Vector []float32
	Method string
}

// Builder turns payloads into embeddings. Embed never returns an error: any
// encoder failure degrades silently to the hash fallback.
type Builder struct {
	encoder Encoder
	method  string
	dim     int
}

// NewBuilder constructs the builder for the configured provider. Provider
// "hash" uses no encoder; "openai" uses the HTTP encoder when an API key is
// present and degrades to hash with a warning when it is not.
func NewBuilder(cfg config.EmbeddingConfig) (*Builder, error) {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultDimension
	}

	switch cfg.Provider {
	case "", "hash":
		return &Builder{method: HashMethod, dim: dim}, nil
	case "openai":
		if cfg.APIKey == "" {
			slog.Warn("Embedding provider openai has no API key; using hash fallback")
			return &Builder{method: HashMethod, dim: dim}, nil
		}
		enc := NewHTTPEncoder(cfg.APIKey, cfg.APIBase, cfg.Model, dim)
		return &Builder{encoder: enc, method: cfg.Model, dim: dim}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Dimension returns the configured vector length.
func (b *Builder) Dimension() int { return b.dim }

// Method returns the identifier of the active embedding method.
func (b *Builder) Method() string { return b.method }

// Embed produces the vector for one payload. The semantic encoder is tried
// first when configured; on any failure the deterministic fallback is used
// and the caller never sees an error.
func (b *Builder) Embed(ctx context.Context, fields map[string]any) Embedding {
	summary := Summarize(fields)

	if b.encoder != nil {
		vec, err := b.encoder.Encode(ctx, summary)
		if err == nil && len(vec) == b.dim {
			return Embedding{Vector: normalize(vec), Method: b.method}
		}
		if err == nil {
			err = fmt.Errorf("encoder returned %d dims, want %d", len(vec), b.dim)
		}
		slog.Warn("Encoder failed, using hash fallback", "error", err)
	}

	return Embedding{Vector: hashEmbed(summary, b.dim), Method: HashMethod}
}

// EmbedBatch embeds each payload in order. Each element matches what a
// single Embed call would produce for the same encoder availability.
func (b *Builder) EmbedBatch(ctx context.Context, batch []map[string]any) []Embedding {
	out := make([]Embedding, len(batch))
	for i, fields := range batch {
		out[i] = b.Embed(ctx, fields)
	}
	return out
}

// Summarize renders the salient payload fields as a short normalized text:
// lower-cased, fixed field order, fixed float precision. Two payloads that
// agree on the salient fields summarize identically.
func Summarize(fields map[string]any) string {
	var parts []string

	if s, ok := stringField(fields, "ticker"); ok {
		parts = append(parts, "ticker="+s)
	}
	if s, ok := stringField(fields, "regime"); ok {
		parts = append(parts, "regime="+s)
	}
	if s, ok := stringField(fields, "decision"); ok {
		parts = append(parts, "decision="+s)
	}
	if f, ok := floatField(fields, "p_up"); ok {
		parts = append(parts, "p_up="+strconv.FormatFloat(f, 'f', 4, 64))
	}
	if attr := topAttributions(fields["explain"]); attr != "" {
		parts = append(parts, "explain="+attr)
	}
	if s, ok := stringField(fields, "headline"); ok {
		if len(s) > 120 {
			s = s[:120]
		}
		parts = append(parts, "news="+s)
	}

	if len(parts) == 0 {
		// Nothing salient: fall back to sorted key=value over simple fields
		// so distinct payloads keep distinct summaries.
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := fields[k].(type) {
			case string:
				parts = append(parts, k+"="+strings.ToLower(v))
			case float64:
				parts = append(parts, k+"="+strconv.FormatFloat(v, 'f', 4, 64))
			case bool:
				parts = append(parts, k+"="+strconv.FormatBool(v))
			}
		}
	}

	return strings.Join(parts, " ")
}

// topAttributions renders an explain structure as "name:weight" pairs sorted
// by absolute weight descending, capped at five features.
func topAttributions(explain any) string {
	type attr struct {
		name   string
		weight float64
	}
	var attrs []attr

	switch ex := explain.(type) {
	case map[string]any:
		for name, v := range ex {
			if w, ok := toFloat(v); ok {
				attrs = append(attrs, attr{strings.ToLower(name), w})
			}
		}
	case []any:
		for _, item := range ex {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, ok := stringField(m, "feature")
			if !ok {
				name, ok = stringField(m, "name")
			}
			if !ok {
				continue
			}
			if w, wok := floatField(m, "weight"); wok {
				attrs = append(attrs, attr{name, w})
			}
		}
	default:
		return ""
	}

	sort.Slice(attrs, func(i, j int) bool {
		ai, aj := math.Abs(attrs[i].weight), math.Abs(attrs[j].weight)
		if ai != aj {
			return ai > aj
		}
		return attrs[i].name < attrs[j].name
	})
	if len(attrs) > 5 {
		attrs = attrs[:5]
	}

	pairs := make([]string, len(attrs))
	for i, a := range attrs {
		pairs[i] = a.name + ":" + strconv.FormatFloat(a.weight, 'f', 4, 64)
	}
	return strings.Join(pairs, ",")
}

// hashEmbed is the pure deterministic fallback: SHA-256 over the summary with
// a rolling per-block salt, hash bytes mapped into [-1, 1], concatenated to
// dim floats and L2-normalized to unit length.
func hashEmbed(summary string, dim int) []float32 {
	vec := make([]float32, 0, dim)
	for block := 0; len(vec) < dim; block++ {
		sum := sha256.Sum256([]byte(summary + "#" + strconv.Itoa(block)))
		for _, b := range sum {
			if len(vec) == dim {
				break
			}
			vec = append(vec, float32(b)/127.5-1.0)
		}
	}
	return normalize(vec)
}

// normalize scales the vector to unit L2 norm. A zero vector is returned
// unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func stringField(fields map[string]any, key string) (string, bool) {
	s, ok := fields[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " ")), true
}

func floatField(fields map[string]any, key string) (float64, bool) {
	return toFloat(fields[key])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
