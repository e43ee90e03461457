package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/tradetape/tradetape/internal/config"
)

type fakeEncoder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func hashBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(config.EmbeddingConfig{Provider: "hash", Dimension: 384})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return b
}

func vecNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestNewBuilderSelectsProvider(t *testing.T) {
	b, err := NewBuilder(config.EmbeddingConfig{Provider: "hash", Dimension: 64})
	if err != nil {
		t.Fatalf("hash provider: %v", err)
	}
	if b.Method() != HashMethod || b.Dimension() != 64 {
		t.Errorf("unexpected builder: method=%s dim=%d", b.Method(), b.Dimension())
	}

	b, err = NewBuilder(config.EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: "sk-x", Dimension: 384})
	if err != nil {
		t.Fatalf("openai provider: %v", err)
	}
	if b.Method() != "text-embedding-3-small" {
		t.Errorf("expected model method, got %s", b.Method())
	}

	// No API key degrades to hash instead of failing startup.
	b, err = NewBuilder(config.EmbeddingConfig{Provider: "openai", Dimension: 384})
	if err != nil {
		t.Fatalf("openai without key: %v", err)
	}
	if b.Method() != HashMethod {
		t.Errorf("expected hash fallback without key, got %s", b.Method())
	}

	if _, err := NewBuilder(config.EmbeddingConfig{Provider: "cohere"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestHashEmbeddingDeterministic(t *testing.T) {
	b := hashBuilder(t)
	ctx := context.Background()
	fields := map[string]any{"ticker": "AAPL", "regime": "base", "p_up": 0.55}

	first := b.Embed(ctx, fields)
	second := b.Embed(ctx, fields)

	if first.Method != HashMethod {
		t.Errorf("expected method %s, got %s", HashMethod, first.Method)
	}
	if len(first.Vector) != 384 {
		t.Fatalf("expected 384 dims, got %d", len(first.Vector))
	}
	for i := range first.Vector {
		if first.Vector[i] != second.Vector[i] {
			t.Fatalf("vectors differ at dim %d: %v vs %v", i, first.Vector[i], second.Vector[i])
		}
	}
	if norm := vecNorm(first.Vector); math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %v", norm)
	}
}

func TestHashEmbeddingSeparatesPayloads(t *testing.T) {
	b := hashBuilder(t)
	ctx := context.Background()

	a := b.Embed(ctx, map[string]any{"ticker": "AAPL", "regime": "base"})
	z := b.Embed(ctx, map[string]any{"ticker": "NVDA", "regime": "panic"})

	same := true
	for i := range a.Vector {
		if a.Vector[i] != z.Vector[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct payloads produced identical vectors")
	}
}

func TestEmbedUsesEncoder(t *testing.T) {
	enc := &fakeEncoder{vector: make([]float32, 8)}
	enc.vector[0] = 2 // not unit norm on purpose
	b := &Builder{encoder: enc, method: "enc/v1", dim: 8}

	emb := b.Embed(context.Background(), map[string]any{"ticker": "AAPL"})
	if emb.Method != "enc/v1" {
		t.Errorf("expected encoder method, got %s", emb.Method)
	}
	if norm := vecNorm(emb.Vector); math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("encoder output not normalized: norm %v", norm)
	}
}

func TestEmbedFallsBackOnEncoderError(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("connection refused")}
	b := &Builder{encoder: enc, method: "enc/v1", dim: 16}

	emb := b.Embed(context.Background(), map[string]any{"ticker": "AAPL"})
	if emb.Method != HashMethod {
		t.Errorf("expected hash fallback, got %s", emb.Method)
	}
	if len(emb.Vector) != 16 {
		t.Errorf("expected configured dims from fallback, got %d", len(emb.Vector))
	}

	// Fallback output equals what a pure hash builder produces.
	pure := &Builder{method: HashMethod, dim: 16}
	want := pure.Embed(context.Background(), map[string]any{"ticker": "AAPL"})
	for i := range want.Vector {
		if emb.Vector[i] != want.Vector[i] {
			t.Fatalf("fallback differs from pure hash at dim %d", i)
		}
	}
}

func TestEmbedFallsBackOnWrongDimension(t *testing.T) {
	enc := &fakeEncoder{vector: make([]float32, 3)}
	b := &Builder{encoder: enc, method: "enc/v1", dim: 8}

	emb := b.Embed(context.Background(), map[string]any{"ticker": "AAPL"})
	if emb.Method != HashMethod {
		t.Errorf("expected fallback on dimension mismatch, got %s", emb.Method)
	}
}

func TestEmbedBatchMatchesSingleCalls(t *testing.T) {
	b := hashBuilder(t)
	ctx := context.Background()
	batch := []map[string]any{
		{"ticker": "AAPL", "regime": "base"},
		{"ticker": "MSFT", "regime": "squeeze"},
		{"ticker": "NVDA", "decision": "buy"},
	}

	got := b.EmbedBatch(ctx, batch)
	if len(got) != len(batch) {
		t.Fatalf("expected %d embeddings, got %d", len(batch), len(got))
	}
	for i, fields := range batch {
		single := b.Embed(ctx, fields)
		if single.Method != got[i].Method {
			t.Errorf("item %d method mismatch", i)
		}
		for d := range single.Vector {
			if single.Vector[d] != got[i].Vector[d] {
				t.Fatalf("item %d differs from single call at dim %d", i, d)
			}
		}
	}
}

func TestSummarizeSalientFields(t *testing.T) {
	s := Summarize(map[string]any{
		"ticker":   "AAPL",
		"regime":   "Base",
		"decision": "BUY",
		"p_up":     0.55,
		"explain": map[string]any{
			"mom_20": 0.31,
			"rsi":    -0.42,
		},
		"headline": "Apple  beats   on earnings",
		"size":     100, // not salient
	})

	want := "ticker=aapl regime=base decision=buy p_up=0.5500 explain=rsi:-0.4200,mom_20:0.3100 news=apple beats on earnings"
	if s != want {
		t.Errorf("summary mismatch:\n got %q\nwant %q", s, want)
	}
}

func TestSummarizeExplainList(t *testing.T) {
	s := Summarize(map[string]any{
		"ticker": "AAPL",
		"explain": []any{
			map[string]any{"feature": "vol_5", "weight": 0.1},
			map[string]any{"feature": "gap", "weight": -0.9},
		},
	})
	want := "ticker=aapl explain=gap:-0.9000,vol_5:0.1000"
	if s != want {
		t.Errorf("summary mismatch:\n got %q\nwant %q", s, want)
	}
}

func TestSummarizeFallbackIsDeterministic(t *testing.T) {
	fields := map[string]any{"zeta": "Z", "alpha": 1.5, "flag": true}
	first := Summarize(fields)
	second := Summarize(fields)
	if first != second {
		t.Errorf("fallback summary unstable: %q vs %q", first, second)
	}
	if first != "alpha=1.5000 flag=true zeta=z" {
		t.Errorf("unexpected fallback summary: %q", first)
	}
}
