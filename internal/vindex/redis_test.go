package vindex

import (
	"math"
	"testing"
)

func TestFloat32CodecRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 0, 3.14159}
	out := decodeFloat32s(encodeFloat32s(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestDecodeFloat32sRejectsTornBlob(t *testing.T) {
	if got := decodeFloat32s([]byte{1, 2, 3}); got != nil {
		t.Fatalf("expected nil for non-multiple-of-4 blob, got %v", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if got := cosineSimilarity(a, a); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("self similarity = %f, want 1", got)
	}
	if got := cosineSimilarity(a, b); got != 0 {
		t.Errorf("orthogonal similarity = %f, want 0", got)
	}
	neg := []float32{-1, 0, 0}
	if got := cosineSimilarity(a, neg); math.Abs(float64(got)+1) > 1e-6 {
		t.Errorf("opposite similarity = %f, want -1", got)
	}

	// Degenerate inputs score zero instead of dividing by zero.
	if got := cosineSimilarity(a, []float32{1, 0}); got != 0 {
		t.Errorf("length mismatch = %f, want 0", got)
	}
	if got := cosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero vector = %f, want 0", got)
	}
	if got := cosineSimilarity(nil, nil); got != 0 {
		t.Errorf("empty vectors = %f, want 0", got)
	}
}

func TestCosineSimilarityUnnormalized(t *testing.T) {
	// Magnitude must not change the score.
	a := []float32{2, 0, 0}
	b := []float32{5, 0, 0}
	if got := cosineSimilarity(a, b); math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("similarity = %f, want 1", got)
	}
}
