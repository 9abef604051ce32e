package embedding

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("Cosine(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize(Vector{3, 4})
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 0.001 {
		t.Errorf("expected unit norm, got %f", math.Sqrt(norm))
	}
}

func TestNormalizeZero(t *testing.T) {
	v := Normalize(Vector{0, 0, 0})
	for i, x := range v {
		if x != 0 {
			t.Errorf("index %d: zero vector should stay zero, got %f", i, x)
		}
	}
}

func newTestEmbedder(t *testing.T, provider string) *Embedder {
	t.Helper()
	e := New(config.Embedding{Provider: provider, Dimensions: 64}, zap.NewNop())
	t.Cleanup(func() { e.Close() })
	return e
}

func TestNoneProviderZeroVectors(t *testing.T) {
	e := newTestEmbedder(t, "none")
	v := e.Embed(context.Background(), "anything at all")
	if len(v) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(v))
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("none provider must return the zero vector")
		}
	}
	if Cosine(v, v) != 0 {
		t.Error("cosine against a zero vector must be 0")
	}
}

func TestLocalProviderDeterministic(t *testing.T) {
	e := newTestEmbedder(t, "local")
	ctx := context.Background()

	a := e.Embed(ctx, "User prefers dark mode in the editor")
	b := e.Embed(ctx, "User prefers dark mode in the editor")
	if math.Abs(Cosine(a, b)-1.0) > 0.001 {
		t.Error("same text must embed to the same vector")
	}

	c := e.Embed(ctx, "completely unrelated text about databases")
	if math.Abs(Cosine(a, c)-1.0) < 0.001 {
		t.Error("different text should not be identical")
	}
}

func TestLocalProviderUnitNorm(t *testing.T) {
	e := newTestEmbedder(t, "local")
	v := e.Embed(context.Background(), "normalize me please, thank you")
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 0.001 {
		t.Errorf("expected unit norm, got %f", math.Sqrt(norm))
	}
}

func TestEmbedBatch(t *testing.T) {
	e := newTestEmbedder(t, "local")
	vecs := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 64 {
			t.Errorf("vector %d has %d dims, want 64", i, len(v))
		}
	}
}
