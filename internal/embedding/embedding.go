// Package embedding provides a pluggable interface for text embedding providers.
//
// The engine-facing Embedder initializes its provider lazily exactly once.
// Initialization failure is latched: every later call returns the zero vector
// of the configured dimension and never retries. Cosine similarity against a
// zero vector is zero, so downstream ranking degrades without branching.
package embedding

import (
	"context"
	"math"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Provider generates embedding vectors from text.
type Provider interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dimensions() int
	Close() error
}

// Embedder wraps a Provider with lazy single initialization, latched failure
// and an in-process memoization cache.
type Embedder struct {
	cfg    config.Embedding
	logger *zap.Logger

	initOnce sync.Once
	provider Provider
	initErr  error

	cache *ristretto.Cache[string, Vector]
}

// New returns an Embedder for the configured provider. No model resources are
// touched until the first Embed call.
func New(cfg config.Embedding, logger *zap.Logger) *Embedder {
	cache, err := ristretto.NewCache(&ristretto.Config[string, Vector]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		logger.Warn("embedding cache unavailable", zap.Error(err))
		cache = nil
	}
	return &Embedder{cfg: cfg, logger: logger.Named("embedding"), cache: cache}
}

func (e *Embedder) init(ctx context.Context) {
	e.initOnce.Do(func() {
		switch e.cfg.Provider {
		case "none":
			e.provider = &noneProvider{dims: e.cfg.Dimensions}
		default:
			e.provider, e.initErr = newLocalProvider(ctx, e.cfg, e.logger)
		}
		if e.initErr != nil {
			e.logger.Warn("embedder initialization failed, serving zero vectors",
				zap.String("provider", e.cfg.Provider), zap.Error(e.initErr))
		}
	})
}

// Embed converts text to an L2-normalized vector of the configured dimension.
// Failures return the zero vector; they never propagate.
func (e *Embedder) Embed(ctx context.Context, text string) Vector {
	e.init(ctx)
	if e.initErr != nil {
		return make(Vector, e.cfg.Dimensions)
	}
	if e.cache != nil {
		if v, ok := e.cache.Get(text); ok {
			return v
		}
	}
	v, err := e.provider.Embed(ctx, text)
	if err != nil || len(v) != e.cfg.Dimensions {
		if err != nil {
			e.logger.Warn("embed failed", zap.Error(err))
		}
		return make(Vector, e.cfg.Dimensions)
	}
	if e.cache != nil {
		e.cache.Set(text, v, 1)
	}
	return v
}

// EmbedBatch embeds each text independently, degrading per call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) []Vector {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		out[i] = e.Embed(ctx, t)
	}
	return out
}

// Dimensions returns the fixed output dimension.
func (e *Embedder) Dimensions() int { return e.cfg.Dimensions }

// InitErr returns the latched initialization error, if any.
func (e *Embedder) InitErr() error { return e.initErr }

// Close releases provider resources. Safe to call before first use.
func (e *Embedder) Close() error {
	if e.cache != nil {
		e.cache.Close()
	}
	if e.provider != nil {
		return e.provider.Close()
	}
	return nil
}

// Cosine computes cosine similarity. It returns 0 when dimensions differ or
// either norm is zero.
func Cosine(a, b Vector) float64 {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place and returns it. A zero vector is
// returned unchanged.
func Normalize(v Vector) Vector {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := 1 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// noneProvider always returns zero vectors.
type noneProvider struct {
	dims int
}

func (p *noneProvider) Embed(ctx context.Context, text string) (Vector, error) {
	return make(Vector, p.dims), nil
}

func (p *noneProvider) Dimensions() int { return p.dims }
func (p *noneProvider) Close() error    { return nil }
