//go:build !onnx

package embedding

import (
	"context"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
)

// newLocalProvider returns the in-process embedder. Without the onnx build tag
// this is a deterministic hash-projection embedder: each token contributes a
// pseudo-random direction seeded by its hash, summed and normalized. The same
// text always produces the same unit vector, which is what retrieval and the
// memoization cache require of a degraded local model.
func newLocalProvider(ctx context.Context, cfg config.Embedding, logger *zap.Logger) (Provider, error) {
	logger.Info("local embedder initialized (hash projection)",
		zap.String("model", cfg.Model), zap.Int("dimensions", cfg.Dimensions))
	return &hashProvider{dims: cfg.Dimensions}, nil
}

type hashProvider struct {
	dims int
}

func (p *hashProvider) Embed(ctx context.Context, text string) (Vector, error) {
	vec := make(Vector, p.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(strings.Trim(tok, ".,!?;:\"'")))
		seed := h.Sum64()
		for i := 0; i < p.dims; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed)) / float32(1<<63)
		}
	}
	return Normalize(vec), nil
}

func (p *hashProvider) Dimensions() int { return p.dims }
func (p *hashProvider) Close() error    { return nil }
