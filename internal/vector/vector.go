// Package vector implements the embedded-fragment store with brute-force
// cosine search.
//
// Reads run against an in-process copy of the vectors table, rebuilt lazily
// after any mutation flips the staleness flag. Linear scan is intentional: at
// the target scale a warm scan beats maintaining a persistent ANN index and
// cannot go stale against the table.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/embedding"
	"github.com/latentcontext/latentcontext/internal/model"
	"github.com/latentcontext/latentcontext/internal/store"
)

const previewLimit = 200

// Filter restricts a search to matching records. Zero values disable each test.
type Filter struct {
	SourceTypes   []string
	After         *time.Time
	Before        *time.Time
	MinConfidence float64
}

// Match is one search hit.
type Match struct {
	Record     model.VectorRecord
	Similarity float64
}

// VectorStore owns the vectors table plus the process-private cache.
type VectorStore struct {
	store    *store.Store
	embedder *embedding.Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	records []model.VectorRecord
	stale   bool
}

// New returns a VectorStore whose cache is cold until the first search.
func New(st *store.Store, emb *embedding.Embedder, logger *zap.Logger) *VectorStore {
	return &VectorStore{store: st, embedder: emb, logger: logger.Named("vector"), stale: true}
}

// AddParams describes a record to index.
type AddParams struct {
	SourceID   string
	SourceType string
	Content    string
	Confidence float64
	Metadata   map[string]interface{}
}

// Add embeds content and appends a vector record, returning the new id.
func (vs *VectorStore) Add(ctx context.Context, p AddParams) (string, error) {
	vec := vs.embedder.Embed(ctx, p.Content)

	rec := &model.VectorRecord{
		ID:             uuid.NewString(),
		SourceID:       p.SourceID,
		SourceType:     p.SourceType,
		ContentPreview: preview(p.Content),
		Embedding:      vec,
		Dimensions:     len(vec),
		Metadata:       p.Metadata,
		CreatedAt:      time.Now(),
		Confidence:     p.Confidence,
	}
	if err := vs.store.InsertVector(ctx, rec); err != nil {
		return "", fmt.Errorf("index vector: %w", err)
	}
	vs.invalidate()
	return rec.ID, nil
}

// Delete removes one vector record by id.
func (vs *VectorStore) Delete(ctx context.Context, id string) error {
	if err := vs.store.DeleteVector(ctx, id); err != nil {
		return err
	}
	vs.invalidate()
	return nil
}

// DeleteBySource removes every record embedding the given source.
func (vs *VectorStore) DeleteBySource(ctx context.Context, sourceID string) error {
	if err := vs.store.DeleteVectorsBySource(ctx, sourceID); err != nil {
		return err
	}
	vs.invalidate()
	return nil
}

// Search embeds the query text and delegates to SearchByEmbedding.
func (vs *VectorStore) Search(ctx context.Context, query string, k int, f Filter) ([]Match, error) {
	return vs.SearchByEmbedding(ctx, vs.embedder.Embed(ctx, query), k, f)
}

// SearchByEmbedding scans every cached record matching the filter, scores it
// against q and returns the k highest by similarity. Ties keep insertion order.
// Low similarities are returned as-is; callers apply their own floor.
func (vs *VectorStore) SearchByEmbedding(ctx context.Context, q embedding.Vector, k int, f Filter) ([]Match, error) {
	records, err := vs.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, rec := range records {
		if !f.accepts(&rec) {
			continue
		}
		matches = append(matches, Match{
			Record:     rec,
			Similarity: embedding.Cosine(q, rec.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of persisted vector rows.
func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	return vs.store.CountVectors(ctx)
}

func (f *Filter) accepts(rec *model.VectorRecord) bool {
	if len(f.SourceTypes) > 0 {
		ok := false
		for _, t := range f.SourceTypes {
			if rec.SourceType == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.After != nil && rec.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && rec.CreatedAt.After(*f.Before) {
		return false
	}
	if f.MinConfidence > 0 && rec.Confidence < f.MinConfidence {
		return false
	}
	return true
}

func (vs *VectorStore) invalidate() {
	vs.mu.Lock()
	vs.stale = true
	vs.mu.Unlock()
}

// snapshot returns the cached records, reloading from the table when stale.
func (vs *VectorStore) snapshot(ctx context.Context) ([]model.VectorRecord, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.stale {
		records, err := vs.store.AllVectors(ctx)
		if err != nil {
			return nil, fmt.Errorf("load vectors: %w", err)
		}
		vs.records = records
		vs.stale = false
		vs.logger.Debug("vector cache reloaded", zap.Int("records", len(records)))
	}
	return vs.records, nil
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "…"
}
