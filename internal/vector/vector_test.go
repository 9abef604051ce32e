package vector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/embedding"
	"github.com/latentcontext/latentcontext/internal/store"
)

func newTestVectorStore(t *testing.T) (*VectorStore, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "memory.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	emb := embedding.New(config.Embedding{Provider: "local", Dimensions: 32}, zap.NewNop())
	t.Cleanup(func() { emb.Close() })

	return New(st, emb, zap.NewNop()), st
}

func TestAddAndSearch(t *testing.T) {
	ctx := context.Background()
	vs, _ := newTestVectorStore(t)

	id, err := vs.Add(ctx, AddParams{
		SourceID: "sum-1", SourceType: "fact",
		Content: "User lives in Paris near the river", Confidence: 1.0,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatal("expected a vector id")
	}
	vs.Add(ctx, AddParams{
		SourceID: "sum-2", SourceType: "preference",
		Content: "User prefers dark mode in every editor", Confidence: 1.0,
	})

	matches, err := vs.Search(ctx, "User lives in Paris near the river", 10, Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Record.SourceID != "sum-1" {
		t.Errorf("identical text should rank first, got %s", matches[0].Record.SourceID)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("results must be ordered by similarity")
	}
}

func TestSearchTopK(t *testing.T) {
	ctx := context.Background()
	vs, _ := newTestVectorStore(t)

	for _, content := range []string{
		"first note about databases and indexes",
		"second note about compilers and parsers",
		"third note about networking and sockets",
	} {
		vs.Add(ctx, AddParams{SourceID: content[:5], SourceType: "fact", Content: content, Confidence: 1})
	}

	matches, _ := vs.Search(ctx, "note", 2, Filter{})
	if len(matches) != 2 {
		t.Errorf("expected top-2, got %d", len(matches))
	}
}

func TestFilterBySourceTypeAndConfidence(t *testing.T) {
	ctx := context.Background()
	vs, _ := newTestVectorStore(t)

	vs.Add(ctx, AddParams{SourceID: "a", SourceType: "fact", Content: "shared text about the project", Confidence: 0.9})
	vs.Add(ctx, AddParams{SourceID: "b", SourceType: "event", Content: "shared text about the project", Confidence: 0.4})

	matches, _ := vs.Search(ctx, "shared text", 10, Filter{SourceTypes: []string{"fact"}})
	if len(matches) != 1 || matches[0].Record.SourceID != "a" {
		t.Errorf("source type filter failed: %d matches", len(matches))
	}

	matches, _ = vs.Search(ctx, "shared text", 10, Filter{MinConfidence: 0.5})
	if len(matches) != 1 || matches[0].Record.SourceID != "a" {
		t.Errorf("confidence filter failed: %d matches", len(matches))
	}
}

func TestFilterByTime(t *testing.T) {
	ctx := context.Background()
	vs, _ := newTestVectorStore(t)

	vs.Add(ctx, AddParams{SourceID: "old", SourceType: "fact", Content: "note about the launch", Confidence: 1})

	future := time.Now().Add(time.Hour)
	matches, _ := vs.Search(ctx, "launch", 10, Filter{After: &future})
	if len(matches) != 0 {
		t.Errorf("after-filter should exclude the record, got %d", len(matches))
	}

	matches, _ = vs.Search(ctx, "launch", 10, Filter{Before: &future})
	if len(matches) != 1 {
		t.Errorf("before-filter should include the record, got %d", len(matches))
	}
}

func TestDeleteBySourceInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	vs, _ := newTestVectorStore(t)

	vs.Add(ctx, AddParams{SourceID: "gone", SourceType: "fact", Content: "text that will be removed", Confidence: 1})
	if matches, _ := vs.Search(ctx, "removed", 10, Filter{}); len(matches) != 1 {
		t.Fatal("expected the record before deletion")
	}

	if err := vs.DeleteBySource(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// The cache was warm; deletion must flip it stale.
	if matches, _ := vs.Search(ctx, "removed", 10, Filter{}); len(matches) != 0 {
		t.Error("stale cache served a deleted record")
	}
}

func TestPreviewTruncation(t *testing.T) {
	ctx := context.Background()
	vs, st := newTestVectorStore(t)

	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	vs.Add(ctx, AddParams{SourceID: "long", SourceType: "fact", Content: long, Confidence: 1})

	vecs, _ := st.VectorsBySource(ctx, "long")
	if len(vecs) != 1 {
		t.Fatal("expected one record")
	}
	preview := []rune(vecs[0].ContentPreview)
	if len(preview) != 201 || preview[200] != '…' {
		t.Errorf("preview should be 200 chars plus ellipsis, got %d runes", len(preview))
	}
}
