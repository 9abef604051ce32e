package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/embedding"
	"github.com/latentcontext/latentcontext/internal/graph"
	"github.com/latentcontext/latentcontext/internal/session"
	"github.com/latentcontext/latentcontext/internal/store"
	"github.com/latentcontext/latentcontext/internal/token"
	"github.com/latentcontext/latentcontext/internal/vector"
)

type fixture struct {
	store    *store.Store
	graph    *graph.Graph
	vectors  *vector.VectorStore
	registry *session.Registry
	manager  *Manager
	counter  *token.Counter
	cfg      *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Embedding.Dimensions = 32
	if mutate != nil {
		mutate(cfg)
	}

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "memory.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	counter, _ := token.New()
	emb := embedding.New(cfg.Embedding, zap.NewNop())
	t.Cleanup(func() { emb.Close() })
	vs := vector.New(st, emb, zap.NewNop())
	g := graph.New(st, zap.NewNop())
	reg := session.New(st, zap.NewNop())
	mgr := New(st, g, vs, counter, reg, cfg, zap.NewNop())

	if _, err := reg.Start(context.Background(), nil); err != nil {
		t.Fatalf("start session: %v", err)
	}

	return &fixture{store: st, graph: g, vectors: vs, registry: reg, manager: mgr, counter: counter, cfg: cfg}
}

func TestStoreFactRoutesToTierOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.manager.Store(ctx, StoreParams{
		Content:    "User lives in Paris and has worked there for several years now.",
		Kind:       "fact",
		Confidence: 1.0,
		Entities:   []string{"User", "Paris"},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if res.Tier != TierSession {
		t.Errorf("fact should land at tier 1, got %d", res.Tier)
	}
	if len(res.EntitiesCreated) != 2 {
		t.Errorf("expected both entities created, got %v", res.EntitiesCreated)
	}
	if res.FactsStored != 1 {
		t.Errorf("expected 1 fact, got %d", res.FactsStored)
	}
	if res.VectorID == "" {
		t.Error("expected a vector record")
	}

	view, _ := f.graph.QueryEntity(ctx, "User", 1)
	if view == nil || !strings.Contains(view.Text, "→ located_in → Paris") {
		t.Errorf("graph edge missing: %v", view)
	}

	sum, _ := f.store.SummaryByID(ctx, res.MemoryID)
	if sum == nil || sum.Tier != 1 {
		t.Error("expected a tier-1 summary row")
	}
	if sum.SessionID != f.registry.CurrentID() {
		t.Error("summary should be tagged with the current session")
	}
}

func TestStorePreferenceLinksUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.manager.Store(ctx, StoreParams{
		Content:    "User strongly prefers dark mode themes across every editor they use daily.",
		Kind:       "preference",
		Confidence: 1.0,
		Entities:   []string{"dark mode"},
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if res.Tier != TierEpoch {
		t.Errorf("preference should land at tier 2, got %d", res.Tier)
	}

	facts, _ := f.graph.QueryByPredicate(ctx, "prefers")
	if len(facts) != 1 || facts[0].SubjectLabel != "User" || facts[0].ObjectLabel != "dark mode" {
		t.Errorf("expected User prefers dark mode, got %+v", facts)
	}
}

func TestStoreEventStaysInWorkingBuffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.manager.Store(ctx, StoreParams{
		Content: "User is debugging the payment flow during this very conversation today.",
		Kind:    "event",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if res.Tier != TierWorking {
		t.Errorf("event should land at tier 0, got %d", res.Tier)
	}

	entries := f.manager.WorkingEntries(f.registry.CurrentID())
	if len(entries) != 1 || entries[0].ID != res.MemoryID {
		t.Fatalf("expected one working entry, got %d", len(entries))
	}

	// No summary row for events.
	if sum, _ := f.store.SummaryByID(ctx, res.MemoryID); sum != nil {
		t.Error("events must not be persisted as summary rows")
	}
}

func TestStoreCoreRoutesToTierThree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.manager.Store(ctx, StoreParams{
		Content: "The user's name is Dana and they are the maintainer of this project.",
		Kind:    "core",
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if res.Tier != TierCore {
		t.Errorf("core should land at tier 3, got %d", res.Tier)
	}
}

func TestInferPredicate(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"User lives in Paris.", "located_in"},
		{"User moved to London.", "located_in"},
		{"Dana works at Acme Corp.", "works_at"},
		{"User loves espresso.", "prefers"},
		{"User dislikes long meetings.", "dislikes"},
		{"Rust is a systems language.", "is_a"},
		{"User owns a mechanical keyboard.", "has"},
		{"User met Alice last year.", "knows"},
		{"User plans to learn Zig.", "wants_to"},
		{"Dana wrote the parser.", "created"},
		{"The team uses PostgreSQL.", "uses"},
		{"User traveled to Tokyo.", "visited"},
		{"User studied linguistics.", "learned"},
		{"Dana is from Portugal.", "from"},
		{"Dana is married to Sam.", "married_to"},
		{"User belongs to the platform guild.", "member_of"},
		{"Dana manages the infra team.", "manages"},
		{"Dana reports to the CTO.", "reports_to"},
		{"Sam mentors the new hires.", "teaches"},
		{"Something entirely unparseable here.", "related_to"},
	}
	for _, tt := range tests {
		if got := InferPredicate(tt.content); got != tt.want {
			t.Errorf("InferPredicate(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestInferPredicateFirstHitWins(t *testing.T) {
	// "lives" (located_in) precedes "likes" (prefers) in rule order.
	if got := InferPredicate("User lives in Paris and likes croissants."); got != "located_in" {
		t.Errorf("expected declaration order to win, got %q", got)
	}
}

func TestAutoCompressOnOverflow(t *testing.T) {
	ctx := context.Background()

	content := "one two three four five six seven eight nine ten."
	f := newFixture(t, nil)
	perEntry := f.counter.Count(content)
	// Six inserts overflow after the sixth.
	f.cfg.Compression.Tier0OverflowThreshold = perEntry*6 - 1

	for i := 0; i < 6; i++ {
		if _, err := f.manager.Store(ctx, StoreParams{Content: content, Kind: "event"}); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	sessionID := f.registry.CurrentID()
	entries := f.manager.WorkingEntries(sessionID)
	if len(entries) != 3 {
		t.Fatalf("oldest half should be compressed away, %d entries remain", len(entries))
	}
	if f.manager.WorkingTokens(sessionID) > f.cfg.Compression.Tier0OverflowThreshold {
		t.Error("working tokens must drop to at most the threshold")
	}

	summaries, _ := f.store.SummariesByTierSession(ctx, TierSession, sessionID, 0)
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one auto-compressed summary, got %d", len(summaries))
	}
	sum := summaries[0]
	if len(sum.SourceIDs) != 3 {
		t.Errorf("source_ids should list the 3 compressed entries, got %d", len(sum.SourceIDs))
	}
	if sum.Metadata["type"] != "auto_compressed" {
		t.Errorf("metadata type = %v", sum.Metadata["type"])
	}
}

func TestCompressWorkingReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for i := 0; i < 3; i++ {
		f.manager.Store(ctx, StoreParams{
			Content: "User walked through the onboarding flow and hit the same validation bug again.",
			Kind:    "event",
		})
	}

	report, err := f.manager.Compress(ctx, "working")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !strings.Contains(report, "3 working memories") {
		t.Errorf("report should mention the entry count: %q", report)
	}
	if !strings.Contains(report, "x)") {
		t.Errorf("report should include the compression ratio: %q", report)
	}
	if len(f.manager.WorkingEntries(f.registry.CurrentID())) != 0 {
		t.Error("compressed entries must leave the buffer")
	}
}

func TestCompressWorkingEmpty(t *testing.T) {
	f := newFixture(t, nil)
	report, err := f.manager.Compress(context.Background(), "working")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !strings.Contains(report, "No working memories") {
		t.Errorf("unexpected report: %q", report)
	}
}

func TestCompressSessionNeedsTwo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.manager.Store(ctx, StoreParams{
		Content: "User confirmed the deployment pipeline now passes all integration checks.",
		Kind:    "summary",
	})

	report, err := f.manager.Compress(ctx, "session")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !strings.Contains(report, "Not enough") {
		t.Errorf("unexpected report: %q", report)
	}
}

func TestCompressSessionConsolidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	a, _ := f.manager.Store(ctx, StoreParams{
		Content: "User finished migrating the billing service onto the new message broker.",
		Kind:    "summary",
	})
	b, _ := f.manager.Store(ctx, StoreParams{
		Content: "User scheduled the database failover rehearsal for the second week of March.",
		Kind:    "summary",
	})

	report, err := f.manager.Compress(ctx, "session")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !strings.Contains(report, "Consolidated 2") {
		t.Errorf("unexpected report: %q", report)
	}

	// Consumed summaries and their vectors are gone.
	for _, id := range []string{a.MemoryID, b.MemoryID} {
		if sum, _ := f.store.SummaryByID(ctx, id); sum != nil {
			t.Errorf("summary %s should be deleted", id)
		}
		if vecs, _ := f.store.VectorsBySource(ctx, id); len(vecs) != 0 {
			t.Errorf("vectors for %s should be deleted", id)
		}
	}

	remaining, _ := f.store.SummariesByTier(ctx, TierSession, 0)
	if len(remaining) != 1 {
		t.Fatalf("expected one consolidated row, got %d", len(remaining))
	}
	if len(remaining[0].SourceIDs) != 2 {
		t.Errorf("consolidated row should reference both sources, got %v", remaining[0].SourceIDs)
	}
}

func TestCompressEpochShortfall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *config.Config) {
		c.Compression.Tier1ConsolidationCount = 3
	})

	f.manager.Store(ctx, StoreParams{
		Content: "User wrapped up the quarterly planning discussion with the platform team.",
		Kind:    "summary",
	})

	report, err := f.manager.Compress(ctx, "epoch")
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if !strings.Contains(report, "Need 3") {
		t.Errorf("unexpected report: %q", report)
	}
}

func TestCompressEpochProducesTierTwo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *config.Config) {
		c.Compression.Tier1ConsolidationCount = 2
	})

	f.manager.Store(ctx, StoreParams{
		Content: "User completed the first round of load testing against the staging cluster.",
		Kind:    "summary",
	})
	f.manager.Store(ctx, StoreParams{
		Content: "User validated the new retry policy against the flaky upstream dependency.",
		Kind:    "summary",
	})

	if _, err := f.manager.Compress(ctx, "epoch"); err != nil {
		t.Fatalf("compress: %v", err)
	}

	epochs, _ := f.store.SummariesByTier(ctx, TierEpoch, 0)
	if len(epochs) != 1 {
		t.Fatalf("expected one epoch summary, got %d", len(epochs))
	}
	t1s, _ := f.store.SummariesByTier(ctx, TierSession, 0)
	if len(t1s) != 0 {
		t.Errorf("consumed tier-1 rows should be deleted, %d remain", len(t1s))
	}
}

func TestForgetDeletePurgesVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, _ := f.manager.Store(ctx, StoreParams{
		Content: "User lives in Paris and has worked there for several years now.",
		Kind:    "fact",
	})

	report, err := f.manager.Forget(ctx, res.MemoryID, "delete", "")
	if err != nil {
		t.Fatalf("forget: %v", err)
	}
	if !strings.Contains(report, "Deleted") {
		t.Errorf("unexpected report: %q", report)
	}

	if sum, _ := f.store.SummaryByID(ctx, res.MemoryID); sum != nil {
		t.Error("summary should be gone")
	}
	if vecs, _ := f.store.VectorsBySource(ctx, res.MemoryID); len(vecs) != 0 {
		t.Error("no vector may reference a deleted memory")
	}
}

func TestForgetDeprecate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, _ := f.manager.Store(ctx, StoreParams{
		Content: "User prefers tabs over spaces in every language they regularly write.",
		Kind:    "preference",
	})
	before, _ := f.store.SummaryByID(ctx, res.MemoryID)

	if _, err := f.manager.Forget(ctx, res.MemoryID, "deprecate", ""); err != nil {
		t.Fatalf("forget: %v", err)
	}

	after, _ := f.store.SummaryByID(ctx, res.MemoryID)
	if !strings.HasPrefix(after.Content, "[DEPRECATED] ") {
		t.Errorf("expected deprecation prefix, got %q", after.Content)
	}
	if after.TokenCount != before.TokenCount+15 {
		t.Errorf("expected token count padded by 15, got %d vs %d", after.TokenCount, before.TokenCount)
	}
}

func TestForgetCorrectReindexes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, _ := f.manager.Store(ctx, StoreParams{
		Content:  "User likes dark mode but the exact palette is still a placeholder.",
		Kind:     "preference",
		Entities: []string{"dark mode"},
	})

	corrected := "User strongly prefers dark mode with #0a0e27 base and #6c63ff accents."
	if _, err := f.manager.Forget(ctx, res.MemoryID, "correct", corrected); err != nil {
		t.Fatalf("forget: %v", err)
	}

	sum, _ := f.store.SummaryByID(ctx, res.MemoryID)
	if sum.Content != corrected {
		t.Errorf("content not corrected: %q", sum.Content)
	}
	if sum.TokenCount != f.counter.Count(corrected) {
		t.Error("token count must be recounted")
	}

	vecs, _ := f.store.VectorsBySource(ctx, res.MemoryID)
	if len(vecs) != 1 {
		t.Fatalf("expected a fresh vector, got %d", len(vecs))
	}
	if !strings.Contains(vecs[0].ContentPreview, "#0a0e27") {
		t.Error("vector must reflect the corrected content")
	}
	if vecs[0].SourceType != "preference" {
		t.Errorf("vector should stay in its original lane, got %q", vecs[0].SourceType)
	}
}

func TestForgetCorrectRequiresCorrection(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.manager.Forget(context.Background(), "whatever", "correct", ""); err == nil {
		t.Error("correct without a correction must be a caller error")
	}
}

func TestForgetWorkingEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, _ := f.manager.Store(ctx, StoreParams{
		Content: "User is comparing two caching strategies for the session lookup path.",
		Kind:    "event",
	})

	// Deprecate is a no-op for working entries.
	if _, err := f.manager.Forget(ctx, res.MemoryID, "deprecate", ""); err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if len(f.manager.WorkingEntries(f.registry.CurrentID())) != 1 {
		t.Fatal("deprecate must not remove working entries")
	}

	// Correct replaces content and recounts.
	corrected := "User settled on the write-through cache for the session lookup path."
	f.manager.Forget(ctx, res.MemoryID, "correct", corrected)
	entries := f.manager.WorkingEntries(f.registry.CurrentID())
	if entries[0].Content != corrected {
		t.Errorf("content not corrected: %q", entries[0].Content)
	}
	if entries[0].TokenCount != f.counter.Count(corrected) {
		t.Error("token count must be recounted")
	}

	// Delete removes the entry and its vectors.
	f.manager.Forget(ctx, res.MemoryID, "delete", "")
	if len(f.manager.WorkingEntries(f.registry.CurrentID())) != 0 {
		t.Error("delete must remove the entry")
	}
	if vecs, _ := f.store.VectorsBySource(ctx, res.MemoryID); len(vecs) != 0 {
		t.Error("delete must purge the entry's vectors")
	}
}

func TestForgetUnknownID(t *testing.T) {
	f := newFixture(t, nil)
	report, err := f.manager.Forget(context.Background(), "no-such-id", "delete", "")
	if err != nil {
		t.Fatalf("unknown id must be benign: %v", err)
	}
	if !strings.Contains(report, "not found") {
		t.Errorf("unexpected report: %q", report)
	}
}

func TestArchiveWorking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sessionID := f.registry.CurrentID()

	f.manager.Store(ctx, StoreParams{
		Content: "User sketched the migration plan for the analytics event pipeline today.",
		Kind:    "event",
	})

	report, ok := f.manager.ArchiveWorking(ctx, sessionID)
	if !ok {
		t.Fatal("expected archive to produce a summary")
	}
	if !strings.Contains(report, "Archived 1") {
		t.Errorf("unexpected report: %q", report)
	}
	if len(f.manager.WorkingEntries(sessionID)) != 0 {
		t.Error("archived entries must leave the buffer")
	}

	summaries, _ := f.store.SummariesByTierSession(ctx, TierSession, sessionID, 0)
	if len(summaries) != 1 || summaries[0].Metadata["type"] != "session_archive" {
		t.Fatalf("expected one session_archive summary, got %d", len(summaries))
	}

	if _, ok := f.manager.ArchiveWorking(ctx, sessionID); ok {
		t.Error("nothing left to archive, expected ok=false")
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.manager.Store(ctx, StoreParams{
		Content: "User is reviewing the authentication refactor in this conversation right now.",
		Kind:    "event",
	})
	f.manager.Store(ctx, StoreParams{
		Content:  "User lives in Paris and has worked there for several years now.",
		Kind:     "fact",
		Entities: []string{"User", "Paris"},
	})

	st, err := f.manager.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Tiers[TierWorking].Count != 1 {
		t.Errorf("tier 0 count = %d", st.Tiers[TierWorking].Count)
	}
	if st.Tiers[TierWorking].TokenEstimate <= 0 {
		t.Error("tier 0 tokens should sum the stored counts")
	}
	if st.Tiers[TierSession].Count != 1 {
		t.Errorf("tier 1 count = %d", st.Tiers[TierSession].Count)
	}
	if st.Graph.Entities != 2 || st.Graph.Relations != 1 {
		t.Errorf("graph counts: %+v", st.Graph)
	}
	if st.Vectors != 2 {
		t.Errorf("vector count = %d", st.Vectors)
	}
	if st.SessionID != f.registry.CurrentID() {
		t.Error("status must carry the current session id")
	}
}

func TestStoreRejectsUnknownKind(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.manager.Store(context.Background(), StoreParams{
		Content: "This content is long enough but the kind is nonsense entirely.",
		Kind:    "banana",
	}); err == nil {
		t.Error("unknown kind must be rejected")
	}
}
