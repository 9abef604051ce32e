package assemble

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/embedding"
	"github.com/latentcontext/latentcontext/internal/graph"
	"github.com/latentcontext/latentcontext/internal/memory"
	"github.com/latentcontext/latentcontext/internal/session"
	"github.com/latentcontext/latentcontext/internal/store"
	"github.com/latentcontext/latentcontext/internal/token"
	"github.com/latentcontext/latentcontext/internal/vector"
)

type fixture struct {
	store     *store.Store
	manager   *memory.Manager
	registry  *session.Registry
	assembler *Assembler
	counter   *token.Counter
	cfg       *config.Config
}

func newFixture(t *testing.T, mode string) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Embedding.Dimensions = 32
	cfg.Retrieval.Mode = mode

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
	mgr := memory.New(st, g, vs, counter, reg, cfg, zap.NewNop())
	asm := New(st, vs, g, mgr, reg, counter, cfg, zap.NewNop())

	if _, err := reg.Start(context.Background(), nil); err != nil {
		t.Fatalf("start session: %v", err)
	}
	return &fixture{store: st, manager: mgr, registry: reg, assembler: asm, counter: counter, cfg: cfg}
}

func TestSessionModeIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.ModeSession)

	f.manager.Store(ctx, memory.StoreParams{
		Content: "I am testing the alpha build of the memory engine today.",
		Kind:    "event",
	})

	// Same session sees the entry.
	res, err := f.assembler.Retrieve(ctx, Params{Query: "alpha build"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.CandidatesSelected == 0 {
		t.Fatal("expected the working entry within the session")
	}
	if !strings.Contains(res.Text, "alpha build") {
		t.Errorf("digest should contain the entry: %q", res.Text)
	}

	// A new session must see none of it.
	f.registry.Start(ctx, nil)
	f.manager.ClearWorking()

	res, err = f.assembler.Retrieve(ctx, Params{Query: "alpha build"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.CandidatesSelected != 0 {
		t.Errorf("strict isolation violated: %d selected", res.CandidatesSelected)
	}
	if !strings.HasPrefix(res.Text, emptyResultGuidance) {
		t.Errorf("expected the guidance message, got %q", res.Text)
	}
	if res.TotalTokens != 0 {
		t.Errorf("no tokens may leak across sessions, got %d", res.TotalTokens)
	}
}

func TestHybridModeFusesSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.ModeHybrid)

	f.manager.Store(ctx, memory.StoreParams{
		Content: "The user's name is Dana and they maintain the payment service.",
		Kind:    "core",
	})
	f.manager.Store(ctx, memory.StoreParams{
		Content:  "User lives in Paris and has worked there for several years now.",
		Kind:     "fact",
		Entities: []string{"User", "Paris"},
	})
	f.manager.Store(ctx, memory.StoreParams{
		Content: "User is walking through the retriever internals in this conversation.",
		Kind:    "event",
	})

	res, err := f.assembler.Retrieve(ctx, Params{Query: "Where does the User live, Paris?"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if res.SourceCounts[SourceCore] != 1 {
		t.Errorf("core memory must always be considered: %v", res.SourceCounts)
	}
	if res.SourceCounts[SourceWorking] != 1 {
		t.Errorf("working memory missing: %v", res.SourceCounts)
	}
	if res.SourceCounts[SourceGraph] == 0 {
		t.Errorf("graph candidate missing: %v", res.SourceCounts)
	}
	if !strings.Contains(res.Text, "## Core Memory") {
		t.Error("core section missing")
	}
	if !strings.Contains(res.Text, "→ located_in → Paris") {
		t.Errorf("graph block missing from digest:\n%s", res.Text)
	}
}

func TestBudgetRespected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.ModeHybrid)

	for i := 0; i < 8; i++ {
		f.manager.Store(ctx, memory.StoreParams{
			Content: fmt.Sprintf("Summary number %d about the ongoing database migration work and its many remaining follow-ups.", i),
			Kind:    "summary",
		})
	}

	budget := 40
	res, err := f.assembler.Retrieve(ctx, Params{Query: "database migration", Budget: budget})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if res.TotalTokens > budget {
		t.Errorf("budget exceeded: %d > %d", res.TotalTokens, budget)
	}
	if res.BudgetRemaining != budget-res.TotalTokens {
		t.Errorf("accounting mismatch: remaining %d", res.BudgetRemaining)
	}
	if res.CandidatesConsidered < res.CandidatesSelected {
		t.Error("cannot select more than considered")
	}
}

func TestFooterFormat(t *testing.T) {
	got := footer("1754462000123-abc-def", []string{"working", "vector"}, map[string]int{"working": 1, "vector": 3}, 120, 3000)
	want := "--- Session: 17544620 | Sources: working:1, vector:3 | Tokens: 120/3000 ---"
	if got != want {
		t.Errorf("footer:\n got %q\nwant %q", got, want)
	}

	if got := footer("", nil, nil, 0, 100); got != "--- Session: none | Sources:  | Tokens: 0/100 ---" {
		t.Errorf("empty footer: %q", got)
	}
}

func TestDedupIdempotent(t *testing.T) {
	f := newFixture(t, config.ModeHybrid)

	candidates := []candidate{
		{id: "a", text: "User prefers dark mode themes across all their editors", score: 0.9},
		{id: "b", text: "User prefers dark mode themes across all their editors", score: 0.5},
		{id: "c", text: "Completely different fact about database migration schedules", score: 0.7},
	}

	once := f.assembler.dedup(candidates)
	twice := f.assembler.dedup(once)

	if len(once) != 2 {
		t.Fatalf("expected one of the near-duplicates dropped, got %d", len(once))
	}
	if once[0].id != "a" {
		t.Errorf("higher-scored duplicate must survive, got %s", once[0].id)
	}
	if len(twice) != len(once) {
		t.Error("dedup must be idempotent")
	}
	for i := range once {
		if twice[i].id != once[i].id {
			t.Error("dedup must be stable across applications")
		}
	}
}

func TestJaccard(t *testing.T) {
	if got := jaccard("the cat sat down", "the cat sat down"); got != 1.0 {
		t.Errorf("identical texts: %f", got)
	}
	if got := jaccard("alpha beta gamma", "delta epsilon zeta"); got != 0 {
		t.Errorf("disjoint texts: %f", got)
	}
	// Short tokens (len <= 2) are ignored.
	if got := jaccard("an it of", "an it of"); got != 0 {
		t.Errorf("only short tokens: %f", got)
	}
}

func TestExtractMentions(t *testing.T) {
	mentions := extractMentions(`Where does Dana work, and what about "dark mode" settings?`, 5)

	joined := strings.Join(mentions, "|")
	if !strings.Contains(joined, "Dana") {
		t.Errorf("capitalized mention missing: %v", mentions)
	}
	if !strings.Contains(joined, "dark mode") {
		t.Errorf("quoted mention missing: %v", mentions)
	}
	for _, m := range mentions {
		if m == "Where" {
			t.Error("stopword must be filtered")
		}
	}

	many := extractMentions("Alice Bob Carol Dave Erin Frank Grace, individually: Alice. Bob. Carol. Dave. Erin. Frank. Grace.", 5)
	if len(many) > 5 {
		t.Errorf("mention cap exceeded: %d", len(many))
	}
}

func TestVectorFloorApplied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.ModeHybrid)

	// Past-session summary reachable only through vectors or past_sessions.
	f.manager.Store(ctx, memory.StoreParams{
		Content: "User benchmarked the retriever against the new scoring weights yesterday.",
		Kind:    "summary",
	})
	f.registry.Start(ctx, nil)
	f.manager.ClearWorking()

	res, err := f.assembler.Retrieve(ctx, Params{Query: "retriever scoring weights benchmark"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	// The candidate arrives via past_sessions regardless; only known source
	// tags may appear in the counts.
	for src := range res.SourceCounts {
		switch src {
		case SourceCore, SourceWorking, SourceCurrentSession, SourceGraph, SourceLongTerm, SourcePastSessions, SourceVector:
		default:
			t.Errorf("unknown source tag %q", src)
		}
	}

	// No vector candidate below the 0.3 similarity floor is gathered.
	for _, c := range f.assembler.gatherHybrid(ctx, Params{Query: "retriever scoring weights benchmark"}, f.registry.CurrentID()) {
		if c.source == SourceVector && c.sim < vectorSimilarityMin {
			t.Errorf("vector candidate below the floor: %f", c.sim)
		}
	}
}

func TestRetrieveDefaultBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.ModeSession)

	res, err := f.assembler.Retrieve(ctx, Params{Query: "anything"})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	wantFooter := fmt.Sprintf("/%d ---", f.cfg.TokenBudget.DefaultRetrieveBudget)
	if !strings.HasSuffix(res.Text, wantFooter) {
		t.Errorf("default budget missing from footer: %q", res.Text)
	}
}
