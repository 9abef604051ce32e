// Package assemble builds the budgeted retrieval digest.
//
// Two assembler modes exist by design. Session mode pulls only from the
// current session's working memory and its Tier-1 summaries — the
// conservative choice when contamination avoidance dominates. Hybrid mode
// fuses six sources across sessions: core memory, working memory, vector
// search, graph neighborhoods, session summaries and epoch summaries. The
// mode is fixed at boot by configuration.
package assemble

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/graph"
	"github.com/latentcontext/latentcontext/internal/memory"
	"github.com/latentcontext/latentcontext/internal/session"
	"github.com/latentcontext/latentcontext/internal/store"
	"github.com/latentcontext/latentcontext/internal/token"
	"github.com/latentcontext/latentcontext/internal/vector"
)

// Source tags, in emission order.
const (
	SourceCore           = "core"
	SourceWorking        = "working"
	SourceCurrentSession = "current_session"
	SourceGraph          = "graph"
	SourceLongTerm       = "long_term"
	SourcePastSessions   = "past_sessions"
	SourceVector         = "vector"
)

const (
	vectorSearchLimit    = 20
	vectorSimilarityMin  = 0.3
	currentSessionLimit  = 5
	pastSessionLimit     = 10
	epochLimit           = 5
	graphMentionLimit    = 5
	graphQueryDepth      = 2
	emptyResultGuidance  = "No relevant memories found for this query. Store notable facts, events and preferences as the conversation progresses."
)

// Params is one retrieval request.
type Params struct {
	Query   string
	Budget  int
	Filters Filters
}

// Filters narrow the vector stage.
type Filters struct {
	MemoryTypes   []string
	After         *time.Time
	Before        *time.Time
	MinConfidence float64
}

// Result is the assembled digest plus accounting metadata.
type Result struct {
	Text                 string         `json:"text"`
	TotalTokens          int            `json:"total_tokens"`
	BudgetUsed           int            `json:"budget_used"`
	BudgetRemaining      int            `json:"budget_remaining"`
	SourceCounts         map[string]int `json:"source_counts"`
	CandidatesConsidered int            `json:"candidates_considered"`
	CandidatesSelected   int            `json:"candidates_selected"`
	SessionID            string         `json:"session_id,omitempty"`
}

// candidate is a scored fragment considered during retrieval.
type candidate struct {
	id        string
	source    string
	text      string
	tokens    int
	sim       float64
	rec       float64
	pri       float64
	freq      float64
	score     float64
	createdAt time.Time
}

// Assembler gathers, scores, deduplicates and budget-fills candidates.
type Assembler struct {
	store    *store.Store
	vectors  *vector.VectorStore
	graph    *graph.Graph
	manager  *memory.Manager
	registry *session.Registry
	counter  *token.Counter
	cfg      *config.Config
	logger   *zap.Logger
}

// New returns an Assembler in the configured mode.
func New(st *store.Store, vs *vector.VectorStore, g *graph.Graph, mgr *memory.Manager, reg *session.Registry, counter *token.Counter, cfg *config.Config, logger *zap.Logger) *Assembler {
	return &Assembler{
		store:    st,
		vectors:  vs,
		graph:    g,
		manager:  mgr,
		registry: reg,
		counter:  counter,
		cfg:      cfg,
		logger:   logger.Named("assemble"),
	}
}

// Retrieve runs the full pipeline and formats the digest.
func (a *Assembler) Retrieve(ctx context.Context, p Params) (*Result, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = a.cfg.TokenBudget.DefaultRetrieveBudget
	}
	sessionID := a.registry.CurrentID()

	res := &Result{
		SourceCounts:    map[string]int{},
		BudgetRemaining: budget,
		SessionID:       sessionID,
	}

	var sourceOrder []string
	remaining := budget
	var sections []section

	// Core memory is included before budget accounting, capped at its own
	// tier budget (hybrid mode only).
	if a.cfg.Retrieval.Mode == config.ModeHybrid {
		if core, tokens := a.coreBlock(ctx); core != "" && tokens <= remaining {
			sections = append(sections, section{source: SourceCore, texts: []string{core}})
			remaining -= tokens
			res.TotalTokens += tokens
			res.SourceCounts[SourceCore]++
			sourceOrder = append(sourceOrder, SourceCore)
			res.CandidatesSelected++
		}
	}

	var candidates []candidate
	if a.cfg.Retrieval.Mode == config.ModeHybrid {
		candidates = a.gatherHybrid(ctx, p, sessionID)
	} else {
		candidates = a.gatherSession(ctx, sessionID)
	}
	res.CandidatesConsidered = len(candidates)

	a.scoreAll(ctx, candidates)
	kept := a.dedup(candidates)
	selected := a.fill(ctx, kept, &remaining)

	res.CandidatesSelected += len(selected)
	for _, c := range selected {
		res.TotalTokens += c.tokens
		if res.SourceCounts[c.source] == 0 {
			sourceOrder = append(sourceOrder, c.source)
		}
		res.SourceCounts[c.source]++
	}
	res.BudgetUsed = res.TotalTokens
	res.BudgetRemaining = budget - res.TotalTokens

	sections = appendSections(sections, selected, a.sectionOrder())
	res.Text = a.format(sections, res, budget, sourceOrder)
	return res, nil
}

// coreBlock concatenates Tier-3 summaries and truncates to the core budget.
func (a *Assembler) coreBlock(ctx context.Context) (string, int) {
	summaries, err := a.store.SummariesByTier(ctx, memory.TierCore, 0)
	if err != nil {
		a.logger.Warn("core memory load failed", zap.Error(err))
		return "", 0
	}
	if len(summaries) == 0 {
		return "", 0
	}

	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[len(summaries)-1-i] = s.Content
		a.logAccess(ctx, s.ID, SourceCore)
	}
	return a.counter.Truncate(strings.Join(parts, "\n"), a.cfg.TokenBudget.Tier3Core)
}

// gatherSession pulls candidates under strict session isolation.
func (a *Assembler) gatherSession(ctx context.Context, sessionID string) []candidate {
	var out []candidate

	for _, e := range a.manager.WorkingEntries(sessionID) {
		out = append(out, candidate{
			id:        e.ID,
			source:    SourceWorking,
			text:      e.Content,
			tokens:    e.TokenCount,
			sim:       0.6,
			rec:       1.0,
			freq:      1.0,
			createdAt: e.Timestamp,
		})
	}

	if sessionID != "" {
		summaries, err := a.store.SummariesByTierSession(ctx, memory.TierSession, sessionID, 0)
		if err != nil {
			a.logger.Warn("session summary load failed", zap.Error(err))
			return out
		}
		for _, s := range summaries {
			out = append(out, candidate{
				id:        s.ID,
				source:    SourceCurrentSession,
				text:      s.Content,
				tokens:    s.TokenCount,
				sim:       0.6,
				createdAt: s.CreatedAt,
			})
		}
	}
	return out
}

// gatherHybrid pulls candidates from all cross-session sources.
func (a *Assembler) gatherHybrid(ctx context.Context, p Params, sessionID string) []candidate {
	var out []candidate

	// Working memory, concatenated as one candidate.
	if entries := a.manager.WorkingEntries(sessionID); len(entries) > 0 {
		var parts []string
		tokens := 0
		for _, e := range entries {
			parts = append(parts, e.Content)
			tokens += e.TokenCount
		}
		out = append(out, candidate{
			id:        entries[0].ID,
			source:    SourceWorking,
			text:      strings.Join(parts, "\n"),
			tokens:    tokens,
			sim:       0.6,
			rec:       1.0,
			freq:      1.0,
			createdAt: entries[len(entries)-1].Timestamp,
		})
	}

	// Vector search; failures shrink the candidate list silently.
	matches, err := a.vectors.Search(ctx, p.Query, vectorSearchLimit, vector.Filter{
		SourceTypes:   p.Filters.MemoryTypes,
		After:         p.Filters.After,
		Before:        p.Filters.Before,
		MinConfidence: p.Filters.MinConfidence,
	})
	if err != nil {
		a.logger.Warn("vector search failed, skipping stage", zap.Error(err))
	} else {
		for _, mt := range matches {
			if mt.Similarity < vectorSimilarityMin {
				continue
			}
			text := mt.Record.ContentPreview
			out = append(out, candidate{
				id:        mt.Record.SourceID,
				source:    SourceVector,
				text:      text,
				tokens:    a.counter.Count(text),
				sim:       mt.Similarity,
				createdAt: mt.Record.CreatedAt,
			})
		}
	}

	// Graph neighborhoods for entity mentions in the query.
	if c, ok := a.graphCandidate(ctx, p.Query); ok {
		out = append(out, c)
	}

	// Session summaries: current session first, then past sessions.
	if sessionID != "" {
		current, err := a.store.SummariesByTierSession(ctx, memory.TierSession, sessionID, currentSessionLimit)
		if err == nil {
			for _, s := range current {
				out = append(out, candidate{
					id: s.ID, source: SourceCurrentSession, text: s.Content,
					tokens: s.TokenCount, sim: 0.6, createdAt: s.CreatedAt,
				})
			}
		}
	}
	past, err := a.store.SummariesByTierNotSession(ctx, memory.TierSession, sessionID, pastSessionLimit)
	if err == nil {
		for _, s := range past {
			out = append(out, candidate{
				id: s.ID, source: SourcePastSessions, text: s.Content,
				tokens: s.TokenCount, sim: 0.5, createdAt: s.CreatedAt,
			})
		}
	}

	// Epoch summaries.
	epochs, err := a.store.SummariesByTier(ctx, memory.TierEpoch, epochLimit)
	if err == nil {
		for _, s := range epochs {
			out = append(out, candidate{
				id: s.ID, source: SourceLongTerm, text: s.Content,
				tokens: s.TokenCount, sim: 0.4, createdAt: s.CreatedAt,
			})
		}
	}

	return out
}

// graphCandidate resolves query mentions against the graph and folds the
// serialized neighborhoods into one candidate. Lookup errors are trapped
// per entity.
func (a *Assembler) graphCandidate(ctx context.Context, query string) (candidate, bool) {
	mentions := extractMentions(query, graphMentionLimit)
	if len(mentions) == 0 {
		return candidate{}, false
	}

	var blocks []string
	var firstID string
	for _, mention := range mentions {
		view, err := a.graph.QueryEntity(ctx, mention, graphQueryDepth)
		if err != nil {
			a.logger.Warn("graph lookup failed", zap.String("mention", mention), zap.Error(err))
			continue
		}
		if view == nil {
			continue
		}
		blocks = append(blocks, view.Text)
		a.logAccess(ctx, view.Entity.ID, "entity")
		if firstID == "" {
			firstID = view.Entity.ID
		}
	}
	if len(blocks) == 0 {
		return candidate{}, false
	}

	text := strings.Join(blocks, "\n\n")
	return candidate{
		id:        firstID,
		source:    SourceGraph,
		text:      text,
		tokens:    a.counter.Count(text),
		sim:       0.7,
		rec:       1.0,
		freq:      0.5,
		createdAt: time.Now(),
	}, true
}

func (a *Assembler) logAccess(ctx context.Context, memoryID, memoryType string) {
	if err := a.store.LogAccess(ctx, memoryID, memoryType, time.Now()); err != nil {
		a.logger.Warn("access log write failed", zap.Error(err))
	}
}
