// Package memory implements the tiered memory manager: classify-and-route
// storage, working-buffer overflow, manual compression and forgetting.
package memory

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/graph"
	"github.com/latentcontext/latentcontext/internal/model"
	"github.com/latentcontext/latentcontext/internal/session"
	"github.com/latentcontext/latentcontext/internal/store"
	"github.com/latentcontext/latentcontext/internal/token"
	"github.com/latentcontext/latentcontext/internal/vector"
)

// Tier destinations by kind.
const (
	TierWorking = 0
	TierSession = 1
	TierEpoch   = 2
	TierCore    = 3
)

// Manager owns the working buffer and routes stores to tiers, the graph and
// the vector index. Entry points are serialized by the engine.
type Manager struct {
	store    *store.Store
	graph    *graph.Graph
	vectors  *vector.VectorStore
	counter  *token.Counter
	registry *session.Registry
	cfg      *config.Config
	logger   *zap.Logger

	working []model.WorkingEntry
	entropy *rand.Rand
}

// New returns a Manager with an empty working buffer.
func New(st *store.Store, g *graph.Graph, vs *vector.VectorStore, counter *token.Counter, reg *session.Registry, cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		store:    st,
		graph:    g,
		vectors:  vs,
		counter:  counter,
		registry: reg,
		cfg:      cfg,
		logger:   logger.Named("memory"),
		entropy:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// StoreParams holds one classified note.
type StoreParams struct {
	Content    string
	Kind       string // fact | preference | event | summary | core
	Confidence float64
	Entities   []string
}

// StoreResult reports what a store produced.
type StoreResult struct {
	MemoryID        string   `json:"memory_id"`
	Tier            int      `json:"tier"`
	EntitiesCreated []string `json:"entities_created"`
	FactsStored     int      `json:"facts_stored"`
	VectorID        string   `json:"vector_id,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
}

// Store classifies the note by kind and routes it to a tier, upserting graph
// entities/relations and appending a vector record as side effects. Vector
// indexing is best-effort: on failure the tier write still succeeds and
// VectorID stays empty.
func (m *Manager) Store(ctx context.Context, p StoreParams) (*StoreResult, error) {
	if !model.ValidKinds[p.Kind] {
		return nil, fmt.Errorf("unknown memory kind %q", p.Kind)
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		p.Confidence = 1.0
	}

	res := &StoreResult{SessionID: m.registry.CurrentID()}

	switch p.Kind {
	case "core":
		sum, err := m.writeSummary(ctx, TierCore, p.Content, res.SessionID, nil, nil)
		if err != nil {
			return nil, err
		}
		res.MemoryID = sum.ID
		res.Tier = TierCore
		res.VectorID = m.indexVector(ctx, sum.ID, "core", p.Content, p.Confidence)

	case "fact":
		sum, err := m.writeSummary(ctx, TierSession, p.Content, res.SessionID, nil, nil)
		if err != nil {
			return nil, err
		}
		res.MemoryID = sum.ID
		res.Tier = TierSession

		if err := m.ensureEntities(ctx, p.Entities, p.Confidence, sum.ID, res); err != nil {
			return nil, err
		}
		if len(p.Entities) >= 2 {
			predicate := InferPredicate(p.Content)
			for _, obj := range p.Entities[1:] {
				if _, err := m.graph.StoreFact(ctx, graph.FactParams{
					SubjectLabel:    p.Entities[0],
					Predicate:       predicate,
					ObjectLabel:     obj,
					Confidence:      p.Confidence,
					SourceSummaryID: sum.ID,
				}); err != nil {
					return nil, err
				}
				res.FactsStored++
			}
		}
		res.VectorID = m.indexVector(ctx, sum.ID, "fact", p.Content, p.Confidence)

	case "preference":
		sum, err := m.writeSummary(ctx, TierEpoch, p.Content, res.SessionID, nil, nil)
		if err != nil {
			return nil, err
		}
		res.MemoryID = sum.ID
		res.Tier = TierEpoch

		if _, created, err := m.graph.EnsureEntity(ctx, "User", "person", nil, 1.0, sum.ID); err != nil {
			return nil, err
		} else if created {
			res.EntitiesCreated = append(res.EntitiesCreated, "User")
		}
		if err := m.ensureEntities(ctx, p.Entities, p.Confidence, sum.ID, res); err != nil {
			return nil, err
		}
		for _, label := range p.Entities {
			if _, err := m.graph.StoreFact(ctx, graph.FactParams{
				SubjectLabel:    "User",
				Predicate:       "prefers",
				ObjectLabel:     label,
				Confidence:      p.Confidence,
				SourceSummaryID: sum.ID,
			}); err != nil {
				return nil, err
			}
			res.FactsStored++
		}
		res.VectorID = m.indexVector(ctx, sum.ID, "preference", p.Content, p.Confidence)

	case "event":
		entry := model.WorkingEntry{
			ID:         ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String(),
			Content:    p.Content,
			TokenCount: m.counter.Count(p.Content),
			Timestamp:  time.Now(),
			SessionID:  res.SessionID,
		}
		m.working = append(m.working, entry)
		res.MemoryID = entry.ID
		res.Tier = TierWorking

		if err := m.ensureEntities(ctx, p.Entities, p.Confidence, "", res); err != nil {
			return nil, err
		}
		res.VectorID = m.indexVector(ctx, entry.ID, "event", p.Content, p.Confidence)

		if err := m.overflowWorking(ctx); err != nil {
			return nil, err
		}

	case "summary":
		sum, err := m.writeSummary(ctx, TierSession, p.Content, res.SessionID, nil, nil)
		if err != nil {
			return nil, err
		}
		res.MemoryID = sum.ID
		res.Tier = TierSession
		res.VectorID = m.indexVector(ctx, sum.ID, "summary", p.Content, p.Confidence)
	}

	if res.EntitiesCreated == nil {
		res.EntitiesCreated = []string{}
	}
	return res, nil
}

func (m *Manager) ensureEntities(ctx context.Context, labels []string, confidence float64, sourceSummaryID string, res *StoreResult) error {
	for _, label := range labels {
		_, created, err := m.graph.EnsureEntity(ctx, label, "", nil, confidence, sourceSummaryID)
		if err != nil {
			return err
		}
		if created {
			res.EntitiesCreated = append(res.EntitiesCreated, label)
		}
	}
	return nil
}

// writeSummary counts tokens and inserts a summary row at the given tier.
func (m *Manager) writeSummary(ctx context.Context, tier int, content, sessionID string, sourceIDs []string, metadata map[string]interface{}) (*model.Summary, error) {
	now := time.Now()
	sum := &model.Summary{
		ID:         uuid.NewString(),
		Tier:       tier,
		Content:    content,
		TokenCount: m.counter.Count(content),
		CreatedAt:  now,
		UpdatedAt:  now,
		SessionID:  sessionID,
		SourceIDs:  sourceIDs,
		Metadata:   metadata,
	}
	if err := m.store.InsertSummary(ctx, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// indexVector appends a vector record, returning "" on failure.
func (m *Manager) indexVector(ctx context.Context, sourceID, sourceType, content string, confidence float64) string {
	id, err := m.vectors.Add(ctx, vector.AddParams{
		SourceID:   sourceID,
		SourceType: sourceType,
		Content:    content,
		Confidence: confidence,
	})
	if err != nil {
		m.logger.Warn("vector indexing failed",
			zap.String("source", sourceID), zap.Error(err))
		return ""
	}
	return id
}

// overflowWorking compresses the oldest half of the current session's working
// entries into a Tier-1 summary when the buffer exceeds the overflow
// threshold. Runs at most once per insert.
func (m *Manager) overflowWorking(ctx context.Context) error {
	sessionID := m.registry.CurrentID()
	entries := m.WorkingEntries(sessionID)

	total := 0
	for _, e := range entries {
		total += e.TokenCount
	}
	if total <= m.cfg.Compression.Tier0OverflowThreshold {
		return nil
	}

	half := len(entries) / 2
	if half == 0 {
		return nil
	}
	oldest := entries[:half]

	content, tokens := m.concatAndTruncate(oldest, "\n", m.cfg.TokenBudget.Tier1Session)
	ids := make([]string, len(oldest))
	originalTokens := 0
	for i, e := range oldest {
		ids[i] = e.ID
		originalTokens += e.TokenCount
	}

	sum, err := m.writeSummary(ctx, TierSession, content, sessionID, ids, map[string]interface{}{
		"type":           "auto_compressed",
		"originalCount":  len(oldest),
		"originalTokens": originalTokens,
	})
	if err != nil {
		return fmt.Errorf("auto-compress: %w", err)
	}
	m.indexVector(ctx, sum.ID, "summary", content, 1.0)
	m.removeWorking(ids)

	m.logger.Info("auto-compressed working memory",
		zap.Int("entries", len(oldest)),
		zap.Int("original_tokens", originalTokens),
		zap.Int("compressed_tokens", tokens))
	return nil
}

// concatAndTruncate joins entry contents and truncates to a token budget.
func (m *Manager) concatAndTruncate(entries []model.WorkingEntry, sep string, budget int) (string, int) {
	joined := ""
	for i, e := range entries {
		if i > 0 {
			joined += sep
		}
		joined += e.Content
	}
	return m.counter.Truncate(joined, budget)
}

// WorkingEntries returns the entries tagged with the given session, in
// insertion (chronological) order.
func (m *Manager) WorkingEntries(sessionID string) []model.WorkingEntry {
	var out []model.WorkingEntry
	for _, e := range m.working {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// WorkingTokens sums the stored token counts of a session's entries.
func (m *Manager) WorkingTokens(sessionID string) int {
	total := 0
	for _, e := range m.working {
		if e.SessionID == sessionID {
			total += e.TokenCount
		}
	}
	return total
}

func (m *Manager) removeWorking(ids []string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.working[:0]
	for _, e := range m.working {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	m.working = kept
}

// ArchiveWorking compresses the entries tagged with sessionID into a Tier-1
// summary and purges them from the buffer. Returns ("", false) when the
// session has no entries.
func (m *Manager) ArchiveWorking(ctx context.Context, sessionID string) (string, bool) {
	entries := m.WorkingEntries(sessionID)
	if len(entries) == 0 {
		return "", false
	}

	originalTokens := 0
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		originalTokens += e.TokenCount
	}

	content, tokens := m.concatAndTruncate(entries, "\n", m.cfg.TokenBudget.Tier1Session)
	sum, err := m.writeSummary(ctx, TierSession, content, sessionID, ids, map[string]interface{}{
		"type":           "session_archive",
		"originalCount":  len(entries),
		"originalTokens": originalTokens,
	})
	if err != nil {
		m.logger.Warn("session archive failed", zap.String("session", sessionID), zap.Error(err))
		return "", false
	}
	m.indexVector(ctx, sum.ID, "summary", content, 1.0)
	m.removeWorking(ids)

	return fmt.Sprintf("Archived %d working memories (%d → %d tokens)", len(entries), originalTokens, tokens), true
}

// ClearWorking empties the working buffer unconditionally.
func (m *Manager) ClearWorking() {
	m.working = nil
}
