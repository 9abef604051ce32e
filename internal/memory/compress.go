package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/model"
)

// Compress runs a manual compression pass for the given scope and returns a
// human-readable report.
func (m *Manager) Compress(ctx context.Context, scope string) (string, error) {
	switch scope {
	case "working":
		return m.compressWorking(ctx)
	case "session":
		return m.compressSession(ctx)
	case "epoch":
		return m.compressEpoch(ctx)
	default:
		return "", fmt.Errorf("unknown compression scope %q (valid: working, session, epoch)", scope)
	}
}

// compressWorking folds all current-session working entries into one Tier-1
// summary.
func (m *Manager) compressWorking(ctx context.Context) (string, error) {
	sessionID := m.registry.CurrentID()
	entries := m.WorkingEntries(sessionID)
	if len(entries) == 0 {
		return "No working memories to compress.", nil
	}

	originalTokens := 0
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		originalTokens += e.TokenCount
	}

	content, compressedTokens := m.concatAndTruncate(entries, "\n", m.cfg.TokenBudget.Tier1Session)
	sum, err := m.writeSummary(ctx, TierSession, content, sessionID, ids, map[string]interface{}{
		"type":           "manual_compressed",
		"originalCount":  len(entries),
		"originalTokens": originalTokens,
	})
	if err != nil {
		return "", fmt.Errorf("compress working: %w", err)
	}
	m.indexVector(ctx, sum.ID, "summary", content, 1.0)
	m.removeWorking(ids)

	ratio := float64(originalTokens) / float64(max(1, compressedTokens))
	return fmt.Sprintf("Compressed %d working memories into a session summary: %d → %d tokens (%.1fx)",
		len(entries), originalTokens, compressedTokens, ratio), nil
}

// compressSession consolidates every Tier-1 summary into a single one.
func (m *Manager) compressSession(ctx context.Context) (string, error) {
	summaries, err := m.store.SummariesByTier(ctx, TierSession, 0)
	if err != nil {
		return "", err
	}
	if len(summaries) < 2 {
		return fmt.Sprintf("Not enough session summaries to consolidate (have %d, need 2).", len(summaries)), nil
	}

	content, compressedTokens := m.consolidate(summaries, m.cfg.TokenBudget.Tier1Session*2)

	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i] = s.ID
	}

	sum, err := m.writeSummary(ctx, TierSession, content, "", ids, map[string]interface{}{
		"type":          "consolidated",
		"originalCount": len(summaries),
	})
	if err != nil {
		return "", fmt.Errorf("consolidate session summaries: %w", err)
	}
	m.indexVector(ctx, sum.ID, "summary", content, 1.0)

	m.purgeSummaries(ctx, ids)

	return fmt.Sprintf("Consolidated %d session summaries into one (%d tokens).",
		len(summaries), compressedTokens), nil
}

// compressEpoch folds Tier-1 summaries into a Tier-2 epoch summary once
// enough have accumulated.
func (m *Manager) compressEpoch(ctx context.Context) (string, error) {
	needed := m.cfg.Compression.Tier1ConsolidationCount
	summaries, err := m.store.SummariesByTier(ctx, TierSession, 0)
	if err != nil {
		return "", err
	}
	if len(summaries) < needed {
		return fmt.Sprintf("Need %d session summaries to form an epoch (have %d).", needed, len(summaries)), nil
	}

	content, compressedTokens := m.consolidate(summaries, m.cfg.TokenBudget.Tier2Epoch)

	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i] = s.ID
	}

	sum, err := m.writeSummary(ctx, TierEpoch, content, "", ids, map[string]interface{}{
		"type":          "epoch",
		"originalCount": len(summaries),
	})
	if err != nil {
		return "", fmt.Errorf("compress epoch: %w", err)
	}
	m.indexVector(ctx, sum.ID, "summary", content, 1.0)

	m.purgeSummaries(ctx, ids)

	return fmt.Sprintf("Compressed %d session summaries into an epoch summary (%d tokens).",
		len(summaries), compressedTokens), nil
}

// consolidate joins summary contents oldest-first and truncates to budget.
func (m *Manager) consolidate(summaries []model.Summary, budget int) (string, int) {
	parts := make([]string, len(summaries))
	// SummariesByTier returns newest first; consolidation reads oldest first.
	for i, s := range summaries {
		parts[len(summaries)-1-i] = s.Content
	}
	return m.counter.Truncate(strings.Join(parts, "\n\n"), budget)
}

// purgeSummaries deletes the consumed summary rows and their vectors.
func (m *Manager) purgeSummaries(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := m.vectors.DeleteBySource(ctx, id); err != nil {
			m.logger.Warn("failed to delete vectors for summary", zap.String("summary", id), zap.Error(err))
		}
	}
	if err := m.store.DeleteSummaries(ctx, ids); err != nil {
		m.logger.Warn("failed to delete consumed summaries", zap.Error(err))
	}
}
