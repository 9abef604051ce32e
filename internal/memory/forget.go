package memory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/store"
)

// deprecatedPrefix is prepended on deprecation; its token cost is added to
// the stored count without a recount.
const (
	deprecatedPrefix       = "[DEPRECATED] "
	deprecatedTokenPadding = 15
)

// Forget applies delete, deprecate or correct to a summary, falling back to
// the working buffer when no summary matches. Graph state is never altered.
func (m *Manager) Forget(ctx context.Context, memoryID, action, correction string) (string, error) {
	if action == "correct" && correction == "" {
		return "", fmt.Errorf("correct action requires a correction text")
	}

	sum, err := m.store.SummaryByID(ctx, memoryID)
	if err != nil {
		return "", err
	}
	if sum != nil {
		return m.forgetSummary(ctx, sum.ID, sum.Content, sum.TokenCount, sum.Tier, action, correction)
	}
	return m.forgetWorking(ctx, memoryID, action, correction)
}

func (m *Manager) forgetSummary(ctx context.Context, id, content string, tokenCount, tier int, action, correction string) (string, error) {
	switch action {
	case "delete":
		if err := m.vectors.DeleteBySource(ctx, id); err != nil {
			m.logger.Warn("failed to delete vectors", zap.String("memory", id), zap.Error(err))
		}
		if err := m.store.DeleteSummary(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted memory %s and its vectors.", shortID(id)), nil

	case "deprecate":
		updated := deprecatedPrefix + content
		if err := m.store.UpdateSummaryContent(ctx, id, updated,
			tokenCount+deprecatedTokenPadding, store.FormatTime(time.Now())); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deprecated memory %s; it remains visible but marked.", shortID(id)), nil

	case "correct":
		// Preserve the original vector type so the corrected memory stays in
		// the same retrieval lane.
		sourceType := "summary"
		if existing, err := m.store.VectorsBySource(ctx, id); err == nil && len(existing) > 0 {
			sourceType = existing[0].SourceType
		}
		if err := m.store.UpdateSummaryContent(ctx, id, correction,
			m.counter.Count(correction), store.FormatTime(time.Now())); err != nil {
			return "", err
		}
		if err := m.vectors.DeleteBySource(ctx, id); err != nil {
			m.logger.Warn("failed to delete stale vectors", zap.String("memory", id), zap.Error(err))
		}
		m.indexVector(ctx, id, sourceType, correction, 1.0)
		return fmt.Sprintf("Corrected memory %s and re-indexed its vectors.", shortID(id)), nil

	default:
		return "", fmt.Errorf("unknown forget action %q (valid: deprecate, correct, delete)", action)
	}
}

func (m *Manager) forgetWorking(ctx context.Context, memoryID, action, correction string) (string, error) {
	idx := -1
	for i, e := range m.working {
		if e.ID == memoryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Sprintf("Memory %s not found.", memoryID), nil
	}

	switch action {
	case "delete":
		if err := m.vectors.DeleteBySource(ctx, memoryID); err != nil {
			m.logger.Warn("failed to delete vectors", zap.String("memory", memoryID), zap.Error(err))
		}
		m.removeWorking([]string{memoryID})
		return fmt.Sprintf("Deleted working memory %s.", shortID(memoryID)), nil

	case "correct":
		m.working[idx].Content = correction
		m.working[idx].TokenCount = m.counter.Count(correction)
		return fmt.Sprintf("Corrected working memory %s.", shortID(memoryID)), nil

	case "deprecate":
		return fmt.Sprintf("Working memory %s left unchanged; deprecation applies to summaries.", shortID(memoryID)), nil

	default:
		return "", fmt.Errorf("unknown forget action %q (valid: deprecate, correct, delete)", action)
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
