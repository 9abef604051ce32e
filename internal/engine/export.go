package engine

import (
	"context"

	"github.com/latentcontext/latentcontext/internal/memory"
	"github.com/latentcontext/latentcontext/internal/model"
)

// ExportData is the JSON dump of everything persisted at summary level.
type ExportData struct {
	Summaries []model.Summary `json:"summaries"`
}

// Export returns all persisted summaries, tier by tier, oldest tiers last.
// Working memory is ephemeral and deliberately absent.
func (e *Engine) Export(ctx context.Context) (*ExportData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &ExportData{Summaries: []model.Summary{}}
	for _, tier := range []int{memory.TierCore, memory.TierEpoch, memory.TierSession} {
		summaries, err := e.store.SummariesByTier(ctx, tier, 0)
		if err != nil {
			return nil, err
		}
		out.Summaries = append(out.Summaries, summaries...)
	}
	return out, nil
}
