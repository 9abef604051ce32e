package memory

import (
	"context"
)

// TierStatus is the per-tier count and token estimate.
type TierStatus struct {
	Count         int `json:"count"`
	TokenEstimate int `json:"tokenEstimate"`
}

// GraphStatus summarizes the knowledge graph; relations counts active only.
type GraphStatus struct {
	Entities  int `json:"entities"`
	Relations int `json:"relations"`
}

// Status is the full engine health snapshot.
type Status struct {
	Tiers     map[int]TierStatus `json:"tiers"`
	Graph     GraphStatus        `json:"graph"`
	Vectors   int                `json:"vectors"`
	SessionID string             `json:"session_id,omitempty"`
}

// accessLogKeep bounds the frequency signal table; pruned opportunistically.
const accessLogKeep = 10_000

// Status reports per-tier counts, graph and vector totals, and the current
// session. Tier 0 covers only the current session's working entries.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	sessionID := m.registry.CurrentID()

	st := &Status{
		Tiers:     make(map[int]TierStatus, 4),
		SessionID: sessionID,
	}

	working := m.WorkingEntries(sessionID)
	st.Tiers[TierWorking] = TierStatus{
		Count:         len(working),
		TokenEstimate: m.WorkingTokens(sessionID),
	}

	tierStats, err := m.store.TierStats(ctx)
	if err != nil {
		return nil, err
	}
	for _, tier := range []int{TierSession, TierEpoch, TierCore} {
		ts := tierStats[tier]
		st.Tiers[tier] = TierStatus{Count: ts.Count, TokenEstimate: ts.Tokens}
	}

	entities, relations, err := m.graph.Counts(ctx)
	if err != nil {
		return nil, err
	}
	st.Graph = GraphStatus{Entities: entities, Relations: relations}

	vectors, err := m.vectors.Count(ctx)
	if err != nil {
		return nil, err
	}
	st.Vectors = vectors

	// Keep the access log bounded while we are here.
	m.store.PruneAccessLog(ctx, accessLogKeep)

	return st, nil
}
