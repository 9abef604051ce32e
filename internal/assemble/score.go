package assemble

import (
	"context"
	"math"
	"sort"
	"time"
)

// sourcePriority keys the priority signal by candidate source.
var sourcePriority = map[string]float64{
	SourceCore:           1.0,
	SourceWorking:        0.95,
	SourceCurrentSession: 0.9,
	SourceGraph:          0.8,
	SourceLongTerm:       0.65,
	SourcePastSessions:   0.5,
	SourceVector:         0.4,
}

const (
	recencyHalfLifeHours = 168 // one week
	frequencySaturation  = 10 // accesses at which the signal maxes out
)

// scoreAll fills the recency, priority, frequency and composite score of each
// candidate. Similarity and any source-default recency/frequency are set at
// gather time.
func (a *Assembler) scoreAll(ctx context.Context, candidates []candidate) {
	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		if candidates[i].freq == 0 {
			ids = append(ids, candidates[i].id)
		}
	}
	counts, err := a.store.AccessCounts(ctx, ids)
	if err != nil {
		counts = map[string]int{}
	}

	now := time.Now()
	w := a.cfg.Ranking
	for i := range candidates {
		c := &candidates[i]

		if c.rec == 0 {
			ageHours := now.Sub(c.createdAt).Hours()
			if ageHours < 0 {
				ageHours = 0
			}
			c.rec = math.Exp(-ageHours / recencyHalfLifeHours)
		}
		if c.freq == 0 {
			c.freq = math.Min(float64(counts[c.id])/frequencySaturation, 1.0)
		}

		pri, ok := sourcePriority[c.source]
		if !ok {
			pri = 0.3
		}
		c.pri = pri

		c.score = w.SemanticWeight*c.sim + w.RecencyWeight*c.rec +
			w.PriorityWeight*c.pri + w.FrequencyWeight*c.freq
	}
}

// fill greedily packs candidates by descending score, first-fit against the
// remaining budget, logging an access per inclusion.
func (a *Assembler) fill(ctx context.Context, candidates []candidate, remaining *int) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var selected []candidate
	for _, c := range candidates {
		if c.tokens > *remaining {
			continue
		}
		*remaining -= c.tokens
		selected = append(selected, c)
		a.logAccess(ctx, c.id, c.source)
	}
	return selected
}
