package assemble

import (
	"strings"
)

// dedup drops near-duplicate candidates. Candidates are visited in arrival
// order; when one is Jaccard-similar to an already-kept candidate at or above
// the threshold, only the higher-scored of the pair survives, in the kept
// slot. Applying dedup twice yields the same output.
func (a *Assembler) dedup(candidates []candidate) []candidate {
	threshold := a.cfg.Ranking.DedupSimilarityThreshold
	var kept []candidate

next:
	for _, c := range candidates {
		for i := range kept {
			if jaccard(c.text, kept[i].text) >= threshold {
				if c.score > kept[i].score {
					kept[i] = c
				}
				continue next
			}
		}
		kept = append(kept, c)
	}
	return kept
}

// jaccard computes set similarity over lowercased whitespace-split tokens of
// length > 2.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > 2 {
			set[tok] = true
		}
	}
	return set
}
