// Package fusion merges multiple ranked candidate lists into one ranking
// using reciprocal rank fusion (RRF).
package fusion

import (
	"sort"

	"ckr/internal/retrieval"
)

// rrfK is the standard RRF dampening constant.
const rrfK = 60

type fusedItem struct {
	candidate     retrieval.Candidate
	fusedScore    float64
	maxSimilarity float64
}

// Fuse merges the ranked lists with RRF (k=60): each distinct
// (entityType, entityId) scores the sum over lists of 1/(60+rank+1).
// The maximum raw similarity seen across lists breaks ties, and the
// output similarity is max(maxSimilarity, min(1, fused/topFused)) so
// fused results stay comparable with non-fused ones.
func Fuse(lists [][]retrieval.Candidate, limit int) []retrieval.Candidate {
	if limit <= 0 {
		return []retrieval.Candidate{}
	}

	type key struct {
		entityType string
		entityID   string
	}

	items := make(map[key]*fusedItem)
	order := make([]key, 0)

	for _, list := range lists {
		for rank, cand := range list {
			k := key{cand.EntityType, cand.EntityID}
			item, ok := items[k]
			if !ok {
				item = &fusedItem{candidate: cand}
				items[k] = item
				order = append(order, k)
			}
			item.fusedScore += 1.0 / float64(rrfK+rank+1)
			sim := retrieval.SanitizeUnit(cand.Semantic())
			if sim > item.maxSimilarity {
				item.maxSimilarity = sim
				item.candidate = cand
			}
		}
	}

	if len(items) == 0 {
		return []retrieval.Candidate{}
	}

	fused := make([]*fusedItem, 0, len(items))
	for _, k := range order {
		fused = append(fused, items[k])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].fusedScore != fused[j].fusedScore {
			return fused[i].fusedScore > fused[j].fusedScore
		}
		return fused[i].maxSimilarity > fused[j].maxSimilarity
	})

	if len(fused) > limit {
		fused = fused[:limit]
	}

	topFused := fused[0].fusedScore

	out := make([]retrieval.Candidate, len(fused))
	for i, item := range fused {
		cand := item.candidate
		rel := 0.0
		if topFused > 0 {
			rel = item.fusedScore / topFused
			if rel > 1 {
				rel = 1
			}
		}
		sim := item.maxSimilarity
		if rel > sim {
			sim = rel
		}
		cand.Similarity = sim
		out[i] = cand
	}

	return out
}
