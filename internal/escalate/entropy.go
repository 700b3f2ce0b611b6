// Package escalate decides whether a retrieval attempt is confident
// enough to return or must be retried at greater depth with a widened
// query.
package escalate

import (
	"math"

	"ckr/internal/retrieval"
)

// confidenceFloor keeps zero-confidence packs out of log(0).
const confidenceFloor = 0.0001

// emptySetEntropy is the sentinel for an empty pack set: log2(10).
// "No results" reads as maximally uncertain, not as certainty.
var emptySetEntropy = math.Log2(10)

// Entropy computes the Shannon entropy (base 2) of the normalized pack
// confidence weights. It is defined for every multiset: the empty set
// yields the fixed high-uncertainty sentinel and the result is never NaN.
func Entropy(packs []retrieval.ContextPack) float64 {
	if len(packs) == 0 {
		return emptySetEntropy
	}

	weights := make([]float64, len(packs))
	total := 0.0
	for i, p := range packs {
		w := retrieval.SanitizeUnit(p.Confidence)
		if w < confidenceFloor {
			w = confidenceFloor
		}
		weights[i] = w
		total += w
	}

	h := 0.0
	for _, w := range weights {
		p := w / total
		h -= p * math.Log2(p)
	}
	if h < 0 || math.IsNaN(h) {
		h = 0
	}
	return h
}

// TotalConfidence averages pack confidence; an empty set scores zero.
func TotalConfidence(packs []retrieval.ContextPack) float64 {
	if len(packs) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range packs {
		sum += retrieval.SanitizeUnit(p.Confidence)
	}
	return sum / float64(len(packs))
}

// StatusFor grades the attempt. A set with zero packs is always
// insufficient regardless of any other signal.
func StatusFor(confidence float64, packCount int) retrieval.RetrievalStatus {
	if packCount == 0 {
		return retrieval.StatusInsufficient
	}
	switch {
	case confidence >= 0.6:
		return retrieval.StatusSufficient
	case confidence >= 0.3:
		return retrieval.StatusPartial
	default:
		return retrieval.StatusInsufficient
	}
}
