// Package scoring normalizes heterogeneous per-candidate signals and
// blends them into a single relevance score in [0, 1].
package scoring

import (
	"math"
	"time"

	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

// Weights controls how the six normalized signals combine. Weights are
// not required to sum to 1; the blended score is clamped afterwards.
type Weights struct {
	Semantic   float64 `json:"semantic"`
	PageRank   float64 `json:"pagerank"`
	Centrality float64 `json:"centrality"`
	Confidence float64 `json:"confidence"`
	Recency    float64 `json:"recency"`
	CoChange   float64 `json:"coChange"`
}

// DefaultWeights returns the default signal blend.
func DefaultWeights() Weights {
	return Weights{
		Semantic:   0.40, // Vector/graph match is still primary
		PageRank:   0.15,
		Centrality: 0.10,
		Confidence: 0.15,
		Recency:    0.10,
		CoChange:   0.10,
	}
}

// sanitize replaces NaN/Inf/negative weights with zero so malformed
// configuration degrades to ignoring the signal.
func (w Weights) sanitize() Weights {
	return Weights{
		Semantic:   retrieval.SanitizeNonNegative(w.Semantic),
		PageRank:   retrieval.SanitizeNonNegative(w.PageRank),
		Centrality: retrieval.SanitizeNonNegative(w.Centrality),
		Confidence: retrieval.SanitizeNonNegative(w.Confidence),
		Recency:    retrieval.SanitizeNonNegative(w.Recency),
		CoChange:   retrieval.SanitizeNonNegative(w.CoChange),
	}
}

func (w Weights) total() float64 {
	return w.Semantic + w.PageRank + w.Centrality + w.Confidence + w.Recency + w.CoChange
}

// Scorer blends candidate signals into relevance scores.
type Scorer struct {
	weights Weights
	logger  *logging.Logger
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights Weights, logger *logging.Logger) *Scorer {
	return &Scorer{weights: weights.sanitize(), logger: logger}
}

// Score normalizes each signal across the batch and returns scored copies
// of the candidates. Input candidates are never mutated.
func (s *Scorer) Score(candidates []retrieval.Candidate) []retrieval.Candidate {
	if len(candidates) == 0 {
		return []retrieval.Candidate{}
	}

	n := len(candidates)
	semantic := make([]float64, n)
	pagerank := make([]float64, n)
	centrality := make([]float64, n)
	confidence := make([]float64, n)
	recency := make([]float64, n)
	cochange := make([]float64, n)

	for i, c := range candidates {
		semantic[i] = retrieval.SanitizeNonNegative(c.Semantic())
		pagerank[i] = retrieval.SanitizeNonNegative(c.PageRank)
		centrality[i] = retrieval.SanitizeNonNegative(c.Centrality)
		confidence[i] = retrieval.SanitizeNonNegative(c.Confidence)
		recency[i] = retrieval.SanitizeNonNegative(c.Recency)
		cochange[i] = retrieval.SanitizeNonNegative(c.CoChange)
	}

	normalizeSlice(semantic)
	normalizeSlice(pagerank)
	normalizeSlice(centrality)
	normalizeSlice(confidence)
	normalizeSlice(recency)
	normalizeSlice(cochange)

	w := s.weights
	total := w.total()

	scored := make([]retrieval.Candidate, n)
	for i, c := range candidates {
		blended := w.Semantic*semantic[i] +
			w.PageRank*pagerank[i] +
			w.Centrality*centrality[i] +
			w.Confidence*confidence[i] +
			w.Recency*recency[i] +
			w.CoChange*cochange[i]

		// Weights need not sum to 1; rescale so the score stays in [0, 1].
		if total > 0 {
			blended /= total
		}

		c.Score = retrieval.SanitizeUnit(blended)
		c.ScoreBreakdown = map[string]float64{
			"semantic":   semantic[i],
			"pagerank":   pagerank[i],
			"centrality": centrality[i],
			"confidence": confidence[i],
			"recency":    recency[i],
			"coChange":   cochange[i],
		}
		scored[i] = c
	}

	return scored
}

// normalizeSlice applies min-max normalization in place. A degenerate
// range maps to 1 when the shared value is positive and 0 otherwise, so
// equal evidence reads as full signal rather than dividing by zero.
func normalizeSlice(values []float64) {
	if len(values) == 0 {
		return
	}

	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	if maxVal == minVal {
		out := 0.0
		if maxVal > 0 {
			out = 1.0
		}
		for i := range values {
			values[i] = out
		}
		return
	}

	for i := range values {
		values[i] = (values[i] - minVal) / (maxVal - minVal)
	}
}

// Recency converts a last-modified timestamp into an exponential-decay
// score: exp(-ageDays/decayDays), clamped to [0, 1]. Callers supply
// fallback when no timestamp exists.
func Recency(modifiedAt time.Time, now time.Time, decayDays, fallback float64) float64 {
	if modifiedAt.IsZero() {
		return retrieval.SanitizeUnit(fallback)
	}
	if decayDays <= 0 || math.IsNaN(decayDays) || math.IsInf(decayDays, 0) {
		decayDays = 30
	}

	ageDays := now.Sub(modifiedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return retrieval.SanitizeUnit(math.Exp(-ageDays / decayDays))
}
