// Package diversify re-ranks a context-pack pool with maximal marginal
// relevance (MMR), trading relevance against redundancy measured as
// cosine similarity of bag-of-tokens term-frequency vectors.
package diversify

import (
	"math"
	"strings"

	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

// CoverageGapAllZeroRelevance is disclosed when every pack's relevance is
// zero and diversification is skipped.
const CoverageGapAllZeroRelevance = "diversification skipped: all relevance scores are zero"

// Result carries the diversified order plus any coverage gaps.
type Result struct {
	Packs        []retrieval.ContextPack
	CoverageGaps []string
}

// Diversifier applies MMR re-ranking.
type Diversifier struct {
	logger *logging.Logger
}

// NewDiversifier creates a diversifier.
func NewDiversifier(logger *logging.Logger) *Diversifier {
	return &Diversifier{logger: logger}
}

// Rerank greedily selects packs maximizing
// λ·relevance − (1−λ)·maxSimilarityToSelected. Relevance per pack is the
// caller-supplied score when finite and in [0,1], else the pack's own
// confidence. Pools smaller than two packs come back unchanged. If all
// relevance is zero the input order is returned with a coverage gap; if
// selection cannot place every pack, the input order is returned as-is.
func (d *Diversifier) Rerank(packs []retrieval.ContextPack, scores map[string]float64, lambda float64) Result {
	if len(packs) < 2 {
		return Result{Packs: packs}
	}

	lambda = clampLambda(lambda)

	relevance := make([]float64, len(packs))
	allZero := true
	for i, p := range packs {
		rel := p.Confidence
		if s, ok := scores[p.PackID]; ok && !math.IsNaN(s) && !math.IsInf(s, 0) && s >= 0 && s <= 1 {
			rel = s
		}
		relevance[i] = retrieval.SanitizeUnit(rel)
		if relevance[i] > 0 {
			allZero = false
		}
	}

	if allZero {
		if d.logger != nil {
			d.logger.Debug("mmr skipped", map[string]interface{}{"reason": "zero relevance", "packs": len(packs)})
		}
		return Result{Packs: packs, CoverageGaps: []string{CoverageGapAllZeroRelevance}}
	}

	vectors := make([]map[string]float64, len(packs))
	for i := range packs {
		vectors[i] = termVector(&packs[i])
	}

	selected := make([]int, 0, len(packs))
	used := make([]bool, len(packs))

	for len(selected) < len(packs) {
		bestIdx := -1
		bestScore := math.Inf(-1)

		for i := range packs {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := cosine(vectors[i], vectors[s]); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx < 0 {
			break
		}
		used[bestIdx] = true
		selected = append(selected, bestIdx)
	}

	// Fail closed: a partial selection means a selection bug, not a data
	// problem, so the prior-stage order is the safest output.
	if len(selected) != len(packs) {
		if d.logger != nil {
			d.logger.Warn("mmr selection incomplete, returning input order", map[string]interface{}{
				"selected": len(selected),
				"packs":    len(packs),
			})
		}
		return Result{Packs: packs}
	}

	out := make([]retrieval.ContextPack, len(selected))
	for i, idx := range selected {
		out[i] = packs[idx]
	}
	return Result{Packs: out}
}

func clampLambda(lambda float64) float64 {
	if math.IsNaN(lambda) {
		return 0.5
	}
	if lambda < 0 {
		return 0
	}
	if lambda > 1 {
		return 1
	}
	return lambda
}

// termVector builds a bag-of-tokens term-frequency vector from the
// pack's id, summary, key facts, and related files.
func termVector(p *retrieval.ContextPack) map[string]float64 {
	vec := make(map[string]float64)
	add := func(text string) {
		for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
		}) {
			if tok != "" {
				vec[tok]++
			}
		}
	}

	add(p.PackID)
	add(p.Summary)
	for _, f := range p.KeyFacts {
		add(f)
	}
	for _, f := range p.RelatedFiles {
		add(f)
	}
	return vec
}

// cosine computes cosine similarity between two term-frequency vectors.
func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map
	if len(b) < len(a) {
		a, b = b, a
	}

	dot := 0.0
	for tok, av := range a {
		if bv, ok := b[tok]; ok {
			dot += av * bv
		}
	}
	if dot == 0 {
		return 0
	}

	return dot / (norm(a) * norm(b))
}

func norm(v map[string]float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
