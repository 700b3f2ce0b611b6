package assemble

import (
	"sort"

	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

// Skip reasons disclosed by the assembler.
const (
	SkipBudgetExhausted     = "budget_exhausted"
	SkipNoMatches           = "no_matches"
	SkipStepBudgetExhausted = "step_budget_exhausted"
	SkipRelevanceFiltered   = "relevance_filtered"
)

// DefaultMinConfidence is the floor applied after all steps run.
const DefaultMinConfidence = 0.3

// Skip records why a step contributed less than it could have.
type Skip struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// Result is the assembled pack list plus its disclosures.
type Result struct {
	Packs      []retrieval.ContextPack `json:"packs"`
	TokensUsed int                     `json:"tokensUsed"`
	Budget     int                     `json:"budget"`
	Skips      []Skip                  `json:"skips,omitempty"`
}

// Assembler fills context templates under token budgets.
type Assembler struct {
	minConfidence float64
	logger        *logging.Logger
}

// NewAssembler creates an assembler. A non-positive minConfidence falls
// back to the default floor.
func NewAssembler(minConfidence float64, logger *logging.Logger) *Assembler {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultMinConfidence
	}
	return &Assembler{minConfidence: minConfidence, logger: logger}
}

// Assemble fills the template's steps in order from the candidate pool.
// The global budget is min(maxTokens, template total); a non-positive
// maxTokens means the template budget alone applies. No pack is ever
// selected twice, and every selected pack matches its step's allowed
// types.
func (a *Assembler) Assemble(tmpl *ContextTemplate, pool []retrieval.ContextPack, maxTokens int) Result {
	budget := tmpl.TotalBudget
	if maxTokens > 0 && maxTokens < budget {
		budget = maxTokens
	}

	res := Result{Budget: budget}
	remaining := budget
	used := make(map[string]bool, len(pool))

	for i := range tmpl.Steps {
		step := &tmpl.Steps[i]

		if remaining <= 0 {
			// Required steps starved by earlier oversized picks stay
			// silent; the optional-step skip is the caller-facing signal.
			if !step.Required {
				res.Skips = append(res.Skips, Skip{Step: step.Name, Reason: SkipBudgetExhausted})
			}
			continue
		}

		matches := stepMatches(step, pool, used)
		if len(matches) == 0 {
			res.Skips = append(res.Skips, Skip{Step: step.Name, Reason: SkipNoMatches})
			continue
		}

		stepConsumed := 0
		added := 0
		truncated := false

		for idx, p := range matches {
			cost := p.TokenCost()

			if stepConsumed+cost > step.TokenBudget {
				// A required step's first candidate may run over its step
				// budget as long as it fits what is left globally. This
				// guarantees the step contributes when anything fits.
				if !(step.Required && idx == 0 && cost <= remaining) {
					truncated = true
					break
				}
			}
			if cost > remaining {
				truncated = true
				break
			}

			res.Packs = append(res.Packs, p)
			used[p.PackID] = true
			stepConsumed += cost
			remaining -= cost
			added++
		}

		if truncated {
			res.Skips = append(res.Skips, Skip{Step: step.Name, Reason: SkipStepBudgetExhausted})
		}

		if a.logger != nil {
			a.logger.Debug("step filled", map[string]interface{}{
				"step":      step.Name,
				"added":     added,
				"consumed":  stepConsumed,
				"remaining": remaining,
			})
		}
	}

	// Confidence floor runs after all steps so a low-confidence pack
	// never displaces budget from a better one retroactively.
	kept := res.Packs[:0]
	dropped := 0
	for _, p := range res.Packs {
		if p.Confidence >= a.minConfidence {
			kept = append(kept, p)
		} else {
			dropped++
			delete(used, p.PackID)
		}
	}
	res.Packs = kept
	if dropped > 0 {
		res.Skips = append(res.Skips, Skip{Step: "", Reason: SkipRelevanceFiltered})
	}

	res.Packs = lostInTheMiddle(res.Packs)
	res.TokensUsed = budget - remaining
	return res
}

// stepMatches returns the unused pool packs allowed by the step, sorted
// by confidence descending.
func stepMatches(step *RetrievalStep, pool []retrieval.ContextPack, used map[string]bool) []retrieval.ContextPack {
	matches := make([]retrieval.ContextPack, 0)
	for _, p := range pool {
		if used[p.PackID] {
			continue
		}
		if step.allows(p.PackType) {
			matches = append(matches, p)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// lostInTheMiddle reorders packs so the best-confidence pack comes
// first, the second-best comes last, and the rest sit confidence-sorted
// in between. Language-model attention degrades mid-context, so the two
// strongest packs take the edges.
func lostInTheMiddle(packs []retrieval.ContextPack) []retrieval.ContextPack {
	if len(packs) <= 2 {
		return packs
	}

	sorted := make([]retrieval.ContextPack, len(packs))
	copy(sorted, packs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	out := make([]retrieval.ContextPack, 0, len(sorted))
	out = append(out, sorted[0])
	out = append(out, sorted[2:]...)
	out = append(out, sorted[1])
	return out
}
