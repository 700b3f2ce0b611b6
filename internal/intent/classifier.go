// Package intent classifies a natural-language developer query into
// weighted intent signals, a document bias, and an entity-type routing
// list. Classification is deterministic: rule families evaluate in a
// fixed order and bias overrides apply in a fixed order.
package intent

import (
	"strings"

	"ckr/internal/logging"
)

// Entity types routed to the candidate supplier.
const (
	EntityFunction = "function"
	EntityModule   = "module"
	EntityDoc      = "doc"
)

// Intent labels used for template lookup.
const (
	LabelBugFix        = "bug_fix"
	LabelArchitecture  = "architecture"
	LabelFeature       = "feature_addition"
	LabelSecurityAudit = "security_audit"
	LabelRefactoring   = "refactoring"
)

// overrideLabels maps explicit intent-type overrides to template labels.
// "general" and "understand" are deliberately absent: they defer to the
// text-derived classification.
var overrideLabels = map[string]string{
	"bug_fix":          LabelBugFix,
	"debug":            LabelBugFix,
	"architecture":     LabelArchitecture,
	"understand_arch":  LabelArchitecture,
	"feature_addition": LabelFeature,
	"feature":          LabelFeature,
	"security_audit":   LabelSecurityAudit,
	"security":         LabelSecurityAudit,
	"refactoring":      LabelRefactoring,
	"refactor":         LabelRefactoring,
}

// Classification is the classifier output for one query.
type Classification struct {
	Label       string                `json:"label"`
	DocBias     float64               `json:"docBias"`
	EntityTypes []string              `json:"entityTypes"`
	Families    map[Family]FamilyMatch `json:"families"`
	Overridden  bool                  `json:"overridden,omitempty"`
}

// Matched reports whether the given family flag is set.
func (c *Classification) Matched(f Family) bool {
	return c.Families[f].Matched
}

// Classifier maps query text to intent signals.
type Classifier struct {
	logger *logging.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(logger *logging.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify evaluates all rule families against the query text and applies
// the explicit override when present. Affected-file hints contribute to
// the code and test families.
func (c *Classifier) Classify(text, override string, affectedFiles []string) *Classification {
	families := make(map[Family]FamilyMatch, len(familyRules))
	for _, fam := range familyRules {
		count := 0
		for _, r := range fam.rules {
			count += len(r.pattern.FindAllString(text, -1))
		}
		families[fam.family] = FamilyMatch{Matched: count > 0, Count: count}
	}

	// File hints count toward code (and test, for test-shaped names).
	for _, f := range affectedFiles {
		bump(families, FamilyCode)
		lower := strings.ToLower(f)
		if strings.Contains(lower, "_test.") || strings.Contains(lower, ".spec.") || strings.Contains(lower, ".test.") {
			bump(families, FamilyTest)
		}
	}

	cls := &Classification{
		Families:    families,
		DocBias:     computeDocBias(families),
		EntityTypes: routeEntityTypes(families),
		Label:       deriveLabel(families),
	}

	// An explicit override replaces the text-derived label outright.
	// Ambiguous text signals never win over an explicit caller choice.
	if label, ok := overrideLabels[strings.ToLower(strings.TrimSpace(override))]; ok {
		cls.Label = label
		cls.Overridden = true
	}

	if c.logger != nil {
		c.logger.Debug("classified query", map[string]interface{}{
			"label":       cls.Label,
			"docBias":     cls.DocBias,
			"entityTypes": cls.EntityTypes,
			"overridden":  cls.Overridden,
		})
	}
	return cls
}

func bump(families map[Family]FamilyMatch, f Family) {
	m := families[f]
	m.Matched = true
	m.Count++
	families[f] = m
}

// computeDocBias derives the document-vs-code bias. Order matters: later
// overrides replace earlier ones, and the result is clamped to [0, 1].
func computeDocBias(families map[Family]FamilyMatch) float64 {
	bias := 0.3

	if m := families[FamilyMeta]; m.Matched {
		bias = 0.7 + 0.05*float64(m.Count)
	}
	if families[FamilyWhy].Matched {
		bias = 0.9
	}
	if families[FamilyProject].Matched {
		bias = 0.95
	}
	if families[FamilyCode].Matched || families[FamilyTest].Matched {
		bias = 0.1
	}

	if bias < 0 {
		bias = 0
	}
	if bias > 1 {
		bias = 1
	}
	return bias
}

// routeEntityTypes picks the entity types to search, by fixed priority:
// test > why > project-understanding > architecture-overview > meta >
// code > default-all-three. The result is deduplicated and ordered.
func routeEntityTypes(families map[Family]FamilyMatch) []string {
	var routed []string
	switch {
	case families[FamilyTest].Matched:
		routed = []string{EntityFunction, EntityModule}
	case families[FamilyWhy].Matched:
		routed = []string{EntityDoc, EntityModule}
	case families[FamilyProject].Matched:
		routed = []string{EntityDoc, EntityModule}
	case families[FamilyArchitecture].Matched:
		routed = []string{EntityModule, EntityDoc}
	case families[FamilyMeta].Matched:
		routed = []string{EntityDoc}
	case families[FamilyCode].Matched:
		routed = []string{EntityFunction, EntityModule}
	default:
		routed = []string{EntityFunction, EntityModule, EntityDoc}
	}
	return dedupe(routed)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// deriveLabel picks the template label from the matched families, most
// specific first.
func deriveLabel(families map[Family]FamilyMatch) string {
	switch {
	case families[FamilySecurity].Matched:
		return LabelSecurityAudit
	case families[FamilyRefactoring].Matched:
		return LabelRefactoring
	case families[FamilyBug].Matched:
		return LabelBugFix
	case families[FamilyArchitecture].Matched,
		families[FamilyWhy].Matched,
		families[FamilyProject].Matched:
		return LabelArchitecture
	case families[FamilyFeature].Matched:
		return LabelFeature
	default:
		return LabelFeature
	}
}
