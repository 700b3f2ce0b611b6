package assemble

import (
	"strings"
	"testing"

	"ckr/internal/intent"
	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

func newTestAssembler() *Assembler {
	return NewAssembler(DefaultMinConfidence, logging.Nop())
}

// costPack builds a pack whose TokenCost is exactly tokens.
func costPack(id string, pt retrieval.PackType, confidence float64, tokens int) retrieval.ContextPack {
	return retrieval.ContextPack{
		PackID:     id,
		PackType:   pt,
		Summary:    strings.Repeat("x", tokens*4-len(id)),
		Confidence: confidence,
	}
}

func bugFixTemplate(t *testing.T) *ContextTemplate {
	t.Helper()
	tmpl, err := NewRegistry().Lookup(intent.LabelBugFix)
	if err != nil {
		t.Fatalf("Lookup(bug_fix) error = %v", err)
	}
	return tmpl
}

func abundantPool() []retrieval.ContextPack {
	return []retrieval.ContextPack{
		costPack("fn1", retrieval.PackFunctionContext, 0.9, 400),
		costPack("fn2", retrieval.PackFunctionContext, 0.8, 400),
		costPack("sym1", retrieval.PackSymbolDefinition, 0.7, 300),
		costPack("flow1", retrieval.PackCallFlow, 0.85, 400),
		costPack("impact1", retrieval.PackChangeImpact, 0.6, 300),
		costPack("git1", retrieval.PackGitHistory, 0.7, 300),
		costPack("task1", retrieval.PackSimilarTasks, 0.65, 250),
		costPack("pat1", retrieval.PackPatternContext, 0.5, 250),
	}
}

func TestAssembleRequiredStepsContribute(t *testing.T) {
	tmpl := bugFixTemplate(t)
	res := newTestAssembler().Assemble(tmpl, abundantPool(), 4000)

	byType := make(map[retrieval.PackType]int)
	for _, p := range res.Packs {
		byType[p.PackType]++
	}

	// failing_code requires function_context/symbol_definition packs;
	// call_paths requires call_flow/change_impact packs.
	if byType[retrieval.PackFunctionContext]+byType[retrieval.PackSymbolDefinition] == 0 {
		t.Error("required step failing_code contributed no packs")
	}
	if byType[retrieval.PackCallFlow]+byType[retrieval.PackChangeImpact] == 0 {
		t.Error("required step call_paths contributed no packs")
	}
}

func TestAssembleNeverSelectsPackTwice(t *testing.T) {
	tmpl := bugFixTemplate(t)
	res := newTestAssembler().Assemble(tmpl, abundantPool(), 4000)

	seen := make(map[string]bool)
	for _, p := range res.Packs {
		if seen[p.PackID] {
			t.Errorf("pack %q selected twice", p.PackID)
		}
		seen[p.PackID] = true
	}
}

func TestAssembleRespectsGlobalBudget(t *testing.T) {
	tmpl := bugFixTemplate(t)
	res := newTestAssembler().Assemble(tmpl, abundantPool(), 4000)

	total := 0
	for _, p := range res.Packs {
		total += p.TokenCost()
	}
	if total > 4000 {
		t.Errorf("total cost = %d, want <= 4000", total)
	}
	if res.Budget != 4000 {
		t.Errorf("Budget = %d, want 4000", res.Budget)
	}
}

func TestAssembleBudgetIsMinOfCallerAndTemplate(t *testing.T) {
	tmpl := bugFixTemplate(t)

	res := newTestAssembler().Assemble(tmpl, abundantPool(), 100000)
	if res.Budget != tmpl.TotalBudget {
		t.Errorf("Budget = %d, want template total %d", res.Budget, tmpl.TotalBudget)
	}

	res = newTestAssembler().Assemble(tmpl, abundantPool(), 0)
	if res.Budget != tmpl.TotalBudget {
		t.Errorf("Budget = %d, want template total for non-positive caller budget", res.Budget)
	}
}

func TestAssembleAllowedTypesInvariant(t *testing.T) {
	tmpl := bugFixTemplate(t)
	pool := append(abundantPool(),
		retrieval.ContextPack{PackID: "weird", PackType: "mystery_type", Summary: "?", Confidence: 0.99},
	)

	res := newTestAssembler().Assemble(tmpl, pool, 4000)

	allowed := make(map[retrieval.PackType]bool)
	for _, s := range tmpl.Steps {
		for _, pt := range s.AllowedTypes {
			allowed[pt] = true
		}
	}
	for _, p := range res.Packs {
		if !allowed[p.PackType] {
			t.Errorf("pack %q has type %q outside every step's allowed set", p.PackID, p.PackType)
		}
	}
}

func TestAssembleNoMatchesDisclosed(t *testing.T) {
	tmpl := bugFixTemplate(t)
	// Pool with nothing for the similar_fixes step.
	pool := []retrieval.ContextPack{
		costPack("fn1", retrieval.PackFunctionContext, 0.9, 400),
		costPack("flow1", retrieval.PackCallFlow, 0.8, 400),
		costPack("git1", retrieval.PackGitHistory, 0.7, 300),
	}

	res := newTestAssembler().Assemble(tmpl, pool, 4000)

	found := false
	for _, s := range res.Skips {
		if s.Step == "similar_fixes" && s.Reason == SkipNoMatches {
			found = true
		}
	}
	if !found {
		t.Errorf("Skips = %v, want similar_fixes no_matches", res.Skips)
	}
}

func TestAssembleOversizedRequiredFirstPick(t *testing.T) {
	tmpl := &ContextTemplate{
		Intent:      "custom",
		TotalBudget: 5000,
		Steps: []RetrievalStep{
			{Name: "main", TokenBudget: 500, Required: true,
				AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext}},
		},
	}

	// 2000-token pack exceeds the 500-token step budget but fits globally.
	pool := []retrieval.ContextPack{costPack("big", retrieval.PackFunctionContext, 0.9, 2000)}

	res := newTestAssembler().Assemble(tmpl, pool, 5000)

	if len(res.Packs) != 1 || res.Packs[0].PackID != "big" {
		t.Errorf("Packs = %v, want the oversized required pick", res.Packs)
	}
}

func TestAssembleOversizedOptionalNotPicked(t *testing.T) {
	tmpl := &ContextTemplate{
		Intent:      "custom",
		TotalBudget: 5000,
		Steps: []RetrievalStep{
			{Name: "extra", TokenBudget: 500, Required: false,
				AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext}},
		},
	}
	pool := []retrieval.ContextPack{costPack("big", retrieval.PackFunctionContext, 0.9, 2000)}

	res := newTestAssembler().Assemble(tmpl, pool, 5000)

	if len(res.Packs) != 0 {
		t.Errorf("Packs = %v, want none for oversized optional pick", res.Packs)
	}
	found := false
	for _, s := range res.Skips {
		if s.Step == "extra" && s.Reason == SkipStepBudgetExhausted {
			found = true
		}
	}
	if !found {
		t.Errorf("Skips = %v, want extra step_budget_exhausted", res.Skips)
	}
}

// A required step's oversized first pick can starve a later required
// step of its budget. The behavior is preserved deliberately; this test
// pins it rather than letting it be re-derived from intuition.
func TestAssembler_RequiredOversizedStarvesLaterStep(t *testing.T) {
	tmpl := &ContextTemplate{
		Intent:      "custom",
		TotalBudget: 2000,
		Steps: []RetrievalStep{
			{Name: "first", TokenBudget: 500, Required: true,
				AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext}},
			{Name: "second", TokenBudget: 500, Required: true,
				AllowedTypes: []retrieval.PackType{retrieval.PackCallFlow}},
			{Name: "third", TokenBudget: 500, Required: false,
				AllowedTypes: []retrieval.PackType{retrieval.PackGitHistory}},
		},
	}

	pool := []retrieval.ContextPack{
		costPack("huge", retrieval.PackFunctionContext, 0.9, 2000),
		costPack("flow", retrieval.PackCallFlow, 0.8, 100),
		costPack("git", retrieval.PackGitHistory, 0.7, 100),
	}

	res := newTestAssembler().Assemble(tmpl, pool, 2000)

	// The oversized required pick consumes the entire global budget.
	if len(res.Packs) != 1 || res.Packs[0].PackID != "huge" {
		t.Fatalf("Packs = %v, want only the oversized pick", res.Packs)
	}

	// The starved optional step discloses budget_exhausted; the starved
	// required step stays silent per the disclosure rules.
	var optionalSkipped bool
	for _, s := range res.Skips {
		if s.Step == "third" && s.Reason == SkipBudgetExhausted {
			optionalSkipped = true
		}
		if s.Step == "second" && s.Reason == SkipBudgetExhausted {
			t.Error("required step should not emit budget_exhausted")
		}
	}
	if !optionalSkipped {
		t.Errorf("Skips = %v, want third budget_exhausted", res.Skips)
	}
}

func TestAssembleConfidenceFloor(t *testing.T) {
	tmpl := &ContextTemplate{
		Intent:      "custom",
		TotalBudget: 5000,
		Steps: []RetrievalStep{
			{Name: "main", TokenBudget: 5000, Required: true,
				AllowedTypes: []retrieval.PackType{retrieval.PackFunctionContext}},
		},
	}
	pool := []retrieval.ContextPack{
		costPack("strong", retrieval.PackFunctionContext, 0.9, 100),
		costPack("weak", retrieval.PackFunctionContext, 0.1, 100),
	}

	res := newTestAssembler().Assemble(tmpl, pool, 5000)

	for _, p := range res.Packs {
		if p.PackID == "weak" {
			t.Error("pack below confidence floor survived")
		}
	}
	found := false
	for _, s := range res.Skips {
		if s.Reason == SkipRelevanceFiltered {
			found = true
		}
	}
	if !found {
		t.Errorf("Skips = %v, want relevance_filtered", res.Skips)
	}
}

func TestLostInTheMiddleOrdering(t *testing.T) {
	packs := []retrieval.ContextPack{
		{PackID: "c", Confidence: 0.5},
		{PackID: "a", Confidence: 0.9},
		{PackID: "b", Confidence: 0.8},
		{PackID: "d", Confidence: 0.3},
	}

	got := lostInTheMiddle(packs)

	// Best first, second-best last, rest confidence-sorted in between.
	want := []string{"a", "c", "d", "b"}
	for i, p := range got {
		if p.PackID != want[i] {
			t.Fatalf("order = %v, want %v", idsOf(got), want)
		}
	}
}

func idsOf(packs []retrieval.ContextPack) []string {
	out := make([]string, len(packs))
	for i, p := range packs {
		out[i] = p.PackID
	}
	return out
}

func TestLostInTheMiddleSmallSets(t *testing.T) {
	two := []retrieval.ContextPack{{PackID: "a"}, {PackID: "b"}}
	got := lostInTheMiddle(two)
	if len(got) != 2 || got[0].PackID != "a" {
		t.Errorf("two-pack order changed: %v", idsOf(got))
	}
}
