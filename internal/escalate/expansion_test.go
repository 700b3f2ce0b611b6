package escalate

import (
	"strings"
	"testing"

	"ckr/internal/retrieval"
)

func TestExpandQueryMinesIdentifiers(t *testing.T) {
	packs := []retrieval.ContextPack{
		{
			PackID:       "p1",
			TargetID:     "validateSessionToken",
			RelatedFiles: []string{"internal/auth/session_store.go"},
			Summary:      "Checks the signed token against the session store.",
			Confidence:   0.8,
		},
	}

	got := ExpandQuery("why does login fail", packs)

	if !strings.HasPrefix(got, "why does login fail") {
		t.Errorf("expansion must append, got %q", got)
	}
	if got == "why does login fail" {
		t.Error("expansion added no terms")
	}
	// camelCase identifier mined from the target id
	if !strings.Contains(got, "validateSessionToken") {
		t.Errorf("expected identifier term in %q", got)
	}
}

func TestExpandQueryCamelCaseSplitting(t *testing.T) {
	packs := []retrieval.ContextPack{
		{PackID: "p1", TargetID: "RefreshAccessGrant", Confidence: 0.8},
	}

	got := ExpandQuery("token problems", packs)

	// The compound identifier and its parts are both candidates; at
	// least one split part must surface.
	lower := strings.ToLower(got)
	if !strings.Contains(lower, "refresh") && !strings.Contains(lower, "grant") && !strings.Contains(lower, "access") {
		t.Errorf("camelCase parts missing from %q", got)
	}
}

func TestExpandQueryStripsFileExtensions(t *testing.T) {
	packs := []retrieval.ContextPack{
		{PackID: "p1", RelatedFiles: []string{"billing/invoice_builder.go"}, Confidence: 0.8},
	}

	got := ExpandQuery("charge customers", packs)

	if strings.Contains(got, ".go") {
		t.Errorf("file extension leaked into %q", got)
	}
	if !strings.Contains(got, "invoice_builder") {
		t.Errorf("file stem missing from %q", got)
	}
}

func TestExpandQueryCapsAtFourTerms(t *testing.T) {
	packs := []retrieval.ContextPack{
		{
			PackID:       "p1",
			TargetID:     "alphaOne betaTwo gammaThree deltaFour epsilonFive zetaSix",
			RelatedFiles: []string{"pkg/more_stuff.go", "pkg/other_things.go"},
			Summary:      "plenty of additional vocabulary here to mine",
			Confidence:   0.8,
		},
	}

	original := "short query"
	got := ExpandQuery(original, packs)

	added := strings.Fields(strings.TrimPrefix(got, original))
	if len(added) > 4 {
		t.Errorf("added %d terms (%v), want <= 4", len(added), added)
	}
}

func TestExpandQuerySkipsStopWordsAndKnownTokens(t *testing.T) {
	packs := []retrieval.ContextPack{
		{PackID: "p1", Summary: "the cache and the parser", Confidence: 0.8},
	}

	got := ExpandQuery("cache behavior", packs)

	added := strings.TrimPrefix(got, "cache behavior")
	if strings.Contains(added, "the ") || strings.HasSuffix(added, "the") {
		t.Errorf("stop word leaked into %q", added)
	}
	if strings.Contains(added, "cache") {
		t.Errorf("token already in query leaked into %q", added)
	}
}

func TestExpandQueryNoPacksUnchanged(t *testing.T) {
	if got := ExpandQuery("original intent", nil); got != "original intent" {
		t.Errorf("ExpandQuery = %q, want unchanged", got)
	}
}

func TestExpandQueryShortTokensFiltered(t *testing.T) {
	packs := []retrieval.ContextPack{
		{PackID: "p1", Summary: "go db io xy", Confidence: 0.8},
	}
	if got := ExpandQuery("query", packs); got != "query" {
		t.Errorf("ExpandQuery = %q, want unchanged (all tokens too short)", got)
	}
}

func TestClarifyingQuestions(t *testing.T) {
	qs := ClarifyingQuestions("memory leak in exporter")

	if len(qs) != 3 {
		t.Fatalf("len = %d, want 3", len(qs))
	}
	for i, q := range qs {
		if !strings.Contains(q, "memory leak in exporter") {
			t.Errorf("question %d missing original intent: %q", i, q)
		}
	}
}
