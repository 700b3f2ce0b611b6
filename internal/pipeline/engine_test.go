package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"ckr/internal/config"
	ckrerrors "ckr/internal/errors"
	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

// fakeSearcher returns canned candidates per depth, with per-depth
// confidence so tests can drive the escalation loop. Searches run on
// pool workers, so bookkeeping is mutex-guarded.
type fakeSearcher struct {
	byDepth map[retrieval.Depth][]retrieval.Candidate
	err     error

	mu      sync.Mutex
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, depth retrieval.Depth, entityType string, limit int) ([]retrieval.Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byDepth[depth], nil
}

func (f *fakeSearcher) seenQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.queries))
	copy(out, f.queries)
	return out
}

// fakePackSupplier builds one function-context pack per candidate,
// carrying the candidate's confidence through.
type fakePackSupplier struct {
	err error
}

func (f *fakePackSupplier) Packs(ctx context.Context, candidates []retrieval.Candidate, allowed []retrieval.PackType) ([]retrieval.ContextPack, error) {
	if f.err != nil {
		return nil, f.err
	}
	packs := make([]retrieval.ContextPack, 0, len(candidates))
	for _, c := range candidates {
		packs = append(packs, retrieval.ContextPack{
			PackID:     "pack-" + c.EntityID,
			PackType:   retrieval.PackFunctionContext,
			TargetID:   c.EntityID,
			Summary:    "handles session validation for login requests",
			Confidence: c.Confidence,
		})
	}
	return packs, nil
}

func candidatesWithConfidence(conf float64, ids ...string) []retrieval.Candidate {
	out := make([]retrieval.Candidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, retrieval.Candidate{
			EntityID:   id,
			EntityType: "function",
			Similarity: 0.9 - float64(i)*0.1,
			Confidence: conf,
		})
	}
	return out
}

func newTestEngine(t *testing.T, search *fakeSearcher, packs *fakePackSupplier) *Engine {
	t.Helper()
	e, err := NewEngine(Options{
		Config:     config.DefaultConfig(),
		Candidates: search,
		Packs:      packs,
		Logger:     logging.Nop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestRetrieveHappyPath(t *testing.T) {
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.9, "auth.Login", "auth.ValidateSession"),
	}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "the login handler crashes on empty passwords",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", res.Attempts)
	}
	if res.Depth != retrieval.DepthL1 {
		t.Errorf("Depth = %s, want L1", res.Depth)
	}
	if len(res.Packs) == 0 {
		t.Fatal("expected assembled packs")
	}
	if res.Decision.Status != retrieval.StatusSufficient {
		t.Errorf("Status = %s, want sufficient", res.Decision.Status)
	}
	if res.Intent.Label != "bug_fix" {
		t.Errorf("Label = %q, want bug_fix", res.Intent.Label)
	}
	if res.TokensUsed <= 0 || res.TokensUsed > res.Budget {
		t.Errorf("TokensUsed = %d, Budget = %d", res.TokensUsed, res.Budget)
	}
}

func TestRetrieveEscalatesOnLowConfidence(t *testing.T) {
	// L1 yields junk; the controller jumps to L3 where results are good.
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.1, "misc.Helper"),
		retrieval.DepthL3: candidatesWithConfidence(0.9, "auth.Login", "auth.RefreshToken"),
	}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "the login handler crashes on empty passwords",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if res.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", res.Attempts)
	}
	if res.Depth != retrieval.DepthL3 {
		t.Errorf("Depth = %s, want L3", res.Depth)
	}
	if len(res.Packs) == 0 {
		t.Error("expected packs from the escalated attempt")
	}
	if res.Decision.ShouldEscalate {
		t.Error("final decision must not escalate")
	}
}

func TestRetrieveAttemptsExhausted(t *testing.T) {
	// Nothing at any depth: the loop must stop at the attempt cap.
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "the login handler crashes on empty passwords",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if res.Attempts != config.DefaultMaxEscalationDepth {
		t.Errorf("Attempts = %d, want %d", res.Attempts, config.DefaultMaxEscalationDepth)
	}
	if res.Decision.Status != retrieval.StatusInsufficient {
		t.Errorf("Status = %s, want insufficient", res.Decision.Status)
	}
	if len(res.Packs) != 0 {
		t.Errorf("Packs = %d, want none", len(res.Packs))
	}
}

func TestRetrieveL0NeverEscalates(t *testing.T) {
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "the login handler crashes on empty passwords",
		Depth:  retrieval.DepthL0,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 (L0 is a hard stop)", res.Attempts)
	}
	if res.Depth != retrieval.DepthL0 {
		t.Errorf("Depth = %s, want L0", res.Depth)
	}
}

func TestRetrieveEmptyIntentRejected(t *testing.T) {
	e := newTestEngine(t, &fakeSearcher{}, &fakePackSupplier{})

	_, err := e.Retrieve(context.Background(), retrieval.Query{Intent: "   "})
	if err == nil {
		t.Fatal("expected error")
	}
	var cerr *ckrerrors.CkrError
	if !errors.As(err, &cerr) || cerr.Code != ckrerrors.InvalidQuery {
		t.Errorf("error = %v, want INVALID_QUERY", err)
	}
}

func TestRetrieveUnknownDepthRejected(t *testing.T) {
	e := newTestEngine(t, &fakeSearcher{}, &fakePackSupplier{})

	_, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "where is the parser",
		Depth:  retrieval.Depth("L9"),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var cerr *ckrerrors.CkrError
	if !errors.As(err, &cerr) || cerr.Code != ckrerrors.InvalidQuery {
		t.Errorf("error = %v, want INVALID_QUERY", err)
	}
}

func TestRetrieveSearchFailureDegrades(t *testing.T) {
	search := &fakeSearcher{err: errors.New("backend down")}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "the login handler crashes on empty passwords",
	})
	if err != nil {
		t.Fatalf("search failure must not fail the retrieval: %v", err)
	}

	found := false
	for _, d := range res.Disclosures {
		if strings.Contains(d, "backend down") {
			found = true
		}
	}
	if !found {
		t.Errorf("disclosures missing supplier failure: %v", res.Disclosures)
	}
	if res.Decision.Status != retrieval.StatusInsufficient {
		t.Errorf("Status = %s, want insufficient", res.Decision.Status)
	}
}

func TestRetrievePackFailureDegrades(t *testing.T) {
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.9, "auth.Login"),
	}}
	e := newTestEngine(t, search, &fakePackSupplier{err: errors.New("pack store offline")})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent: "the login handler crashes on empty passwords",
	})
	if err != nil {
		t.Fatalf("pack failure must not fail the retrieval: %v", err)
	}
	if len(res.Packs) != 0 {
		t.Errorf("Packs = %d, want none", len(res.Packs))
	}
	found := false
	for _, d := range res.Disclosures {
		if strings.Contains(d, "pack store offline") {
			found = true
		}
	}
	if !found {
		t.Errorf("disclosures missing pack failure: %v", res.Disclosures)
	}
}

func TestRetrieveExpandsQueryOnEscalation(t *testing.T) {
	// Low-confidence packs still carry identifiers worth mining, so the
	// escalated attempt should search with an expanded query.
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.1, "billing.ChargeCustomer"),
		retrieval.DepthL3: candidatesWithConfidence(0.9, "billing.ChargeCustomer"),
	}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	original := "payment retries misbehaving"
	res, err := e.Retrieve(context.Background(), retrieval.Query{Intent: original})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Attempts == 0 {
		t.Fatal("expected at least one escalation")
	}

	expanded := false
	for _, q := range search.seenQueries() {
		if q != original && strings.HasPrefix(q, original) {
			expanded = true
		}
	}
	if !expanded {
		t.Errorf("no expanded query observed in %v", search.seenQueries())
	}
	if res.FinalQuery == original {
		t.Errorf("FinalQuery = %q, want expanded", res.FinalQuery)
	}
}

type fakeGenerator struct {
	response string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}

func TestRetrieveFusesHydeVariant(t *testing.T) {
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.9, "http.Throttle"),
	}}
	e, err := NewEngine(Options{
		Config:     config.DefaultConfig(),
		Candidates: search,
		Packs:      &fakePackSupplier{},
		Generator:  &fakeGenerator{response: "func Throttle(next http.Handler) http.Handler"},
		Logger:     logging.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Retrieve(context.Background(), retrieval.Query{
		Intent: "where is request throttling applied",
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	hydeSearched := false
	for _, q := range search.seenQueries() {
		if strings.Contains(q, "func Throttle") {
			hydeSearched = true
		}
	}
	if !hydeSearched {
		t.Errorf("hyde variant never searched: %v", search.seenQueries())
	}
}

func TestRetrieveDiversifyReordersPool(t *testing.T) {
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.9, "auth.Login", "auth.Logout", "auth.Refresh"),
	}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent:    "the login handler crashes on empty passwords",
		Diversify: true,
		Lambda:    0.7,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Packs) == 0 {
		t.Error("diversified retrieval returned no packs")
	}
}

func TestRetrieveRespectsTokenBudget(t *testing.T) {
	search := &fakeSearcher{byDepth: map[retrieval.Depth][]retrieval.Candidate{
		retrieval.DepthL1: candidatesWithConfidence(0.9,
			"a.One", "a.Two", "a.Three", "a.Four", "a.Five"),
	}}
	e := newTestEngine(t, search, &fakePackSupplier{})

	res, err := e.Retrieve(context.Background(), retrieval.Query{
		Intent:    "the login handler crashes on empty passwords",
		MaxTokens: 40,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Budget != 40 {
		t.Errorf("Budget = %d, want 40", res.Budget)
	}
	if res.TokensUsed > 40 {
		t.Errorf("TokensUsed = %d exceeds budget", res.TokensUsed)
	}
}
