// Package backends provides collaborator implementations of the
// candidate and pack supplier interfaces. The fixture backend serves a
// JSON snapshot for offline use and tests; real index-backed suppliers
// plug in behind the same interfaces.
package backends

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"

	ckrerrors "ckr/internal/errors"
	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

// Fixture is the on-disk snapshot format: a flat candidate list plus
// the packs keyed by their target entity.
type Fixture struct {
	Candidates []FixtureCandidate      `json:"candidates"`
	Packs      []retrieval.ContextPack `json:"packs"`
}

// FixtureCandidate is a candidate plus the minimum depth at which it
// becomes visible, so fixtures can exercise the escalation loop.
type FixtureCandidate struct {
	retrieval.Candidate
	MinDepth retrieval.Depth `json:"minDepth,omitempty"`
	Keywords []string        `json:"keywords,omitempty"`
}

// FixtureSupplier serves candidates and packs from a loaded fixture. It
// implements both supplier interfaces.
type FixtureSupplier struct {
	fixture Fixture
	logger  *logging.Logger
}

// LoadFixture reads a fixture file.
func LoadFixture(path string, logger *logging.Logger) (*FixtureSupplier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ckrerrors.New(ckrerrors.SupplierUnavailable, "cannot read fixture file", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, ckrerrors.New(ckrerrors.SupplierUnavailable, "cannot parse fixture file", err)
	}
	return NewFixtureSupplier(f, logger), nil
}

// NewFixtureSupplier wraps an in-memory fixture.
func NewFixtureSupplier(f Fixture, logger *logging.Logger) *FixtureSupplier {
	return &FixtureSupplier{fixture: f, logger: logger}
}

// Search returns the fixture candidates visible at the requested depth
// whose entity id or keywords overlap the query terms, ranked by
// similarity.
func (s *FixtureSupplier) Search(ctx context.Context, query string, depth retrieval.Depth, entityType string, limit int) ([]retrieval.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	var out []retrieval.Candidate
	for _, fc := range s.fixture.Candidates {
		if fc.MinDepth != "" && fc.MinDepth.Level() > depth.Level() {
			continue
		}
		if entityType != "" && fc.EntityType != "" && fc.EntityType != entityType {
			continue
		}
		if !matchesTerms(fc, terms) {
			continue
		}
		out = append(out, fc.Candidate)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	if s.logger != nil {
		s.logger.Debug("fixture search", map[string]interface{}{
			"entityType": entityType,
			"depth":      string(depth),
			"hits":       len(out),
		})
	}
	return out, nil
}

// Packs returns the fixture packs whose target matches a candidate and
// whose type is allowed.
func (s *FixtureSupplier) Packs(ctx context.Context, candidates []retrieval.Candidate, allowed []retrieval.PackType) ([]retrieval.ContextPack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		wanted[c.EntityID] = true
	}
	allowedSet := make(map[retrieval.PackType]bool, len(allowed))
	for _, t := range allowed {
		allowedSet[t] = true
	}

	var out []retrieval.ContextPack
	for _, p := range s.fixture.Packs {
		if !wanted[p.TargetID] {
			continue
		}
		if len(allowedSet) > 0 && !allowedSet[p.PackType] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func queryTerms(query string) map[string]bool {
	terms := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	}) {
		if len(tok) >= 3 {
			terms[tok] = true
		}
	}
	return terms
}

func matchesTerms(fc FixtureCandidate, terms map[string]bool) bool {
	if len(terms) == 0 {
		return true
	}
	hay := strings.ToLower(fc.EntityID)
	for term := range terms {
		if strings.Contains(hay, term) {
			return true
		}
	}
	for _, kw := range fc.Keywords {
		if terms[strings.ToLower(kw)] {
			return true
		}
	}
	return false
}
