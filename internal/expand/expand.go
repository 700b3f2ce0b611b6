// Package expand produces alternate query formulations to recover
// recall: identifier-synonym substitution, compound heuristic phrases,
// and HyDE pseudo-documents from a collaborator text generator. Each
// variant is searched separately and rank-fused with the direct results.
package expand

import (
	"context"
	"fmt"
	"strings"

	"ckr/internal/logging"
)

// Generator is the collaborator LLM call used for HyDE. It accepts a
// prompt and returns free text; all post-processing happens here.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	maxVariants  = 3
	maxHydeChars = 1200
)

// synonymTable maps query tokens to identifier-flavored alternatives.
var synonymTable = map[string][]string{
	"permission": {"access", "authorization", "role"},
	"auth":       {"authentication", "login", "credential"},
	"login":      {"auth", "session", "signin"},
	"error":      {"failure", "exception", "panic"},
	"bug":        {"defect", "regression", "fault"},
	"config":     {"settings", "options", "configuration"},
	"delete":     {"remove", "purge", "drop"},
	"create":     {"add", "insert", "register"},
	"fetch":      {"get", "load", "retrieve"},
	"user":       {"account", "principal", "member"},
	"database":   {"storage", "sql", "repository"},
	"cache":      {"memo", "store", "lru"},
	"send":       {"publish", "emit", "dispatch"},
	"token":      {"credential", "jwt", "secret"},
	"test":       {"spec", "assertion", "verification"},
}

// compoundHeuristics adds identifier phrases when token pairs co-occur.
var compoundHeuristics = []struct {
	first, second string
	phrase        string
}{
	{"user", "permission", "canAccessRoute checkUserRole authorizeUser"},
	{"user", "login", "authenticateUser validateSession loginHandler"},
	{"error", "handle", "errorHandler recoverMiddleware wrapError"},
	{"rate", "limit", "rateLimiter throttle tokenBucket"},
	{"config", "load", "loadConfig parseConfig configFromFile"},
	{"cache", "invalidate", "evictEntry invalidateCache cacheTTL"},
}

// hydePromptFormat asks the collaborator for a plausible answer stub.
const hydePromptFormat = "Write a plausible function signature and a two-line docstring " +
	"for code that would answer the question: %q. Respond with code only, no explanation."

// Expander builds query variants. The generator is optional; without
// one only synonym and compound variants are produced.
type Expander struct {
	gen    Generator
	logger *logging.Logger
}

// NewExpander creates an expander.
func NewExpander(gen Generator, logger *logging.Logger) *Expander {
	return &Expander{gen: gen, logger: logger}
}

// Variants returns up to three alternate formulations of the query plus
// any disclosure strings for failed collaborator calls. The original
// query is not included.
func (e *Expander) Variants(ctx context.Context, query string) ([]string, []string) {
	var variants, disclosures []string

	if v := synonymVariant(query); v != "" && v != query {
		variants = append(variants, v)
	}
	for _, v := range compoundVariants(query) {
		if len(variants) >= maxVariants {
			break
		}
		variants = append(variants, v)
	}

	if e.gen != nil && len(variants) < maxVariants {
		hyde, err := e.hydeVariant(ctx, query)
		switch {
		case err != nil:
			disclosures = append(disclosures, fmt.Sprintf("hyde generation failed: %v", err))
		case hyde != "":
			variants = append(variants, hyde)
		}
	}

	if len(variants) > maxVariants {
		variants = variants[:maxVariants]
	}

	if e.logger != nil && len(variants) > 0 {
		e.logger.Debug("query expanded", map[string]interface{}{
			"variants": len(variants),
		})
	}
	return variants, disclosures
}

// hydeVariant asks the generator for a pseudo-document and cleans it up:
// code fences stripped, whitespace trimmed, length capped.
func (e *Expander) hydeVariant(ctx context.Context, query string) (string, error) {
	raw, err := e.gen.Generate(ctx, fmt.Sprintf(hydePromptFormat, query))
	if err != nil {
		return "", err
	}

	text := stripCodeFences(raw)
	text = strings.TrimSpace(text)
	if len(text) > maxHydeChars {
		text = text[:maxHydeChars]
	}
	return text, nil
}

// synonymVariant substitutes every token found in the synonym table with
// its alternatives, leaving other tokens in place.
func synonymVariant(query string) string {
	fields := strings.Fields(query)
	changed := false
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		key := strings.ToLower(strings.Trim(f, ".,;:?!\"'"))
		if syns, ok := synonymTable[key]; ok {
			out = append(out, strings.Join(syns, " "))
			changed = true
			continue
		}
		out = append(out, f)
	}
	if !changed {
		return ""
	}
	return strings.Join(out, " ")
}

// compoundVariants appends heuristic identifier phrases for co-occurring
// token pairs.
func compoundVariants(query string) []string {
	lower := " " + strings.ToLower(query) + " "
	contains := func(tok string) bool {
		return strings.Contains(lower, tok)
	}

	var out []string
	for _, h := range compoundHeuristics {
		if contains(h.first) && contains(h.second) {
			out = append(out, query+" "+h.phrase)
		}
	}
	return out
}

// stripCodeFences removes markdown fence lines while keeping the fenced
// content.
func stripCodeFences(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
