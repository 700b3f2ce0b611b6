package escalate

import (
	"strings"
	"unicode"

	"ckr/internal/retrieval"
)

const (
	maxExpansionTerms = 4
	minTokenLength    = 3
	maxTokenLength    = 40
	topPacksForMining = 5
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "what": true, "when": true, "where": true, "which": true,
	"does": true, "how": true, "why": true, "into": true, "also": true,
	"been": true, "were": true, "there": true, "their": true, "would": true,
	"should": true, "could": true, "about": true, "after": true, "before": true,
	"func": true, "type": true, "struct": true, "interface": true,
	"return": true, "package": true, "import": true, "const": true,
}

var fileExtensions = []string{
	".go", ".ts", ".tsx", ".js", ".jsx", ".py", ".rb", ".rs", ".java",
	".kt", ".c", ".h", ".cpp", ".hpp", ".cs", ".sql", ".md", ".yaml",
	".yml", ".json", ".toml", ".proto",
}

// ExpandQuery mines up to four novel identifier terms from the top
// packs' target ids, related files, and summaries, and appends them to
// the original intent. Identifier-shaped tokens (camelCase, snake_case,
// path segments) are preferred over plain words; tokens already present
// in the intent are skipped.
func ExpandQuery(original string, packs []retrieval.ContextPack) string {
	known := make(map[string]bool)
	for _, tok := range splitTokens(original) {
		known[strings.ToLower(tok)] = true
	}

	limit := len(packs)
	if limit > topPacksForMining {
		limit = topPacksForMining
	}

	var identifiers, words []string
	seen := make(map[string]bool)

	collect := func(text string, identifierSource bool) {
		for _, raw := range splitTokens(text) {
			for _, tok := range splitIdentifier(raw) {
				lower := strings.ToLower(tok)
				if len(lower) < minTokenLength || len(lower) > maxTokenLength {
					continue
				}
				if stopWords[lower] || known[lower] || seen[lower] {
					continue
				}
				seen[lower] = true
				if identifierSource || looksLikeIdentifier(raw) {
					identifiers = append(identifiers, tok)
				} else {
					words = append(words, tok)
				}
			}
		}
	}

	for i := 0; i < limit; i++ {
		p := packs[i]
		collect(p.TargetID, true)
		for _, f := range p.RelatedFiles {
			collect(stripExtension(f), true)
		}
		collect(p.Summary, false)
	}

	terms := identifiers
	if len(terms) < maxExpansionTerms {
		terms = append(terms, words...)
	}
	if len(terms) > maxExpansionTerms {
		terms = terms[:maxExpansionTerms]
	}

	if len(terms) == 0 {
		return original
	}
	return strings.TrimSpace(original) + " " + strings.Join(terms, " ")
}

// splitTokens splits free text on non-alphanumeric boundaries, keeping
// underscores and letters together so identifiers survive intact.
func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// splitIdentifier breaks camelCase/PascalCase and snake_case identifiers
// into their constituent words, keeping the original token too when it
// was compound.
func splitIdentifier(tok string) []string {
	parts := splitCamel(tok)
	var flat []string
	for _, p := range parts {
		for _, sub := range strings.Split(p, "_") {
			if sub != "" {
				flat = append(flat, sub)
			}
		}
	}
	if len(flat) > 1 {
		return append([]string{tok}, flat...)
	}
	return []string{tok}
}

func splitCamel(tok string) []string {
	var parts []string
	start := 0
	runes := []rune(tok)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && !unicode.IsUpper(runes[i-1]) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

// looksLikeIdentifier reports whether a raw token is identifier-shaped:
// mixed case, underscores, or digits mixed with letters.
func looksLikeIdentifier(tok string) bool {
	if strings.ContainsRune(tok, '_') {
		return true
	}
	hasUpper, hasLower := false, false
	for _, r := range tok {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsLower(r) {
			hasLower = true
		}
	}
	return hasUpper && hasLower
}

func stripExtension(path string) string {
	lower := strings.ToLower(path)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lower, ext) {
			return path[:len(path)-len(ext)]
		}
	}
	return path
}

// ClarifyingQuestions returns the fixed fallback questions for queries
// where automatic widening was not enough.
func ClarifyingQuestions(original string) []string {
	intent := strings.TrimSpace(original)
	return []string{
		"Which file, package, or subsystem should \"" + intent + "\" focus on?",
		"Is \"" + intent + "\" about current behavior, or about a planned change?",
		"Can you name one function, type, or error message related to \"" + intent + "\"?",
	}
}
