// Package retrieval defines the shared data model for the CKR pipeline:
// queries, search candidates, context packs, and escalation decisions.
package retrieval

import (
	"math"
	"time"
)

// Depth represents retrieval thoroughness, L0 shallowest.
type Depth string

const (
	// DepthL0 is the shallowest retrieval level; never escalated from.
	DepthL0 Depth = "L0"
	// DepthL1 is the default retrieval level.
	DepthL1 Depth = "L1"
	// DepthL2 adds graph-neighborhood expansion.
	DepthL2 Depth = "L2"
	// DepthL3 is the deepest retrieval level.
	DepthL3 Depth = "L3"
)

var depthOrder = map[Depth]int{
	DepthL0: 0,
	DepthL1: 1,
	DepthL2: 2,
	DepthL3: 3,
}

// Level returns the numeric order of a depth (0-3). Unknown depths map to 1.
func (d Depth) Level() int {
	if lvl, ok := depthOrder[d]; ok {
		return lvl
	}
	return 1
}

// Bump returns the next deeper level, capped at L3.
func (d Depth) Bump() Depth {
	switch d {
	case DepthL0:
		return DepthL1
	case DepthL1:
		return DepthL2
	default:
		return DepthL3
	}
}

// Valid reports whether d is a recognized depth value.
func (d Depth) Valid() bool {
	_, ok := depthOrder[d]
	return ok
}

// Query is one retrieval request. A query is immutable per attempt; the
// escalation loop derives a new copy for each attempt.
type Query struct {
	Intent        string            `json:"intent"`
	Depth         Depth             `json:"depth"`
	Filters       map[string]string `json:"filters,omitempty"`
	AffectedFiles []string          `json:"affectedFiles,omitempty"`
	Diversify     bool              `json:"diversify,omitempty"`
	Lambda        float64           `json:"lambda,omitempty"`
	MaxTokens     int               `json:"maxTokens,omitempty"`
	IntentType    string            `json:"intentType,omitempty"`
}

// CentralityMetrics holds the raw graph-centrality signals for an entity.
type CentralityMetrics struct {
	Betweenness float64 `json:"betweenness"`
	Closeness   float64 `json:"closeness"`
	Eigenvector float64 `json:"eigenvector"`
}

// Mean returns the average of the three centrality metrics.
func (c CentralityMetrics) Mean() float64 {
	return (c.Betweenness + c.Closeness + c.Eigenvector) / 3.0
}

// Candidate is one scored search hit from the candidate supplier.
// Scoring never mutates a candidate in place; it returns updated copies.
type Candidate struct {
	EntityID        string  `json:"entityId"`
	EntityType      string  `json:"entityType"`
	Similarity      float64 `json:"similarity"`
	GraphSimilarity float64 `json:"graphSimilarity"`
	PageRank        float64 `json:"pagerank"`
	Centrality      float64 `json:"centrality"`
	Confidence      float64 `json:"confidence"`
	Recency         float64 `json:"recency"`
	CoChange        float64 `json:"coChange"`

	// Score is the blended relevance score assigned by the scorer.
	Score float64 `json:"score"`

	// ScoreBreakdown records the normalized per-signal contributions.
	ScoreBreakdown map[string]float64 `json:"scoreBreakdown,omitempty"`
}

// Semantic returns the semantic signal used for scoring: the stronger of
// vector similarity and graph similarity.
func (c Candidate) Semantic() float64 {
	return math.Max(c.Similarity, c.GraphSimilarity)
}

// PackType classifies a context pack by the kind of knowledge it carries.
type PackType string

const (
	PackFunctionContext      PackType = "function_context"
	PackModuleContext        PackType = "module_context"
	PackChangeImpact         PackType = "change_impact"
	PackPatternContext       PackType = "pattern_context"
	PackDecisionContext      PackType = "decision_context"
	PackDocContext           PackType = "doc_context"
	PackSymbolDefinition     PackType = "symbol_definition"
	PackCallFlow             PackType = "call_flow"
	PackSimilarTasks         PackType = "similar_tasks"
	PackProjectUnderstanding PackType = "project_understanding"
	PackGitHistory           PackType = "git_history"
)

var knownPackTypes = map[PackType]bool{
	PackFunctionContext:      true,
	PackModuleContext:        true,
	PackChangeImpact:         true,
	PackPatternContext:       true,
	PackDecisionContext:      true,
	PackDocContext:           true,
	PackSymbolDefinition:     true,
	PackCallFlow:             true,
	PackSimilarTasks:         true,
	PackProjectUnderstanding: true,
	PackGitHistory:           true,
}

// Known reports whether t is one of the fixed pack types. Unknown types
// are unroutable and never selected by the assembler.
func (t PackType) Known() bool {
	return knownPackTypes[t]
}

// ContextPack is a pre-computed knowledge fragment about the codebase.
// Packs are created by collaborators and read-only to the pipeline except
// for reordering and filtering.
type ContextPack struct {
	PackID       string    `json:"packId"`
	PackType     PackType  `json:"packType"`
	TargetID     string    `json:"targetId,omitempty"`
	Summary      string    `json:"summary"`
	KeyFacts     []string  `json:"keyFacts,omitempty"`
	CodeSnippets []string  `json:"codeSnippets,omitempty"`
	RelatedFiles []string  `json:"relatedFiles,omitempty"`
	Confidence   float64   `json:"confidence"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TokenCost estimates the serialized size of the pack in tokens using the
// chars/4 approximation.
func (p *ContextPack) TokenCost() int {
	chars := len(p.PackID) + len(p.Summary)
	for _, f := range p.KeyFacts {
		chars += len(f)
	}
	for _, s := range p.CodeSnippets {
		chars += len(s)
	}
	for _, f := range p.RelatedFiles {
		chars += len(f)
	}
	return (chars + 3) / 4
}

// RetrievalStatus grades how well an assembled result covers the query.
type RetrievalStatus string

const (
	StatusSufficient   RetrievalStatus = "sufficient"
	StatusPartial      RetrievalStatus = "partial"
	StatusInsufficient RetrievalStatus = "insufficient"
)

// EscalationDecision is the controller's verdict on one attempt.
type EscalationDecision struct {
	ShouldEscalate bool            `json:"shouldEscalate"`
	NextDepth      Depth           `json:"nextDepth"`
	ExpandQuery    bool            `json:"expandQuery"`
	Reasons        []string        `json:"reasons,omitempty"`
	Status         RetrievalStatus `json:"retrievalStatus"`
	Confidence     float64         `json:"confidence"`
	Entropy        float64         `json:"entropy"`
}

// SanitizeUnit clamps v to [0,1] and maps NaN/Inf to 0. Malformed numeric
// input from collaborators never propagates past this point.
func SanitizeUnit(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SanitizeNonNegative maps NaN/Inf/negative values to 0.
func SanitizeNonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
