package retrieval

import "context"

// CandidateSupplier is the collaborator search backend. One Search call
// returns a ranked list for a single entity type; the pipeline issues
// one call per routed entity type and rank-fuses the lists.
// Implementations return candidates carrying the raw scoring signals;
// absent signals default to zero except recency, which callers default
// explicitly.
type CandidateSupplier interface {
	Search(ctx context.Context, query string, depth Depth, entityType string, limit int) ([]Candidate, error)
}

// PackSupplier is the collaborator that materializes context packs for a
// set of candidate entities. Returned packs must carry one of the fixed
// pack types; unknown types are never selected downstream.
type PackSupplier interface {
	Packs(ctx context.Context, candidates []Candidate, allowed []PackType) ([]ContextPack, error)
}
