// Package pipeline wires the retrieval stages into one engine: intent
// classification, candidate search with rank fusion, multi-signal
// scoring, optional diversification, budgeted assembly, and the
// escalation control loop.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ckr/internal/assemble"
	"ckr/internal/config"
	"ckr/internal/diversify"
	ckrerrors "ckr/internal/errors"
	"ckr/internal/escalate"
	"ckr/internal/expand"
	"ckr/internal/fusion"
	"ckr/internal/governor"
	"ckr/internal/intent"
	"ckr/internal/ledger"
	"ckr/internal/logging"
	"ckr/internal/retrieval"
	"ckr/internal/scoring"
)

// Options carries the engine's collaborators. Candidates and Packs are
// required; Generator, Governor, and Ledger are optional.
type Options struct {
	Config     *config.Config
	Candidates retrieval.CandidateSupplier
	Packs      retrieval.PackSupplier
	Templates  *assemble.Registry
	Generator  expand.Generator
	Governor   *governor.Governor
	Ledger     *ledger.Sink
	Logger     *logging.Logger
}

// Result is the outcome of one retrieval, after all escalation attempts.
type Result struct {
	Packs       []retrieval.ContextPack      `json:"packs"`
	TokensUsed  int                          `json:"tokensUsed"`
	Budget      int                          `json:"budget"`
	Intent      *intent.Classification       `json:"intent"`
	Decision    retrieval.EscalationDecision `json:"decision"`
	Depth       retrieval.Depth              `json:"depth"`
	Attempts    int                          `json:"attempts"`
	Disclosures []string                     `json:"disclosures,omitempty"`
	FinalQuery  string                       `json:"finalQuery"`
}

// Engine runs the adaptive retrieval loop.
type Engine struct {
	cfg         *config.Config
	classifier  *intent.Classifier
	scorer      *scoring.Scorer
	diversifier *diversify.Diversifier
	assembler   *assemble.Assembler
	expander    *expand.Expander
	controller  *escalate.Controller
	templates   *assemble.Registry
	gov         *governor.Governor
	sink        *ledger.Sink
	candidates  retrieval.CandidateSupplier
	packs       retrieval.PackSupplier
	logger      *logging.Logger
}

// NewEngine builds an engine from its collaborators.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Candidates == nil || opts.Packs == nil {
		return nil, ckrerrors.New(ckrerrors.InternalError, "engine requires candidate and pack suppliers", nil)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	templates := opts.Templates
	if templates == nil {
		templates = assemble.NewRegistry()
	}

	weights := scoring.Weights{
		Semantic:   cfg.Scoring.Semantic,
		PageRank:   cfg.Scoring.PageRank,
		Centrality: cfg.Scoring.Centrality,
		Confidence: cfg.Scoring.Confidence,
		Recency:    cfg.Scoring.Recency,
		CoChange:   cfg.Scoring.CoChange,
	}

	return &Engine{
		cfg:         cfg,
		classifier:  intent.NewClassifier(logger),
		scorer:      scoring.NewScorer(weights, logger),
		diversifier: diversify.NewDiversifier(logger),
		assembler:   assemble.NewAssembler(cfg.Retrieval.MinConfidence, logger),
		expander:    expand.NewExpander(opts.Generator, logger),
		controller:  escalate.NewController(logger),
		templates:   templates,
		gov:         opts.Governor,
		sink:        opts.Ledger,
		candidates:  opts.Candidates,
		packs:       opts.Packs,
		logger:      logger,
	}, nil
}

// Retrieve runs the full pipeline for one query, escalating depth and
// expanding the query until the controller is satisfied or attempts run
// out. Collaborator failures degrade to disclosures; only malformed
// input and missing templates are hard errors.
func (e *Engine) Retrieve(ctx context.Context, query retrieval.Query) (*Result, error) {
	text := strings.TrimSpace(query.Intent)
	if text == "" {
		return nil, ckrerrors.New(ckrerrors.InvalidQuery, "query intent is empty", nil)
	}

	depth := query.Depth
	if depth == "" {
		depth = retrieval.DepthL1
	}
	if !depth.Valid() {
		return nil, ckrerrors.New(ckrerrors.InvalidQuery,
			fmt.Sprintf("unknown retrieval depth %q", depth), nil)
	}

	cls := e.classifier.Classify(text, query.IntentType, query.AffectedFiles)

	tmpl, err := e.templates.Lookup(cls.Label)
	if err != nil {
		return nil, err
	}

	maxTokens := query.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.cfg.Retrieval.DefaultMaxTokens
	}
	lambda := query.Lambda
	if lambda == 0 {
		lambda = e.cfg.Retrieval.DefaultLambda
	}

	maxEscalation := config.ClampEscalationDepth(e.cfg.MaxEscalationDepth)
	candidateLimit := e.cfg.Retrieval.CandidateLimit
	queryHash := ledger.HashQuery(text)

	var disclosures []string
	if e.gov != nil {
		if _, err := e.gov.Sample(); err == nil {
			if level := e.gov.Pressure(); level == governor.PressureCritical || level == governor.PressureOOMImminent {
				candidateLimit /= 2
				if candidateLimit < 1 {
					candidateLimit = 1
				}
				disclosures = append(disclosures, fmt.Sprintf("resource pressure %s: candidate limit reduced", level))
			}
		}
	}

	allowed := templateTypes(tmpl)
	attempts := 0

	for {
		variants, notes := e.expander.Variants(ctx, text)
		disclosures = append(disclosures, notes...)
		queries := append([]string{text}, variants...)

		candidates := e.search(ctx, queries, depth, cls.EntityTypes, candidateLimit, &disclosures)
		scored := e.scorer.Score(candidates)

		pool, err := e.packs.Packs(ctx, scored, allowed)
		if err != nil {
			disclosures = append(disclosures,
				fmt.Sprintf("pack supplier unavailable: %v", err))
			pool = nil
		}

		if query.Diversify && len(pool) > 1 {
			dres := e.diversifier.Rerank(pool, relevanceByPack(pool, scored), lambda)
			pool = dres.Packs
			disclosures = append(disclosures, dres.CoverageGaps...)
		}

		ares := e.assembler.Assemble(tmpl, pool, maxTokens)
		for _, skip := range ares.Skips {
			disclosures = append(disclosures, fmt.Sprintf("%s: %s", skip.Step, skip.Reason))
		}

		confidence := escalate.TotalConfidence(ares.Packs)
		entropy := escalate.Entropy(ares.Packs)

		decision := e.controller.Decide(escalate.Input{
			Depth:              depth,
			TotalConfidence:    confidence,
			RetrievalEntropy:   entropy,
			PackCount:          len(ares.Packs),
			EscalationAttempts: attempts,
			MaxEscalationDepth: maxEscalation,
		})

		e.record(queryHash, cls.Label, depth, decision, attempts, ares)

		if !decision.ShouldEscalate {
			return &Result{
				Packs:       ares.Packs,
				TokensUsed:  ares.TokensUsed,
				Budget:      ares.Budget,
				Intent:      cls,
				Decision:    decision,
				Depth:       depth,
				Attempts:    attempts,
				Disclosures: disclosures,
				FinalQuery:  text,
			}, nil
		}

		attempts++
		if decision.ExpandQuery {
			expanded := escalate.ExpandQuery(text, pool)
			if expanded != text {
				e.logger.Debug("query expanded", map[string]interface{}{
					"attempt": attempts,
					"query":   expanded,
				})
				text = expanded
			}
		}
		depth = decision.NextDepth

		e.logger.Info("escalating retrieval", map[string]interface{}{
			"attempt":    attempts,
			"depth":      string(depth),
			"confidence": confidence,
			"entropy":    entropy,
			"reasons":    decision.Reasons,
		})
	}
}

// search fans the query variants out across the routed entity types,
// one ranked list per (variant, type) pair, and rank-fuses the lists.
// Worker count follows the governor's recommendation when one is
// attached. Search failures degrade to disclosures.
func (e *Engine) search(ctx context.Context, queries []string, depth retrieval.Depth, entityTypes []string, limit int, disclosures *[]string) []retrieval.Candidate {
	if len(entityTypes) == 0 {
		entityTypes = []string{intent.EntityFunction}
	}

	type call struct {
		query      string
		entityType string
	}
	var calls []call
	for _, q := range queries {
		for _, et := range entityTypes {
			calls = append(calls, call{query: q, entityType: et})
		}
	}

	workers := len(calls)
	if e.gov != nil {
		if r := e.gov.RecommendedWorkers(); r < workers {
			workers = r
		}
	}

	pool, err := governor.NewPool(workers)
	if err != nil {
		// Unreachable with a non-empty call list; degrade anyway.
		*disclosures = append(*disclosures, fmt.Sprintf("search pool unavailable: %v", err))
		return nil
	}

	lists := make([][]retrieval.Candidate, len(calls))
	var mu sync.Mutex

	for i, c := range calls {
		i, c := i, c
		_ = pool.Submit(func(ctx context.Context) error {
			hits, err := e.candidates.Search(ctx, c.query, depth, c.entityType, limit)
			if err != nil {
				return ckrerrors.New(ckrerrors.SupplierUnavailable,
					fmt.Sprintf("candidate search failed for %s", c.entityType), err)
			}
			mu.Lock()
			lists[i] = hits
			mu.Unlock()
			return nil
		})
	}

	if err := pool.Run(ctx); err != nil {
		*disclosures = append(*disclosures, fmt.Sprintf("candidate search aborted: %v", err))
	}
	for _, err := range pool.Errors() {
		*disclosures = append(*disclosures, err.Error())
	}

	return fusion.Fuse(lists, limit)
}

// record writes one ledger observation. Nil sinks no-op.
func (e *Engine) record(queryHash, label string, depth retrieval.Depth, dec retrieval.EscalationDecision, attempt int, ares assemble.Result) {
	packIDs := make([]string, 0, len(ares.Packs))
	for _, p := range ares.Packs {
		packIDs = append(packIDs, p.PackID)
	}
	e.sink.Record(ledger.Record{
		QueryHash:  queryHash,
		Intent:     label,
		FromDepth:  depth.Level(),
		ToDepth:    dec.NextDepth.Level(),
		Reason:     strings.Join(dec.Reasons, ","),
		Attempt:    attempt,
		Strategy:   strategyFor(depth, dec),
		Confidence: dec.Confidence,
		Entropy:    dec.Entropy,
		PackCount:  len(ares.Packs),
		PackIDs:    packIDs,
		TokensUsed: ares.TokensUsed,
	})
}

func strategyFor(depth retrieval.Depth, dec retrieval.EscalationDecision) string {
	deepen := dec.NextDepth != depth
	switch {
	case deepen && dec.ExpandQuery:
		return "deepen+expand"
	case deepen:
		return "deepen"
	case dec.ExpandQuery:
		return "expand"
	default:
		return "stop"
	}
}

// templateTypes collects the union of pack types the template's steps
// can select, preserving first-seen order.
func templateTypes(tmpl *assemble.ContextTemplate) []retrieval.PackType {
	seen := make(map[retrieval.PackType]bool)
	var out []retrieval.PackType
	for _, step := range tmpl.Steps {
		for _, t := range step.AllowedTypes {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// relevanceByPack maps pack ids to the blended score of the candidate
// the pack was built from, keyed through the pack's target entity.
func relevanceByPack(pool []retrieval.ContextPack, scored []retrieval.Candidate) map[string]float64 {
	byEntity := make(map[string]float64, len(scored))
	for _, c := range scored {
		byEntity[c.EntityID] = c.Score
	}
	out := make(map[string]float64, len(pool))
	for _, p := range pool {
		if s, ok := byEntity[p.TargetID]; ok {
			out[p.PackID] = s
		}
	}
	return out
}
