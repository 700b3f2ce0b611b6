package scoring

import (
	"math"
	"testing"
	"time"

	"ckr/internal/logging"
	"ckr/internal/retrieval"
)

func newTestScorer(w Weights) *Scorer {
	return NewScorer(w, logging.Nop())
}

func TestScoreInUnitRange(t *testing.T) {
	candidates := []retrieval.Candidate{
		{EntityID: "a", Similarity: 0.9, PageRank: 0.4, Centrality: 0.8, Confidence: 0.7, Recency: 0.3, CoChange: 0.1},
		{EntityID: "b", GraphSimilarity: 0.5, PageRank: 0.1, Confidence: 0.2},
		{EntityID: "c"},
	}

	// Weights deliberately not summing to 1
	s := newTestScorer(Weights{Semantic: 2, PageRank: 3, Centrality: 1, Confidence: 1, Recency: 1, CoChange: 1})
	scored := s.Score(candidates)

	for _, c := range scored {
		if c.Score < 0 || c.Score > 1 {
			t.Errorf("Score(%s) = %v, want in [0,1]", c.EntityID, c.Score)
		}
	}
}

func TestScoreDoesNotMutateInput(t *testing.T) {
	candidates := []retrieval.Candidate{{EntityID: "a", Similarity: 0.9}}
	s := newTestScorer(DefaultWeights())
	_ = s.Score(candidates)

	if candidates[0].Score != 0 {
		t.Error("input candidate was mutated")
	}
}

func TestNormalizeDegenerateRanges(t *testing.T) {
	t.Run("all equal positive normalizes to 1", func(t *testing.T) {
		values := []float64{0.4, 0.4, 0.4}
		normalizeSlice(values)
		for i, v := range values {
			if v != 1.0 {
				t.Errorf("values[%d] = %v, want 1.0", i, v)
			}
		}
	})

	t.Run("all equal zero normalizes to 0", func(t *testing.T) {
		values := []float64{0, 0, 0}
		normalizeSlice(values)
		for i, v := range values {
			if v != 0.0 {
				t.Errorf("values[%d] = %v, want 0.0", i, v)
			}
		}
	})

	t.Run("spread normalizes to full range", func(t *testing.T) {
		values := []float64{1, 2, 3}
		normalizeSlice(values)
		if values[0] != 0 || values[2] != 1 {
			t.Errorf("normalized = %v, want endpoints 0 and 1", values)
		}
		if math.Abs(values[1]-0.5) > 1e-9 {
			t.Errorf("values[1] = %v, want 0.5", values[1])
		}
	})
}

func TestSemanticUsesMaxOfSimilarities(t *testing.T) {
	c := retrieval.Candidate{Similarity: 0.3, GraphSimilarity: 0.8}
	if c.Semantic() != 0.8 {
		t.Errorf("Semantic() = %v, want 0.8", c.Semantic())
	}
}

func TestScoreSanitizesMalformedSignals(t *testing.T) {
	candidates := []retrieval.Candidate{
		{EntityID: "nan", Similarity: math.NaN(), PageRank: math.Inf(1), Confidence: -5},
		{EntityID: "ok", Similarity: 0.5, PageRank: 0.5, Confidence: 0.5},
	}

	s := newTestScorer(DefaultWeights())
	scored := s.Score(candidates)

	for _, c := range scored {
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
			t.Errorf("Score(%s) = %v, want finite", c.EntityID, c.Score)
		}
		if c.Score < 0 || c.Score > 1 {
			t.Errorf("Score(%s) = %v, want in [0,1]", c.EntityID, c.Score)
		}
	}
}

func TestScoreOrdering(t *testing.T) {
	candidates := []retrieval.Candidate{
		{EntityID: "weak", Similarity: 0.1, Confidence: 0.1},
		{EntityID: "strong", Similarity: 0.9, Confidence: 0.9},
	}

	s := newTestScorer(DefaultWeights())
	scored := s.Score(candidates)

	var weak, strong float64
	for _, c := range scored {
		switch c.EntityID {
		case "weak":
			weak = c.Score
		case "strong":
			strong = c.Score
		}
	}
	if strong <= weak {
		t.Errorf("strong (%v) should outscore weak (%v)", strong, weak)
	}
}

func TestScoreBreakdownRecorded(t *testing.T) {
	s := newTestScorer(DefaultWeights())
	scored := s.Score([]retrieval.Candidate{{EntityID: "a", Similarity: 0.9}})

	bd := scored[0].ScoreBreakdown
	if bd == nil {
		t.Fatal("ScoreBreakdown missing")
	}
	for _, key := range []string{"semantic", "pagerank", "centrality", "confidence", "recency", "coChange"} {
		if _, ok := bd[key]; !ok {
			t.Errorf("ScoreBreakdown missing %q", key)
		}
	}
}

func TestZeroWeightsYieldZeroScores(t *testing.T) {
	s := newTestScorer(Weights{})
	scored := s.Score([]retrieval.Candidate{{EntityID: "a", Similarity: 0.9}})
	if scored[0].Score != 0 {
		t.Errorf("Score = %v, want 0 with all-zero weights", scored[0].Score)
	}
}

func TestRecency(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fresh file scores near 1", func(t *testing.T) {
		got := Recency(now, now, 30, 0.5)
		if got != 1.0 {
			t.Errorf("Recency(now) = %v, want 1.0", got)
		}
	})

	t.Run("one decay period scores 1/e", func(t *testing.T) {
		got := Recency(now.AddDate(0, 0, -30), now, 30, 0.5)
		if math.Abs(got-math.Exp(-1)) > 1e-9 {
			t.Errorf("Recency = %v, want %v", got, math.Exp(-1))
		}
	})

	t.Run("missing timestamp uses fallback", func(t *testing.T) {
		got := Recency(time.Time{}, now, 30, 0.42)
		if got != 0.42 {
			t.Errorf("Recency = %v, want fallback 0.42", got)
		}
	})

	t.Run("future timestamp clamps to 1", func(t *testing.T) {
		got := Recency(now.AddDate(0, 0, 7), now, 30, 0.5)
		if got != 1.0 {
			t.Errorf("Recency = %v, want 1.0", got)
		}
	})

	t.Run("invalid decay uses default", func(t *testing.T) {
		got := Recency(now.AddDate(0, 0, -30), now, 0, 0.5)
		if math.Abs(got-math.Exp(-1)) > 1e-9 {
			t.Errorf("Recency = %v, want %v", got, math.Exp(-1))
		}
	})
}

func TestCentralityMean(t *testing.T) {
	m := retrieval.CentralityMetrics{Betweenness: 0.3, Closeness: 0.6, Eigenvector: 0.9}
	if math.Abs(m.Mean()-0.6) > 1e-9 {
		t.Errorf("Mean() = %v, want 0.6", m.Mean())
	}
}
