package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"ckr/internal/assemble"
	"ckr/internal/backends"
	"ckr/internal/governor"
	"ckr/internal/ledger"
	"ckr/internal/pipeline"
	"ckr/internal/retrieval"
)

var (
	retrieveDepth     string
	retrieveMaxTokens int
	retrieveDiversify bool
	retrieveLambda    float64
	retrieveIntent    string
	retrieveFixture   string
	retrieveFiles     []string
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <question>",
	Short: "Retrieve a graded context for a question about the codebase",
	Long: `Retrieve runs the full pipeline for one question: intent
classification, candidate search with rank fusion, multi-signal scoring,
optional MMR diversification, budgeted assembly, and depth escalation
when confidence is low.

Candidates and packs come from a JSON fixture snapshot (--fixture),
which defaults to .ckr/fixture.json under the repo root.

Examples:
  ckr retrieve "why does the login handler crash on empty passwords"
  ckr retrieve --depth L2 --max-tokens 2000 "where is rate limiting applied"
  ckr retrieve --diversify --lambda 0.7 "how do modules depend on each other"`,
	Args: cobra.ExactArgs(1),
	Run:  runRetrieve,
}

func init() {
	retrieveCmd.Flags().StringVar(&retrieveDepth, "depth", "L1", "Retrieval depth: L0, L1, L2, L3")
	retrieveCmd.Flags().IntVar(&retrieveMaxTokens, "max-tokens", 0, "Token budget (0 = config default)")
	retrieveCmd.Flags().BoolVar(&retrieveDiversify, "diversify", false, "Apply MMR diversification to the pack pool")
	retrieveCmd.Flags().Float64Var(&retrieveLambda, "lambda", 0, "MMR relevance/diversity trade-off (0 = config default)")
	retrieveCmd.Flags().StringVar(&retrieveIntent, "intent", "", "Explicit intent override (bug_fix, architecture, feature_addition, security_audit, refactoring)")
	retrieveCmd.Flags().StringVar(&retrieveFixture, "fixture", "", "Path to the candidate/pack fixture (default .ckr/fixture.json)")
	retrieveCmd.Flags().StringSliceVar(&retrieveFiles, "affected-files", nil, "Files the question concerns, as classification hints")
	rootCmd.AddCommand(retrieveCmd)
}

func runRetrieve(cmd *cobra.Command, args []string) {
	start := time.Now()
	logger := newLogger()
	cfg := loadConfig()

	fixturePath := retrieveFixture
	if fixturePath == "" {
		fixturePath = filepath.Join(repoRootFlag, ".ckr", "fixture.json")
	}
	supplier, err := backends.LoadFixture(fixturePath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading fixture: %v\n", err)
		os.Exit(1)
	}

	gov := governor.New(governor.Options{
		Profile:           governor.Profile(cfg.Governor.Profile),
		TargetUtilization: cfg.Governor.TargetUtilization,
		AbsoluteMin:       cfg.Governor.AbsoluteMin,
		AbsoluteMax:       cfg.Governor.AbsoluteMax,
		HistorySize:       cfg.Governor.HistorySize,
	}, governor.NewProcSampler(), logger)

	sink, err := ledger.NewSink(filepath.Join(repoRootFlag, ".ckr"), cfg.Ledger, logger)
	if err != nil {
		logger.Warn("Observation ledger unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer sink.Close()

	templates := assemble.NewRegistry()
	if path := filepath.Join(repoRootFlag, ".ckr", "templates.yaml"); fileExists(path) {
		if err := templates.LoadTemplateFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading templates: %v\n", err)
			os.Exit(1)
		}
	}

	engine, err := pipeline.NewEngine(pipeline.Options{
		Config:     cfg,
		Candidates: supplier,
		Packs:      supplier,
		Templates:  templates,
		Governor:   gov,
		Ledger:     sink,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building engine: %v\n", err)
		os.Exit(1)
	}

	result, err := engine.Retrieve(context.Background(), retrieval.Query{
		Intent:        args[0],
		Depth:         retrieval.Depth(retrieveDepth),
		Diversify:     retrieveDiversify,
		Lambda:        retrieveLambda,
		MaxTokens:     retrieveMaxTokens,
		IntentType:    retrieveIntent,
		AffectedFiles: retrieveFiles,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving context: %v\n", err)
		os.Exit(1)
	}

	printResult(result)

	logger.Debug("Retrieve completed", map[string]interface{}{
		"attempts": result.Attempts,
		"packs":    len(result.Packs),
		"duration": time.Since(start).Milliseconds(),
	})
}

func printResult(result *pipeline.Result) {
	if formatFlag == "human" {
		fmt.Printf("intent: %s  depth: %s  attempts: %d  status: %s\n",
			result.Intent.Label, result.Depth, result.Attempts, result.Decision.Status)
		fmt.Printf("confidence: %.2f  entropy: %.2f  tokens: %d/%d\n",
			result.Decision.Confidence, result.Decision.Entropy, result.TokensUsed, result.Budget)
		for _, p := range result.Packs {
			fmt.Printf("  [%s] %s  conf=%.2f\n", p.PackType, p.PackID, p.Confidence)
			fmt.Printf("      %s\n", p.Summary)
		}
		for _, d := range result.Disclosures {
			fmt.Printf("  note: %s\n", d)
		}
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
