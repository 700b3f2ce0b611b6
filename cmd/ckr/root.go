package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ckr/internal/config"
	"ckr/internal/logging"
	"ckr/internal/version"
)

var (
	repoRootFlag string
	logLevelFlag string
	formatFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "ckr",
	Short: "CKR - Code Knowledge Retrieval",
	Long: `CKR (Code Knowledge Retrieval) answers natural-language questions about
a codebase with a bounded, graded context: it classifies the question's
intent, retrieves and rank-fuses candidates, scores them across several
signals, assembles packs under a token budget, and escalates retrieval
depth when confidence is low.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("CKR version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoRootFlag, "repo-root", ".",
		"Workspace root containing the .ckr directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "json",
		"Output format (json, human)")
}

// newLogger builds the command logger from the persistent flags. Logs
// go to stderr in human format so stdout stays parseable.
func newLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.LogLevel(logLevelFlag),
	})
}

// loadConfig reads the workspace config, falling back to defaults when
// no config file exists.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(repoRootFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: using default config: %v\n", err)
		return config.DefaultConfig()
	}
	return cfg
}
