// Package config loads the CKR workspace configuration from .ckr/ in the
// repository root. Missing files fall back to defaults; malformed numeric
// settings are clamped rather than rejected.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete CKR configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repo_root"`

	// MaxEscalationDepth caps escalation attempts per query. It may also
	// be set under retrieval.max_escalation_depth; the nested key wins.
	MaxEscalationDepth int `json:"maxEscalationDepth" mapstructure:"max_escalation_depth"`

	Retrieval RetrievalConfig `json:"retrieval" mapstructure:"retrieval"`
	Scoring   ScoringConfig   `json:"scoring" mapstructure:"scoring"`
	Governor  GovernorConfig  `json:"governor" mapstructure:"governor"`
	Ledger    LedgerConfig    `json:"ledger" mapstructure:"ledger"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// RetrievalConfig contains pipeline-level retrieval settings
type RetrievalConfig struct {
	MaxEscalationDepth *int    `json:"maxEscalationDepth,omitempty" mapstructure:"max_escalation_depth"`
	DefaultMaxTokens   int     `json:"defaultMaxTokens" mapstructure:"default_max_tokens"`
	DefaultLambda      float64 `json:"defaultLambda" mapstructure:"default_lambda"`
	MinConfidence      float64 `json:"minConfidence" mapstructure:"min_confidence"`
	CandidateLimit     int     `json:"candidateLimit" mapstructure:"candidate_limit"`
	RecencyDecayDays   float64 `json:"recencyDecayDays" mapstructure:"recency_decay_days"`
}

// ScoringConfig contains the blend weights for candidate scoring
type ScoringConfig struct {
	Semantic   float64 `json:"semantic" mapstructure:"semantic"`
	PageRank   float64 `json:"pagerank" mapstructure:"pagerank"`
	Centrality float64 `json:"centrality" mapstructure:"centrality"`
	Confidence float64 `json:"confidence" mapstructure:"confidence"`
	Recency    float64 `json:"recency" mapstructure:"recency"`
	CoChange   float64 `json:"coChange" mapstructure:"co_change"`
}

// GovernorConfig contains resource governor settings
type GovernorConfig struct {
	Profile           string  `json:"profile" mapstructure:"profile"`
	TargetUtilization float64 `json:"targetUtilization" mapstructure:"target_utilization"`
	AbsoluteMin       int     `json:"absoluteMin" mapstructure:"absolute_min"`
	AbsoluteMax       int     `json:"absoluteMax" mapstructure:"absolute_max"`
	HistorySize       int     `json:"historySize" mapstructure:"history_size"`
	SampleIntervalMs  int     `json:"sampleIntervalMs" mapstructure:"sample_interval_ms"`
}

// LedgerConfig contains observation ledger settings
type LedgerConfig struct {
	Enabled        bool  `json:"enabled" mapstructure:"enabled"`
	Compress       bool  `json:"compress" mapstructure:"compress"`
	RotateMaxBytes int64 `json:"rotateMaxBytes" mapstructure:"rotate_max_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

const (
	// DefaultMaxEscalationDepth applies when the config omits or
	// malforms the setting.
	DefaultMaxEscalationDepth = 2

	// MaxEscalationDepthCeiling is the hard upper clamp.
	MaxEscalationDepthCeiling = 8
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:            1,
		RepoRoot:           ".",
		MaxEscalationDepth: DefaultMaxEscalationDepth,
		Retrieval: RetrievalConfig{
			DefaultMaxTokens: 4000,
			DefaultLambda:    0.5,
			MinConfidence:    0.3,
			CandidateLimit:   50,
			RecencyDecayDays: 30,
		},
		Scoring: ScoringConfig{
			Semantic:   0.40,
			PageRank:   0.15,
			Centrality: 0.10,
			Confidence: 0.15,
			Recency:    0.10,
			CoChange:   0.10,
		},
		Governor: GovernorConfig{
			Profile:           "moderate",
			TargetUtilization: 0.8,
			AbsoluteMin:       1,
			AbsoluteMax:       32,
			HistorySize:       60,
			SampleIntervalMs:  1000,
		},
		Ledger: LedgerConfig{
			Enabled:        true,
			Compress:       true,
			RotateMaxBytes: 8 << 20,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .ckr/config.{json,yaml}
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("repo_root", ".")

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(repoRoot, ".ckr"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.MaxEscalationDepth = resolveEscalationDepth(cfg)
	return cfg, nil
}

// resolveEscalationDepth picks the effective escalation cap from the two
// accepted key locations and clamps it to [0, 8]. Invalid values fall
// back to the default rather than erroring.
func resolveEscalationDepth(cfg *Config) int {
	depth := cfg.MaxEscalationDepth
	if cfg.Retrieval.MaxEscalationDepth != nil {
		depth = *cfg.Retrieval.MaxEscalationDepth
	}
	return ClampEscalationDepth(depth)
}

// ClampEscalationDepth clamps a configured escalation depth to [0, 8].
// Negative values read as misconfiguration and revert to the default.
func ClampEscalationDepth(depth int) int {
	if depth < 0 {
		return DefaultMaxEscalationDepth
	}
	if depth > MaxEscalationDepthCeiling {
		return MaxEscalationDepthCeiling
	}
	return depth
}

// Save writes the configuration to .ckr/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".ckr")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Governor.AbsoluteMin < 1 {
		return &ConfigError{Field: "governor.absolute_min", Message: "must be at least 1"}
	}
	if c.Governor.AbsoluteMax < c.Governor.AbsoluteMin {
		return &ConfigError{Field: "governor.absolute_max", Message: "must be >= absolute_min"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
