// Package ledger records retrieval observations for offline analysis:
// confidence and entropy per attempt, escalation transitions, and the
// packs that made it into the final context. Recording is fire and
// forget; a broken ledger never fails a retrieval.
package ledger

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"ckr/internal/config"
	"ckr/internal/logging"
)

// Record is one retrieval observation.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	QueryHash  string    `json:"queryHash"`
	Intent     string    `json:"intent,omitempty"`
	FromDepth  int       `json:"fromDepth"`
	ToDepth    int       `json:"toDepth"`
	Reason     string    `json:"reason,omitempty"`
	Attempt    int       `json:"attempt"`
	Strategy   string    `json:"strategy,omitempty"`
	Confidence float64   `json:"confidence"`
	Entropy    float64   `json:"entropy"`
	PackCount  int       `json:"packCount"`
	PackIDs    []string  `json:"packIds,omitempty"`
	TokensUsed int       `json:"tokensUsed"`
}

// HashQuery returns a stable hex digest of the query text. Raw query
// text never enters the ledger.
func HashQuery(query string) string {
	sum := blake2b.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Sink fans records out to the JSONL log and the sqlite mirror. All
// write failures are logged and swallowed.
type Sink struct {
	writer *rotatingWriter
	store  *Store
	logger *logging.Logger
}

// NewSink opens the ledger under workDir (the .ckr directory). A nil
// sink is returned when the ledger is disabled; Record on a nil sink is
// a no-op.
func NewSink(workDir string, cfg config.LedgerConfig, logger *logging.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	writer, err := newRotatingWriter(workDir, cfg.RotateMaxBytes, cfg.Compress, logger)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(workDir, logger)
	if err != nil {
		writer.Close()
		return nil, err
	}

	return &Sink{writer: writer, store: store, logger: logger}, nil
}

// Record persists one observation. Safe on a nil sink.
func (s *Sink) Record(rec Record) {
	if s == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if err := s.writer.Append(rec); err != nil && s.logger != nil {
		s.logger.Warn("ledger append failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err := s.store.Insert(rec); err != nil && s.logger != nil {
		s.logger.Warn("ledger insert failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Close flushes and closes both backends. Safe on a nil sink.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	werr := s.writer.Close()
	serr := s.store.Close()
	if werr != nil {
		return werr
	}
	return serr
}
