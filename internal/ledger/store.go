package ledger

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	ckrerrors "ckr/internal/errors"
	"ckr/internal/logging"
)

// Store mirrors ledger records into sqlite so they can be queried
// without scanning JSONL files.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
}

const observationsSchema = `
CREATE TABLE IF NOT EXISTS observations (
    id          TEXT PRIMARY KEY,
    ts          TEXT NOT NULL,
    query_hash  TEXT NOT NULL,
    intent      TEXT,
    from_depth  INTEGER NOT NULL,
    to_depth    INTEGER NOT NULL,
    reason      TEXT,
    attempt     INTEGER NOT NULL,
    strategy    TEXT,
    confidence  REAL NOT NULL,
    entropy     REAL NOT NULL,
    pack_count  INTEGER NOT NULL,
    pack_ids    TEXT,
    tokens_used INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_query_hash ON observations(query_hash);
CREATE INDEX IF NOT EXISTS idx_observations_ts ON observations(ts);
`

// OpenStore opens or creates the observation database under workDir.
func OpenStore(workDir string, logger *logging.Logger) (*Store, error) {
	dbPath := filepath.Join(workDir, "ckr.db")

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ckrerrors.New(ckrerrors.LedgerUnavailable, "failed to open observation database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, ckrerrors.New(ckrerrors.LedgerUnavailable, fmt.Sprintf("failed to set pragma %q", pragma), err)
		}
	}

	if _, err := conn.Exec(observationsSchema); err != nil {
		conn.Close()
		return nil, ckrerrors.New(ckrerrors.LedgerUnavailable, "failed to initialize observation schema", err)
	}

	return &Store{conn: conn, logger: logger}, nil
}

// Insert writes one observation row.
func (s *Store) Insert(rec Record) error {
	_, err := s.conn.Exec(`
		INSERT INTO observations
			(id, ts, query_hash, intent, from_depth, to_depth, reason,
			 attempt, strategy, confidence, entropy, pack_count, pack_ids, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.Format(timestampLayout),
		rec.QueryHash,
		rec.Intent,
		rec.FromDepth,
		rec.ToDepth,
		rec.Reason,
		rec.Attempt,
		rec.Strategy,
		rec.Confidence,
		rec.Entropy,
		rec.PackCount,
		strings.Join(rec.PackIDs, ","),
		rec.TokensUsed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

// RecentByQuery returns up to limit observations for a query hash,
// newest first.
func (s *Store) RecentByQuery(queryHash string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.Query(`
		SELECT id, ts, query_hash, intent, from_depth, to_depth, reason,
		       attempt, strategy, confidence, entropy, pack_count, pack_ids, tokens_used
		FROM observations
		WHERE query_hash = ?
		ORDER BY ts DESC
		LIMIT ?`, queryHash, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ts, packIDs string
		if err := rows.Scan(
			&rec.ID, &ts, &rec.QueryHash, &rec.Intent,
			&rec.FromDepth, &rec.ToDepth, &rec.Reason,
			&rec.Attempt, &rec.Strategy, &rec.Confidence,
			&rec.Entropy, &rec.PackCount, &packIDs, &rec.TokensUsed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		rec.Timestamp, _ = parseTimestamp(ts)
		if packIDs != "" {
			rec.PackIDs = strings.Split(packIDs, ",")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of stored observations.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}
