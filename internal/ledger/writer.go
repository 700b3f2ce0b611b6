package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"ckr/internal/logging"
)

const ledgerFileName = "ledger.jsonl"

// rotatingWriter appends JSONL records and rotates the file once it
// passes maxBytes. Rotated files are optionally zstd-compressed.
type rotatingWriter struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	compress bool
	logger   *logging.Logger

	file *os.File
	size int64
}

func newRotatingWriter(dir string, maxBytes int64, compress bool, logger *logging.Logger) (*rotatingWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}

	w := &rotatingWriter{
		dir:      dir,
		maxBytes: maxBytes,
		compress: compress,
		logger:   logger,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) open() error {
	path := filepath.Join(w.dir, ledgerFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat ledger file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Append writes one record as a JSON line, rotating first if the file
// is already over budget.
func (w *rotatingWriter) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(data)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			// Rotation failure keeps appending to the oversized file
			// rather than dropping the record.
			if w.logger != nil {
				w.logger.Warn("ledger rotation failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}

	n, err := w.file.Write(data)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to append ledger record: %w", err)
	}
	return nil
}

// rotate renames the active file to a timestamped name and compresses
// it. Called with the mutex held.
func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	active := filepath.Join(w.dir, ledgerFileName)
	stamp := time.Now().UTC().Format("20060102T150405")
	rotated := filepath.Join(w.dir, fmt.Sprintf("ledger-%s.jsonl", stamp))

	if err := os.Rename(active, rotated); err != nil {
		// Reopen the active file so appends keep working.
		if openErr := w.open(); openErr != nil {
			return openErr
		}
		return err
	}

	if w.compress {
		if err := compressFile(rotated); err != nil && w.logger != nil {
			w.logger.Warn("ledger compression failed", map[string]interface{}{
				"file":  rotated,
				"error": err.Error(),
			})
		}
	}

	return w.open()
}

// compressFile writes <path>.zst and removes the original on success.
func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}

	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
