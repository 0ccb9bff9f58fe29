package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"M365Monitor/internal/ports"
)

// cursorDocument is the persisted shape of one feed's poll cursor.
type cursorDocument struct {
	LastCheckTime string `json:"last_check_time"`
}

// CursorFile persists the last confirmed fetch timestamp of one feed so that
// a restarted process resumes polling from where it left off instead of
// re-scanning history. Distinct from the dedup set: the cursor bounds what is
// fetched, the dedup set bounds what is delivered.
type CursorFile struct {
	path   string
	logger *slog.Logger
}

var _ ports.CursorStore = (*CursorFile)(nil)

// NewCursorFile wires a cursor backed by the given file path.
func NewCursorFile(path string, logger *slog.Logger) *CursorFile {
	return &CursorFile{path: path, logger: logger}
}

// Load reads the persisted cursor. Missing or corrupt files report no cursor.
func (c *CursorFile) Load() (time.Time, bool) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.warn("cannot read cursor, starting without one", "path", c.path, "error", err)
		}
		return time.Time{}, false
	}

	var doc cursorDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.warn("corrupt cursor, starting without one", "path", c.path, "error", err)
		return time.Time{}, false
	}

	ts, err := time.Parse(time.RFC3339, doc.LastCheckTime)
	if err != nil {
		c.warn("unparsable cursor timestamp, starting without one", "path", c.path, "error", err)
		return time.Time{}, false
	}
	return ts, true
}

// Store writes the cursor atomically.
func (c *CursorFile) Store(ts time.Time) error {
	doc := cursorDocument{LastCheckTime: ts.UTC().Format(time.RFC3339)}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}
	if err := writeAtomic(c.path, raw); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

func (c *CursorFile) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

// writeAtomic writes data to path via a temp file and rename so a crash cannot
// leave a truncated state document behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
