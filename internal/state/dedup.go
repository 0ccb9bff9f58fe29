package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"M365Monitor/internal/ports"
)

// SessionStore is the in-memory dedup set used by the live monitor. It lives
// for the lifetime of the process; a restart starts empty, which is acceptable
// because the poll cursor bounds what gets re-fetched.
type SessionStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

var _ ports.DedupStore = (*SessionStore)(nil)

// NewSessionStore returns an empty session-scoped dedup set.
func NewSessionStore() *SessionStore {
	return &SessionStore{seen: map[string]struct{}{}}
}

// Has reports whether the key was already marked.
func (s *SessionStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// Mark records the key. Marking the same key twice is a no-op.
func (s *SessionStore) Mark(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = struct{}{}
}

// Save is a no-op for the session variant.
func (s *SessionStore) Save() error { return nil }

// Len returns the number of tracked keys.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// fileDocument is the persisted shape of one feed's dedup state.
type fileDocument struct {
	SentIDs    []string `json:"sent_ids"`
	LastRunUTC string   `json:"last_run_utc"`
}

// FileStore is the persisted dedup set used by the one-shot batch runner.
// One instance per feed; keys here are bare item ids because the file itself
// scopes the feed.
type FileStore struct {
	path   string
	seen   map[string]struct{}
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.DedupStore = (*FileStore)(nil)

// OpenFileStore loads the dedup file at path. A missing or corrupt file yields
// an empty set with a warning, never an error.
func OpenFileStore(path string, logger *slog.Logger) *FileStore {
	store := &FileStore{
		path:   path,
		seen:   map[string]struct{}{},
		logger: logger,
		now:    time.Now,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			store.warn("cannot read dedup state, starting empty", "path", path, "error", err)
		}
		return store
	}

	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		store.warn("corrupt dedup state, starting empty", "path", path, "error", err)
		return store
	}

	for _, id := range doc.SentIDs {
		if id != "" {
			store.seen[id] = struct{}{}
		}
	}
	return store
}

// Has reports whether the id was delivered by a previous run.
func (f *FileStore) Has(key string) bool {
	_, ok := f.seen[key]
	return ok
}

// Mark records a delivered id.
func (f *FileStore) Mark(key string) {
	f.seen[key] = struct{}{}
}

// Len returns the number of tracked ids.
func (f *FileStore) Len() int { return len(f.seen) }

// Save writes the full set plus the run timestamp atomically. Called exactly
// once per batch run, even when nothing new was found, so last_run_utc always
// reflects the latest check.
func (f *FileStore) Save() error {
	ids := make([]string, 0, len(f.seen))
	for id := range f.seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := fileDocument{
		SentIDs:    ids,
		LastRunUTC: f.now().UTC().Format(time.RFC3339),
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dedup state: %w", err)
	}

	if err := writeAtomic(f.path, raw); err != nil {
		return fmt.Errorf("write dedup state: %w", err)
	}
	return nil
}

func (f *FileStore) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
