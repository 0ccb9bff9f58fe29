package usecase

import (
	"context"
	"sync"
	"time"

	"M365Monitor/internal/domain"
)

// stubSource scripts FetchSince responses and replays a fixed FetchRecent
// window.
type stubSource struct {
	mu          sync.Mutex
	sinceScript []fetchResult
	sinceCalls  int
	recentItems []domain.RawItem
	recentErr   error
}

type fetchResult struct {
	items []domain.RawItem
	err   error
}

func (s *stubSource) FetchSince(context.Context) ([]domain.RawItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := fetchResult{}
	if len(s.sinceScript) > 0 {
		result = s.sinceScript[0]
		if len(s.sinceScript) > 1 {
			s.sinceScript = s.sinceScript[1:]
		}
	}
	s.sinceCalls++
	return result.items, result.err
}

func (s *stubSource) FetchRecent(context.Context, int) ([]domain.RawItem, error) {
	return s.recentItems, s.recentErr
}

func (s *stubSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sinceCalls
}

// stubEnricher echoes the raw item's title back as a minimal analysis.
type stubEnricher struct {
	err  error
	skip bool
}

func (s *stubEnricher) Enrich(_ context.Context, item domain.RawItem, _ time.Time) (domain.EnrichedItem, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.skip {
		return nil, nil
	}
	return domain.EnrichedItem{
		"title":    item.Title(),
		"severity": domain.SeverityNormal,
		"what":     "summary of " + item.ID(),
	}, nil
}

// captureNotifier records every delivered card and can fail on demand.
type captureNotifier struct {
	mu    sync.Mutex
	cards []map[string]any
	err   error
}

func (c *captureNotifier) Send(_ context.Context, payload map[string]any) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards = append(c.cards, payload)
	return nil
}

func (c *captureNotifier) sent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cards)
}

// recordingStore wraps an in-memory dedup set and counts Save calls.
type recordingStore struct {
	seen  map[string]struct{}
	saves int
}

func newRecordingStore(keys ...string) *recordingStore {
	store := &recordingStore{seen: map[string]struct{}{}}
	for _, key := range keys {
		store.seen[key] = struct{}{}
	}
	return store
}

func (r *recordingStore) Has(key string) bool {
	_, ok := r.seen[key]
	return ok
}

func (r *recordingStore) Mark(key string) { r.seen[key] = struct{}{} }

func (r *recordingStore) Save() error {
	r.saves++
	return nil
}

func rawItem(id, modified string) domain.RawItem {
	return domain.RawItem{
		"id":                   id,
		"title":                "Update " + id,
		"lastModifiedDateTime": modified,
	}
}
