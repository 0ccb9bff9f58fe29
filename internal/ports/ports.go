package ports

import (
	"context"
	"time"

	"M365Monitor/internal/domain"
)

// FeedSource pulls raw announcement records from one Graph feed.
type FeedSource interface {
	// FetchSince returns items modified after the persisted cursor (default
	// six hours back) and advances the cursor on any successful round trip,
	// including an empty one. On failure the cursor stays put.
	FetchSince(ctx context.Context) ([]domain.RawItem, error)
	// FetchRecent returns items modified within the trailing window. It never
	// touches the cursor.
	FetchRecent(ctx context.Context, hoursBack int) ([]domain.RawItem, error)
}

// Enricher turns a raw item into structured analysis. A nil item with a nil
// error means the collaborator produced no usable result and the item should
// be skipped.
type Enricher interface {
	Enrich(ctx context.Context, item domain.RawItem, reportDate time.Time) (domain.EnrichedItem, error)
}

// Notifier delivers a rendered card payload to the webhook sink.
type Notifier interface {
	Send(ctx context.Context, card map[string]any) error
}

// DedupStore tracks feed-scoped identifiers already delivered.
type DedupStore interface {
	Has(key string) bool
	Mark(key string)
	// Save persists the set plus a run timestamp. No-op for the session store.
	Save() error
}

// CursorStore persists the last confirmed fetch timestamp of one feed.
type CursorStore interface {
	Load() (time.Time, bool)
	Store(ts time.Time) error
}
