package usecase

import (
	"context"
	"log/slog"
	"time"

	"M365Monitor/internal/domain"
	"M365Monitor/internal/infrastructure/card"
	"M365Monitor/internal/ports"
)

// BatchFeed pairs a feed with its client and its persisted dedup store. Keys
// in the store are bare item ids; the file itself scopes the feed.
type BatchFeed struct {
	Feed   domain.Feed
	Source ports.FeedSource
	Dedup  ports.DedupStore
}

// Batch is the one-shot runner: a single pass over the trailing lookback
// window with dedup enforced against the persisted per-feed stores. Unlike
// the daily digest of the live monitor, the batch run never re-delivers.
type Batch struct {
	feeds     []BatchFeed
	processor *Processor
	notifier  ports.Notifier

	lookbackHours int
	notifyOnEmpty bool

	logger *slog.Logger
	now    func() time.Time
}

// NewBatch wires the one-shot runner.
func NewBatch(feeds []BatchFeed, processor *Processor, notifier ports.Notifier,
	lookbackHours int, notifyOnEmpty bool, logger *slog.Logger) *Batch {
	return &Batch{
		feeds:         feeds,
		processor:     processor,
		notifier:      notifier,
		lookbackHours: lookbackHours,
		notifyOnEmpty: notifyOnEmpty,
		logger:        logger,
		now:           time.Now,
	}
}

// Run executes the single pass. The dedup stores are persisted exactly once
// on every path, including "nothing new", so last_run_utc always reflects
// this check.
func (b *Batch) Run(ctx context.Context) error {
	defer b.saveStores()

	stores := make(map[domain.Feed]ports.DedupStore, len(b.feeds))
	var lists [][]FeedItem

	for _, feed := range b.feeds {
		stores[feed.Feed] = feed.Dedup

		items, err := feed.Source.FetchRecent(ctx, b.lookbackHours)
		if err != nil {
			b.warn("fetch failed, treating as empty", "feed", feed.Feed.Key(), "error", err)
			continue
		}

		fresh := make([]domain.RawItem, 0, len(items))
		for _, item := range items {
			if id := item.ID(); id != "" && !feed.Dedup.Has(id) {
				fresh = append(fresh, item)
			}
		}
		b.info("fetched items", "feed", feed.Feed.Key(), "total", len(items), "new", len(fresh))
		lists = append(lists, Tag(feed.Feed, fresh))
	}

	merged := MergeByRecency(lists...)
	if len(merged) == 0 {
		b.info("no new items since last run")
		if b.notifyOnEmpty {
			if err := b.notifier.Send(ctx, card.NoNews(b.lookbackHours, b.now())); err != nil {
				b.warn("cannot send no-news card", "error", err)
			}
		}
		return nil
	}

	sent := map[domain.Feed]int{}
	for _, entry := range merged {
		result := b.processor.Process(ctx, ProcessRequest{
			Feed:               entry.Feed,
			Item:               entry.Item,
			Dedup:              stores[entry.Feed],
			Key:                entry.Item.ID(),
			SkipIfProcessed:    true,
			MarkBeforeDelivery: false,
		})
		if result.Outcome == OutcomeDelivered {
			sent[entry.Feed]++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	b.info("batch run complete",
		"sent_message_center", sent[domain.FeedMessageCenter],
		"sent_service_health", sent[domain.FeedServiceHealth])
	return nil
}

func (b *Batch) saveStores() {
	for _, feed := range b.feeds {
		if err := feed.Dedup.Save(); err != nil {
			b.warn("cannot persist dedup state", "feed", feed.Feed.Key(), "error", err)
		}
	}
}

func (b *Batch) info(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Batch) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
