package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"M365Monitor/internal/domain"
	"M365Monitor/internal/ports"
)

// FeedBinding pairs a feed with its client.
type FeedBinding struct {
	Feed   domain.Feed
	Source ports.FeedSource
}

// LiveLoop is the continuous short-interval poll loop: fetch new items from
// every feed, filter duplicates, and deliver each survivor as soon as it is
// seen. Items are processed in per-feed arrival order; the daily digest is
// the mode that merges and re-sorts.
type LiveLoop struct {
	feeds     []FeedBinding
	processor *Processor
	dedup     ports.DedupStore

	interval   time.Duration
	retryDelay time.Duration
	maxRetries int

	logger *slog.Logger
}

// NewLiveLoop wires the poll loop. The dedup store is the session-scoped set;
// cursors live inside the feed clients.
func NewLiveLoop(feeds []FeedBinding, processor *Processor, dedup ports.DedupStore,
	interval, retryDelay time.Duration, maxRetries int, logger *slog.Logger) *LiveLoop {
	return &LiveLoop{
		feeds:      feeds,
		processor:  processor,
		dedup:      dedup,
		interval:   interval,
		retryDelay: retryDelay,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Run polls until ctx is canceled or the failure budget is exhausted. A
// cycle failure increments the consecutive-failure counter and retries after
// a fixed backoff; reaching the limit stops the loop for good — failing loud
// beats polling forever in a broken state. A successful cycle resets the
// counter. Returns nil on cancellation, an error on exhaustion.
func (l *LiveLoop) Run(ctx context.Context) error {
	l.info("live monitoring started", "poll_interval", l.interval.String())

	consecutive := 0
	for {
		if err := l.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			l.warn("poll cycle failed", "attempt", consecutive, "max", l.maxRetries, "error", err)
			if consecutive >= l.maxRetries {
				return fmt.Errorf("live loop: %d consecutive poll failures: %w", consecutive, err)
			}
			if !sleep(ctx, l.retryDelay) {
				return nil
			}
			continue
		}

		consecutive = 0
		if !sleep(ctx, l.interval) {
			return nil
		}
	}
}

// cycle fetches and processes one round across all feeds. A fetch failure on
// any feed fails the whole cycle; per-item failures are logged by the
// processor and never abort the cycle.
func (l *LiveLoop) cycle(ctx context.Context) error {
	for _, binding := range l.feeds {
		items, err := binding.Source.FetchSince(ctx)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", binding.Feed.Key(), err)
		}
		if len(items) == 0 {
			l.debug("no new items", "feed", binding.Feed.Key())
			continue
		}

		l.info("found new items", "feed", binding.Feed.Key(), "count", len(items))
		for _, item := range items {
			l.processor.Process(ctx, ProcessRequest{
				Feed:               binding.Feed,
				Item:               item,
				Dedup:              l.dedup,
				Key:                binding.Feed.DedupKey(item.ID()),
				SkipIfProcessed:    true,
				MarkBeforeDelivery: true,
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// sleep waits for d or until ctx is canceled. Reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *LiveLoop) info(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Info(msg, args...)
	}
}

func (l *LiveLoop) warn(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}

func (l *LiveLoop) debug(msg string, args ...any) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}
