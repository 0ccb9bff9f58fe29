package usecase

import (
	"context"
	"log/slog"

	"M365Monitor/internal/ports"
)

// DailyBrief is the once-per-day recap pass: fetch the trailing lookback
// window from every feed, merge newest-first, and deliver. By default it may
// re-send items already delivered live — it is a recap, not an increment —
// controlled by the redeliver flag.
type DailyBrief struct {
	feeds     []FeedBinding
	processor *Processor
	dedup     ports.DedupStore

	lookbackHours int
	redeliver     bool

	logger *slog.Logger
}

// NewDailyBrief wires the daily digest pass.
func NewDailyBrief(feeds []FeedBinding, processor *Processor, dedup ports.DedupStore,
	lookbackHours int, redeliver bool, logger *slog.Logger) *DailyBrief {
	return &DailyBrief{
		feeds:         feeds,
		processor:     processor,
		dedup:         dedup,
		lookbackHours: lookbackHours,
		redeliver:     redeliver,
		logger:        logger,
	}
}

// Run executes one digest pass. Per-feed fetch failures are logged and leave
// that feed empty; the digest still runs over whatever arrived.
func (d *DailyBrief) Run(ctx context.Context) {
	d.info("running daily brief", "lookback_hours", d.lookbackHours)

	var lists [][]FeedItem
	for _, binding := range d.feeds {
		items, err := binding.Source.FetchRecent(ctx, d.lookbackHours)
		if err != nil {
			d.warn("daily brief fetch failed", "feed", binding.Feed.Key(), "error", err)
			continue
		}
		lists = append(lists, Tag(binding.Feed, items))
	}

	merged := MergeByRecency(lists...)
	if len(merged) == 0 {
		d.info("daily brief: no updates in lookback window")
		return
	}

	for _, entry := range merged {
		d.processor.Process(ctx, ProcessRequest{
			Feed:               entry.Feed,
			Item:               entry.Item,
			Dedup:              d.dedup,
			Key:                entry.Feed.DedupKey(entry.Item.ID()),
			SkipIfProcessed:    !d.redeliver,
			MarkBeforeDelivery: true,
		})
		if ctx.Err() != nil {
			return
		}
	}
}

func (d *DailyBrief) info(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Info(msg, args...)
	}
}

func (d *DailyBrief) warn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
