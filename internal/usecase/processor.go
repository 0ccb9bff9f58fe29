package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"M365Monitor/internal/domain"
	"M365Monitor/internal/infrastructure/card"
	"M365Monitor/internal/ports"
)

// Enrichment calls are paced to respect the completion API's rate limits.
const enrichInterval = 500 * time.Millisecond

// Outcome classifies what happened to one item, so loops and tests can see
// why an item did or did not reach the webhook.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeDuplicate
	OutcomeSkipped
	OutcomeFailed
)

// ItemResult is the per-item processing verdict.
type ItemResult struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func delivered() ItemResult { return ItemResult{Outcome: OutcomeDelivered} }

func duplicate() ItemResult { return ItemResult{Outcome: OutcomeDuplicate, Reason: "already delivered"} }

func skipped(reason string) ItemResult { return ItemResult{Outcome: OutcomeSkipped, Reason: reason} }

func failed(reason string, err error) ItemResult {
	return ItemResult{Outcome: OutcomeFailed, Reason: reason, Err: err}
}

// ProcessRequest carries one raw item plus the dedup policy of the calling
// run mode. The caller picks the store and key because the live monitor uses
// one feed-prefixed session set while the batch runner keeps a bare-id file
// per feed.
type ProcessRequest struct {
	Feed domain.Feed
	Item domain.RawItem

	Dedup           ports.DedupStore
	Key             string
	SkipIfProcessed bool
	// MarkBeforeDelivery records the dedup key once enrichment succeeds,
	// before the webhook confirms anything. A crash in between loses the
	// notification instead of duplicating it: at-most-once by identifier.
	MarkBeforeDelivery bool
}

// Processor drives a single item through enrich, render, and deliver.
type Processor struct {
	router   *Router
	notifier ports.Notifier
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor wires the enrichment router and the delivery sink.
func NewProcessor(router *Router, notifier ports.Notifier, logger *slog.Logger) *Processor {
	return &Processor{
		router:   router,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Every(enrichInterval), 1),
		logger:   logger,
		now:      time.Now,
	}
}

// Process runs one item through the pipeline. Failures are captured in the
// result, never propagated: one bad item must not abort the cycle around it.
func (p *Processor) Process(ctx context.Context, req ProcessRequest) ItemResult {
	id := req.Item.ID()
	if id == "" {
		return skipped("item has no id")
	}
	title := titlePrefix(req.Item.Title())

	if req.SkipIfProcessed && req.Dedup.Has(req.Key) {
		p.debug("item already processed", "feed", req.Feed.Key(), "key", req.Key)
		return duplicate()
	}

	p.info("processing item", "feed", req.Feed.Key(), "title", title)

	if err := p.limiter.Wait(ctx); err != nil {
		return failed("canceled", err)
	}

	reportDate := req.Item.ReportDate(p.now())
	enriched, err := p.router.Enrich(ctx, req.Feed, req.Item, reportDate)
	switch {
	case errors.Is(err, ErrNoEnricher):
		p.warn("enricher not initialized, skipping item", "feed", req.Feed.Key(), "title", title)
		return skipped("enricher not initialized")
	case err != nil:
		p.warn("enrichment failed", "feed", req.Feed.Key(), "title", title, "error", err)
		return failed("enrich", err)
	case enriched == nil:
		p.warn("enrichment produced no result, skipping item", "feed", req.Feed.Key(), "title", title)
		return skipped("empty enrichment")
	}

	payload := card.Build(enriched)

	if req.MarkBeforeDelivery {
		req.Dedup.Mark(req.Key)
	}

	if err := p.notifier.Send(ctx, payload); err != nil {
		p.warn("delivery failed", "feed", req.Feed.Key(), "title", title, "error", err)
		return failed("deliver", err)
	}

	if !req.MarkBeforeDelivery {
		req.Dedup.Mark(req.Key)
	}

	p.info("delivered", "feed", req.Feed.Key(), "title", title)
	return delivered()
}

// titlePrefix trims long titles for log context.
func titlePrefix(title string) string {
	if title == "" {
		return "Unknown"
	}
	if len(title) > 60 {
		return title[:60]
	}
	return title
}

func (p *Processor) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Processor) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Processor) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
