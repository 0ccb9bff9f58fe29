package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"M365Monitor/internal/config"
	"M365Monitor/internal/domain"
	"M365Monitor/internal/ports"
)

// ErrNoEnricher marks an item whose feed has no initialized enrichment
// collaborator. Such items are skipped, not delivered and not marked.
var ErrNoEnricher = errors.New("no enricher initialized for feed")

// Router dispatches raw items to the enricher matching their feed and applies
// feed-specific default fields afterwards. The feed set is closed: a new feed
// means a new case here, checked by the compiler.
type Router struct {
	messageCenter ports.Enricher
	serviceHealth ports.Enricher

	alertImageURL string
	portalURL     string
}

// NewRouter wires the per-feed enrichers. Either may be nil when its
// collaborator failed to initialize; items of that feed are then skipped.
func NewRouter(messageCenter, serviceHealth ports.Enricher, teams config.TeamsConfig) *Router {
	return &Router{
		messageCenter: messageCenter,
		serviceHealth: serviceHealth,
		alertImageURL: teams.AlertImageURL,
		portalURL:     teams.ServiceHealthPortalURL,
	}
}

// Enrich runs the feed's enrichment collaborator and back-fills identity and
// presentation defaults. Returns (nil, nil) when the collaborator produced no
// usable result, and ErrNoEnricher when the feed has no collaborator at all.
func (r *Router) Enrich(ctx context.Context, feed domain.Feed, item domain.RawItem, reportDate time.Time) (domain.EnrichedItem, error) {
	var enricher ports.Enricher
	switch feed {
	case domain.FeedServiceHealth:
		enricher = r.serviceHealth
	case domain.FeedMessageCenter:
		enricher = r.messageCenter
	}
	if enricher == nil {
		return nil, ErrNoEnricher
	}

	enriched, err := enricher.Enrich(ctx, item, reportDate)
	if err != nil || enriched == nil {
		return nil, err
	}

	switch feed {
	case domain.FeedServiceHealth:
		r.applyServiceHealthDefaults(enriched, item)
	case domain.FeedMessageCenter:
		r.applyMessageCenterDefaults(enriched)
	}
	return enriched, nil
}

// All defaulting is set-if-absent: the enrichment step's output wins.

func (r *Router) applyMessageCenterDefaults(enriched domain.EnrichedItem) {
	enriched.SetDefault("source", domain.FeedMessageCenter.Key())
	enriched.SetDefault("source_label", domain.FeedMessageCenter.Label())
	r.applyAlertIndicator(enriched)
}

func (r *Router) applyServiceHealthDefaults(enriched domain.EnrichedItem, item domain.RawItem) {
	enriched.SetDefault("source", domain.FeedServiceHealth.Key())
	enriched.SetDefault("source_label", domain.FeedServiceHealth.Label())
	enriched.SetDefault("issue_id", item.ID())
	enriched.SetDefault("published", item.String("startDateTime"))
	enriched.SetDefault("last_updated", item.String("lastModifiedDateTime"))
	enriched.SetDefault("affected_services", impactedServices(item))
	enriched.SetDefault("link", r.portalURL)
	r.applyAlertIndicator(enriched)
}

// applyAlertIndicator attaches the configured alert image to critical/high
// severity items so the renderer can flag them visually.
func (r *Router) applyAlertIndicator(enriched domain.EnrichedItem) {
	if r.alertImageURL == "" {
		return
	}
	severity := strings.ToLower(enriched.String("severity"))
	if severity == domain.SeverityCritical || severity == domain.SeverityHigh {
		enriched.SetDefault("alert_image_url", r.alertImageURL)
	}
}

func impactedServices(item domain.RawItem) any {
	if v, ok := item["impactedServices"]; ok && v != nil {
		return v
	}
	return item["affectedServices"]
}
