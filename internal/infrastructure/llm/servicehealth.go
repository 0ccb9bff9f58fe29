package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"M365Monitor/internal/config"
	"M365Monitor/internal/domain"
	"M365Monitor/internal/ports"
)

const (
	serviceHealthMaxTokens = 1800
	maxPostsInPrompt       = 3
	maxPostLength          = 600
)

const serviceHealthSystemPrompt = `You are an expert Microsoft 365 service health analyst. Given raw Service Health incident records,
produce a compact JSON object with enriched, human-ready cards. Keep outputs accurate, concise, and operationally useful.

Rules:
- Strict JSON only in your final output: {"items":[ ... ]}
- Always return bucket as "action" or "info"; never null.
- severity must be one of ["critical","high","important","normal"] inferred from status, impact, and text.
- chips: include "Service Health", status, classification, feature, and impacted services if present.
- what: 3-6 sentences, clear and precise. Explain what is happening and current state.
- why: 2-4 sentences focused on customer/admin impact and scope.
- actions: 3-6 admin recommendations. Use concrete steps based on the text; if missing, suggest standard incident response steps.
- latest_update: 1-3 sentences summarizing the most recent post/update.
- window: human-friendly timeline using start/end/last updated. Example: "Started Sep 12, 2025 | Last updated Sep 13, 2025".
- countdown: compute relative to report_date if end time is present ("in ~35 days", "today", "2 days ago").
- Use facts from the record; do not invent root cause or resolution details.
- Always include these fields in each item:
  title, service, bucket, severity, chips, what, why, actions, status, impact, latest_update,
  window, countdown, link, issue_id, published, last_updated, affected_services.
  Use null or empty values if unknown.`

// ServiceHealthEnricher produces structured incident analysis for Service
// Health issues via Azure OpenAI.
type ServiceHealthEnricher struct {
	client *client
}

var _ ports.Enricher = (*ServiceHealthEnricher)(nil)

// NewServiceHealthEnricher builds the enricher from OpenAI configuration.
func NewServiceHealthEnricher(cfg config.OpenAIConfig) *ServiceHealthEnricher {
	return &ServiceHealthEnricher{client: newClient(cfg)}
}

// Enrich sends one issue for analysis. The original issue id is re-attached
// afterwards because the model may rewrite or drop it.
func (e *ServiceHealthEnricher) Enrich(ctx context.Context, item domain.RawItem, reportDate time.Time) (domain.EnrichedItem, error) {
	prompt, err := buildServiceHealthPrompt(item, reportDate)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	enriched, err := e.client.complete(ctx, serviceHealthSystemPrompt, prompt, serviceHealthMaxTokens)
	if err != nil || enriched == nil {
		return nil, err
	}

	enriched["issue_id"] = item.ID()
	return enriched, nil
}

func buildServiceHealthPrompt(item domain.RawItem, reportDate time.Time) (string, error) {
	affected := firstString(item["impactedServices"])
	if affected == "" {
		affected = firstString(item["affectedServices"])
	}

	payload := map[string]any{
		"report_date": reportDate.UTC().Format("2006-01-02"),
		"items": []map[string]any{{
			"issue_id":           item.ID(),
			"title":              item.Title(),
			"service":            item.String("service"),
			"feature":            item.String("feature"),
			"status":             item.String("status"),
			"classification":     item.String("classification"),
			"severity_raw":       item.String("severity"),
			"impact_description": item.String("impactDescription"),
			"affected_services":  affected,
			"start_date":         item.String("startDateTime"),
			"end_date":           item.String("endDateTime"),
			"last_updated":       firstNonEmpty(item.String("lastModifiedDateTime"), item.String("lastUpdateDateTime")),
			"latest_posts":       summarizePosts(item["posts"]),
		}},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// summarizePosts builds a compact digest of the newest incident posts so the
// prompt stays within budget regardless of incident age.
func summarizePosts(value any) string {
	entries, ok := value.([]any)
	if !ok || len(entries) == 0 {
		return ""
	}

	posts := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		if post, ok := entry.(map[string]any); ok {
			posts = append(posts, post)
		}
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return postTime(posts[i]) < postTime(posts[j])
	})
	if len(posts) > maxPostsInPrompt {
		posts = posts[len(posts)-maxPostsInPrompt:]
	}

	lines := make([]string, 0, len(posts))
	for _, post := range posts {
		created := postTime(post)
		postType, _ := post["postType"].(string)
		description := postDescription(post)

		header := "Update"
		if parts := joinNonEmpty(" - ", created, postType); parts != "" {
			header = parts
		}
		lines = append(lines, header+": "+truncate(stripHTML(description), maxPostLength))
	}

	return strings.Join(lines, " | ")
}

func postTime(post map[string]any) string {
	if created, _ := post["createdDateTime"].(string); created != "" {
		return created
	}
	modified, _ := post["lastModifiedDateTime"].(string)
	return modified
}

// postDescription handles both the Graph itemBody shape and plain strings.
func postDescription(post map[string]any) string {
	switch desc := post["description"].(type) {
	case string:
		return desc
	case map[string]any:
		content, _ := desc["content"].(string)
		return content
	}
	body, _ := post["body"].(string)
	return body
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, sep)
}
