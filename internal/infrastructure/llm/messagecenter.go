package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"M365Monitor/internal/config"
	"M365Monitor/internal/domain"
	"M365Monitor/internal/ports"
)

const messageCenterMaxTokens = 1500

const messageCenterSystemPrompt = `You are an expert Microsoft 365 admin assistant. Given raw Message Center-like documents, produce a compact JSON object with enriched, human-ready cards that fit a specific HTML template. Keep outputs accurate, concise, and actionable for enterprise admins.

Rules:
- Strict JSON only in your final output: {"items":[ ... ]}
- For each input item, decide bucket:
  - "action" if category is planForChange / preventOrFix / actionRequired OR adminImpact/admin_impact=true OR retirement=true.
  - Otherwise "info".
- Always return bucket as "action" or "info"; never null.
- Determine:
  - is_major_change: true if explicit "Major change", "(Update)" that introduces behavior change, or similar indicator.
  - severity: one of ["critical","high","important","normal"] inferred from text/dates/impact. Be conservative.
  - chips: include category, "Admin impact" if applicable, "Retirement" if applicable, each platform in Platforms, and "Roadmap: <id>" if present.
  - what / why / actions: rewrite into friendly executive summaries. What/Why should be 2-4 sentences each, clear and human-friendly, avoiding jargon. Use the document's facts; do not invent.
  - window: human-friendly text from WindowStart/WindowEnd if present. Use clear phrasing like "Expected in Apr 2026", "Retirement in Apr 2026", "Begins Sep 26, 2025", "Due Oct 17, 2025", or "Sep 26, 2025 - Oct 10, 2025".
  - countdown: compute relative to report_date if WindowEnd is present ("in ~35 days", "today", "2 days ago").
- Do not output confidential URLs; for Message Center link, keep provided deep link if present.
- Preserve MessageId as e.g., "MC123456".
- Title: keep original but remove redundant "(Update)" if it hurts readability; otherwise keep it.
- Service: copy from source if present.
- If Why/Actions are missing in source, propose sensible admin-focused ones based on the text (no hallucinations beyond obvious operational steps).
- Always include these fields in each item: title, service, bucket, is_major_change, severity, chips, what, why, actions, window, countdown, link, message_id, published. Use null or empty values if unknown.`

// MessageCenterEnricher produces structured analysis for Message Center
// announcements via Azure OpenAI.
type MessageCenterEnricher struct {
	client *client
}

var _ ports.Enricher = (*MessageCenterEnricher)(nil)

// NewMessageCenterEnricher builds the enricher from OpenAI configuration.
func NewMessageCenterEnricher(cfg config.OpenAIConfig) *MessageCenterEnricher {
	return &MessageCenterEnricher{client: newClient(cfg)}
}

// Enrich sends one announcement for analysis. The original message id is
// re-attached afterwards because the model may rewrite or drop it.
func (e *MessageCenterEnricher) Enrich(ctx context.Context, item domain.RawItem, reportDate time.Time) (domain.EnrichedItem, error) {
	prompt, err := buildMessageCenterPrompt(item, reportDate)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	enriched, err := e.client.complete(ctx, messageCenterSystemPrompt, prompt, messageCenterMaxTokens)
	if err != nil || enriched == nil {
		return nil, err
	}

	enriched["message_id"] = item.ID()
	return enriched, nil
}

// buildMessageCenterPrompt renders the raw announcement into the JSON request
// document the system prompt expects. The HTML body is flattened to text and
// truncated before embedding.
func buildMessageCenterPrompt(item domain.RawItem, reportDate time.Time) (string, error) {
	summary := item.String("summary")
	if summary == "" {
		summary = bodyContent(item)
	}

	payload := map[string]any{
		"report_date": reportDate.UTC().Format("2006-01-02"),
		"items": []map[string]any{{
			"message_id":      item.ID(),
			"title":           item.Title(),
			"service":         firstString(item["services"]),
			"category":        item.String("category"),
			"severity":        item.String("severity"),
			"is_major_change": item["isMajorChange"] == true,
			"platforms":       detailValue(item, "Platforms"),
			"roadmap_id":      detailValue(item, "RoadmapIds"),
			"summary":         truncate(stripHTML(summary), 1000),
			"window_start":    item.String("startDateTime"),
			"window_end":      firstNonEmpty(item.String("endDateTime"), item.String("actionRequiredByDateTime")),
			"link":            item.String("link"),
			"published":       item.String("startDateTime"),
			"last_updated":    item.String("lastModifiedDateTime"),
		}},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// bodyContent extracts the HTML body of a Graph message record.
func bodyContent(item domain.RawItem) string {
	body, ok := item["body"].(map[string]any)
	if !ok {
		return ""
	}
	content, _ := body["content"].(string)
	return content
}

// detailValue reads a named entry from the record's details collection.
func detailValue(item domain.RawItem, name string) string {
	details, ok := item["details"].([]any)
	if !ok {
		return ""
	}
	for _, entry := range details {
		detail, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if key, _ := detail["name"].(string); strings.EqualFold(key, name) {
			value, _ := detail["value"].(string)
			return value
		}
	}
	return ""
}

func firstString(value any) string {
	switch v := value.(type) {
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				return s
			}
		}
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case string:
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// stripHTML flattens announcement HTML to plain text. Non-HTML input passes
// through unchanged apart from whitespace normalization.
func stripHTML(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
