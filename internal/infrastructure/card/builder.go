package card

import (
	"fmt"
	"strings"
	"time"

	"M365Monitor/internal/domain"
)

const (
	schemaURL   = "http://adaptivecards.io/schemas/adaptive-card.json"
	cardVersion = "1.4"

	messageCenterDeepLink = "https://admin.microsoft.com/Adminportal/Home#/MessageCenter/:/messages/"

	maxActionsOnCard = 3
)

var severityColors = map[string]string{
	domain.SeverityCritical:  "#D13438",
	domain.SeverityHigh:      "#D93B27",
	domain.SeverityImportant: "#FFB900",
	domain.SeverityNormal:    "#6E8387",
}

var severityIcons = map[string]string{
	domain.SeverityCritical:  "⚠️",
	domain.SeverityHigh:      "⚠️",
	domain.SeverityImportant: "ℹ️",
	domain.SeverityNormal:    "📢",
}

// Build renders an enriched item into an Adaptive Card document. Pure
// function: no network I/O, no mutation of the input.
func Build(item domain.EnrichedItem) map[string]any {
	severity := strings.ToLower(item.String("severity"))
	icon, ok := severityIcons[severity]
	if !ok {
		icon = severityIcons[domain.SeverityNormal]
	}

	chips := item.Strings("chips")
	highlight := item.Bool("is_major_change") || item.Bool("admin_impact") || hasAdminChip(chips)

	headerStyle := "emphasis"
	if highlight {
		headerStyle = "attention"
	}
	severityColor := "default"
	if severity == domain.SeverityCritical || severity == domain.SeverityHigh {
		severityColor = "attention"
	}

	title := item.String("title")
	if title == "" {
		title = "Microsoft 365 Update"
	}
	service := item.String("service")
	if service == "" {
		service = firstNonEmpty(item.String("source_label"), "Microsoft 365")
	}

	headerColumns := []map[string]any{
		{
			"width": "auto",
			"items": []map[string]any{
				textBlock(icon, "size", "extraLarge", "spacing", "none"),
			},
		},
		{
			"width": "stretch",
			"items": []map[string]any{
				textBlock(title, "size", "large", "weight", "bolder", "wrap", true, "spacing", "small"),
				textBlock(service, "size", "small", "isSubtle", true, "spacing", "none"),
			},
		},
		{
			"width": "auto",
			"items": []map[string]any{
				textBlock(strings.ToUpper(displaySeverity(severity)), "size", "small", "weight", "bolder", "color", severityColor, "spacing", "none"),
			},
		},
	}

	body := []map[string]any{
		{
			"type":  "Container",
			"style": headerStyle,
			"items": []map[string]any{
				{"type": "ColumnSet", "columns": headerColumns},
			},
		},
	}

	if alertImage := item.String("alert_image_url"); alertImage != "" {
		body = append(body, map[string]any{
			"type":                "Image",
			"url":                 alertImage,
			"size":                "small",
			"horizontalAlignment": "right",
			"spacing":             "small",
		})
	}

	if len(chips) > 0 {
		body = append(body, textBlock(strings.Join(chips, " | "), "size", "small", "isSubtle", true, "wrap", true, "spacing", "medium"))
	}

	content := buildContent(item)
	body = append(body, map[string]any{
		"type":    "Container",
		"spacing": "medium",
		"items":   content,
	})
	body = append(body, map[string]any{
		"type":      "Container",
		"separator": true,
		"spacing":   "medium",
	})

	cardActions := []map[string]any{}
	if link := resolveLink(item); link != "" {
		buttonTitle := "View in Message Center"
		if item.String("source") == domain.FeedServiceHealth.Key() {
			buttonTitle = "View in Service Health"
		}
		cardActions = append(cardActions, map[string]any{
			"type":  "Action.OpenUrl",
			"title": buttonTitle,
			"url":   link,
		})
	}

	return map[string]any{
		"$schema": schemaURL,
		"type":    "AdaptiveCard",
		"version": cardVersion,
		"body":    body,
		"actions": cardActions,
	}
}

// NoNews renders the placeholder card posted when a batch run finds nothing.
func NoNews(lookbackHours int, now time.Time) map[string]any {
	timestamp := now.UTC().Format("02 January 2006 15:04 UTC")
	return map[string]any{
		"$schema": schemaURL,
		"type":    "AdaptiveCard",
		"version": cardVersion,
		"body": []map[string]any{
			textBlock("Microsoft 365 Updates Monitor", "size", "Large", "weight", "Bolder"),
			textBlock(fmt.Sprintf("No new Message Center or Service Health updates as of %s.", timestamp), "wrap", true),
			textBlock(fmt.Sprintf("Lookback window: last %d hours.", lookbackHours), "isSubtle", true, "size", "Small", "wrap", true),
		},
	}
}

func buildContent(item domain.EnrichedItem) []map[string]any {
	content := []map[string]any{}

	if what := item.String("what"); what != "" {
		content = append(content,
			textBlock("**What's happening?**", "weight", "bolder", "size", "small", "spacing", "medium"),
			textBlock(what, "wrap", true, "spacing", "small"))
	}
	if why := item.String("why"); why != "" {
		content = append(content,
			textBlock("**Why it matters?**", "weight", "bolder", "size", "small", "spacing", "medium"),
			textBlock(why, "wrap", true, "spacing", "small"))
	}

	if actions := item.Strings("actions"); len(actions) > 0 {
		content = append(content, textBlock("**📋 Recommended Actions:**", "weight", "bolder", "size", "small", "spacing", "medium"))
		if len(actions) > maxActionsOnCard {
			actions = actions[:maxActionsOnCard]
		}
		for _, action := range actions {
			content = append(content, textBlock("• "+action, "wrap", true, "spacing", "small"))
		}
	}

	if latest := item.String("latest_update"); latest != "" {
		content = append(content,
			textBlock("**Latest update:**", "weight", "bolder", "size", "small", "spacing", "medium"),
			textBlock(latest, "wrap", true, "spacing", "small"))
	}

	if window := item.String("window"); window != "" {
		content = append(content,
			textBlock("**⏰ Timeline:**", "weight", "bolder", "size", "small", "spacing", "medium"),
			textBlock(window, "wrap", true, "spacing", "small"))
	}
	if countdown := item.String("countdown"); countdown != "" {
		content = append(content, textBlock("*"+countdown+"*", "isSubtle", true, "size", "small", "wrap", true, "spacing", "small"))
	}

	if published := friendlyDate(item.String("published")); published != "" {
		content = append(content, textBlock("Published: "+published, "isSubtle", true, "size", "small", "wrap", true, "spacing", "small"))
	}

	return content
}

// resolveLink prefers the enrichment-provided link and falls back to the
// admin-portal deep link derived from an MC message id.
func resolveLink(item domain.EnrichedItem) string {
	if link := item.String("link"); link != "" {
		return link
	}
	id := firstNonEmpty(item.String("message_id"), item.String("id"))
	id = strings.TrimSpace(id)
	if id == "" || !strings.HasPrefix(strings.ToUpper(id), "MC") {
		return ""
	}
	return messageCenterDeepLink + id
}

func displaySeverity(severity string) string {
	if severity == "" {
		return domain.SeverityNormal
	}
	return severity
}

func friendlyDate(value string) string {
	if value == "" {
		return ""
	}
	ts, err := domain.ParseGraphTime(value)
	if err != nil {
		return ""
	}
	return ts.UTC().Format("02 January 2006")
}

func hasAdminChip(chips []string) bool {
	for _, chip := range chips {
		if strings.EqualFold(chip, "admin impact") {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// textBlock builds a TextBlock element from alternating key/value attributes.
func textBlock(text string, attrs ...any) map[string]any {
	block := map[string]any{"type": "TextBlock", "text": text}
	for i := 0; i+1 < len(attrs); i += 2 {
		if key, ok := attrs[i].(string); ok {
			block[key] = attrs[i+1]
		}
	}
	return block
}
