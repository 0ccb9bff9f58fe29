package card

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"M365Monitor/internal/domain"
)

func bodyText(t *testing.T, payload map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("card does not marshal: %v", err)
	}
	return string(raw)
}

func TestBuildSevereItemGetsAttentionStyling(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{
		"title":           "Retirement of classic Outlook",
		"service":         "Exchange Online",
		"severity":        domain.SeverityCritical,
		"is_major_change": true,
		"what":            "Classic Outlook is being retired.",
	})

	if payload["type"] != "AdaptiveCard" {
		t.Fatalf("unexpected card type: %v", payload["type"])
	}

	body, ok := payload["body"].([]map[string]any)
	if !ok || len(body) == 0 {
		t.Fatal("card has no body")
	}
	if body[0]["style"] != "attention" {
		t.Fatalf("major change should use attention header, got %v", body[0]["style"])
	}

	text := bodyText(t, payload)
	if !strings.Contains(text, "CRITICAL") {
		t.Fatal("severity label missing from card")
	}
	if !strings.Contains(text, "What's happening?") {
		t.Fatal("content section missing from card")
	}
}

func TestBuildNormalItemUsesEmphasisHeader(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{
		"title":    "Minor update",
		"severity": domain.SeverityNormal,
	})

	body := payload["body"].([]map[string]any)
	if body[0]["style"] != "emphasis" {
		t.Fatalf("normal item should use emphasis header, got %v", body[0]["style"])
	}
}

func TestBuildFallsBackToMessageCenterDeepLink(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{
		"title":      "Teams update",
		"source":     "message_center",
		"message_id": "MC123456",
	})

	actions, ok := payload["actions"].([]map[string]any)
	if !ok || len(actions) != 1 {
		t.Fatalf("expected one action, got %v", payload["actions"])
	}
	url, _ := actions[0]["url"].(string)
	if !strings.HasSuffix(url, "/messages/MC123456") {
		t.Fatalf("unexpected deep link: %s", url)
	}
	if actions[0]["title"] != "View in Message Center" {
		t.Fatalf("unexpected button title: %v", actions[0]["title"])
	}
}

func TestBuildServiceHealthButton(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{
		"title":  "Mail delays",
		"source": "service_health",
		"link":   "https://admin.microsoft.com/Adminportal/Home#/servicehealth",
	})

	actions := payload["actions"].([]map[string]any)
	if len(actions) != 1 || actions[0]["title"] != "View in Service Health" {
		t.Fatalf("unexpected actions: %v", actions)
	}
}

func TestBuildOmitsActionWithoutLinkOrMCID(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{"title": "Incident", "issue_id": "EX42"})

	actions := payload["actions"].([]map[string]any)
	if len(actions) != 0 {
		t.Fatalf("non-MC item without link must have no action, got %v", actions)
	}
}

func TestBuildCapsRecommendedActions(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{
		"title":   "Update",
		"actions": []any{"one", "two", "three", "four", "five"},
	})

	text := bodyText(t, payload)
	for _, want := range []string{"• one", "• two", "• three"} {
		if !strings.Contains(text, want) {
			t.Fatalf("action %q missing", want)
		}
	}
	if strings.Contains(text, "• four") {
		t.Fatal("actions beyond the cap must be dropped")
	}
}

func TestBuildIncludesAlertImage(t *testing.T) {
	t.Parallel()

	payload := Build(domain.EnrichedItem{
		"title":           "Outage",
		"severity":        domain.SeverityCritical,
		"alert_image_url": "https://example.com/alert.png",
	})

	if !strings.Contains(bodyText(t, payload), "https://example.com/alert.png") {
		t.Fatal("alert image missing from card")
	}
}

func TestNoNewsCard(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.August, 29, 9, 0, 0, 0, time.UTC)
	payload := NoNews(24, now)

	text := bodyText(t, payload)
	if !strings.Contains(text, "No new Message Center or Service Health updates") {
		t.Fatal("no-news message missing")
	}
	if !strings.Contains(text, "last 24 hours") {
		t.Fatal("lookback window missing")
	}
	if !strings.Contains(text, "29 August 2026") {
		t.Fatal("timestamp missing")
	}
}
