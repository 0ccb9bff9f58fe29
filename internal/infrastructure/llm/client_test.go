package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"M365Monitor/internal/config"
	"M365Monitor/internal/domain"
)

// completionServer returns an Azure-shaped chat completion whose message
// content is the given JSON document.
func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") == "" {
			t.Error("request missing api-key header")
		}
		if !strings.Contains(r.URL.RawQuery, "api-version=") {
			t.Error("request missing api-version parameter")
		}

		response := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func testOpenAIConfig(server *httptest.Server) config.OpenAIConfig {
	return config.OpenAIConfig{
		Endpoint:   server.URL,
		APIKey:     "test-key",
		Deployment: "gpt-4o",
		APIVersion: "2024-10-01-preview",
	}
}

func TestEnrichReattachesMessageID(t *testing.T) {
	t.Parallel()

	server := completionServer(t, `{"items":[{"title":"Rewritten title","message_id":"MC-rewritten","severity":"high"}]}`)
	defer server.Close()

	enricher := NewMessageCenterEnricher(testOpenAIConfig(server))
	item := domain.RawItem{"id": "MC123456", "title": "Original title"}

	enriched, err := enricher.Enrich(context.Background(), item, time.Now())
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if enriched == nil {
		t.Fatal("expected an enriched item")
	}
	if enriched.String("message_id") != "MC123456" {
		t.Fatalf("original id must win over the model's: %v", enriched["message_id"])
	}
	if enriched.String("severity") != "high" {
		t.Fatalf("model fields lost: %v", enriched)
	}
}

func TestEnrichEmptyItemsMeansSkip(t *testing.T) {
	t.Parallel()

	server := completionServer(t, `{"items":[]}`)
	defer server.Close()

	enricher := NewServiceHealthEnricher(testOpenAIConfig(server))
	enriched, err := enricher.Enrich(context.Background(), domain.RawItem{"id": "EX1"}, time.Now())
	if err != nil {
		t.Fatalf("empty items must not be an error: %v", err)
	}
	if enriched != nil {
		t.Fatalf("expected nil result, got %v", enriched)
	}
}

func TestEnrichMalformedContentFails(t *testing.T) {
	t.Parallel()

	server := completionServer(t, `here is your analysis: great update!`)
	defer server.Close()

	enricher := NewMessageCenterEnricher(testOpenAIConfig(server))
	if _, err := enricher.Enrich(context.Background(), domain.RawItem{"id": "MC1"}, time.Now()); err == nil {
		t.Fatal("expected parse error for non-JSON content")
	}
}

func TestEnrichServerErrorFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	enricher := NewMessageCenterEnricher(testOpenAIConfig(server))
	if _, err := enricher.Enrich(context.Background(), domain.RawItem{"id": "MC1"}, time.Now()); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestCompleteRejectsMissingConfiguration(t *testing.T) {
	t.Parallel()

	unconfigured := newClient(config.OpenAIConfig{})
	if _, err := unconfigured.complete(context.Background(), "system", "user", 100); err == nil {
		t.Fatal("expected misconfiguration error")
	}
}

func TestBuildMessageCenterPromptExtractsDetails(t *testing.T) {
	t.Parallel()

	item := domain.RawItem{
		"id":       "MC42",
		"title":    "Teams update",
		"services": []any{"Microsoft Teams"},
		"category": "planForChange",
		"body":     map[string]any{"content": "<p>New <b>feature</b> rolling out.</p>"},
		"details": []any{
			map[string]any{"name": "Platforms", "value": "Web, Desktop"},
			map[string]any{"name": "RoadmapIds", "value": "12345"},
		},
		"startDateTime":        "2026-03-01T00:00:00Z",
		"lastModifiedDateTime": "2026-03-02T00:00:00Z",
	}

	prompt, err := buildMessageCenterPrompt(item, time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build prompt: %v", err)
	}

	var payload struct {
		ReportDate string           `json:"report_date"`
		Items      []map[string]any `json:"items"`
	}
	if err := json.Unmarshal([]byte(prompt), &payload); err != nil {
		t.Fatalf("prompt is not valid JSON: %v", err)
	}
	if payload.ReportDate != "2026-03-03" {
		t.Fatalf("unexpected report date: %s", payload.ReportDate)
	}
	if len(payload.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(payload.Items))
	}

	got := payload.Items[0]
	if got["service"] != "Microsoft Teams" {
		t.Fatalf("service not extracted: %v", got["service"])
	}
	if got["platforms"] != "Web, Desktop" {
		t.Fatalf("platforms detail not extracted: %v", got["platforms"])
	}
	if got["roadmap_id"] != "12345" {
		t.Fatalf("roadmap detail not extracted: %v", got["roadmap_id"])
	}
	if got["summary"] != "New feature rolling out." {
		t.Fatalf("body not flattened: %v", got["summary"])
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"plain   text\nwith\twhitespace", "plain text with whitespace"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := stripHTML(tc.in); got != tc.want {
			t.Fatalf("stripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSummarizePostsKeepsNewestThree(t *testing.T) {
	t.Parallel()

	posts := []any{}
	for i := 1; i <= 5; i++ {
		posts = append(posts, map[string]any{
			"createdDateTime": fmt.Sprintf("2026-03-0%dT00:00:00Z", i),
			"postType":        "regular",
			"description":     map[string]any{"content": fmt.Sprintf("<p>Post %d</p>", i)},
		})
	}

	digest := summarizePosts(posts)
	if strings.Contains(digest, "Post 1") || strings.Contains(digest, "Post 2") {
		t.Fatalf("old posts should be dropped: %s", digest)
	}
	for i := 3; i <= 5; i++ {
		if !strings.Contains(digest, fmt.Sprintf("Post %d", i)) {
			t.Fatalf("post %d missing from digest: %s", i, digest)
		}
	}
	if strings.Count(digest, " | ") != 2 {
		t.Fatalf("expected three joined entries: %s", digest)
	}
}

func TestSummarizePostsHandlesStringDescriptions(t *testing.T) {
	t.Parallel()

	digest := summarizePosts([]any{
		map[string]any{"createdDateTime": "2026-03-01T00:00:00Z", "description": "plain update"},
	})
	if !strings.Contains(digest, "plain update") {
		t.Fatalf("string description lost: %s", digest)
	}
}

func TestTruncateCapsLongText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 1200)
	got := truncate(long, 1000)
	if len(got) != 1003 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation: len=%d", len(got))
	}
	if truncate("short", 1000) != "short" {
		t.Fatal("short text must pass through")
	}
}
