package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"M365Monitor/internal/config"
	"M365Monitor/internal/domain"
)

const (
	enrichTemperature = 0.3
	requestTimeout    = 30 * time.Second
)

// client talks to an Azure OpenAI chat-completions deployment and extracts
// the first enriched item from the model's JSON response.
type client struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	http       *http.Client
}

func newClient(cfg config.OpenAIConfig) *client {
	return &client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		http:       &http.Client{Timeout: requestTimeout},
	}
}

// complete sends one system+user prompt pair and returns the first entry of
// the response's "items" array. A response without items yields (nil, nil):
// the collaborator produced nothing usable and the item should be skipped.
func (c *client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (domain.EnrichedItem, error) {
	if c.apiKey == "" || c.endpoint == "" || c.deployment == "" {
		return nil, fmt.Errorf("openai client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":     enrichTemperature,
		"max_tokens":      maxTokens,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, c.deployment, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("openai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices")
	}

	var parsed struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse enrichment JSON: %w", err)
	}
	if len(parsed.Items) == 0 {
		return nil, nil
	}

	return domain.EnrichedItem(parsed.Items[0]), nil
}

// truncate caps free-form text embedded into prompts.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
