package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"M365Monitor/internal/ports"
)

const requestTimeout = 10 * time.Second

// Notifier posts Adaptive Card payloads to a Teams webhook (Power Automate
// flavor). Any 2xx response counts as accepted; everything else is a delivery
// failure with no retry at this layer.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier wires the webhook URL.
func NewNotifier(webhookURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Send posts one card. A nil error means the sink accepted the payload.
func (n *Notifier) Send(ctx context.Context, payload map[string]any) error {
	if n.webhookURL == "" {
		return fmt.Errorf("teams notifier misconfigured: no webhook URL")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post card: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook rejected card: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	if n.logger != nil {
		n.logger.Debug("card accepted", "status", resp.StatusCode)
	}
	return nil
}

// LogOnly is the degraded sink used when no webhook is configured or dry-run
// is enabled: cards are logged instead of posted.
type LogOnly struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogOnly)(nil)

// NewLogOnly builds the log-only sink.
func NewLogOnly(logger *slog.Logger) *LogOnly {
	return &LogOnly{logger: logger}
}

// Send logs the card title and reports success.
func (l *LogOnly) Send(_ context.Context, payload map[string]any) error {
	if l.logger != nil {
		l.logger.Info("card ready (not sent: log-only mode)", "title", cardTitle(payload))
	}
	return nil
}

// cardTitle digs the first TextBlock text out of a card for log context.
func cardTitle(payload map[string]any) string {
	body, ok := payload["body"].([]map[string]any)
	if !ok {
		return ""
	}
	for _, block := range body {
		if block["type"] == "Container" {
			continue
		}
		if text, ok := block["text"].(string); ok {
			return text
		}
	}
	return ""
}
