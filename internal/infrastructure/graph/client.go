package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"M365Monitor/internal/config"
	"M365Monitor/internal/domain"
	"M365Monitor/internal/ports"
)

const (
	defaultSinceWindow = 6 * time.Hour
	requestTimeout     = 10 * time.Second

	liveFetchTop   = 50
	recentFetchTop = 100
)

// Client fetches raw announcement records for one Graph service-announcement
// resource (Message Center messages or Service Health issues).
type Client struct {
	feed     domain.Feed
	baseURL  string
	resource string
	tokens   *tokenSource
	cursor   ports.CursorStore
	http     *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.FeedSource = (*Client)(nil)

// NewMessageCenter builds a feed client over serviceAnnouncement/messages.
func NewMessageCenter(cfg config.GraphConfig, cursor ports.CursorStore, logger *slog.Logger) *Client {
	return newClient(domain.FeedMessageCenter, "messages", cfg, cursor, logger)
}

// NewServiceHealth builds a feed client over serviceAnnouncement/issues.
func NewServiceHealth(cfg config.GraphConfig, cursor ports.CursorStore, logger *slog.Logger) *Client {
	return newClient(domain.FeedServiceHealth, "issues", cfg, cursor, logger)
}

func newClient(feed domain.Feed, resource string, cfg config.GraphConfig, cursor ports.CursorStore, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: requestTimeout}
	return &Client{
		feed:     feed,
		baseURL:  strings.TrimSuffix(cfg.Endpoint, "/"),
		resource: resource,
		tokens:   newTokenSource(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, httpClient),
		cursor:   cursor,
		http:     httpClient,
		logger:   logger,
		now:      time.Now,
	}
}

// Feed returns which feed this client serves.
func (c *Client) Feed() domain.Feed { return c.feed }

// Connect validates the credentials by acquiring an initial token.
func (c *Client) Connect(ctx context.Context) error {
	if _, err := c.tokens.Token(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.feed.Key(), err)
	}
	c.debug("connected", "feed", c.feed.Key())
	return nil
}

// FetchSince returns items modified after the persisted cursor (six hours
// back when no cursor exists). A completed round trip, not a non-empty
// result, defines progress: the cursor advances to now on success even when
// zero items came back, and stays put on any failure.
func (c *Client) FetchSince(ctx context.Context) ([]domain.RawItem, error) {
	since, ok := c.cursor.Load()
	if !ok {
		since = c.now().Add(-defaultSinceWindow)
	}

	items, err := c.fetchWindow(ctx, since, liveFetchTop)
	if err != nil {
		return nil, err
	}

	if err := c.cursor.Store(c.now()); err != nil {
		c.warn("cannot persist cursor", "feed", c.feed.Key(), "error", err)
	}

	c.debug("fetched new items", "feed", c.feed.Key(), "since", since.UTC().Format(time.RFC3339), "count", len(items))
	return items, nil
}

// FetchRecent returns items modified within the trailing window. Stateless:
// the cursor is never touched.
func (c *Client) FetchRecent(ctx context.Context, hoursBack int) ([]domain.RawItem, error) {
	cutoff := c.now().Add(-time.Duration(hoursBack) * time.Hour)

	items, err := c.fetchWindow(ctx, cutoff, recentFetchTop)
	if err != nil {
		return nil, err
	}

	c.debug("fetched recent items", "feed", c.feed.Key(), "hours_back", hoursBack, "count", len(items))
	return items, nil
}

// fetchWindow queries the resource for items modified after cutoff. Some
// tenants reject the $filter parameter; on a 400 the query is retried once
// without it and the window is applied locally so no item is silently lost.
func (c *Client) fetchWindow(ctx context.Context, cutoff time.Time, top int) ([]domain.RawItem, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	items, status, err := c.query(ctx, token, cutoff, top, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest {
		c.warn("server rejected filter, retrying without it", "feed", c.feed.Key())
		items, status, err = c.query(ctx, token, cutoff, top, false)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s fetch failed with status %d", c.feed.Key(), status)
	}

	return c.filterSince(items, cutoff), nil
}

// query performs one Graph request. A 400 with the filter present is reported
// through the status code so the caller can retry unfiltered; every other
// non-200 is an error.
func (c *Client) query(ctx context.Context, token string, cutoff time.Time, top int, withFilter bool) ([]domain.RawItem, int, error) {
	endpoint := fmt.Sprintf("%s/admin/serviceAnnouncement/%s", c.baseURL, c.resource)

	params := url.Values{}
	params.Set("$orderby", "lastModifiedDateTime desc")
	params.Set("$top", fmt.Sprintf("%d", top))
	if withFilter {
		params.Set("$filter", fmt.Sprintf("lastModifiedDateTime gt %s", cutoff.UTC().Format(time.RFC3339)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request: %w", c.feed.Key(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest && withFilter {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, http.StatusBadRequest, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, fmt.Errorf("%s fetch: %s: %s", c.feed.Key(), resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Value []map[string]any `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode %s response: %w", c.feed.Key(), err)
	}

	items := make([]domain.RawItem, 0, len(payload.Value))
	for _, record := range payload.Value {
		items = append(items, domain.RawItem(record))
	}
	return items, http.StatusOK, nil
}

// filterSince drops items modified at or before the cutoff. Records without a
// parsable timestamp count as current, matching the server's unfiltered view.
func (c *Client) filterSince(items []domain.RawItem, cutoff time.Time) []domain.RawItem {
	filtered := make([]domain.RawItem, 0, len(items))
	for _, item := range items {
		if item.ReportDate(c.now()).After(cutoff) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
