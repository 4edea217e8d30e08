package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const defaultNewsTimeout = 30 * time.Second

// NewsSearcher retrieves recent news for a trading pair.
type NewsSearcher interface {
	SearchNews(ctx context.Context, pair, window string) ([]NewsItem, error)
}

// NewsClient queries a Perplexica-compatible AI news search service.
type NewsClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	limit      int
}

// NewNewsClient constructs a news client. apiKey may be empty for
// unauthenticated deployments.
func NewNewsClient(baseURL, apiKey string, logger *zap.Logger) *NewsClient {
	return &NewsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultNewsTimeout},
		logger:     logger.Named("news"),
		limit:      5,
	}
}

type newsSearchRequest struct {
	Query string `json:"query"`
	Focus string `json:"focus"`
	Limit int    `json:"limit"`
}

type newsSearchResponse struct {
	Results []NewsItem `json:"results"`
}

// SearchNews queries the service for recent news on the pair's base
// currency within the given window (e.g. "24h"). Transient failures are
// retried twice with exponential backoff before the error is returned.
func (c *NewsClient) SearchNews(ctx context.Context, pair, window string) ([]NewsItem, error) {
	base := pair
	if idx := strings.Index(pair, "/"); idx > 0 {
		base = pair[:idx]
	}
	query := fmt.Sprintf("%s cryptocurrency news price analysis last %s", base, window)

	operation := func() ([]NewsItem, error) {
		return c.search(ctx, query)
	}
	notify := func(err error, d time.Duration) {
		c.logger.Warn("News search retry", zap.Error(err), zap.Duration("backoff", d))
	}

	items, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("search news for %s: %w", pair, err)
	}

	if len(items) > c.limit {
		items = items[:c.limit]
	}
	return items, nil
}

func (c *NewsClient) search(ctx context.Context, query string) ([]NewsItem, error) {
	body, err := json.Marshal(newsSearchRequest{Query: query, Focus: "news", Limit: c.limit})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news search returned status %d", resp.StatusCode)
	}

	var parsed newsSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.Results, nil
}
