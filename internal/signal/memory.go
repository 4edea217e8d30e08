package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const defaultMemoryTimeout = 15 * time.Second

// Memory is the shared cross-instance store of past signal evaluations.
// Append is scoped to the writing bot and strictly append-only; Query is
// unscoped so any instance can learn from the pooled history of all bots.
type Memory interface {
	Append(ctx context.Context, event Event) error
	Query(ctx context.Context, pair string, window time.Duration, limit int) ([]Event, error)
}

// MemoryClient talks to a Graphiti-compatible graph memory service.
type MemoryClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewMemoryClient(baseURL, token string, logger *zap.Logger) *MemoryClient {
	return &MemoryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultMemoryTimeout},
		logger:     logger.Named("memory"),
	}
}

type memoryEntry struct {
	Entity   string         `json:"entity"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type memoryQueryResponse struct {
	Entries []struct {
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
	} `json:"entries"`
}

// Append writes one signal event as a new memory entry. Retried with
// backoff on transient failure; the entry carries the owning bot id and
// timestamp so no instance can overwrite another's history.
func (c *MemoryClient) Append(ctx context.Context, event Event) error {
	entry := memoryEntry{
		Entity:  event.Pair,
		Content: event.MemoryContent(),
		Metadata: map[string]any{
			"type":         "trading_signal",
			"bot_id":       event.BotID,
			"timestamp":    event.Timestamp.UTC().Format(time.RFC3339),
			"sentiment":    string(event.Sentiment),
			"impact_score": event.ImpactScore,
			"confidence":   event.Confidence,
			"rsi":          event.RSIAtEvaluation,
			"price":        event.PriceAtEvaluation,
			"news_digest":  event.NewsDigest,
		},
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.post(ctx, entry)
	}
	notify := func(err error, d time.Duration) {
		c.logger.Warn("Memory append retry", zap.Error(err), zap.Duration("backoff", d))
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithNotify(notify))
	if err != nil {
		return fmt.Errorf("append memory for %s: %w", event.Pair, err)
	}
	return nil
}

func (c *MemoryClient) post(ctx context.Context, entry memoryEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/memory", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("memory append returned status %d", resp.StatusCode)
	}
	return nil
}

// Query returns prior signal events for the pair across all bot instances,
// newest entries last in append order. Events older than the window are
// filtered out client-side.
func (c *MemoryClient) Query(ctx context.Context, pair string, window time.Duration, limit int) ([]Event, error) {
	params := url.Values{}
	params.Set("entity", pair)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/memory/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("memory query returned status %d", resp.StatusCode)
	}

	var parsed memoryQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	cutoff := time.Now().Add(-window)
	events := make([]Event, 0, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		event := eventFromMetadata(pair, entry.Metadata)
		if window > 0 && event.Timestamp.Before(cutoff) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func eventFromMetadata(pair string, meta map[string]any) Event {
	event := Event{Pair: pair, Sentiment: SentimentNeutral}

	if v, ok := meta["bot_id"].(string); ok {
		event.BotID = v
	}
	if v, ok := meta["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			event.Timestamp = ts
		}
	}
	if v, ok := meta["sentiment"].(string); ok {
		switch Sentiment(v) {
		case SentimentPositive, SentimentNegative, SentimentNeutral:
			event.Sentiment = Sentiment(v)
		}
	}
	if v, ok := meta["impact_score"].(float64); ok {
		event.ImpactScore = v
	}
	if v, ok := meta["confidence"].(float64); ok {
		event.Confidence = v
	}
	if v, ok := meta["rsi"].(float64); ok {
		event.RSIAtEvaluation = v
	}
	if v, ok := meta["price"].(float64); ok {
		event.PriceAtEvaluation = v
	}
	if v, ok := meta["news_digest"].(string); ok {
		event.NewsDigest = v
	}
	return event
}

// AverageImpact computes the mean impact score over a set of events.
// Returns 0 for an empty history.
func AverageImpact(events []Event) float64 {
	if len(events) == 0 {
		return 0
	}
	var sum float64
	for _, e := range events {
		sum += e.ImpactScore
	}
	return sum / float64(len(events))
}
