package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultLLMTimeout = 60 * time.Second

	correlationSystemPrompt = "You are a crypto market analyst. Respond only with valid JSON."
)

// CorrelationRequest carries everything the model needs to score how
// strongly recent news should influence a trade decision.
type CorrelationRequest struct {
	Pair          string
	NewsDigest    string
	RSI           float64
	PriceMovement float64 // percent change over the last candle
}

// Analyzer scores the correlation between news and price movement.
type Analyzer interface {
	AnalyzeCorrelation(ctx context.Context, req CorrelationRequest) (Analysis, error)
}

// Endpoint identifies one OpenRouter-compatible chat completion endpoint.
type Endpoint struct {
	Model   string
	BaseURL string
	APIKey  string
}

func (e Endpoint) configured() bool { return e.Model != "" && e.BaseURL != "" }

// LLMClient talks to a primary model endpoint and falls back to a secondary
// one when the primary fails. Total failure is returned as an error; the
// caller (the decision engine) converts it into a neutral, fail-closed
// analysis.
type LLMClient struct {
	primary    Endpoint
	fallback   Endpoint
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLLMClient constructs an LLM client. The fallback endpoint may be the
// zero value if no fallback is configured.
func NewLLMClient(primary, fallback Endpoint, logger *zap.Logger) *LLMClient {
	return &LLMClient{
		primary:    primary,
		fallback:   fallback,
		httpClient: &http.Client{Timeout: defaultLLMTimeout},
		logger:     logger.Named("llm"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// AnalyzeCorrelation asks the model for a structured impact assessment of
// the news digest against the current technical context. The fallback
// endpoint is tried once if the primary fails.
func (c *LLMClient) AnalyzeCorrelation(ctx context.Context, req CorrelationRequest) (Analysis, error) {
	prompt := buildCorrelationPrompt(req)

	content, err := c.complete(ctx, c.primary, prompt)
	if err != nil {
		c.logger.Warn("Primary model failed",
			zap.String("model", c.primary.Model),
			zap.Error(err))

		if !c.fallback.configured() {
			return Analysis{}, fmt.Errorf("primary model: %w", err)
		}

		c.logger.Info("Attempting fallback model", zap.String("model", c.fallback.Model))
		content, err = c.complete(ctx, c.fallback, prompt)
		if err != nil {
			return Analysis{}, fmt.Errorf("fallback model: %w", err)
		}
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		c.logger.Error("Failed to parse model response",
			zap.String("content", content),
			zap.Error(err))
		return Analysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	return analysis, nil
}

func (c *LLMClient) complete(ctx context.Context, ep Endpoint, prompt string) (string, error) {
	if !ep.configured() {
		return "", fmt.Errorf("endpoint not configured")
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model: ep.Model,
		Messages: []chatMessage{
			{Role: "system", Content: correlationSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(ep.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d", resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func buildCorrelationPrompt(req CorrelationRequest) string {
	return fmt.Sprintf(`Analyze the correlation between news and price movement for %s.

News Summary:
%s

Technical Indicators:
- RSI: %.1f
- Price Change: %.2f%%

Task: Determine the IMPACT SCORE (0.0 to 1.0) of how much the news influenced the price movement.
Consider:
1. News sentiment (positive/negative/neutral)
2. News relevance to %s
3. Correlation with price movement direction
4. RSI confirmation of trend

Respond in JSON format:
{
  "impact_score": <float 0.0-1.0>,
  "sentiment": "<positive|negative|neutral>",
  "confidence": <float 0.0-1.0>,
  "reasoning": "<brief explanation>"
}`, req.Pair, req.NewsDigest, req.RSI, req.PriceMovement, req.Pair)
}

// parseAnalysis decodes the model output, tolerating surrounding markdown
// code fences, and clamps scores into their valid ranges.
func parseAnalysis(content string) (Analysis, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var a Analysis
	if err := json.Unmarshal([]byte(trimmed), &a); err != nil {
		return Analysis{}, err
	}

	switch a.Sentiment {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
	default:
		a.Sentiment = SentimentNeutral
	}
	a.ImpactScore = clamp01(a.ImpactScore)
	a.Confidence = clamp01(a.Confidence)
	return a, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
