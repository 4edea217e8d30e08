// Package signal wraps the external signal services the decision engine
// consults: news search, language-model scoring and the shared cross-instance
// memory store. All clients are stateless request/response wrappers with
// bounded timeouts; callers decide how to degrade on failure.
package signal

import (
	"fmt"
	"strings"
	"time"
)

// Sentiment is the AI-classified direction of a news digest.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// NewsItem is a single retrieved news article.
type NewsItem struct {
	Title          string  `json:"title"`
	Content        string  `json:"content"`
	URL            string  `json:"url,omitempty"`
	PublishedAt    string  `json:"published_at,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Analysis is the structured result of an AI correlation request.
type Analysis struct {
	ImpactScore float64   `json:"impact_score"`
	Sentiment   Sentiment `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
	Reasoning   string    `json:"reasoning"`
}

// NeutralAnalysis is the fail-closed default: absence of a valid AI signal
// must never by itself authorize a trade.
func NeutralAnalysis(reason string) Analysis {
	return Analysis{
		ImpactScore: 0.0,
		Sentiment:   SentimentNeutral,
		Confidence:  0.0,
		Reasoning:   reason,
	}
}

// Event is a single AI correlation result, the unit written to shared
// memory. Writes are append-only and tagged with the owning bot and
// timestamp; reads are unscoped across all instances.
type Event struct {
	BotID     string    `json:"bot_id"`
	Pair      string    `json:"pair"`
	Timestamp time.Time `json:"timestamp"`

	NewsDigest  string    `json:"news_digest"`
	Sentiment   Sentiment `json:"sentiment"`
	ImpactScore float64   `json:"impact_score"`
	Confidence  float64   `json:"confidence"`
	Rationale   string    `json:"rationale,omitempty"`

	RSIAtEvaluation   float64 `json:"rsi_at_evaluation"`
	PriceAtEvaluation float64 `json:"price_at_evaluation"`
}

// MemoryContent renders the compact entry string stored alongside the
// structured fields in shared memory.
func (e *Event) MemoryContent() string {
	digest := e.NewsDigest
	if len(digest) > 100 {
		digest = digest[:100] + "..."
	}
	return fmt.Sprintf("News: %s | RSI: %.1f | Price: %.4f | Impact: %.2f | Sentiment: %s",
		digest, e.RSIAtEvaluation, e.PriceAtEvaluation, e.ImpactScore, e.Sentiment)
}

// SummarizeNews renders the top three items as a compact digest for the
// language model. Returns a fixed placeholder when nothing was found so the
// digest is never empty.
func SummarizeNews(items []NewsItem) string {
	if len(items) == 0 {
		return "No recent news found."
	}
	var b strings.Builder
	for i, item := range items {
		if i == 3 {
			break
		}
		content := item.Content
		if len(content) > 150 {
			content = content[:150] + "..."
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, item.Title, content)
	}
	return strings.TrimRight(b.String(), "\n")
}
