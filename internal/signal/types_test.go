package signal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeNews(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "No recent news found.", SummarizeNews(nil))
		assert.Equal(t, "No recent news found.", SummarizeNews([]NewsItem{}))
	})

	t.Run("numbers the top three", func(t *testing.T) {
		items := []NewsItem{
			{Title: "ETF inflows surge", Content: "Spot ETFs recorded record inflows"},
			{Title: "Exchange outage", Content: "A major venue halted withdrawals"},
			{Title: "Hashrate peak", Content: "Network hashrate hit a new high"},
			{Title: "Ignored", Content: "Fourth item must be dropped"},
		}

		digest := SummarizeNews(items)
		assert.Contains(t, digest, "1. ETF inflows surge: Spot ETFs recorded record inflows")
		assert.Contains(t, digest, "3. Hashrate peak:")
		assert.NotContains(t, digest, "Ignored")
		assert.Equal(t, 3, strings.Count(digest, "\n")+1, "one line per item")
	})

	t.Run("truncates long content", func(t *testing.T) {
		long := strings.Repeat("x", 200)
		digest := SummarizeNews([]NewsItem{{Title: "Long", Content: long}})
		assert.Contains(t, digest, strings.Repeat("x", 150)+"...")
		assert.NotContains(t, digest, strings.Repeat("x", 151))
	})
}

func TestNeutralAnalysis(t *testing.T) {
	analysis := NeutralAnalysis("analysis unavailable")
	assert.Equal(t, SentimentNeutral, analysis.Sentiment)
	assert.Zero(t, analysis.ImpactScore)
	assert.Zero(t, analysis.Confidence)
	assert.Equal(t, "analysis unavailable", analysis.Reasoning)
}

func TestMemoryContent(t *testing.T) {
	event := Event{
		NewsDigest:        "1. ETF inflows surge: record demand",
		RSIAtEvaluation:   27.4,
		PriceAtEvaluation: 64250.1234,
		ImpactScore:       0.82,
		Sentiment:         SentimentPositive,
	}

	content := event.MemoryContent()
	assert.Equal(t,
		"News: 1. ETF inflows surge: record demand | RSI: 27.4 | Price: 64250.1234 | Impact: 0.82 | Sentiment: positive",
		content)
}

func TestMemoryContentTruncatesDigest(t *testing.T) {
	event := Event{NewsDigest: strings.Repeat("n", 150)}
	content := event.MemoryContent()
	assert.Contains(t, content, strings.Repeat("n", 100)+"...")
	assert.NotContains(t, content, strings.Repeat("n", 101))
}

func TestAverageImpact(t *testing.T) {
	assert.Zero(t, AverageImpact(nil))
	assert.InDelta(t, 0.5, AverageImpact([]Event{
		{ImpactScore: 0.2},
		{ImpactScore: 0.8},
	}), 0.0001)
}
