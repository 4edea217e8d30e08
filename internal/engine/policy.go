package engine

import (
	"fmt"

	"github.com/rustamli/aitrader/internal/signal"
)

// HistoryPolicy decides whether the pooled cross-instance history suppresses
// the current entry. A policy can only make entry stricter: its verdict is
// ANDed with the impact/sentiment thresholds, never consulted to bypass them.
type HistoryPolicy interface {
	Veto(current signal.Analysis, history []signal.Event) (vetoed bool, reason string)
}

// AverageImpactPolicy is the default history policy. It vetoes when the
// recent pooled history holds a contradicting high-impact negative event,
// or when the current impact score sits well below the historical average
// for the pair.
type AverageImpactPolicy struct {
	// NegativeVetoThreshold is the impact score at or above which a recent
	// negative-sentiment event suppresses entry.
	NegativeVetoThreshold float64

	// BelowAverageRatio vetoes when current impact < ratio * historical
	// average. Zero disables the check.
	BelowAverageRatio float64
}

// DefaultHistoryPolicy returns the policy shipped with the strategy
// template defaults.
func DefaultHistoryPolicy() *AverageImpactPolicy {
	return &AverageImpactPolicy{
		NegativeVetoThreshold: 0.6,
		BelowAverageRatio:     0.5,
	}
}

func (p *AverageImpactPolicy) Veto(current signal.Analysis, history []signal.Event) (bool, string) {
	for _, event := range history {
		if event.Sentiment == signal.SentimentNegative && event.ImpactScore >= p.NegativeVetoThreshold {
			return true, fmt.Sprintf("recent negative event with impact %.2f from bot %s",
				event.ImpactScore, event.BotID)
		}
	}

	if p.BelowAverageRatio > 0 {
		avg := signal.AverageImpact(history)
		if avg > 0 && current.ImpactScore < avg*p.BelowAverageRatio {
			return true, fmt.Sprintf("impact %.2f well below historical average %.2f",
				current.ImpactScore, avg)
		}
	}
	return false, ""
}

// NoopPolicy never vetoes. Useful for bots that should rely on the
// impact/sentiment thresholds alone.
type NoopPolicy struct{}

func (NoopPolicy) Veto(signal.Analysis, []signal.Event) (bool, string) { return false, "" }
