// Package engine implements the hybrid decision engine each bot process
// runs as its entry-confirmation hook: a technical RSI trigger, throttled
// news retrieval, AI correlation scoring, a pooled-history veto and an
// append-only write-back to shared memory.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustamli/aitrader/internal/bot"
	"github.com/rustamli/aitrader/internal/signal"
)

const (
	defaultNewsWindow    = "24h"
	defaultHistoryWindow = 24 * time.Hour
	defaultHistoryLimit  = 50
	defaultCallTimeout   = 30 * time.Second
)

// Config parameterizes one engine instance. An engine belongs to exactly
// one bot process; the throttle cache is private to it and never shared.
type Config struct {
	BotID  string
	Pair   string
	Params bot.Params

	NewsWindow    string        // e.g. "24h"
	HistoryWindow time.Duration // recency window for pooled history
	HistoryLimit  int
	CallTimeout   time.Duration // bound on each external call
}

func (c *Config) applyDefaults() {
	if c.NewsWindow == "" {
		c.NewsWindow = defaultNewsWindow
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = defaultHistoryWindow
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defaultCallTimeout
	}
}

// Evaluation is one entry opportunity handed over by the execution engine
// at its normal candle cadence.
type Evaluation struct {
	Closes []float64 // oldest to newest, current candle last
	Price  float64
	Time   time.Time
}

// Decision is the engine's verdict. It is always well formed: internal
// failures surface as a deny with a rationale, never as an error or panic
// back into the execution engine.
type Decision struct {
	Allow     bool
	Rationale string
	RSI       float64
	Cached    bool
	Event     *signal.Event // set when a fresh AI evaluation ran
}

// throttleEntry caches the outcome of the last fresh fetch for a pair so
// call volume to external services is bounded by news_check_interval,
// independent of evaluation frequency.
type throttleEntry struct {
	lastFetch  time.Time
	analysis   signal.Analysis
	vetoed     bool
	vetoReason string
}

// Engine gates trade entries for a single bot instance.
type Engine struct {
	cfg    Config
	news   signal.NewsSearcher
	llm    signal.Analyzer
	memory signal.Memory
	policy HistoryPolicy
	logger *zap.Logger

	mu       sync.Mutex
	throttle map[string]*throttleEntry
}

// New constructs an engine. Policy may be nil, in which case the default
// average-impact policy applies.
func New(cfg Config, news signal.NewsSearcher, llm signal.Analyzer, memory signal.Memory, policy HistoryPolicy, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	if policy == nil {
		policy = DefaultHistoryPolicy()
	}
	return &Engine{
		cfg:      cfg,
		news:     news,
		llm:      llm,
		memory:   memory,
		policy:   policy,
		logger:   logger.Named("engine").With(zap.String("bot_id", cfg.BotID), zap.String("pair", cfg.Pair)),
		throttle: make(map[string]*throttleEntry),
	}
}

// ConfirmEntry decides whether the execution engine may open a position.
// Order of checks:
//
//  1. technical trigger (RSI in the oversold band): short-circuits with no
//     external calls when it does not fire
//  2. throttle: reuse the cached evaluation within news_check_interval
//  3. news retrieval, degrading to an empty digest on failure
//  4. AI correlation scoring, degrading to neutral/0.0 on total failure
//  5. pooled-history veto (stricter-only)
//  6. confirmation rule: impact >= threshold AND positive sentiment AND no veto
//  7. append the event to shared memory regardless of the verdict
func (e *Engine) ConfirmEntry(ctx context.Context, eval Evaluation) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Evaluation panicked", zap.Any("panic", r))
			decision = Decision{Allow: false, Rationale: fmt.Sprintf("internal failure: %v", r)}
		}
	}()

	rsi, err := RSI(eval.Closes, e.cfg.Params.RSIPeriod)
	if err != nil {
		return Decision{Allow: false, Rationale: fmt.Sprintf("insufficient price data: %v", err)}
	}

	if rsi > float64(e.cfg.Params.RSIOversold) {
		return Decision{
			Allow:     false,
			RSI:       rsi,
			Rationale: fmt.Sprintf("rsi %.1f above oversold threshold %d", rsi, e.cfg.Params.RSIOversold),
		}
	}

	if !e.cfg.Params.EnableAIAnalysis {
		return Decision{
			Allow:     true,
			RSI:       rsi,
			Rationale: "technical trigger fired, ai analysis disabled",
		}
	}

	if cached, ok := e.cachedDecision(eval.Time, rsi); ok {
		return cached
	}

	return e.freshEvaluation(ctx, eval, rsi)
}

func (e *Engine) interval() time.Duration {
	return time.Duration(e.cfg.Params.NewsCheckInterval) * time.Second
}

func (e *Engine) cachedDecision(now time.Time, rsi float64) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.throttle[e.cfg.Pair]
	if !ok || now.Sub(entry.lastFetch) >= e.interval() {
		return Decision{}, false
	}

	allow, rationale := confirm(entry.analysis, entry.vetoed, entry.vetoReason, e.cfg.Params.MinImpactScore)
	return Decision{
		Allow:     allow,
		RSI:       rsi,
		Cached:    true,
		Rationale: "cached: " + rationale,
	}, true
}

func (e *Engine) freshEvaluation(ctx context.Context, eval Evaluation, rsi float64) Decision {
	digest := e.fetchNewsDigest(ctx)
	analysis := e.analyze(ctx, digest, rsi, eval)
	history := e.queryHistory(ctx)

	vetoed, vetoReason := e.policy.Veto(analysis, history)

	event := signal.Event{
		BotID:             e.cfg.BotID,
		Pair:              e.cfg.Pair,
		Timestamp:         eval.Time.UTC(),
		NewsDigest:        digest,
		Sentiment:         analysis.Sentiment,
		ImpactScore:       analysis.ImpactScore,
		Confidence:        analysis.Confidence,
		Rationale:         analysis.Reasoning,
		RSIAtEvaluation:   rsi,
		PriceAtEvaluation: eval.Price,
	}

	// Both positive and negative evaluations feed the cross-instance
	// learning corpus. A failed append is logged, never fatal.
	appendCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	if err := e.memory.Append(appendCtx, event); err != nil {
		e.logger.Warn("Shared memory append failed",
			zap.Error(fmt.Errorf("%w: %v", bot.ErrSignalUnavailable, err)))
	}
	cancel()

	e.mu.Lock()
	e.throttle[e.cfg.Pair] = &throttleEntry{
		lastFetch:  eval.Time,
		analysis:   analysis,
		vetoed:     vetoed,
		vetoReason: vetoReason,
	}
	e.mu.Unlock()

	allow, rationale := confirm(analysis, vetoed, vetoReason, e.cfg.Params.MinImpactScore)

	e.logger.Info("Entry evaluation",
		zap.Bool("allow", allow),
		zap.Float64("rsi", rsi),
		zap.Float64("impact_score", analysis.ImpactScore),
		zap.String("sentiment", string(analysis.Sentiment)),
		zap.String("rationale", rationale))

	return Decision{
		Allow:     allow,
		RSI:       rsi,
		Rationale: rationale,
		Event:     &event,
	}
}

func (e *Engine) fetchNewsDigest(ctx context.Context) string {
	newsCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	items, err := e.news.SearchNews(newsCtx, e.cfg.Pair, e.cfg.NewsWindow)
	if err != nil {
		// Absence of news must never block or crash the pipeline.
		e.logger.Warn("News retrieval failed, treating as no news",
			zap.Error(fmt.Errorf("%w: %v", bot.ErrSignalUnavailable, err)))
		return signal.SummarizeNews(nil)
	}
	return signal.SummarizeNews(items)
}

func (e *Engine) analyze(ctx context.Context, digest string, rsi float64, eval Evaluation) signal.Analysis {
	llmCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	analysis, err := e.llm.AnalyzeCorrelation(llmCtx, signal.CorrelationRequest{
		Pair:          e.cfg.Pair,
		NewsDigest:    digest,
		RSI:           rsi,
		PriceMovement: PriceChangePercent(eval.Closes),
	})
	if err != nil {
		// Fail closed: a degraded AI signal is neutral with zero impact.
		e.logger.Warn("AI correlation scoring failed, treating as neutral",
			zap.Error(fmt.Errorf("%w: %v", bot.ErrSignalUnavailable, err)))
		return signal.NeutralAnalysis("analysis unavailable")
	}
	return analysis
}

func (e *Engine) queryHistory(ctx context.Context) []signal.Event {
	memCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	history, err := e.memory.Query(memCtx, e.cfg.Pair, e.cfg.HistoryWindow, e.cfg.HistoryLimit)
	if err != nil {
		e.logger.Warn("Shared memory query failed, skipping history check",
			zap.Error(fmt.Errorf("%w: %v", bot.ErrSignalUnavailable, err)))
		return nil
	}
	return history
}

// confirm applies the confirmation rule. All three conditions are
// necessary; none is individually sufficient.
func confirm(analysis signal.Analysis, vetoed bool, vetoReason string, minImpact float64) (bool, string) {
	if analysis.ImpactScore < minImpact {
		return false, fmt.Sprintf("impact score %.2f below minimum %.2f", analysis.ImpactScore, minImpact)
	}
	if analysis.Sentiment != signal.SentimentPositive {
		return false, fmt.Sprintf("sentiment %s is not positive", analysis.Sentiment)
	}
	if vetoed {
		return false, "history veto: " + vetoReason
	}
	return true, fmt.Sprintf("impact %.2f positive sentiment, no history veto", analysis.ImpactScore)
}
