// =================================
// File: internal/agent/runner.go
// =================================
package agent

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustamli/aitrader/internal/engine"
	"github.com/rustamli/aitrader/internal/signal"
	"github.com/rustamli/aitrader/internal/storage"
)

const (
	// DefaultHealthAddr is where the agent serves its liveness endpoint.
	DefaultHealthAddr = ":8081"

	// candleHistory is how many closes the runner requests per evaluation.
	// Enough for RSI plus headroom.
	candleHistory = 50
)

// Runner is the in-container bot process: it drives the evaluation loop at
// candle cadence and gates every entry through the decision engine.
type Runner struct {
	cfg        *Config
	engine     *engine.Engine
	feed       PriceFeed
	store      storage.Store
	logger     *zap.Logger
	healthAddr string

	mu          sync.Mutex
	evaluations int
	lastAllow   bool
	lastReason  string
	lastAt      time.Time
}

// NewRunner wires the signal clients and the decision engine from the
// materialized config. Store may be nil when no audit database is
// configured.
func NewRunner(cfg *Config, feed PriceFeed, store storage.Store, logger *zap.Logger) *Runner {
	news := signal.NewNewsClient(cfg.Services.NewsURL, cfg.Services.NewsAPIKey, logger)
	llm := signal.NewLLMClient(
		signal.Endpoint{
			Model:   cfg.Services.LLMPrimaryModel,
			BaseURL: cfg.Services.LLMPrimaryURL,
			APIKey:  cfg.Services.LLMPrimaryAPIKey,
		},
		signal.Endpoint{
			Model:   cfg.Services.LLMFallbackModel,
			BaseURL: cfg.Services.LLMFallbackURL,
			APIKey:  cfg.Services.LLMFallbackAPIKey,
		},
		logger,
	)
	memory := signal.NewMemoryClient(cfg.Services.MemoryURL, cfg.Services.MemoryToken, logger)

	eng := engine.New(engine.Config{
		BotID:  cfg.BotID,
		Pair:   cfg.Pair,
		Params: cfg.Params,
	}, news, llm, memory, nil, logger)

	return &Runner{
		cfg:        cfg,
		engine:     eng,
		feed:       feed,
		store:      store,
		logger:     logger.Named("agent"),
		healthAddr: DefaultHealthAddr,
	}
}

// SetHealthAddr overrides the liveness endpoint address. Must be called
// before Run.
func (r *Runner) SetHealthAddr(addr string) {
	r.healthAddr = addr
}

// Run drives the evaluation loop until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	interval, err := ParseTimeframe(r.cfg.Timeframe)
	if err != nil {
		return err
	}

	r.logger.Info("agent starting",
		zap.String("bot_id", r.cfg.BotID),
		zap.String("pair", r.cfg.Pair),
		zap.String("timeframe", r.cfg.Timeframe),
		zap.Bool("dry_run", r.cfg.DryRun))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.serveHealth(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.evaluate(gctx)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				r.evaluate(gctx)
			}
		}
	})

	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (r *Runner) evaluate(ctx context.Context) {
	closes, err := r.feed.Candles(ctx, r.cfg.Pair, r.cfg.Timeframe, candleHistory)
	if err != nil {
		r.logger.Warn("candle fetch failed", zap.Error(err))
		return
	}
	if len(closes) == 0 {
		return
	}
	price := closes[len(closes)-1]

	decision := r.engine.ConfirmEntry(ctx, engine.Evaluation{
		Closes: closes,
		Price:  price,
		Time:   time.Now().UTC(),
	})

	r.mu.Lock()
	r.evaluations++
	r.lastAllow = decision.Allow
	r.lastReason = decision.Rationale
	r.lastAt = time.Now().UTC()
	r.mu.Unlock()

	if decision.Event != nil && r.store != nil {
		if err := r.store.SaveSignal(ctx, decision.Event); err != nil {
			r.logger.Warn("signal audit write failed", zap.Error(err))
		}
	}

	if decision.Allow {
		// Order placement hook. In dry-run mode the entry is only logged.
		r.logger.Info("entry confirmed",
			zap.Float64("price", price),
			zap.Float64("rsi", decision.RSI),
			zap.String("rationale", decision.Rationale),
			zap.Bool("dry_run", r.cfg.DryRun))
		return
	}

	r.logger.Debug("entry rejected",
		zap.Float64("price", price),
		zap.Float64("rsi", decision.RSI),
		zap.Bool("cached", decision.Cached),
		zap.String("rationale", decision.Rationale))
}

func (r *Runner) serveHealth(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/health", r.handleHealth).Methods("GET")

	srv := &http.Server{
		Addr:        r.healthAddr,
		Handler:     router,
		ReadTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func (r *Runner) handleHealth(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	evaluations := r.evaluations
	lastAllow := r.lastAllow
	lastReason := r.lastReason
	lastAt := r.lastAt
	r.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","bot_id":%q,"evaluations":%d,"last_allow":%t,"last_rationale":%q,"last_evaluated_at":%q}`,
		r.cfg.BotID, evaluations, lastAllow, lastReason, lastAt.Format(time.RFC3339))
}

// ParseTimeframe converts a candle timeframe like "15m", "1h" or "1d" into
// its duration.
func ParseTimeframe(timeframe string) (time.Duration, error) {
	tf := strings.TrimSpace(strings.ToLower(timeframe))
	if tf == "" {
		return 0, fmt.Errorf("empty timeframe")
	}

	unit := tf[len(tf)-1:]
	value, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}

	switch unit {
	case "s":
		return time.Duration(value) * time.Second, nil
	case "m":
		return time.Duration(value) * time.Minute, nil
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid timeframe %q", timeframe)
	}
}
