// ====================================
// File: cmd/agent/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rustamli/aitrader/internal/agent"
	"github.com/rustamli/aitrader/internal/logger"
	"github.com/rustamli/aitrader/internal/storage"
	"github.com/rustamli/aitrader/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to materialized bot config")
	healthAddr := flag.String("health-addr", agent.DefaultHealthAddr, "liveness endpoint address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log, err := logger.Init(*debug, "")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if *configPath == "" {
		log.Fatal("missing --config flag")
	}

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to load agent config", zap.Error(err))
	}

	var store storage.Store
	if cfg.Services.DatabaseURL != "" {
		store, err = postgres.NewStore(cfg.Services.DatabaseURL, log)
		if err != nil {
			// The audit trail is best effort; the bot still runs without it.
			log.Warn("Audit storage unavailable", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	feed := agent.NewRandomWalkFeed(100.0, time.Now().UnixNano())
	runner := agent.NewRunner(cfg, feed, store, log)
	runner.SetHealthAddr(*healthAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal("Agent execution error", zap.Error(err))
	}
}
