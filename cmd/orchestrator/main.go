// ====================================
// File: cmd/orchestrator/main.go
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
	"golang.org/x/sync/errgroup"

	"github.com/rustamli/aitrader/internal/agent"
	"github.com/rustamli/aitrader/internal/api"
	"github.com/rustamli/aitrader/internal/config"
	"github.com/rustamli/aitrader/internal/events"
	"github.com/rustamli/aitrader/internal/logger"
	"github.com/rustamli/aitrader/internal/manager"
	"github.com/rustamli/aitrader/internal/runtime"
	"github.com/rustamli/aitrader/internal/shutdown"
	"github.com/rustamli/aitrader/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to orchestrator config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.Init(cfg.DebugLogging, "")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting orchestrator")

	store, err := postgres.NewStore(cfg.PostgresURL, log)
	if err != nil {
		log.Fatal("Failed to connect to storage", zap.Error(err))
	}
	if err := store.RunMigrations(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	rt, err := runtime.NewDockerRuntime(ctx, runtime.DockerConfig{
		Image:         cfg.Docker.Image,
		ConfigDir:     cfg.Docker.ConfigDir,
		Network:       cfg.Docker.Network,
		HealthTimeout: time.Duration(cfg.Docker.HealthTimeout) * time.Second,
		Services: agent.ServiceEndpoints{
			NewsURL:           cfg.Services.NewsURL,
			NewsAPIKey:        cfg.Services.NewsAPIKey,
			MemoryURL:         cfg.Services.MemoryURL,
			MemoryToken:       cfg.Services.MemoryAPIKey,
			LLMPrimaryModel:   cfg.Services.LLMModel,
			LLMPrimaryURL:     cfg.Services.LLMBaseURL,
			LLMPrimaryAPIKey:  cfg.Services.LLMAPIKey,
			LLMFallbackModel:  cfg.Services.FallbackModel,
			LLMFallbackURL:    cfg.Services.FallbackBaseURL,
			LLMFallbackAPIKey: cfg.Services.FallbackAPIKey,
			DatabaseURL:       cfg.PostgresURL,
		},
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to docker runtime", zap.Error(err))
	}

	bus := events.NewBus(log, 128)

	mgr := manager.New(manager.Config{
		StartRetries:      uint(cfg.Manager.StartRetries),
		StopGrace:         time.Duration(cfg.Manager.StopGraceSeconds) * time.Second,
		ReconcileInterval: time.Duration(cfg.Manager.ReconcileInterval) * time.Second,
	}, store, rt, bus, log)

	server := api.NewServer(cfg.ListenAddr, mgr, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return mgr.RunReconcileLoop(gctx)
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("Orchestrator exited with error", zap.Error(err))
	}

	handler := shutdown.NewHandler(log, 30*time.Second)
	handler.AddFunc("event-bus", func() error {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return bus.Shutdown(shutdownCtx)
	})
	handler.AddFunc("storage", store.Close)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	handler.Shutdown(shutdownCtx)
}
