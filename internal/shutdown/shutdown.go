// =================================
// File: internal/shutdown/shutdown.go
// =================================
package shutdown

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// CloseFunc allows using a function as an io.Closer
type CloseFunc func() error

func (f CloseFunc) Close() error {
	return f()
}

// Handler manages graceful shutdown of multiple services
type Handler struct {
	logger   *zap.Logger
	services []namedService
	mu       sync.Mutex
	timeout  time.Duration
}

type namedService struct {
	name   string
	closer io.Closer
}

func NewHandler(logger *zap.Logger, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:  logger,
		timeout: timeout,
	}
}

// Add registers a service for shutdown
func (h *Handler) Add(name string, closer io.Closer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.services = append(h.services, namedService{
		name:   name,
		closer: closer,
	})

	h.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddFunc registers a shutdown function
func (h *Handler) AddFunc(name string, fn func() error) {
	h.Add(name, CloseFunc(fn))
}

// Wait blocks until an interrupt arrives or the context is canceled, then
// gracefully closes all registered services.
func (h *Handler) Wait(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		h.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case <-ctx.Done():
		h.logger.Info("Shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.Shutdown(shutdownCtx)
}

// Shutdown closes all registered services in reverse registration order
func (h *Handler) Shutdown(ctx context.Context) {
	h.mu.Lock()
	services := make([]namedService, len(h.services))
	copy(services, h.services)
	h.mu.Unlock()

	h.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))

	var shutdownErrors []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]

		done := make(chan error, 1)
		go func() {
			done <- svc.closer.Close()
		}()

		select {
		case err := <-done:
			if err != nil {
				h.logger.Error("Failed to shutdown service",
					zap.String("service", svc.name),
					zap.Error(err))
				shutdownErrors = append(shutdownErrors, fmt.Errorf("%s: %w", svc.name, err))
			} else {
				h.logger.Info("Service shutdown complete",
					zap.String("service", svc.name))
			}
		case <-ctx.Done():
			h.logger.Error("Shutdown timeout for service",
				zap.String("service", svc.name))
			shutdownErrors = append(shutdownErrors, fmt.Errorf("%s: shutdown timeout", svc.name))
		}
	}

	if len(shutdownErrors) > 0 {
		h.logger.Error("Shutdown completed with errors",
			zap.Int("errorCount", len(shutdownErrors)))
		return
	}
	h.logger.Info("Graceful shutdown completed successfully")
}
