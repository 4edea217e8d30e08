// =================================
// File: internal/api/server.go
// =================================
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rustamli/aitrader/internal/manager"
)

// Server exposes the bot lifecycle API over HTTP.
type Server struct {
	manager *manager.Manager
	logger  *zap.Logger
	http    *http.Server
}

func NewServer(addr string, mgr *manager.Manager, logger *zap.Logger) *Server {
	s := &Server{
		manager: mgr,
		logger:  logger.Named("api"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	bots := router.PathPrefix("/api/bots").Subrouter()
	bots.HandleFunc("/create", s.handleCreate).Methods("POST")
	bots.HandleFunc("/list", s.handleList).Methods("GET")
	bots.HandleFunc("/{id}", s.handleGet).Methods("GET")
	bots.HandleFunc("/{id}", s.handleDelete).Methods("DELETE")
	bots.HandleFunc("/{id}/start", s.handleStart).Methods("POST")
	bots.HandleFunc("/{id}/stop", s.handleStop).Methods("POST")
	bots.HandleFunc("/{id}/status", s.handleStatus).Methods("GET")
	bots.HandleFunc("/{id}/signals", s.handleSignals).Methods("GET")

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Run serves until the context is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler returns the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
