package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chronolab/chronovm/internal/logger"
	"github.com/chronolab/chronovm/pkg/api/auth"
	"github.com/chronolab/chronovm/pkg/governance/store"
)

// Server is the reference HTTP host for the VM and governance cores.
//
// Endpoints:
//   - GET /health, /health/ready
//   - POST /api/v1/vm/runs
//   - /api/v1/projects/{projectId}/{layout,template,overrides,audit,rollback}
//
// The server supports graceful shutdown with a configurable timeout.
type Server struct {
	server       *http.Server
	config       APIConfig
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server in a stopped state. Call Start to
// begin serving. store is the governance persistence backend; maxSteps is
// the default VM step budget applied to run requests that don't specify
// their own.
func NewServer(config APIConfig, s store.Store, maxSteps int64) *Server {
	config.applyDefaults()

	jwtService := auth.NewJWTService([]byte(config.JWT.Secret), config.JWT.TTL)
	router := NewRouter(s, jwtService, maxSteps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{server: server, config: config}
}

// Start serves until ctx is cancelled, then gracefully shuts down.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
