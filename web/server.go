package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server is the operational HTTP surface: health probes and metrics. It
// carries no product API.
type Server struct {
	addr    string
	logger  *slog.Logger
	health  *HealthChecker
	metrics http.Handler
	srv     *http.Server
}

func NewServer(addr string, health *HealthChecker, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		logger:  logger,
		health:  health,
		metrics: metrics,
	}
}

// HTTPServer returns the underlying http.Server. It is exposed for tests.
func (s *Server) HTTPServer() *http.Server { return s.srv }

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health.HealthHandler())
	mux.HandleFunc("GET /health/live", s.health.LivenessHandler())
	mux.HandleFunc("GET /health/ready", s.health.ReadinessHandler())
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown drains the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Stop()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
