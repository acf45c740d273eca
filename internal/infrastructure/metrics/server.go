package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market_maker/internal/core"
)

// Server handles Prometheus metrics export
type Server struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewServer creates a new metrics server
func NewServer(port int, logger core.ILogger) *Server {
	return &Server{
		port:   port,
		logger: logger.WithField("component", "metrics_server"),
	}
}

// Run starts the metrics HTTP server and blocks until ctx is cancelled,
// satisfying bootstrap.Runner so every gridbot binary can expose /metrics
// by simply adding this Server to its App.Run call.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting prometheus metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
