// Package server exposes the JSON-RPC dispatcher over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/johnayoung/go-oilprice-trend/internal/config"
	"github.com/johnayoung/go-oilprice-trend/internal/logger"
	"github.com/johnayoung/go-oilprice-trend/internal/metrics"
	"github.com/johnayoung/go-oilprice-trend/internal/rpc"
	"github.com/johnayoung/go-oilprice-trend/internal/upstream"
)

// maxBodyBytes caps a JSON-RPC request body.
const maxBodyBytes = 1 << 20

// Server is the HTTP front of the service.
type Server struct {
	cfg         config.ServerConfig
	dispatcher  *rpc.Dispatcher
	health      upstream.HealthChecker
	metrics     *metrics.Metrics
	metricsPath string
	logger      *logger.ComponentLogger
	router      *mux.Router
	httpServer  *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithHealthChecker makes /readyz probe h.
func WithHealthChecker(h upstream.HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records HTTP metrics into m and serves them at path.
// An empty path records without exposing the endpoint.
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// New builds a server and its routes. Nothing listens until Start or Run.
func New(cfg config.ServerConfig, dispatcher *rpc.Dispatcher, log *logger.ComponentLogger, opts ...Option) *Server {
	if log == nil {
		log = &logger.ComponentLogger{Logger: slog.Default()}
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()

	read, write, _ := cfg.Timeouts()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware(s.logger), metricsMiddleware(s.metrics))

	r.HandleFunc("/api/oilprice", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/", s.handleRPC).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	if s.metrics != nil && s.metricsPath != "" {
		r.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server stops.
// It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Run serves until ctx is canceled, then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	_, _, timeout := s.cfg.Timeouts()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}
