package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/config"
	"github.com/yourusername/hogengine/pkg/engine"
)

// shutdownGrace bounds how long Run waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// routes lists the API surface; Handler registers exactly these.
var routes = []string{
	"GET /api/health",
	"POST /api/move",
	"GET /api/distribution",
	"GET /api/solve/stream",
	"/api/ws",
}

// Server serves policy queries over HTTP, SSE and WebSocket.
type Server struct {
	cfg      config.ServerConfig
	engine   *engine.Engine
	handlers *Handlers
	pool     *WorkerPool
	version  string
	logger   *zap.Logger
	http     *http.Server
}

// NewServer creates a server for e. A nil logger discards logs.
func NewServer(e *engine.Engine, cfg config.ServerConfig, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := NewWorkerPool(PoolConfig{
		MaxFastWorkers: cfg.MaxFastWorkers,
		MaxSlowWorkers: cfg.MaxSlowWorkers,
	})
	s := &Server{
		cfg:      cfg,
		engine:   e,
		handlers: NewHandlers(e, version, pool, logger),
		pool:     pool,
		version:  version,
		logger:   logger,
	}
	s.http = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Pool returns the worker pool for monitoring.
func (s *Server) Pool() *WorkerPool {
	return s.pool
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handlers := []http.HandlerFunc{
		s.handlers.Health,
		s.handlers.Move,
		s.handlers.Distribution,
		s.handlers.SolveSSE,
		s.handlers.WebSocket,
	}
	for i, pattern := range routes {
		mux.HandleFunc(pattern, handlers[i])
	}
	return corsMiddleware(loggingMiddleware(s.logger, mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController and to
// the WebSocket upgrader.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Header.Get("Upgrade") != "" {
			// The upgrader needs the raw writer to hijack the connection.
			next.ServeHTTP(w, r)
			logger.Debug("upgrade", zap.String("path", r.URL.Path), zap.Duration("duration", time.Since(start)))
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("serving hog policy API",
		zap.String("version", s.version),
		zap.String("addr", ln.Addr().String()),
		zap.Int("goal", s.engine.Goal()),
		zap.Bool("exact", s.engine.Exact()),
		zap.Strings("routes", routes),
	)
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Run listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Error(context.Cause(ctx)))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-errc; err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
