package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/devbridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/devbridge/internal/session"
)

// Source is the bridge state the diagnostics routes report on.
type Source interface {
	IsConnected() bool
	Pending() int
	PendingIDs() []int64
	Sessions() *session.Directory
}

// Options configures the diagnostics server.
type Options struct {
	Addr        string
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Development bool

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	Tracer  *tracing.Tracer
}

// Server serves read-only bridge diagnostics.
type Server struct {
	router  *gin.Engine
	source  Source
	addr    string
	logger  *logging.Logger
	metrics *monitoring.Metrics
	started time.Time

	mu       sync.Mutex
	listener net.Listener
}

// New builds the router. Nothing listens until ListenAndServe.
func New(src Source, opts Options) *Server {
	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.CORS.AllowOrigins == nil {
		opts.CORS = DefaultCORSConfig()
	}

	s := &Server{
		router:  gin.New(),
		source:  src,
		addr:    opts.Addr,
		logger:  opts.Logger.Named("diagnostics"),
		metrics: opts.Metrics,
		started: time.Now(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(tracing.HTTPMiddleware(opts.Tracer))
	s.router.Use(monitoring.Middleware(opts.Metrics))
	s.router.Use(CORS(opts.CORS))
	if opts.RateLimit.RequestsPerSecond > 0 {
		s.logger.Info("rate limiting enabled",
			zap.Int("rps", opts.RateLimit.RequestsPerSecond),
			zap.Int("burst", opts.RateLimit.Burst),
		)
		s.router.Use(RateLimit(opts.RateLimit))
	}

	s.router.GET("/health", s.health)
	s.router.GET("/sessions", s.sessions)
	s.router.GET("/pending", s.pending)
	if opts.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
		s.router.GET("/metrics/json", s.metricsJSON)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("diagnostics server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}
	s.logger.Info("diagnostics server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	connected := s.source.IsConnected()
	status, code := "ok", http.StatusOK
	if !connected {
		status, code = "disconnected", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"connected":      connected,
		"pending":        s.source.Pending(),
		"sessions":       s.source.Sessions().Len(),
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *Server) sessions(c *gin.Context) {
	ids := s.source.Sessions().Known()
	c.JSON(http.StatusOK, gin.H{
		"sessions": ids,
		"count":    len(ids),
	})
}

func (s *Server) pending(c *gin.Context) {
	ids := s.source.PendingIDs()
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ids":   ids,
		"count": len(ids),
	})
}

func (s *Server) metricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
