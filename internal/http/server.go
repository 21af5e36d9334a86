// Package http exposes braind over an echo HTTP server: indexing runs (batch
// and SSE), file listings, search, and operational endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/braind/internal/indexer"
	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

// Indexer is the indexing surface the handlers consume.
type Indexer interface {
	Run(ctx context.Context, ref indexer.RepositoryRef, limit int) (*indexer.RunSummary, error)
	Stream(ctx context.Context, ref indexer.RepositoryRef, limit int) <-chan indexer.Event
	ListFiles(ctx context.Context, ref indexer.RepositoryRef) (*indexer.FilesPage, error)
	Summary(ctx context.Context, ref indexer.RepositoryRef) (*indexer.FilesSummary, error)
	Purge(ctx context.Context, ref indexer.RepositoryRef) (int64, error)
}

// Retriever is the search surface the handlers consume.
type Retriever interface {
	Search(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error)
	SearchText(ctx context.Context, text string, k int) ([]vectorstore.SearchResult, error)
	SearchLast(ctx context.Context, k int) ([]vectorstore.SearchResult, error)
}

// Pinger is the health-probe surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Limits bounds per-run file limits by mode.
type Limits struct {
	StreamDefault int
	StreamMax     int
	BatchDefault  int
	BatchMax      int
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	Limits          Limits
}

// Server is the braind HTTP server.
type Server struct {
	echo      *echo.Echo
	cfg       Config
	indexer   Indexer
	retriever Retriever
	pinger    Pinger
	logger    *zap.Logger
}

// NewServer builds the echo server with all routes registered. gatherer
// backs the /metrics endpoint; nil falls back to the default registry.
func NewServer(cfg Config, idx Indexer, ret Retriever, pinger Pinger, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if idx == nil || ret == nil || pinger == nil {
		return nil, fmt.Errorf("indexer, retriever and pinger are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:      e,
		cfg:       cfg,
		indexer:   idx,
		retriever: ret,
		pinger:    pinger,
		logger:    logger,
	}

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/repos/:owner/:name/files", s.handleListFiles)
	e.GET("/repos/:owner/:name/files/summary", s.handleFilesSummary)
	e.POST("/repos/:owner/:name/index", s.handleIndex)
	e.GET("/repos/:owner/:name/index/stream", s.handleIndexStream)
	e.DELETE("/repos/:owner/:name/index", s.handlePurge)
	e.POST("/search", s.handleSearch)
	e.GET("/search/last", s.handleSearchLast)

	return s, nil
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("http server starting", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID))
			return nil
		},
	})
}
