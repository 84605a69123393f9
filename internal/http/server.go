// Package http provides the HTTP API for insightd.
package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/insightd/internal/conversation"
	"github.com/fyrsmithlabs/insightd/internal/detector"
	"github.com/fyrsmithlabs/insightd/internal/insights"
	"github.com/fyrsmithlabs/insightd/internal/logging"
)

// Submitter hands detections to asynchronous recording. *insights.Recorder
// implements it.
type Submitter interface {
	Submit(ctx context.Context, userID string, results []detector.Result) bool
	Running() bool
}

// Services are the components behind the API.
type Services struct {
	Detector *detector.Detector
	Analyzer *conversation.Analyzer
	Insights *insights.Service

	// Recorder is optional. Without it the observe endpoints record inline.
	Recorder Submitter
}

// Server provides HTTP endpoints for insightd.
type Server struct {
	echo     *echo.Echo
	services Services
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// RateLimit is requests per second per client IP. Zero disables it.
	RateLimit float64
	RateBurst int

	// BodyLimit caps request bodies, e.g. "256K". Empty disables it.
	BodyLimit string
}

// NewServer creates a new HTTP server.
func NewServer(services Services, logger *zap.Logger, cfg *Config) (*Server, error) {
	if services.Detector == nil {
		return nil, errors.New("detector cannot be nil")
	}
	if services.Analyzer == nil {
		return nil, errors.New("analyzer cannot be nil")
	}
	if services.Insights == nil {
		return nil, errors.New("insights service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:      "localhost",
			Port:      9191,
			RateBurst: 20,
			BodyLimit: "256K",
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	metrics, err := newRequestMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating http metrics: %w", err)
	}
	e.Use(metrics.middleware())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg.RateLimit, cfg.RateBurst))
	}

	s := &Server{
		echo:     e,
		services: services,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// requestLogger logs one line per request. The request, user and
// conversation IDs go into the request context so downstream logs carry
// them too.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			ctx := req.Context()
			if rid := c.Response().Header().Get(echo.HeaderXRequestID); logging.ValidateRequestID(rid) == nil {
				ctx = logging.WithRequestID(ctx, rid)
			}
			if uid := c.Param("user_id"); logging.ValidateOpaqueID(uid) == nil {
				ctx = logging.WithUserID(ctx, uid)
			}
			if cid := c.Param("conversation_id"); logging.ValidateOpaqueID(cid) == nil {
				ctx = logging.WithConversationID(ctx, cid)
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				// Let echo write the error so the logged status is final.
				c.Error(err)
			}

			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)

			return nil
		}
	}
}

// rateLimiter limits each client IP. Health and metrics probes are exempt.
func rateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
	})
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/catalog", s.handleCatalog)
	v1.POST("/detect", s.handleDetect)
	v1.GET("/conversations/:conversation_id/patterns", s.handleConversationPatterns)

	users := v1.Group("/users/:user_id")
	users.POST("/messages", s.handleObserveMessage)
	users.POST("/conversations/:conversation_id/analyze", s.handleObserveConversation)
	users.GET("/insights", s.handleListInsights)
	users.DELETE("/insights/:pattern_type", s.handleDeleteInsight)
	users.GET("/advisory", s.handleAdvisory)
}

// Echo exposes the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
