// Package http exposes the recommendation pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assessd/internal/logging"
	"github.com/fyrsmithlabs/assessd/internal/recommend"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = "64K"

// Recommender is the subset of recommend.Orchestrator the server needs.
type Recommender interface {
	Recommend(ctx context.Context, query string) (*recommend.Response, error)
	Ready() bool
}

// Server provides HTTP endpoints for assessd.
type Server struct {
	echo        *echo.Echo
	recommender Recommender
	logger      *zap.Logger
	config      *Config
	prom        *PromMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(recommender Recommender, logger *zap.Logger, cfg *Config) (*Server, error) {
	if recommender == nil {
		return nil, fmt.Errorf("recommender cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 5000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	prom := NewPromMetrics()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(prom.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		recommender: recommender,
		logger:      logger,
		config:      cfg,
		prom:        prom,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.prom.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/recommend", s.handleRecommend)

	// Legacy path used by existing clients.
	s.echo.POST("/recommend", s.handleRecommend)
}

// Handler returns the server as an http.Handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", IndexReady: s.recommender.Ready()})
}

func (s *Server) handleRecommend(c echo.Context) error {
	var req RecommendRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid recommend request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Query == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Missing 'query' in request"})
	}

	resp, err := s.recommender.Recommend(c.Request().Context(), *req.Query)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("recommend failed", zap.Error(err))
		}
		return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: string(recommend.KindOf(err))})
	}

	s.prom.observeRecommendations(len(resp.Recommendations))
	if len(resp.Recommendations) > 0 {
		return c.JSON(http.StatusOK, RecommendResponse{Recommendations: resp.Recommendations})
	}
	return c.JSON(http.StatusOK, RecommendResponse{Answer: strings.TrimSpace(resp.Answer)})
}

// statusFor maps pipeline failures onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recommend.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
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
