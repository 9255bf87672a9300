// Package http serves the admin HTTP API: health, Prometheus metrics and a
// read-only REST mirror of the query operations.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /api/v1/collections?page=&page_size=
//	GET  /api/v1/collections/:name
//	GET  /api/v1/collections/:name/count
//	POST /api/v1/collections/:name/query
//
// Collection routes answer with the same JSON as the MCP tools: the payload,
// or {"error": "<message>"}.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragdocs/internal/logging"
	"github.com/fyrsmithlabs/ragdocs/internal/query"
	"github.com/fyrsmithlabs/ragdocs/internal/vectorstore"
)

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = "localhost:9090"

// Server provides the admin HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	query     *query.Service
	connector query.Connector
	logger    *logging.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Addr    string
	Metrics *HTTPMetrics
}

// NewServer creates the admin server. connector is used by /health only.
func NewServer(svc *query.Service, connector query.Connector, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("query service cannot be nil")
	}
	if connector == nil {
		return nil, fmt.Errorf("connector cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewHTTPMetrics(logger.Underlying())
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})
	e.Use(cfg.Metrics.MetricsMiddleware())

	s := &Server{
		echo:      e,
		query:     svc,
		connector: connector,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/collections", s.handleListCollections)
	v1.GET("/collections/:name", s.handleCollectionInfo)
	v1.GET("/collections/:name/count", s.handleCollectionCount)
	v1.POST("/collections/:name/query", s.handleQuery)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// QueryRequest is the request body for POST /api/v1/collections/:name/query.
type QueryRequest struct {
	Query  string               `json:"query"`
	K      int                  `json:"k,omitempty"`
	Filter vectorstore.Metadata `json:"filter,omitempty"`
}

// handleHealth reports whether the store can be reached right now.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	store, err := s.connector.Connect(ctx)
	if err != nil {
		resp := HealthResponse{Status: "degraded", Store: "error", Error: err.Error()}
		if errors.Is(err, vectorstore.ErrUnavailable) {
			resp = HealthResponse{Status: "degraded", Store: "unavailable", Error: query.UnavailableMessage}
		}
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	if cerr := store.Close(); cerr != nil {
		s.logger.Debug(ctx, "closing store", zap.Error(cerr))
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Store: "available"})
}

func (s *Server) handleListCollections(c echo.Context) error {
	page, err := intParam(c, "page")
	if err != nil {
		return err
	}
	pageSize, err := intParam(c, "page_size")
	if err != nil {
		return err
	}
	return writeResult(c, s.query.ListCollections(c.Request().Context(), page, pageSize))
}

func (s *Server) handleCollectionInfo(c echo.Context) error {
	return writeResult(c, s.query.GetCollectionInfo(c.Request().Context(), c.Param("name")))
}

func (s *Server) handleCollectionCount(c echo.Context) error {
	return writeResult(c, s.query.GetCollectionCount(c.Request().Context(), c.Param("name")))
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid query request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, query.ErrorBody{Error: "invalid request body"})
	}
	if req.Query == "" {
		return c.JSON(http.StatusBadRequest, query.ErrorBody{Error: "query field is required"})
	}

	return writeResult(c, s.query.QueryDocuments(c.Request().Context(), query.QueryRequest{
		CollectionName: c.Param("name"),
		Query:          req.Query,
		K:              req.K,
		Filter:         req.Filter,
	}))
}

// intParam parses an optional non-negative query parameter. Absent means 0,
// which the query service treats as its default.
func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, query.ErrorBody{
			Error: fmt.Sprintf("%s must be a non-negative integer", name),
		})
	}
	return n, nil
}

// writeResult writes a query Result. An unavailable store is 503; any other
// failure came from the store and is 502.
func writeResult[T any](c echo.Context, r query.Result[T]) error {
	status := http.StatusOK
	if r.Err != nil {
		status = http.StatusBadGateway
		if r.Err.Kind == query.KindUnavailable {
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, r)
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", s.config.Addr))
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
