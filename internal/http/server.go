// Package http provides the HTTP API for assistd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
	"github.com/fyrsmithlabs/assistd/internal/diagnosis"
	"github.com/fyrsmithlabs/assistd/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
	"go.uber.org/zap"
)

const defaultBodyLimit = "64K"

// variantPaths maps built-in variants to their endpoints. Other variants
// are served at /api/{name}.
var variantPaths = map[string]string{
	assistant.VariantChat:       "/api/chat",
	assistant.VariantGreeter:    "/api/greeter",
	assistant.VariantDiagnostic: "/api/diagnostic-chat",
}

// Server provides HTTP endpoints for assistd.
type Server struct {
	echo      *echo.Echo
	pipelines map[string]*assistant.Pipeline
	diagnosis *diagnosis.Service
	logger    *logging.Logger
	config    *Config
	health    func() HealthResponse

	// bodyLimit bounds conversational bodies inside the handler, where an
	// oversized body still gets a fallback reply.
	bodyLimit int64
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	BodyLimit      string
	AllowedOrigins []string
}

// Option configures a Server.
type Option func(*Server)

// WithDiagnosis enables POST /api/diagnose.
func WithDiagnosis(svc *diagnosis.Service) Option {
	return func(s *Server) { s.diagnosis = svc }
}

// WithMetrics records OTEL HTTP metrics for every request.
func WithMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.echo.Use(m.MetricsMiddleware()) }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.echo.GET("/metrics", echo.WrapHandler(h)) }
}

// WithHealth replaces the default health report.
func WithHealth(fn func() HealthResponse) Option {
	return func(s *Server) { s.health = fn }
}

// NewServer creates a new HTTP server serving one endpoint per pipeline.
func NewServer(logger *logging.Logger, cfg *Config, pipelines []*assistant.Pipeline, opts ...Option) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if len(pipelines) == 0 {
		return nil, fmt.Errorf("at least one assistant pipeline is required")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = defaultBodyLimit
	}
	limit, err := bytes.Parse(cfg.BodyLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid body limit %q: %w", cfg.BodyLimit, err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		pipelines: make(map[string]*assistant.Pipeline, len(pipelines)),
		logger:    logger.Named("http"),
		config:    cfg,
		bodyLimit: limit,
	}
	for _, p := range pipelines {
		if _, dup := s.pipelines[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate assistant variant %q", p.Name())
		}
		s.pipelines[p.Name()] = p
	}
	s.health = s.defaultHealth

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Skipper: s.isConversation,
		Limit:   cfg.BodyLimit,
	}))
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType},
		}))
	}
	e.Use(s.requestLogger)

	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request id on the context and logs each request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	for name, p := range s.pipelines {
		s.echo.POST(PathFor(name), s.handleConversation(p))
	}
	if s.diagnosis != nil {
		s.echo.POST("/api/diagnose", s.handleDiagnose)
	}
}

// isConversation reports whether c was routed to a conversational endpoint.
func (s *Server) isConversation(c echo.Context) bool {
	for name := range s.pipelines {
		if c.Path() == PathFor(name) {
			return true
		}
	}
	return false
}

// PathFor returns the endpoint serving a variant.
func PathFor(variant string) string {
	if path, ok := variantPaths[variant]; ok {
		return path
	}
	return "/api/" + variant
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Variants  []string `json:"variants"`
	Telemetry string   `json:"telemetry,omitempty"`
}

func (s *Server) defaultHealth() HealthResponse {
	return HealthResponse{Status: "ok", Variants: s.Variants()}
}

// Variants returns the served variant names, sorted.
func (s *Server) Variants() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.health())
}

// handleConversation answers one conversational turn. Every outcome,
// including unreadable bodies, is a 200 with a reply the client can show.
func (s *Server) handleConversation(p *assistant.Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		body := http.MaxBytesReader(c.Response(), c.Request().Body, s.bodyLimit)
		req, err := decodeConversation(body)
		if err != nil {
			s.logger.Warn(ctx, "unreadable conversation request",
				zap.String("variant", p.Name()),
				zap.Error(err),
			)
			return c.JSON(http.StatusOK, assistant.Response{Reply: p.Config().FallbackReply})
		}

		c.Response().Header().Set(HeaderSessionID, req.SessionID)
		res := p.Respond(ctx, req)
		return c.JSON(http.StatusOK, res.Response)
	}
}

// DiagnoseError is the response body when no report could be produced.
type DiagnoseError struct {
	Error string `json:"error"`
	Reply string `json:"reply,omitempty"`
}

// handleDiagnose returns a structured diagnosis. Unlike the conversational
// endpoints it reports failures with an error status.
func (s *Server) handleDiagnose(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := decodeDiagnose(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, DiagnoseError{Error: "invalid request body"})
	}

	report, err := s.diagnosis.Diagnose(ctx, req)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, report)
	case errors.Is(err, diagnosis.ErrInvalidRequest):
		return c.JSON(http.StatusBadRequest, DiagnoseError{Error: err.Error()})
	default:
		s.logger.Warn(ctx, "diagnosis failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, DiagnoseError{
			Error: "diagnosis unavailable",
			Reply: diagnosis.FallbackReply,
		})
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server",
		zap.String("addr", addr),
		zap.Strings("variants", s.Variants()),
	)
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
