// Package httpapi provides the HTTP API for reflectd.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reflectd/internal/analysis"
	"github.com/fyrsmithlabs/reflectd/internal/config"
	"github.com/fyrsmithlabs/reflectd/internal/ledger"
	"github.com/fyrsmithlabs/reflectd/internal/orchestrator"
	"github.com/fyrsmithlabs/reflectd/internal/store"
)

// UserHeader carries the session provider's user identity. The auth
// provider itself is external; reflectd only requires that an identity
// is present.
const UserHeader = "X-Reflect-User"

// Server exposes the reflection API over HTTP.
type Server struct {
	echo     *echo.Echo
	registry *orchestrator.Registry
	store    store.Store
	ledger   *ledger.Updater
	logger   *zap.Logger
	config   config.ServerConfig
	version  string
}

// NewServer creates the HTTP server around a shared orchestrator registry.
func NewServer(registry *orchestrator.Registry, s store.Store, l *ledger.Updater, logger *zap.Logger, cfg config.ServerConfig, version string) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	srv := &Server{
		echo:     e,
		registry: registry,
		store:    s,
		ledger:   l,
		logger:   logger,
		config:   cfg,
		version:  version,
	}
	srv.registerRoutes()
	return srv, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.userIdentity)
	v1.POST("/reflect", s.handleSubmit)
	v1.POST("/reflect/cancel", s.handleCancel)
	v1.GET("/reflect/current", s.handleCurrent)
	v1.POST("/reflect/reset", s.handleReset)
	v1.GET("/journal", s.handleJournal)
	v1.GET("/scores", s.handleScores)
}

// userIdentity resolves the user from the session header. Requests
// without an identity are rejected before any orchestration step.
func (s *Server) userIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Request().Header.Get(UserHeader)
		if userID == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
		}
		c.Set("user_id", userID)
		return next(c)
	}
}

func (s *Server) userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

func (s *Server) orchestratorFor(c echo.Context) (*orchestrator.Orchestrator, error) {
	orch, err := s.registry.ForUser(s.userID(c))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return orch, nil
}

// SubmitRequest is the request body for POST /api/v1/reflect.
type SubmitRequest struct {
	Tool           string `json:"tool"`
	RawInput       string `json:"raw_input"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SubmitResponse is the response body for POST /api/v1/reflect.
type SubmitResponse struct {
	Status string               `json:"status"`
	Result *orchestrator.Result `json:"result,omitempty"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ScoresResponse is the response body for GET /api/v1/scores.
type ScoresResponse struct {
	Scores map[analysis.Virtue]int `json:"scores"`
}

// JournalResponse is the response body for GET /api/v1/journal.
type JournalResponse struct {
	Entries []store.LogEntry `json:"entries"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleSubmit(c echo.Context) error {
	orch, err := s.orchestratorFor(c)
	if err != nil {
		return err
	}

	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := orch.Submit(c.Request().Context(), analysis.ToolKind(req.Tool), req.RawInput, req.IdempotencyKey)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if result == nil {
		// Benign: already in flight, or superseded before resolving.
		return c.JSON(http.StatusAccepted, SubmitResponse{Status: "ignored"})
	}
	return c.JSON(http.StatusOK, SubmitResponse{Status: "resolved", Result: result})
}

func (s *Server) handleCancel(c echo.Context) error {
	orch, err := s.orchestratorFor(c)
	if err != nil {
		return err
	}
	orch.Cancel()
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleCurrent(c echo.Context) error {
	orch, err := s.orchestratorFor(c)
	if err != nil {
		return err
	}
	result := orch.Current()
	if result == nil {
		return c.JSON(http.StatusOK, SubmitResponse{Status: "none"})
	}
	return c.JSON(http.StatusOK, SubmitResponse{Status: "resolved", Result: result})
}

func (s *Server) handleReset(c echo.Context) error {
	orch, err := s.orchestratorFor(c)
	if err != nil {
		return err
	}
	orch.Reset()
	return c.JSON(http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleJournal(c echo.Context) error {
	entries, err := s.store.RecentLogEntries(c.Request().Context(), s.userID(c), 20)
	if err != nil {
		s.logger.Error("journal read failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "journal read failed")
	}
	if entries == nil {
		entries = []store.LogEntry{}
	}
	return c.JSON(http.StatusOK, JournalResponse{Entries: entries})
}

func (s *Server) handleScores(c echo.Context) error {
	if s.ledger == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "scores unavailable")
	}
	scores, err := s.ledger.LatestScores(c.Request().Context(), s.userID(c))
	if err != nil {
		s.logger.Error("scores read failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "scores read failed")
	}
	return c.JSON(http.StatusOK, ScoresResponse{Scores: scores})
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

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
