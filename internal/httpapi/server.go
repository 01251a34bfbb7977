// Package httpapi exposes the submission pipeline over JSON HTTP using Echo.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/ahrav/go-assess/internal/callback"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/submission"
)

// Submissions is the submission orchestration used by the API.
type Submissions interface {
	Create(ctx context.Context, caller domain.Principal) (*domain.Evaluation, error)
	Answers(ctx context.Context, caller domain.Principal, evaluationID string) (map[int]string, error)
	SubmitProgress(ctx context.Context, caller domain.Principal, in submission.ProgressInput) (submission.ProgressResult, error)
	Submit(ctx context.Context, caller domain.Principal, in submission.SubmitInput) (submission.SubmitResult, error)
}

// StatusReader answers polling requests.
type StatusReader interface {
	GetStatus(ctx context.Context, evaluationID string, caller domain.Principal) (domain.Status, error)
}

// CallbackVerifier authenticates engine callbacks.
type CallbackVerifier interface {
	Verify(ctx context.Context, token string) (*callback.Claims, error)
	Release(ctx context.Context, claims *callback.Claims)
}

// ResultIngestor applies engine results.
type ResultIngestor interface {
	Ingest(ctx context.Context, result domain.ScoringResult) (bool, error)
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	// BodyLimit is an Echo size string such as "64M".
	BodyLimit string `yaml:"body_limit" validate:"required"`
}

// Deps are the services behind the API.
type Deps struct {
	Submissions Submissions
	Status      StatusReader
	Verifier    CallbackVerifier
	Ingestor    ResultIngestor
	Logger      *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg    Config
	deps   Deps
	echo   *echo.Echo
	logger *slog.Logger
}

// New builds the Echo instance and registers every route.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.WARN)
	e.HTTPErrorHandler = newErrorHandler(logger)
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	s := &Server{cfg: cfg, deps: deps, echo: e, logger: logger}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	e.GET("/healthz", s.healthz)

	api := e.Group("/api/v1")
	api.POST("/engine/callback", s.engineCallback)

	evals := api.Group("/evaluations", requireIdentity)
	evals.POST("", s.createEvaluation)
	evals.POST("/progress", s.submitProgress)
	evals.POST("/submit", s.submitEvaluation)
	evals.GET("/:id/answers", s.getAnswers)
	evals.GET("/:id/status", s.getStatus)

	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until Shutdown is called. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			s.logger.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			)
			return nil
		},
	})
}
