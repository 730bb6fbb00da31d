package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"docsummary/internal/auth"
	"docsummary/internal/documents"
	"docsummary/internal/summaries"
	"docsummary/internal/users"
)

const (
	readHeaderTimeout = 10 * time.Second
	// multipartOverhead is allowed on top of the upload limit for form
	// boundaries and headers.
	multipartOverhead = 1 << 20
)

type Deps struct {
	Users          *users.Service
	Documents      *documents.Service
	Summaries      *summaries.Service
	Issuer         *auth.Issuer
	Metrics        http.Handler
	MaxUploadBytes int64
}

type Server struct {
	echo           *echo.Echo
	users          *users.Service
	documents      *documents.Service
	summaries      *summaries.Service
	issuer         *auth.Issuer
	maxUploadBytes int64
	log            *slog.Logger
}

func New(deps Deps, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	s := &Server{
		echo:           e,
		users:          deps.Users,
		documents:      deps.Documents,
		summaries:      deps.Summaries,
		issuer:         deps.Issuer,
		maxUploadBytes: deps.MaxUploadBytes,
		log:            log,
	}

	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
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

			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"requestID", v.RequestID,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}

			log.Log(c.Request().Context(), level, "Request is handled", attrs...)

			return nil
		},
	}))

	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	s.routes()

	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api")
	api.GET("/healthz", s.health)

	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	authed := api.Group("", s.issuer.Middleware(s.unauthorized))

	authed.GET("/auth/profile", s.profile)
	authed.PUT("/auth/profile", s.updateProfile)

	authed.POST("/documents", s.uploadDocument)
	authed.GET("/documents", s.listDocuments)
	authed.GET("/documents/:id", s.getDocument)
	authed.GET("/documents/:id/text", s.getDocumentText)
	authed.DELETE("/documents/:id", s.deleteDocument)

	authed.POST("/summaries/single", s.summarizeSingle)
	authed.POST("/summaries/multiple", s.summarizeMultiple)
	authed.GET("/summaries/status", s.summaryStatus)
	authed.GET("/summaries", s.listSummaries)
	authed.GET("/summaries/:id", s.getSummary)
	authed.DELETE("/summaries/:id", s.deleteSummary)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return ok(c, http.StatusOK, map[string]string{"status": "ok"})
}
