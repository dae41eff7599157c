//nolint:revive // Package name 'api' is intentionally generic for the HTTP API layer
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	apimw "github.com/modwatch/modwatch/internal/api/middleware"
	"github.com/modwatch/modwatch/internal/config"
	"github.com/modwatch/modwatch/internal/download"
	"github.com/modwatch/modwatch/internal/progress"
	"github.com/modwatch/modwatch/internal/registry"
	"github.com/modwatch/modwatch/internal/scheduler"
	"github.com/modwatch/modwatch/internal/syncer"
	"github.com/modwatch/modwatch/internal/websocket"
)

// Services bundles what the HTTP layer drives. Hub, Progress, Scheduler and
// Logs may be nil.
type Services struct {
	Registry  *registry.Registry
	Sync      *syncer.Engine
	Downloads *download.Manager
	Progress  *progress.Manager
	Scheduler *scheduler.Scheduler
	Hub       *websocket.Hub
	Logs      LogsProvider
}

// Server handles HTTP requests for the modwatch API.
type Server struct {
	echo      *echo.Echo
	logger    zerolog.Logger
	cfg       *config.Config
	svc       Services
	startedAt time.Time

	// Guards cfg.Sync while the schedule is changed.
	scheduleMu sync.Mutex
}

// NewServer creates a new API server instance.
func NewServer(svc Services, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		logger:    logger.With().Str("component", "api").Logger(),
		cfg:       cfg,
		svc:       svc,
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Security headers
	s.echo.Use(apimw.SecurityHeaders())

	// Request body size limit
	s.echo.Use(middleware.BodyLimit("2M"))

	// CORS
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/ws"
		},
	}))
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Version     string         `json:"version"`
	StartTime   string         `json:"startTime"`
	SourceCount int            `json:"sourceCount"`
	Syncing     bool           `json:"syncing"`
	LastSync    *syncer.Report `json:"lastSync"`
	Downloads   int            `json:"activeDownloads"`
	Clients     int            `json:"wsClients"`
	Storage     string         `json:"storage"`
}

func (s *Server) getStatus(c echo.Context) error {
	resp := StatusResponse{
		Version:     config.Version,
		StartTime:   s.startedAt.Format(time.RFC3339),
		SourceCount: s.svc.Registry.Len(),
		Syncing:     s.svc.Sync.Running(),
		LastSync:    s.svc.Sync.LastReport(),
		Downloads:   len(s.svc.Downloads.Active()),
	}
	if s.svc.Hub != nil {
		resp.Clients = s.svc.Hub.ClientCount()
	}
	if s.cfg != nil {
		resp.Storage = s.cfg.Storage.Backend
	}
	return c.JSON(http.StatusOK, resp)
}
