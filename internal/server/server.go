package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/riseselfesteem/convosync/internal/app"
	"github.com/riseselfesteem/convosync/internal/config"
	"github.com/riseselfesteem/convosync/internal/handlers"
	"github.com/riseselfesteem/convosync/internal/logging"
	"github.com/riseselfesteem/convosync/internal/middleware"
	"github.com/riseselfesteem/convosync/internal/module"
	"github.com/riseselfesteem/convosync/internal/pubsub"
	"github.com/riseselfesteem/convosync/internal/registry"
	"github.com/riseselfesteem/convosync/internal/remote"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E      *echo.Echo
	Cfg    config.Provider
	Bridge *pubsub.WatermillBridge

	registry *registry.Registry
	modules  []module.Module

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server instance wired against the upstream API.
func New() *Server {
	logging.New() // Initialize the structured logger
	cfg := config.New()
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Server from an explicit configuration provider.
// Split out from New so tests can supply their own provider.
func NewWithConfig(cfg config.Provider) *Server {
	bridge := pubsub.NewWatermillBridge()
	directory := remote.NewClient(cfg.GetUpstreamBaseURL(), cfg.GetUpstreamTimeout())

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())
	e.Validator = handlers.NewValidator()

	modules := app.NewModules(app.Dependencies{
		Publisher:  bridge,
		Subscriber: bridge,
		Directory:  directory,
		Cfg:        cfg,
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		E:        e,
		Cfg:      cfg,
		Bridge:   bridge,
		registry: registry.New(cfg),
		modules:  modules,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterRoutes sets up the framework routes and boots every module under
// its own route group.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	for _, m := range s.modules {
		if err := m.Register(s.registry); err != nil {
			slog.Error("Module registration failed", "module", m.Name(), "error", err)
			panic(err)
		}
	}
	for _, m := range s.modules {
		g := s.E.Group("/app/" + m.Name())
		if err := m.Boot(s.ctx, g, s.registry); err != nil {
			slog.Error("Module boot failed", "module", m.Name(), "error", err)
			panic(err)
		}
	}
}

// Registry exposes the service registry, useful for testing.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}
