// Package web serves tracker status, select/drop requests, metrics and a
// live status websocket.
package web

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/hub"
	"github.com/teslashibe/go-ptz/pkg/pipeline"
)

// Tracker is the loop the server controls.
type Tracker interface {
	Snapshot() pipeline.Status
	Select(ctx context.Context, x, y float64) error
	Drop(ctx context.Context) error
}

// Config configures the listener.
type Config struct {
	Port string `yaml:"port"`
	// Disabled skips starting the server.
	Disabled bool `yaml:"disabled"`
	// RequestTimeout bounds how long a select or drop waits for room in
	// the loop's request queue.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

const defaultRequestTimeout = 2 * time.Second

// DefaultConfig listens on 8181.
func DefaultConfig() Config {
	return Config{Port: "8181", RequestTimeout: defaultRequestTimeout}
}

// Server is the tracker web API.
type Server struct {
	app       *fiber.App
	port      string
	timeout   time.Duration
	tracker   Tracker
	statusHub *hub.Hub
	logger    *slog.Logger
}

// NewServer builds the routes. gatherer may be nil to omit /metrics.
func NewServer(cfg Config, tracker Tracker, gatherer prometheus.Gatherer) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		port:      cfg.Port,
		timeout:   cfg.RequestTimeout,
		tracker:   tracker,
		statusHub: hub.New("status"),
		logger:    log.Component("web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "PTZ Tracker",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/track", s.handleSelect)
	api.Delete("/track", s.handleDrop)

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the status hub and listens until ctx is cancelled. It
// returns once the hub has closed its clients.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", net.JoinHostPort("", s.port))
		errCh <- s.app.Listen(":" + s.port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		err := s.app.Shutdown()
		<-s.statusHub.Done()
		return err
	}
}

// PublishStatus broadcasts a loop status to websocket clients.
// It is meant to be used as pipeline.Loop.OnStatus.
func (s *Server) PublishStatus(st pipeline.Status) {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}
