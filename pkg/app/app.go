// Package app wires camera, detector, tracker, controller and actuator
// into a running tracker with its web API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-ptz/internal/config"
	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/control"
	"github.com/teslashibe/go-ptz/pkg/detector"
	"github.com/teslashibe/go-ptz/pkg/pipeline"
	"github.com/teslashibe/go-ptz/pkg/servo"
	"github.com/teslashibe/go-ptz/pkg/visca"
	"github.com/teslashibe/go-ptz/pkg/web"
)

// App is the tracker orchestrator. It owns every component and their
// lifecycle.
type App struct {
	config config.Config
	logger *slog.Logger

	source   pipeline.Source
	detector detector.Detector
	actuator pipeline.Actuator
	closers  []io.Closer

	loop      *pipeline.Loop
	registry  *prometheus.Registry
	webServer *web.Server
}

// New validates the configuration.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		config: cfg,
		logger: log.Component("app"),
	}, nil
}

// Init opens the camera, loads the detector and connects the actuator.
func (a *App) Init(ctx context.Context) error {
	det, err := detector.New(a.config.Detector)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	a.detector = det
	a.closers = append(a.closers, det)

	act, closer, err := NewActuator(ctx, a.config)
	if err != nil {
		return fmt.Errorf("actuator: %w", err)
	}
	a.actuator = act
	a.closers = append(a.closers, closer)

	src, err := pipeline.OpenCamera(a.config.Camera)
	if err != nil {
		return err
	}
	a.source = src
	a.closers = append(a.closers, src)

	return a.initLoop()
}

// initLoop builds the controller, loop, metrics and web server once the
// detector and actuator exist.
func (a *App) initLoop() error {
	ctl, err := control.NewController(a.config.Control)
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	loop, err := pipeline.NewLoop(a.config.Loop, a.detector, ctl, a.actuator)
	if err != nil {
		return fmt.Errorf("loop: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	loop.Metrics = pipeline.NewMetrics(a.registry)
	a.loop = loop

	if !a.config.Web.Disabled {
		a.webServer = web.NewServer(a.config.Web, loop, a.registry)
		loop.OnStatus = a.webServer.PublishStatus
	}
	return nil
}

// NewActuator builds the configured backend. The closer releases its
// socket or serial port; a servo rig is centred first.
func NewActuator(ctx context.Context, cfg config.Config) (pipeline.Actuator, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendVISCA:
		client := visca.NewClient(cfg.VISCA, visca.NewEncoder(cfg.Control))
		if err := client.Dial(ctx); err != nil {
			return nil, nil, err
		}
		return client, client, nil

	case config.BackendServo:
		maestro, err := servo.OpenMaestro(cfg.Servo.Maestro)
		if err != nil {
			return nil, nil, err
		}
		rig, err := newRig(cfg, maestro)
		if err != nil {
			maestro.Close()
			return nil, nil, err
		}
		return rig, rig, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// newRig builds the servo rig with the controller's dead zones.
func newRig(cfg config.Config, driver servo.Driver) (*servo.Rig, error) {
	return servo.NewRig(cfg.Servo.Rig.WithDeadZones(cfg.Control), driver)
}

// Loop returns the tracking loop, nil before Init.
func (a *App) Loop() *pipeline.Loop {
	return a.loop
}

// Run processes frames and serves the web API until ctx is cancelled or
// either fails.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil || a.source == nil {
		return errors.New("app: not initialized")
	}
	a.logger.Info("tracker running",
		"backend", a.config.Backend,
		"detector", a.config.Detector.Kind,
		"web_port", a.config.Web.Port,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop.Run(ctx, a.source)
	})
	if a.webServer != nil {
		g.Go(func() error {
			return a.webServer.Run(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases every component in reverse order of creation.
func (a *App) Shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
	a.logger.Info("tracker stopped")
}
