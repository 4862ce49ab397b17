// ptztrack - follows a selected object with a PTZ camera or servo rig
//
// Select a target with POST /api/track {"x":..,"y":..} and release it with
// DELETE /api/track.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-ptz/internal/config"
	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/app"
	"github.com/teslashibe/go-ptz/pkg/detector"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		fatal("configuration error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		fatal("initialization failed", err)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() config.Config {
	path := flag.String("config", "", "YAML configuration file")
	backend := flag.String("backend", "", "Actuator backend: visca or servo")
	detKind := flag.String("detector", "", "Detector: color, cascade, dnn or landmark")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fatal("load config", err)
	}

	if *backend != "" {
		cfg.Backend = *backend
	}
	if *detKind != "" {
		kind, err := detector.ParseKind(*detKind)
		if err != nil {
			fatal("invalid -detector", err)
		}
		cfg.Detector.Kind = kind
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
