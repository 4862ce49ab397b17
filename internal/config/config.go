// Package config loads the tracker configuration from YAML and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-ptz/pkg/control"
	"github.com/teslashibe/go-ptz/pkg/detector"
	"github.com/teslashibe/go-ptz/pkg/pipeline"
	"github.com/teslashibe/go-ptz/pkg/servo"
	"github.com/teslashibe/go-ptz/pkg/visca"
	"github.com/teslashibe/go-ptz/pkg/web"
)

// Actuator backends.
const (
	BackendVISCA = "visca"
	BackendServo = "servo"
)

// Servo groups the rig response and the Maestro serial link.
type Servo struct {
	Rig     servo.Config        `yaml:"rig"`
	Maestro servo.MaestroConfig `yaml:"maestro"`
}

// Config is the full tracker configuration.
type Config struct {
	Backend  string                `yaml:"backend"`
	LogLevel string                `yaml:"log_level"`
	Camera   pipeline.CameraConfig `yaml:"camera"`
	Detector detector.Config       `yaml:"detector"`
	Loop     pipeline.Config       `yaml:"loop"`
	Control  control.Config        `yaml:"control"`
	VISCA    visca.Config          `yaml:"visca"`
	Servo    Servo                 `yaml:"servo"`
	Web      web.Config            `yaml:"web"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:  BackendVISCA,
		LogLevel: "info",
		Camera:   pipeline.DefaultCameraConfig(),
		Detector: detector.DefaultConfig(),
		Loop:     pipeline.DefaultConfig(),
		Control:  control.DefaultConfig(),
		VISCA:    visca.DefaultConfig(),
		Servo: Servo{
			Rig:     servo.DefaultConfig(),
			Maestro: servo.DefaultMaestroConfig(),
		},
		Web: web.DefaultConfig(),
	}
}

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently keep defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from CAMERA_IP, CAMERA_PORT, LOG_LEVEL,
// SERVO_PORT and WEB_PORT.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("CAMERA_IP"); v != "" {
		c.VISCA.Host = v
	}
	if v := getenv("CAMERA_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CAMERA_PORT: %w", err)
		}
		c.VISCA.Port = port
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("SERVO_PORT"); v != "" {
		c.Servo.Maestro.Port = v
	}
	if v := getenv("WEB_PORT"); v != "" {
		c.Web.Port = v
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendVISCA:
		if c.VISCA.Host == "" {
			return errors.New("visca: host is required")
		}
		if c.VISCA.Port <= 0 || c.VISCA.Port > 65535 {
			return fmt.Errorf("visca: invalid port %d", c.VISCA.Port)
		}
	case BackendServo:
		if err := c.Servo.Rig.Validate(); err != nil {
			return err
		}
		if err := c.Servo.Maestro.Validate(); err != nil {
			return fmt.Errorf("servo: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if _, err := detector.ParseKind(string(c.Detector.Kind)); err != nil {
		return err
	}
	if !c.Web.Disabled && c.Web.Port == "" {
		return errors.New("web: port is required")
	}
	return nil
}
