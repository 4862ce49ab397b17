// Package servo drives a two-servo pan/tilt rig by incrementing absolute
// angles from tracking error.
package servo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/control"
)

// Angle limits of a hobby servo, in degrees.
const (
	MinAngle    = 0.0
	MaxAngle    = 180.0
	CenterAngle = 90.0
)

// ErrChannel is returned for a channel the driver cannot address.
var ErrChannel = errors.New("servo: channel out of range")

// Driver sets one servo's angle in degrees.
type Driver interface {
	SetAngle(channel int, deg float64) error
}

// Config configures the rig geometry and response.
type Config struct {
	PanChannel  int `yaml:"pan_channel"`
	TiltChannel int `yaml:"tilt_channel"`

	// Divisor converts error to degrees: delta = -error / Divisor.
	Divisor float64 `yaml:"divisor"`

	// CommandScale converts a normalized command to error units, so a
	// full command moves CommandScale/Divisor degrees.
	CommandScale float64 `yaml:"command_scale"`

	// Dead zones are taken from the controller configuration.
	PanDeadZone  float64 `yaml:"-"`
	TiltDeadZone float64 `yaml:"-"`
}

// DefaultConfig returns the ServoKit hat wiring: tilt on 0, pan on 1.
func DefaultConfig() Config {
	return Config{
		PanChannel:   1,
		TiltChannel:  0,
		Divisor:      25,
		CommandScale: 100,
	}.WithDeadZones(control.DefaultConfig())
}

// WithDeadZones returns c with the pan and tilt dead zones of ctl.
func (c Config) WithDeadZones(ctl control.Config) Config {
	c.PanDeadZone, c.TiltDeadZone, _ = ctl.DeadZones()
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Divisor <= 0 {
		return fmt.Errorf("servo: divisor must be positive, got %v", c.Divisor)
	}
	if c.PanChannel == c.TiltChannel {
		return fmt.Errorf("servo: pan and tilt share channel %d", c.PanChannel)
	}
	if c.CommandScale <= 0 {
		return fmt.Errorf("servo: command scale must be positive, got %v", c.CommandScale)
	}
	if c.PanDeadZone < 0 || c.TiltDeadZone < 0 {
		return errors.New("servo: dead zones must not be negative")
	}
	return nil
}

// Rig tracks the current pan and tilt angles and writes them to a Driver.
type Rig struct {
	cfg    Config
	driver Driver
	logger *slog.Logger

	mu   sync.Mutex
	pan  float64
	tilt float64
}

// NewRig centres both servos.
func NewRig(cfg Config, driver Driver) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Rig{
		cfg:    cfg,
		driver: driver,
		logger: log.Component("servo"),
		pan:    CenterAngle,
		tilt:   CenterAngle,
	}
	if err := r.apply(); err != nil {
		return nil, err
	}
	return r, nil
}

// Angles returns the current pan and tilt angles.
func (r *Rig) Angles() (pan, tilt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pan, r.tilt
}

// step moves each axis by -err/Divisor, then clamps both angles to the
// servo range and applies them.
func (r *Rig) step(panErr, tiltErr float64) error {
	r.pan = clamp(r.pan-panErr/r.cfg.Divisor, MinAngle, MaxAngle)
	r.tilt = clamp(r.tilt-tiltErr/r.cfg.Divisor, MinAngle, MaxAngle)
	return r.apply()
}

// Dispatch applies a controller command. An axis inside its dead zone
// does not move.
func (r *Rig) Dispatch(_ context.Context, cmd control.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var panErr, tiltErr float64
	if !control.InDeadZone(cmd.Pan, r.cfg.PanDeadZone) {
		panErr = cmd.Pan * r.cfg.CommandScale
	}
	if !control.InDeadZone(cmd.Tilt, r.cfg.TiltDeadZone) {
		tiltErr = cmd.Tilt * r.cfg.CommandScale
	}
	return r.step(panErr, tiltErr)
}

// Stop holds the current position. Servos have no velocity to cancel.
func (r *Rig) Stop(context.Context) error {
	return nil
}

// Center returns both servos to 90 degrees.
func (r *Rig) Center() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pan, r.tilt = CenterAngle, CenterAngle
	return r.apply()
}

// Close centres the rig and closes the driver if it is an io.Closer.
func (r *Rig) Close() error {
	err := r.Center()
	if c, ok := r.driver.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (r *Rig) apply() error {
	if r.driver == nil {
		return nil
	}
	if err := r.driver.SetAngle(r.cfg.PanChannel, r.pan); err != nil {
		return fmt.Errorf("servo: set pan: %w", err)
	}
	if err := r.driver.SetAngle(r.cfg.TiltChannel, r.tilt); err != nil {
		return fmt.Errorf("servo: set tilt: %w", err)
	}
	r.logger.Debug("servo angles", "pan", r.pan, "tilt", r.tilt)
	return nil
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
