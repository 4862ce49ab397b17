// Package control turns a tracked box into bounded pan, tilt and zoom
// commands with a shaped PID loop per axis.
package control

import (
	"fmt"
	"sync"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// Axis names used in telemetry and logs.
const (
	AxisPan  = "pan"
	AxisTilt = "tilt"
	AxisZoom = "zoom"
)

// Config holds the controller setpoints and per-axis tuning.
type Config struct {
	FrameWidth  int `yaml:"frame_width" json:"frame_width"`
	FrameHeight int `yaml:"frame_height" json:"frame_height"`

	// Setpoints in pixels: where the box centre should sit, and how wide
	// the box should be.
	TargetX     float64 `yaml:"target_x" json:"target_x"`
	TargetY     float64 `yaml:"target_y" json:"target_y"`
	TargetWidth float64 `yaml:"target_width" json:"target_width"`

	// Pan and tilt share PanTilt gains and window; each has its own dead zone.
	PanTilt      AxisConfig `yaml:"pan_tilt" json:"pan_tilt"`
	TiltDeadZone float64    `yaml:"tilt_dead_zone" json:"tilt_dead_zone"`
	Zoom         AxisConfig `yaml:"zoom" json:"zoom"`
}

// DefaultConfig returns the tuning used on the PTZOptics test rig.
func DefaultConfig() Config {
	return Config{
		FrameWidth:  640,
		FrameHeight: 480,

		TargetX:     250,
		TargetY:     250,
		TargetWidth: 100,

		PanTilt: AxisConfig{
			Gains:    Gains{P: 0.4, Slope: 1.0, Shape: 6, I: 0, D: 0},
			DeadZone: 0.2,
			Window:   3,
		},
		TiltDeadZone: 0.2,

		Zoom: AxisConfig{
			Gains:    Gains{P: 1, Slope: 1, Shape: 2, I: 1, D: 1},
			DeadZone: 0,
			Window:   1,
		},
	}
}

// CenteredConfig returns DefaultConfig with setpoints derived from the
// frame: centre of frame, one twelfth of its width.
func CenteredConfig(width, height int) Config {
	cfg := DefaultConfig()
	cfg.FrameWidth = width
	cfg.FrameHeight = height
	cfg.TargetX = float64(width) / 2
	cfg.TargetY = float64(height) / 2
	cfg.TargetWidth = float64(width) / 12
	return cfg
}

// Validate checks every axis configuration.
func (c Config) Validate() error {
	if err := c.PanTilt.Validate(); err != nil {
		return fmt.Errorf("pan/tilt: %w", err)
	}
	if c.TiltDeadZone < 0 {
		return fmt.Errorf("tilt: dead zone must not be negative, got %v", c.TiltDeadZone)
	}
	if err := c.Zoom.Validate(); err != nil {
		return fmt.Errorf("zoom: %w", err)
	}
	return nil
}

// PanAxis returns the pan axis configuration.
func (c Config) PanAxis() AxisConfig {
	return c.PanTilt
}

// TiltAxis returns the tilt axis configuration.
func (c Config) TiltAxis() AxisConfig {
	a := c.PanTilt
	a.DeadZone = c.TiltDeadZone
	return a
}

// DeadZones returns the pan, tilt and zoom dead zones.
func (c Config) DeadZones() (pan, tilt, zoom float64) {
	return c.PanTilt.DeadZone, c.TiltDeadZone, c.Zoom.DeadZone
}

// Command is one cycle's normalized actuation, each axis in [-1, 1].
type Command struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
	Zoom float64 `json:"zoom"`

	// Saturated reports which axes were clamped (pan, tilt, zoom).
	Saturated [3]bool `json:"saturated"`
}

// Neutral is the all-stop command.
var Neutral = Command{}

// AxisSnapshot is a read-only view of an axis state.
type AxisSnapshot struct {
	Sum       float64 `json:"sum"`
	Saturated bool    `json:"saturated"`
	Last      Terms   `json:"last"`
}

// Controller runs the three axes. All methods are safe for concurrent use.
type Controller struct {
	mu   sync.Mutex
	cfg  Config
	pan  *Axis
	tilt *Axis
	zoom *Axis
	last [3]Terms
}

// NewController validates cfg and creates a controller.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{}
	c.apply(cfg)
	return c, nil
}

func (c *Controller) apply(cfg Config) {
	c.cfg = cfg
	c.pan = NewAxis(cfg.PanAxis())
	c.tilt = NewAxis(cfg.TiltAxis())
	c.zoom = NewAxis(cfg.Zoom)
	c.last = [3]Terms{}
}

// Reconfigure replaces the configuration and resets all axis state.
// On a validation error the controller is left unchanged.
func (c *Controller) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apply(cfg)
	return nil
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Errors returns the raw pixel errors of r against the setpoints.
func (c *Controller) Errors(r detection.Rect) (x, y, z float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors(r)
}

func (c *Controller) errors(r detection.Rect) (x, y, z float64) {
	cx, cy := r.Center()
	return cx - c.cfg.TargetX, cy - c.cfg.TargetY, r.W - c.cfg.TargetWidth
}

// Follow runs one control cycle for the tracked box.
func (c *Controller) Follow(r detection.Rect) Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, ey, ez := c.errors(r)

	x, tx := c.pan.Step(ex)
	y, ty := c.tilt.Step(ey)
	z, tz := c.zoom.Step(ez)
	c.last = [3]Terms{tx, ty, tz}

	return c.move(x, y, z)
}

// Move clamps combined PID outputs to [-1, 1], updating saturation.
func (c *Controller) Move(x, y, z float64) Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.move(x, y, z)
}

func (c *Controller) move(x, y, z float64) Command {
	cmd := Command{
		Pan:  c.pan.Saturate(x),
		Tilt: c.tilt.Saturate(y),
		Zoom: c.zoom.Saturate(z),
	}
	cmd.Saturated = [3]bool{c.pan.Saturated, c.tilt.Saturated, c.zoom.Saturated}
	return cmd
}

// Snapshot returns the state of the named axis.
func (c *Controller) Snapshot(name string) (AxisSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var a *Axis
	var t Terms
	switch name {
	case AxisPan:
		a, t = c.pan, c.last[0]
	case AxisTilt:
		a, t = c.tilt, c.last[1]
	case AxisZoom:
		a, t = c.zoom, c.last[2]
	default:
		return AxisSnapshot{}, fmt.Errorf("control: unknown axis %q", name)
	}
	return AxisSnapshot{Sum: a.Sum, Saturated: a.Saturated, Last: t}, nil
}
