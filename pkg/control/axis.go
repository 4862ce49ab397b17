package control

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Shapes are the permitted proportional exponents, indexed by Gains.Shape.
// Exponents below 1 are gentle far from target and steep near it; above 1
// the reverse.
var Shapes = []float64{0.6, 0.76, 1, 1.32, 1.96, 2.2, 3, 5, 7, 21, 81}

// ErrShapeIndex is returned when Gains.Shape does not index Shapes.
var ErrShapeIndex = errors.New("control: shape index out of range")

// Gains weight the three PID terms of an axis.
type Gains struct {
	P     float64 `yaml:"p" json:"p"`         // weight of the proportional term
	Slope float64 `yaml:"slope" json:"slope"` // proportional response is (slope/10) * e^shape
	Shape int     `yaml:"shape" json:"shape"` // index into Shapes
	I     float64 `yaml:"i" json:"i"`
	D     float64 `yaml:"d" json:"d"`
}

// Validate checks the shape index.
func (g Gains) Validate() error {
	if g.Shape < 0 || g.Shape >= len(Shapes) {
		return fmt.Errorf("%w: %d (valid 0-%d)", ErrShapeIndex, g.Shape, len(Shapes)-1)
	}
	return nil
}

// Exponent returns the proportional exponent selected by Shape.
func (g Gains) Exponent() float64 {
	return Shapes[g.Shape]
}

// AxisConfig configures one control axis.
type AxisConfig struct {
	Gains    Gains   `yaml:"gains" json:"gains"`
	DeadZone float64 `yaml:"dead_zone" json:"dead_zone"` // |command| <= DeadZone is neutral
	Window   int     `yaml:"window" json:"window"`       // derivative history length
}

// Validate checks gains and window.
func (c AxisConfig) Validate() error {
	if err := c.Gains.Validate(); err != nil {
		return err
	}
	if c.Window < 1 {
		return fmt.Errorf("control: derivative window must be at least 1, got %d", c.Window)
	}
	if c.DeadZone < 0 {
		return fmt.Errorf("control: dead zone must not be negative, got %v", c.DeadZone)
	}
	return nil
}

// Axis is the error state of one control axis.
// It is not safe for concurrent use; Controller serializes access.
type Axis struct {
	cfg AxisConfig

	// Sum is the running integral. It does not grow while Saturated.
	Sum float64
	// Saturated is set when the last combined output was clamped.
	Saturated bool

	errs []float64 // raw error history for the derivative
}

// NewAxis creates an axis in its initial state.
func NewAxis(cfg AxisConfig) *Axis {
	a := &Axis{cfg: cfg}
	a.Reset()
	return a
}

// Reset clears integral, saturation and derivative history.
func (a *Axis) Reset() {
	a.Sum = 0
	a.Saturated = false
	a.errs = make([]float64, 2, a.cfg.Window+1)
}

// Config returns the axis configuration.
func (a *Axis) Config() AxisConfig {
	return a.cfg
}

// Proportional returns clamp(-1, 1, (slope/10) * e^shape). The exponent is
// applied to |e| and the sign restored, so every shape keeps the
// direction of the error.
func (a *Axis) Proportional(e float64) float64 {
	p := (a.cfg.Gains.Slope / 10) * signedPow(e, a.cfg.Gains.Exponent())
	return clamp(p, -1, 1)
}

// Integral adds e to the running sum unless the previous cycle saturated,
// and returns the sum.
func (a *Axis) Integral(e float64) float64 {
	if !a.Saturated {
		a.Sum += e
	}
	return a.Sum
}

// Derivative appends e to the error window and returns the mean of the
// consecutive differences across it.
func (a *Axis) Derivative(e float64) float64 {
	if n := len(a.errs); n > a.cfg.Window {
		a.errs = append(a.errs[:0], a.errs[n-a.cfg.Window:]...)
	}
	a.errs = append(a.errs, e)

	diffs := make([]float64, len(a.errs)-1)
	for i := range diffs {
		diffs[i] = a.errs[i+1] - a.errs[i]
	}
	return stat.Mean(diffs, nil)
}

// Terms holds the unweighted PID terms of one cycle.
type Terms struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

// Step runs one cycle for raw error e and returns the gain-weighted sum
// of the terms, before saturation.
func (a *Axis) Step(e float64) (float64, Terms) {
	t := Terms{
		P: a.Proportional(e),
		I: a.Integral(e),
		D: a.Derivative(e),
	}
	g := a.cfg.Gains
	return g.P*t.P + g.I*t.I + g.D*t.D, t
}

// Saturate clamps v to [-1, 1] and records whether clamping happened,
// which blocks integration on the next cycle.
func (a *Axis) Saturate(v float64) float64 {
	if math.Abs(v) > 1 {
		a.Saturated = true
		return clamp(v, -1, 1)
	}
	a.Saturated = false
	return v
}

// InDeadZone reports whether a command of magnitude |v| is within the
// axis dead zone and should be sent as neutral.
func InDeadZone(v, threshold float64) bool {
	return math.Abs(v) <= threshold
}

func signedPow(v, exp float64) float64 {
	if v < 0 {
		return -math.Pow(-v, exp)
	}
	return math.Pow(v, exp)
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
