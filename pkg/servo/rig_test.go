package servo

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/go-ptz/pkg/control"
)

type recordDriver struct {
	angles map[int]float64
	calls  int
	err    error
}

func newRecordDriver() *recordDriver {
	return &recordDriver{angles: map[int]float64{}}
}

func (d *recordDriver) SetAngle(ch int, deg float64) error {
	if d.err != nil {
		return d.err
	}
	d.calls++
	d.angles[ch] = deg
	return nil
}

func floatEquals(a, b float64) bool {
	const epsilon = 1e-9
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

func newTestRig(t *testing.T) (*Rig, *recordDriver) {
	t.Helper()
	d := newRecordDriver()
	r, err := NewRig(DefaultConfig(), d)
	if err != nil {
		t.Fatalf("NewRig: %v", err)
	}
	return r, d
}

func TestNewRig_Centers(t *testing.T) {
	r, d := newTestRig(t)
	pan, tilt := r.Angles()
	if pan != CenterAngle || tilt != CenterAngle {
		t.Errorf("Angles() = %v, %v, want 90, 90", pan, tilt)
	}
	if d.angles[1] != CenterAngle || d.angles[0] != CenterAngle {
		t.Errorf("driver angles = %v", d.angles)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"zero divisor", func(c *Config) { c.Divisor = 0 }},
		{"shared channel", func(c *Config) { c.TiltChannel = c.PanChannel }},
		{"zero command scale", func(c *Config) { c.CommandScale = 0 }},
		{"negative dead zone", func(c *Config) { c.TiltDeadZone = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_WithDeadZones(t *testing.T) {
	ctl := control.DefaultConfig()
	ctl.PanTilt.DeadZone = 0.05
	ctl.TiltDeadZone = 0.3

	cfg := DefaultConfig().WithDeadZones(ctl)
	if cfg.PanDeadZone != 0.05 || cfg.TiltDeadZone != 0.3 {
		t.Errorf("dead zones = %v, %v, want 0.05, 0.3", cfg.PanDeadZone, cfg.TiltDeadZone)
	}
}

func TestRig_Dispatch(t *testing.T) {
	r, _ := newTestRig(t)

	if err := r.Dispatch(context.Background(), control.Command{Pan: 0.5, Tilt: -0.5}); err != nil {
		t.Fatal(err)
	}
	pan, tilt := r.Angles()
	if !floatEquals(pan, 88) || !floatEquals(tilt, 92) {
		t.Errorf("Angles() = %v, %v, want 88, 92", pan, tilt)
	}
}

func TestRig_DispatchClamps(t *testing.T) {
	r, d := newTestRig(t)

	if err := r.Dispatch(context.Background(), control.Command{Pan: 100, Tilt: -100}); err != nil {
		t.Fatal(err)
	}
	pan, tilt := r.Angles()
	if pan != MinAngle || tilt != MaxAngle {
		t.Errorf("Angles() = %v, %v, want 0, 180", pan, tilt)
	}
	if d.angles[1] != MinAngle || d.angles[0] != MaxAngle {
		t.Errorf("driver angles = %v", d.angles)
	}
}

func TestRig_DispatchUsesTiltForTilt(t *testing.T) {
	r, _ := newTestRig(t)

	if err := r.Dispatch(context.Background(), control.Command{Pan: 0, Tilt: -1}); err != nil {
		t.Fatal(err)
	}
	pan, tilt := r.Angles()
	if pan != CenterAngle {
		t.Errorf("pan = %v, want 90", pan)
	}
	if !floatEquals(tilt, 94) {
		t.Errorf("tilt = %v, want 94", tilt)
	}
}

func TestRig_DispatchDeadZone(t *testing.T) {
	r, _ := newTestRig(t)

	if err := r.Dispatch(context.Background(), control.Command{Pan: 0.2, Tilt: -0.1}); err != nil {
		t.Fatal(err)
	}
	pan, tilt := r.Angles()
	if pan != CenterAngle || tilt != CenterAngle {
		t.Errorf("Angles() = %v, %v, want unchanged", pan, tilt)
	}

	if err := r.Dispatch(context.Background(), control.Command{Pan: 0.5}); err != nil {
		t.Fatal(err)
	}
	pan, _ = r.Angles()
	if !floatEquals(pan, 88) {
		t.Errorf("pan = %v, want 88", pan)
	}
}

func TestRig_DriverError(t *testing.T) {
	r, d := newTestRig(t)
	d.err = errors.New("port gone")

	if err := r.Dispatch(context.Background(), control.Command{Pan: 1}); err == nil {
		t.Error("Dispatch() = nil, want driver error")
	}
}

func TestRig_Center(t *testing.T) {
	r, _ := newTestRig(t)
	_ = r.Dispatch(context.Background(), control.Command{Pan: 1, Tilt: 1})
	if err := r.Center(); err != nil {
		t.Fatal(err)
	}
	pan, tilt := r.Angles()
	if pan != CenterAngle || tilt != CenterAngle {
		t.Errorf("Angles() = %v, %v after Center", pan, tilt)
	}
}

type closingDriver struct {
	*recordDriver
	closed bool
}

func (d *closingDriver) Close() error {
	d.closed = true
	return nil
}

func TestRig_CloseCentersAndClosesDriver(t *testing.T) {
	d := &closingDriver{recordDriver: newRecordDriver()}
	r, err := NewRig(DefaultConfig(), d)
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Dispatch(context.Background(), control.Command{Pan: 1, Tilt: 1})

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !d.closed {
		t.Error("driver not closed")
	}
	if d.angles[1] != CenterAngle || d.angles[0] != CenterAngle {
		t.Errorf("driver angles = %v, want centred", d.angles)
	}
}

func TestMaestro_SetAngle(t *testing.T) {
	var buf bytes.Buffer
	m := NewMaestro(&buf, DefaultMaestroConfig())

	if err := m.SetAngle(1, 90); err != nil {
		t.Fatal(err)
	}
	// 1500us * 4 = 6000 = 46<<7 | 112
	want := []byte{0x84, 0x01, 0x70, 0x2e}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("frame = % x, want % x", buf.Bytes(), want)
	}
}

func TestMaestro_Target(t *testing.T) {
	m := NewMaestro(&bytes.Buffer{}, DefaultMaestroConfig())
	tests := []struct {
		deg  float64
		want uint16
	}{
		{0, 4000},
		{90, 6000},
		{180, 8000},
		{-20, 4000},
		{200, 8000},
	}
	for _, tt := range tests {
		if got := m.Target(tt.deg); got != tt.want {
			t.Errorf("Target(%v) = %d, want %d", tt.deg, got, tt.want)
		}
	}
}

func TestMaestro_BadChannel(t *testing.T) {
	m := NewMaestro(&bytes.Buffer{}, DefaultMaestroConfig())
	if err := m.SetAngle(24, 90); !errors.Is(err, ErrChannel) {
		t.Errorf("SetAngle(24) = %v, want ErrChannel", err)
	}
}
