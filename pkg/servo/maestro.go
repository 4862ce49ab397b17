package servo

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Maestro compact protocol command bytes.
const (
	cmdSetTarget = 0x84
	maxChannel   = 23
)

// Baud rates the Maestro detects on its TTL serial input. The USB virtual
// COM port ignores the rate.
const (
	DefaultBaudRate = 115200
	minBaudRate     = 300
	maxBaudRate     = 200000
)

// MaestroConfig configures a Pololu Maestro servo controller.
type MaestroConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`

	// Pulse width range mapped onto 0-180 degrees, in microseconds.
	MinPulseUS float64 `yaml:"min_pulse_us"`
	MaxPulseUS float64 `yaml:"max_pulse_us"`
}

// DefaultMaestroConfig returns the usual USB serial device and pulse range.
func DefaultMaestroConfig() MaestroConfig {
	return MaestroConfig{
		Port:       "/dev/ttyACM0",
		BaudRate:   DefaultBaudRate,
		MinPulseUS: 1000,
		MaxPulseUS: 2000,
	}
}

// Validate checks the port, baud rate and pulse range.
func (c MaestroConfig) Validate() error {
	if c.Port == "" {
		return errors.New("maestro: port is required")
	}
	if c.BaudRate != 0 && (c.BaudRate < minBaudRate || c.BaudRate > maxBaudRate) {
		return fmt.Errorf("maestro: baud rate %d outside %d-%d", c.BaudRate, minBaudRate, maxBaudRate)
	}
	if c.MinPulseUS <= 0 || c.MaxPulseUS <= c.MinPulseUS {
		return fmt.Errorf("maestro: invalid pulse range %v-%v us", c.MinPulseUS, c.MaxPulseUS)
	}
	return nil
}

// SerialMode returns the 8N1 line the Maestro expects at the configured
// baud rate, DefaultBaudRate when unset.
func (c MaestroConfig) SerialMode() *serial.Mode {
	baud := c.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
}

// Maestro writes Set Target commands in the compact serial protocol.
type Maestro struct {
	w   io.Writer
	cfg MaestroConfig
	mu  sync.Mutex
}

// NewMaestro wraps an already open writer, e.g. a serial.Port.
func NewMaestro(w io.Writer, cfg MaestroConfig) *Maestro {
	if cfg.MinPulseUS <= 0 || cfg.MaxPulseUS <= cfg.MinPulseUS {
		d := DefaultMaestroConfig()
		cfg.MinPulseUS, cfg.MaxPulseUS = d.MinPulseUS, d.MaxPulseUS
	}
	return &Maestro{w: w, cfg: cfg}
}

// OpenMaestro opens the serial port named in cfg.
func OpenMaestro(cfg MaestroConfig) (*Maestro, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Port, cfg.SerialMode())
	if err != nil {
		return nil, fmt.Errorf("servo: open %s: %w", cfg.Port, err)
	}
	return NewMaestro(port, cfg), nil
}

// Target returns the Maestro target for deg, in quarter-microseconds.
func (m *Maestro) Target(deg float64) uint16 {
	deg = clamp(deg, MinAngle, MaxAngle)
	us := m.cfg.MinPulseUS + deg/MaxAngle*(m.cfg.MaxPulseUS-m.cfg.MinPulseUS)
	return uint16(us*4 + 0.5)
}

// SetAngle sends one Set Target command.
func (m *Maestro) SetAngle(channel int, deg float64) error {
	if channel < 0 || channel > maxChannel {
		return fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	t := m.Target(deg)
	frame := []byte{cmdSetTarget, byte(channel), byte(t & 0x7f), byte((t >> 7) & 0x7f)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.w.Write(frame); err != nil {
		return fmt.Errorf("servo: write channel %d: %w", channel, err)
	}
	return nil
}

// Close closes the underlying port when it is closable.
func (m *Maestro) Close() error {
	if c, ok := m.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
