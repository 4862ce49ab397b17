package visca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/control"
)

// DefaultPort is the PTZOptics VISCA-over-UDP port.
const DefaultPort = 1259

// ErrNotConnected is returned by Dispatch before Dial or after Close.
var ErrNotConnected = errors.New("visca: not connected")

// Config holds the camera address and send behaviour.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// SendTimeout bounds each datagram write. Zero blocks as long as the
	// socket does.
	SendTimeout time.Duration `yaml:"send_timeout"`

	InvertZoom bool `yaml:"invert_zoom"`
}

// DefaultConfig returns the address of the bench camera.
func DefaultConfig() Config {
	return Config{
		Host: "192.168.10.97",
		Port: DefaultPort,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Client sends encoded commands to one camera. Each Dispatch writes the
// pan/tilt frame and then the zoom frame; nothing is read back.
type Client struct {
	enc     Encoder
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	addr string
	conn net.Conn
}

// NewClient creates an unconnected client.
func NewClient(cfg Config, enc Encoder) *Client {
	enc.InvertZoom = enc.InvertZoom || cfg.InvertZoom
	return &Client{
		enc:     enc,
		timeout: cfg.SendTimeout,
		addr:    cfg.Addr(),
		logger:  log.Component("visca"),
	}
}

// Dial opens the UDP socket to the configured address, replacing any
// socket already open.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return fmt.Errorf("visca: dial %s: %w", c.addr, err)
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.logger.Info("camera socket open", "addr", c.addr)
	return nil
}

// Addr returns the current camera address.
func (c *Client) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Encoder returns the frame encoder.
func (c *Client) Encoder() Encoder {
	return c.enc
}

// Dispatch encodes cmd and sends both frames. A failed pan/tilt write does
// not prevent the zoom write; errors are joined. Nothing is retried.
func (c *Client) Dispatch(ctx context.Context, cmd control.Command) error {
	pt, zoom, err := c.enc.Frames(cmd)
	if err != nil {
		return err
	}
	return c.send(ctx, pt, zoom)
}

// Stop sends the all-stop frames.
func (c *Client) Stop(ctx context.Context) error {
	pt, zoom := c.enc.StopFrames()
	return c.send(ctx, pt, zoom)
}

func (c *Client) send(ctx context.Context, frames ...[]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	var errs []error
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if c.timeout > 0 {
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
				errs = append(errs, fmt.Errorf("visca: set write deadline: %w", err))
				continue
			}
		}
		if _, err := c.conn.Write(f); err != nil {
			errs = append(errs, fmt.Errorf("visca: send % x: %w", f, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
