package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Source yields video frames. Read returns false when no more frames
// can be read.
type Source interface {
	Read(frame *gocv.Mat) bool
	Close() error
}

// CameraConfig selects a capture device or stream URL.
type CameraConfig struct {
	// Device is a camera index ("0") or a file/RTSP URL.
	Device string `yaml:"device"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// DefaultCameraConfig opens the first local camera at 640x480.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Device: "0", Width: 640, Height: 480}
}

// Camera is a Source backed by a gocv VideoCapture.
type Camera struct {
	vc *gocv.VideoCapture
}

// OpenCamera opens the device and requests the configured frame size.
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %q: device not opened", cfg.Device)
	}
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	return &Camera{vc: vc}, nil
}

func (c *Camera) Read(frame *gocv.Mat) bool {
	return c.vc.Read(frame)
}

func (c *Camera) Close() error {
	return c.vc.Close()
}
