package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// CascadeConfig configures a Haar cascade detector.
type CascadeConfig struct {
	Path         string  `yaml:"path"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	MinNeighbors int     `yaml:"min_neighbors"`
}

// DefaultCascadeConfig returns the frontal face cascade.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		Path:         "cascades/haarcascade_frontalface_default.xml",
		ScaleFactor:  1.3,
		MinNeighbors: 5,
	}
}

// CascadeDetector runs an OpenCV cascade classifier on the grayscale frame.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	config     CascadeConfig
	mu         sync.Mutex
}

// NewCascade loads the cascade file.
func NewCascade(cfg CascadeConfig) (*CascadeDetector, error) {
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("cascade file not found: %s", cfg.Path)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.Path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade from %s", cfg.Path)
	}

	return &CascadeDetector{
		classifier: classifier,
		config:     cfg,
	}, nil
}

// Detect finds objects in the frame
func (d *CascadeDetector) Detect(frame gocv.Mat) ([]detection.Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	rects := d.classifier.DetectMultiScaleWithParams(
		gray,
		d.config.ScaleFactor,
		d.config.MinNeighbors,
		0,
		image.Point{},
		image.Point{},
	)

	out := make([]detection.Candidate, 0, len(rects))
	for _, r := range rects {
		out = append(out, detection.Candidate{Box: detection.FromImageRect(r), Confidence: 1})
	}
	return out, nil
}

// Close releases the detector resources
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
