// Package detector implements gocv-backed object detectors that produce
// detection.Candidate values.
package detector

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// Detector is the interface for detection backends.
// The tracker and controller only ever see the returned boxes.
type Detector interface {
	// Detect finds candidates in a BGR frame
	Detect(frame gocv.Mat) ([]detection.Candidate, error)

	// Close releases resources
	Close() error
}

// Kind names a detector backend.
type Kind string

const (
	KindColor    Kind = "color"
	KindCascade  Kind = "cascade"
	KindDNN      Kind = "dnn"
	KindLandmark Kind = "landmark"
)

// ParseKind validates a detector name. Empty means dnn.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindColor, KindCascade, KindDNN, KindLandmark:
		return k, nil
	case "":
		return KindDNN, nil
	}
	return "", fmt.Errorf("unknown detector kind %q", s)
}

// Config selects and configures a detector backend.
type Config struct {
	Kind     Kind           `yaml:"kind"`
	Color    ColorConfig    `yaml:"color"`
	Cascade  CascadeConfig  `yaml:"cascade"`
	DNN      DNNConfig      `yaml:"dnn"`
	Landmark LandmarkConfig `yaml:"landmark"`
}

// DefaultConfig returns the DNN face detector with its defaults.
func DefaultConfig() Config {
	return Config{
		Kind:     KindDNN,
		Color:    DefaultColorConfig(),
		Cascade:  DefaultCascadeConfig(),
		DNN:      DefaultDNNConfig(),
		Landmark: DefaultLandmarkConfig(),
	}
}

// New builds the detector named by cfg.Kind.
func New(cfg Config) (Detector, error) {
	switch cfg.Kind {
	case KindColor:
		return NewColor(cfg.Color), nil
	case KindCascade:
		return NewCascade(cfg.Cascade)
	case KindDNN, "":
		return NewDNN(cfg.DNN)
	case KindLandmark:
		return NewLandmark(cfg.Landmark)
	default:
		return nil, fmt.Errorf("unknown detector kind %q", cfg.Kind)
	}
}
