package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// DNNConfig configures the SSD face network.
type DNNConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfigPath       string  `yaml:"config_path"`
	ConfidenceThresh float64 `yaml:"confidence_thresh"`
	InputSize        int     `yaml:"input_size"`
}

// DefaultDNNConfig returns defaults for the res10 300x300 SSD.
func DefaultDNNConfig() DNNConfig {
	return DNNConfig{
		ModelPath:        "models/res10_300x300_ssd_iter_140000.caffemodel",
		ConfigPath:       "models/deploy.prototxt.txt",
		ConfidenceThresh: 0.5,
		InputSize:        300,
	}
}

// DNNDetector runs a Caffe SSD detector.
type DNNDetector struct {
	net    gocv.Net
	config DNNConfig
	mu     sync.Mutex
}

// NewDNN loads the Caffe model.
func NewDNN(cfg DNNConfig) (*DNNDetector, error) {
	for _, p := range []string{cfg.ModelPath, cfg.ConfigPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", p)
		}
	}

	net := gocv.ReadNetFromCaffe(cfg.ConfigPath, cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load DNN model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNNDetector{net: net, config: cfg}, nil
}

// Detect finds faces in the frame
func (d *DNNDetector) Detect(frame gocv.Mat) ([]detection.Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	imgW := float64(frame.Cols())
	imgH := float64(frame.Rows())
	size := image.Pt(d.config.InputSize, d.config.InputSize)

	blob := gocv.BlobFromImage(frame, 1.0, size, gocv.NewScalar(104.0, 117.0, 123.0, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// SSD output is [1, 1, N, 7]: id, class, score, x1, y1, x2, y2 (normalized)
	var out []detection.Candidate
	for i := 0; i+6 < output.Total(); i += 7 {
		score := float64(output.GetFloatAt(0, i+2))
		if score <= d.config.ConfidenceThresh {
			continue
		}
		x1 := float64(int(float64(output.GetFloatAt(0, i+3)) * imgW))
		y1 := float64(int(float64(output.GetFloatAt(0, i+4)) * imgH))
		x2 := float64(int(float64(output.GetFloatAt(0, i+5)) * imgW))
		y2 := float64(int(float64(output.GetFloatAt(0, i+6)) * imgH))

		out = append(out, detection.Candidate{
			Box:        detection.Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1},
			Confidence: score,
		})
	}
	return out, nil
}

// Close releases the detector resources
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
