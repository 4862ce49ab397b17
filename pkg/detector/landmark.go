package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// Landmark names reported by the YuNet face detector, in output order.
var LandmarkNames = []string{"right_eye", "left_eye", "nose", "mouth_right", "mouth_left"}

// LandmarkConfig configures the YuNet face-landmark detector.
type LandmarkConfig struct {
	ModelPath        string  `yaml:"model_path"`
	ConfidenceThresh float64 `yaml:"confidence_thresh"`
	NMSThresh        float64 `yaml:"nms_thresh"`
	InputWidth       int     `yaml:"input_width"`
	InputHeight      int     `yaml:"input_height"`
}

// DefaultLandmarkConfig returns production defaults for YuNet
func DefaultLandmarkConfig() LandmarkConfig {
	return LandmarkConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// LandmarkDetector uses OpenCV's FaceDetectorYN, which returns a box and
// five facial keypoints per face.
type LandmarkDetector struct {
	detector gocv.FaceDetectorYN
	config   LandmarkConfig
	mu       sync.Mutex
}

// NewLandmark creates a YuNet detector.
func NewLandmark(cfg LandmarkConfig) (*LandmarkDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &LandmarkDetector{detector: detector, config: cfg}, nil
}

// Detect finds faces and their keypoints in the frame
func (d *LandmarkDetector) Detect(frame gocv.Mat) ([]detection.Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.detector.SetInputSize(image.Pt(frame.Cols(), frame.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(frame, &faces)

	// 15 columns: x, y, w, h, five (x, y) landmarks, score
	out := make([]detection.Candidate, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		c := detection.Candidate{
			Box: detection.Rect{
				X: float64(faces.GetFloatAt(r, 0)),
				Y: float64(faces.GetFloatAt(r, 1)),
				W: float64(faces.GetFloatAt(r, 2)),
				H: float64(faces.GetFloatAt(r, 3)),
			},
			Confidence: float64(faces.GetFloatAt(r, 14)),
			Keypoints:  make([]detection.Keypoint, 0, len(LandmarkNames)),
		}
		for k, name := range LandmarkNames {
			c.Keypoints = append(c.Keypoints, detection.Keypoint{
				Name: name,
				X:    float64(faces.GetFloatAt(r, 4+2*k)),
				Y:    float64(faces.GetFloatAt(r, 5+2*k)),
			})
		}
		out = append(out, c)
	}
	return out, nil
}

// Close releases the detector resources
func (d *LandmarkDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
