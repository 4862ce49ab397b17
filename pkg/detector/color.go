package detector

import (
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// HSVRange is an inclusive HSV threshold (OpenCV scale: H 0-179, S/V 0-255).
type HSVRange struct {
	Low  [3]float64 `yaml:"low"`
	High [3]float64 `yaml:"high"`
}

// ColorConfig configures the color threshold detector.
type ColorConfig struct {
	// Two ranges are OR-ed so a hue band can wrap around 180 (reds).
	Ranges  []HSVRange `yaml:"ranges"`
	MinArea float64    `yaml:"min_area"`
}

// DefaultColorConfig returns a red band split across the hue wrap.
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		Ranges: []HSVRange{
			{Low: [3]float64{150, 125, 103}, High: [3]float64{179, 255, 255}},
			{Low: [3]float64{0, 125, 103}, High: [3]float64{30, 255, 255}},
		},
		MinArea: 50,
	}
}

// ColorDetector boxes connected blobs of pixels inside the HSV ranges.
type ColorDetector struct {
	config ColorConfig
	mu     sync.Mutex
}

// NewColor creates a color threshold detector.
func NewColor(cfg ColorConfig) *ColorDetector {
	return &ColorDetector{config: cfg}
}

// Detect returns one candidate per external contour with area >= MinArea,
// largest first.
func (d *ColorDetector) Detect(frame gocv.Mat) ([]detection.Candidate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Empty() || len(d.config.Ranges) == 0 {
		return nil, nil
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	part := gocv.NewMat()
	defer part.Close()

	for i, r := range d.config.Ranges {
		lo := gocv.NewScalar(r.Low[0], r.Low[1], r.Low[2], 0)
		hi := gocv.NewScalar(r.High[0], r.High[1], r.High[2], 0)
		if i == 0 {
			gocv.InRangeWithScalar(hsv, lo, hi, &mask)
			continue
		}
		gocv.InRangeWithScalar(hsv, lo, hi, &part)
		gocv.BitwiseOr(mask, part, &mask)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	type blob struct {
		area float64
		box  detection.Rect
	}
	var blobs []blob
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		area := gocv.ContourArea(c)
		if area < d.config.MinArea {
			continue
		}
		blobs = append(blobs, blob{area: area, box: detection.FromImageRect(gocv.BoundingRect(c))})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].area > blobs[j].area })

	out := make([]detection.Candidate, 0, len(blobs))
	for _, b := range blobs {
		out = append(out, detection.Candidate{Box: b.box, Confidence: 1})
	}
	return out, nil
}

// Close releases the detector resources
func (d *ColorDetector) Close() error {
	return nil
}
