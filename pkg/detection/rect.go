// Package detection defines the candidate shapes produced by object
// detectors. It has no OpenCV dependency; backends live in pkg/detector.
package detection

import (
	"image"
	"math"
)

// Rect is an axis-aligned box in pixel units with an upper-left origin.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FromImageRect converts an integer image.Rectangle.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{
		X: float64(r.Min.X),
		Y: float64(r.Min.Y),
		W: float64(r.Dx()),
		H: float64(r.Dy()),
	}
}

// ImageRect rounds r to an image.Rectangle.
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)),
		int(math.Round(r.Y+r.H)),
	)
}

// Center returns the center point of the box
func (r Rect) Center() (x, y float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Area returns the area of the box
func (r Rect) Area() float64 {
	return r.W * r.H
}

// IoU returns the intersection over union of r and o.
// Disjoint boxes and boxes with no union area give 0.
func (r Rect) IoU(o Rect) float64 {
	iw := math.Max(0, math.Min(r.X+r.W, o.X+o.W)-math.Max(r.X, o.X))
	ih := math.Max(0, math.Min(r.Y+r.H, o.Y+o.H)-math.Max(r.Y, o.Y))
	inter := iw * ih

	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Keypoint is a named landmark in pixel coordinates.
type Keypoint struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Candidate is one detector result for a frame.
type Candidate struct {
	Box        Rect       `json:"box"`
	Confidence float64    `json:"confidence"`
	Keypoints  []Keypoint `json:"keypoints,omitempty"`
}

// FilterMinSize drops candidates whose width or height is below minSide.
// A non-positive minSide keeps everything.
func FilterMinSize(cands []Candidate, minSide float64) []Candidate {
	if minSide <= 0 {
		return cands
	}
	out := cands[:0:0]
	for _, c := range cands {
		if c.Box.W >= minSide && c.Box.H >= minSide {
			out = append(out, c)
		}
	}
	return out
}
