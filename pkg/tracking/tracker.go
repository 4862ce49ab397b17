// Package tracking keeps a single selected object locked across frames.
//
// A Tracker holds a short history of the object's boxes, extrapolates
// where it should be in the current frame, and scores new detections
// against that prediction. The caller picks the lowest cost candidate and
// feeds it back with Update, or counts a miss when nothing was detected.
package tracking

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/teslashibe/go-ptz/pkg/detection"
)

// ErrHistoryLen is returned for a history capacity below one.
var ErrHistoryLen = errors.New("tracking: history length must be at least 1")

// DefaultHistoryLen is the number of boxes kept for prediction.
const DefaultHistoryLen = 5

// State is the tracker state.
type State int

const (
	Idle State = iota
	Tracking
)

func (s State) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// MarshalText encodes the state name for JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "tracking":
		*s = Tracking
	case "idle":
		*s = Idle
	default:
		return fmt.Errorf("tracking: unknown state %q", b)
	}
	return nil
}

// Tracker follows one object through a stream of detections.
// All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	hist     history
	tracking bool
}

// New creates an idle tracker keeping historyLen boxes.
func New(historyLen int) (*Tracker, error) {
	if historyLen < 1 {
		return nil, ErrHistoryLen
	}
	return &Tracker{hist: newHistory(historyLen)}, nil
}

// State reports whether an object is being tracked.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracking {
		return Tracking
	}
	return Idle
}

// IsTracking is shorthand for State() == Tracking.
func (t *Tracker) IsTracking() bool {
	return t.State() == Tracking
}

// History returns a copy of the stored boxes, newest first.
func (t *Tracker) History() []detection.Rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hist.slice()
}

// Select starts tracking the candidate whose origin is nearest to the pick
// point, measured as |x-pickX| + |y-pickY|. Earlier candidates win ties.
// History is seeded with two copies of the chosen box so the first
// prediction has a pair to difference. Returns false and leaves the
// tracker untouched when cands is empty.
func (t *Tracker) Select(cands []detection.Candidate, pickX, pickY float64) bool {
	if len(cands) == 0 {
		return false
	}

	best := 0
	bestDist := math.Inf(1)
	for i, c := range cands {
		d := math.Abs(c.Box.X-pickX) + math.Abs(c.Box.Y-pickY)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.hist.clear()
	t.hist.pushFront(cands[best].Box)
	t.hist.pushFront(cands[best].Box)
	t.tracking = true
	return true
}

// Update records the box confirmed as the object in this frame.
func (t *Tracker) Update(r detection.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hist.pushFront(r)
}

// Drop forgets the object and returns to Idle.
func (t *Tracker) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hist.clear()
	t.tracking = false
}

// Predict extrapolates the object's box for the current frame.
// missed is the number of frames since the object was last confirmed.
// The second result is false when the history is empty.
func (t *Tracker) Predict(missed int) (detection.Rect, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.predict(missed)
}

func (t *Tracker) predict(missed int) (detection.Rect, bool) {
	n := t.hist.len()
	if n == 0 {
		return detection.Rect{}, false
	}
	newest := t.hist.at(0)
	if n < 2 {
		return newest, true
	}
	if missed < 0 {
		missed = 0
	}

	// Pair (i-1, i) is weighted n-i+1 so recent motion counts most.
	var dx, dy, dw, dh, norm float64
	for i := 1; i < n; i++ {
		w := float64(n - i + 1)
		a, b := t.hist.at(i-1), t.hist.at(i)
		dx += (a.X - b.X) * w
		dy += (a.Y - b.Y) * w
		dw += (a.W - b.W) * w
		dh += (a.H - b.H) * w
		norm += w
	}

	scale := float64(1+missed) / norm
	return detection.Rect{
		X: newest.X + dx*scale,
		Y: newest.Y + dy*scale,
		W: newest.W + dw*scale,
		H: newest.H + dh*scale,
	}, true
}
