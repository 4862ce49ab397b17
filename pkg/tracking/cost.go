package tracking

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-ptz/pkg/detection"
	"gonum.org/v1/gonum/floats"
)

// CostFunc selects how candidates are scored against the prediction.
type CostFunc string

const (
	// CostDistance is the L1 distance over x, y, w and h.
	CostDistance CostFunc = "distance"
	// CostOverlap is 1 - IoU.
	CostOverlap CostFunc = "overlap"
)

// ParseCostFunc validates a cost function name. Empty means distance.
func ParseCostFunc(s string) (CostFunc, error) {
	switch CostFunc(s) {
	case CostDistance, "":
		return CostDistance, nil
	case CostOverlap:
		return CostOverlap, nil
	}
	return "", fmt.Errorf("tracking: unknown cost function %q", s)
}

// Costs scores cands with the given function.
func (t *Tracker) Costs(fn CostFunc, cands []detection.Candidate, missed int) []float64 {
	if fn == CostOverlap {
		return t.CostByOverlap(cands, missed)
	}
	return t.CostByDistance(cands, missed)
}

// CostByDistance returns, per candidate, the L1 distance between its box
// and the predicted box. Lower is better. Empty input gives an empty result.
func (t *Tracker) CostByDistance(cands []detection.Candidate, missed int) []float64 {
	pred, ok := t.Predict(missed)
	if !ok || len(cands) == 0 {
		return []float64{}
	}

	costs := make([]float64, len(cands))
	for i, c := range cands {
		b := c.Box
		costs[i] = math.Abs(pred.X-b.X) + math.Abs(pred.Y-b.Y) +
			math.Abs(pred.W-b.W) + math.Abs(pred.H-b.H)
	}
	return costs
}

// CostByOverlap returns 1 - IoU(prediction, candidate) per candidate:
// 0 for a perfect match, 1 for no overlap.
func (t *Tracker) CostByOverlap(cands []detection.Candidate, missed int) []float64 {
	pred, ok := t.Predict(missed)
	if !ok || len(cands) == 0 {
		return []float64{}
	}

	costs := make([]float64, len(cands))
	for i, c := range cands {
		costs[i] = 1 - pred.IoU(c.Box)
	}
	return costs
}

// Best returns the index of the lowest cost. ok is false for no costs.
func Best(costs []float64) (idx int, ok bool) {
	if len(costs) == 0 {
		return 0, false
	}
	return floats.MinIdx(costs), true
}
