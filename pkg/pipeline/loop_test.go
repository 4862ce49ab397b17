package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/pkg/control"
	"github.com/teslashibe/go-ptz/pkg/detection"
	"github.com/teslashibe/go-ptz/pkg/tracking"
)

type fakeActuator struct {
	mu       sync.Mutex
	commands []control.Command
	stops    int
	err      error
}

func (a *fakeActuator) Dispatch(_ context.Context, cmd control.Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.commands = append(a.commands, cmd)
	return nil
}

func (a *fakeActuator) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *fakeActuator) counts() (dispatched, stops int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.commands), a.stops
}

type fakeDetector struct{}

func (fakeDetector) Detect(gocv.Mat) ([]detection.Candidate, error) { return nil, nil }
func (fakeDetector) Close() error                                   { return nil }

type closedSource struct{}

func (closedSource) Read(*gocv.Mat) bool { return false }
func (closedSource) Close() error        { return nil }

func cand(x, y, w, h float64) detection.Candidate {
	return detection.Candidate{Box: detection.Rect{X: x, Y: y, W: w, H: h}, Confidence: 1}
}

func newTestLoop(t *testing.T, cfg Config) (*Loop, *fakeActuator) {
	t.Helper()
	ctl, err := control.NewController(control.DefaultConfig())
	require.NoError(t, err)
	act := &fakeActuator{}
	l, err := NewLoop(cfg, fakeDetector{}, ctl, act)
	require.NoError(t, err)
	return l, act
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.HistoryLen = 0
	assert.ErrorIs(t, cfg.Validate(), tracking.ErrHistoryLen)

	cfg = DefaultConfig()
	cfg.CostFunc = "manhattan"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxMissed = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.StopAfter = -1
	assert.Error(t, cfg.Validate())
}

func TestLoop_IdleDoesNotDispatch(t *testing.T) {
	l, act := newTestLoop(t, DefaultConfig())

	st := l.Step(context.Background(), []detection.Candidate{cand(10, 10, 40, 40)})
	assert.Equal(t, tracking.Idle, st.State)
	assert.Equal(t, 1, st.Candidates)
	assert.Nil(t, st.Box)

	n, _ := act.counts()
	assert.Zero(t, n)
}

func TestLoop_SelectNearest(t *testing.T) {
	l, act := newTestLoop(t, DefaultConfig())
	ctx := context.Background()
	cands := []detection.Candidate{cand(10, 10, 40, 40), cand(300, 200, 40, 40)}

	require.NoError(t, l.Select(ctx, 290, 210))
	st := l.Step(ctx, cands)

	assert.Equal(t, tracking.Tracking, st.State)
	assert.NotEmpty(t, st.TrackID)
	require.NotNil(t, st.Box)
	assert.Equal(t, cands[1].Box, *st.Box)

	n, _ := act.counts()
	assert.Equal(t, 1, n)
	assert.Equal(t, st, l.Snapshot())
}

func TestLoop_SelectWithoutDetections(t *testing.T) {
	l, _ := newTestLoop(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, l.Select(ctx, 100, 100))
	st := l.Step(ctx, nil)
	assert.Equal(t, tracking.Idle, st.State)
	assert.Empty(t, st.TrackID)
}

func TestLoop_NewTrackIDPerSelect(t *testing.T) {
	l, _ := newTestLoop(t, DefaultConfig())
	ctx := context.Background()
	cands := []detection.Candidate{cand(100, 100, 40, 40)}

	require.NoError(t, l.Select(ctx, 100, 100))
	first := l.Step(ctx, cands).TrackID
	require.NoError(t, l.Select(ctx, 100, 100))
	second := l.Step(ctx, cands).TrackID

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestLoop_MissCounting(t *testing.T) {
	l, _ := newTestLoop(t, DefaultConfig())
	ctx := context.Background()
	cands := []detection.Candidate{cand(100, 100, 40, 40)}

	require.NoError(t, l.Select(ctx, 100, 100))
	l.Step(ctx, cands)

	assert.Equal(t, 1, l.Step(ctx, nil).Missed)
	st := l.Step(ctx, nil)
	assert.Equal(t, 2, st.Missed)
	assert.Equal(t, tracking.Tracking, st.State)
	require.NotNil(t, st.Predicted)

	assert.Zero(t, l.Step(ctx, cands).Missed)
}

func TestLoop_MaxMissedDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMissed = 2
	l, act := newTestLoop(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Select(ctx, 100, 100))
	l.Step(ctx, []detection.Candidate{cand(100, 100, 40, 40)})

	assert.Equal(t, tracking.Tracking, l.Step(ctx, nil).State)
	st := l.Step(ctx, nil)
	assert.Equal(t, tracking.Idle, st.State)
	assert.Empty(t, st.TrackID)
	assert.False(t, l.trk.IsTracking())

	// One stop on the first miss, one on the drop.
	_, stops := act.counts()
	assert.Equal(t, 2, stops)
}

func TestLoop_StopsWhenTargetMissing(t *testing.T) {
	l, act := newTestLoop(t, DefaultConfig())
	ctx := context.Background()
	cands := []detection.Candidate{cand(100, 100, 40, 40)}

	require.NoError(t, l.Select(ctx, 100, 100))
	st := l.Step(ctx, cands)
	require.NotEqual(t, control.Neutral, st.Command)
	_, stops := act.counts()
	require.Zero(t, stops)

	l.Step(ctx, nil)
	_, stops = act.counts()
	assert.Equal(t, 1, stops, "first miss stops the camera")

	for i := 0; i < 3; i++ {
		l.Step(ctx, nil)
	}
	_, stops = act.counts()
	assert.Equal(t, 1, stops, "further misses do not repeat the stop")

	l.Step(ctx, cands)
	l.Step(ctx, nil)
	_, stops = act.counts()
	assert.Equal(t, 2, stops, "a new miss streak stops again")
}

func TestLoop_StopAfterDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopAfter = 0
	l, act := newTestLoop(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Select(ctx, 100, 100))
	l.Step(ctx, []detection.Candidate{cand(100, 100, 40, 40)})
	for i := 0; i < 5; i++ {
		l.Step(ctx, nil)
	}
	_, stops := act.counts()
	assert.Zero(t, stops)
}

func TestLoop_Drop(t *testing.T) {
	l, act := newTestLoop(t, DefaultConfig())
	ctx := context.Background()
	cands := []detection.Candidate{cand(100, 100, 40, 40)}

	require.NoError(t, l.Select(ctx, 100, 100))
	l.Step(ctx, cands)
	require.NoError(t, l.Drop(ctx))
	st := l.Step(ctx, cands)

	assert.Equal(t, tracking.Idle, st.State)
	n, stops := act.counts()
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, stops)
}

func TestLoop_MinSizeFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSize = 20
	l, _ := newTestLoop(t, cfg)
	ctx := context.Background()

	require.NoError(t, l.Select(ctx, 0, 0))
	st := l.Step(ctx, []detection.Candidate{cand(0, 0, 5, 5), cand(200, 200, 40, 40)})
	assert.Equal(t, 1, st.Candidates)
	require.NotNil(t, st.Box)
	assert.Equal(t, 200.0, st.Box.X)
}

func TestLoop_DispatchErrorsCounted(t *testing.T) {
	l, act := newTestLoop(t, DefaultConfig())
	act.err = errors.New("network unreachable")
	ctx := context.Background()
	cands := []detection.Candidate{cand(100, 100, 40, 40)}

	require.NoError(t, l.Select(ctx, 100, 100))
	l.Step(ctx, cands)
	st := l.Step(ctx, cands)

	assert.Equal(t, tracking.Tracking, st.State)
	assert.Equal(t, uint64(2), st.DispatchErrors)
	assert.Equal(t, uint64(2), st.Frames)
}

func TestLoop_OnStatus(t *testing.T) {
	l, _ := newTestLoop(t, DefaultConfig())
	var got []Status
	l.OnStatus = func(st Status) { got = append(got, st) }

	l.Step(context.Background(), nil)
	l.Step(context.Background(), nil)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[1].Frames)
}

func TestLoop_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	l, _ := newTestLoop(t, DefaultConfig())
	l.Metrics = NewMetrics(reg)
	ctx := context.Background()

	require.NoError(t, l.Select(ctx, 100, 100))
	l.Step(ctx, []detection.Candidate{cand(100, 100, 40, 40)})
	l.Step(ctx, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.Acquisitions))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.Misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.Tracking))

	require.NoError(t, l.Drop(ctx))
	l.Step(ctx, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics.Drops))
	assert.Equal(t, 0.0, testutil.ToFloat64(l.Metrics.Tracking))
}

func TestLoop_RunStopsOnClosedSource(t *testing.T) {
	l, act := newTestLoop(t, DefaultConfig())

	err := l.Run(context.Background(), closedSource{})
	assert.ErrorIs(t, err, ErrSourceClosed)
	_, stops := act.counts()
	assert.Equal(t, 1, stops)
}

func TestLoop_RunCancelled(t *testing.T) {
	l, _ := newTestLoop(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, l.Run(ctx, closedSource{}), context.Canceled)
}

func TestLoop_SelectRespectsContext(t *testing.T) {
	l, _ := newTestLoop(t, DefaultConfig())
	ctx := context.Background()
	for i := 0; i < cap(l.requests); i++ {
		require.NoError(t, l.Select(ctx, 0, 0))
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, l.Select(cctx, 0, 0), context.Canceled)
}
