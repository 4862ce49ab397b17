// Package pipeline runs the per-frame detect, track, control and actuate
// cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/control"
	"github.com/teslashibe/go-ptz/pkg/detection"
	"github.com/teslashibe/go-ptz/pkg/detector"
	"github.com/teslashibe/go-ptz/pkg/tracking"
)

// ErrSourceClosed is returned by Run when the source stops yielding frames.
var ErrSourceClosed = errors.New("pipeline: source closed")

// Actuator moves the camera.
type Actuator interface {
	Dispatch(ctx context.Context, cmd control.Command) error
	Stop(ctx context.Context) error
}

// Config tunes the loop.
type Config struct {
	HistoryLen int               `yaml:"history_len"`
	CostFunc   tracking.CostFunc `yaml:"cost_func"`
	// MinSize drops candidates whose width or height is below it.
	MinSize float64 `yaml:"min_size"`
	// MaxMissed drops the track after that many consecutive misses.
	// Zero keeps the track until dropped explicitly.
	MaxMissed int `yaml:"max_missed"`
	// StopAfter stops the actuator once the track has been missed that
	// many frames in a row, so a velocity camera does not keep moving
	// toward a lost target. Zero leaves the last command in effect.
	StopAfter int `yaml:"stop_after"`
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLen: tracking.DefaultHistoryLen,
		CostFunc:   tracking.CostDistance,
		StopAfter:  1,
	}
}

// Validate checks the loop configuration.
func (c Config) Validate() error {
	if c.HistoryLen < 1 {
		return tracking.ErrHistoryLen
	}
	if _, err := tracking.ParseCostFunc(string(c.CostFunc)); err != nil {
		return err
	}
	if c.MinSize < 0 || c.MaxMissed < 0 || c.StopAfter < 0 {
		return fmt.Errorf("pipeline: min_size, max_missed and stop_after must not be negative")
	}
	return nil
}

// Status is a snapshot of the loop after a frame.
type Status struct {
	State          tracking.State  `json:"state"`
	TrackID        string          `json:"track_id,omitempty"`
	Missed         int             `json:"missed"`
	Box            *detection.Rect `json:"box,omitempty"`
	Predicted      *detection.Rect `json:"predicted,omitempty"`
	Command        control.Command `json:"command"`
	Candidates     int             `json:"candidates"`
	Frames         uint64          `json:"frames"`
	DispatchErrors uint64          `json:"dispatch_errors"`
	Time           time.Time       `json:"time"`
}

type requestKind int

const (
	requestSelect requestKind = iota
	requestDrop
)

type request struct {
	kind requestKind
	x, y float64
}

// Loop owns the tracker and controller and drives an Actuator.
type Loop struct {
	cfg      Config
	det      detector.Detector
	trk      *tracking.Tracker
	ctl      *control.Controller
	act      Actuator
	logger   *slog.Logger
	requests chan request

	// Metrics is optional.
	Metrics *Metrics
	// OnStatus is called from the loop goroutine after every frame.
	OnStatus func(Status)

	// loop goroutine state
	missed      int
	trackID     string
	lastErrLog  time.Time
	suppressed  int
	frames      uint64
	dispatchErr uint64

	mu     sync.RWMutex
	status Status
}

// NewLoop creates a loop. det may be nil when frames are fed with Step.
func NewLoop(cfg Config, det detector.Detector, ctl *control.Controller, act Actuator) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctl == nil || act == nil {
		return nil, errors.New("pipeline: controller and actuator are required")
	}
	trk, err := tracking.New(cfg.HistoryLen)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:      cfg,
		det:      det,
		trk:      trk,
		ctl:      ctl,
		act:      act,
		logger:   log.Component("pipeline"),
		requests: make(chan request, 16),
		status:   Status{State: tracking.Idle},
	}, nil
}

// Select asks the loop to lock onto the detection nearest (x, y) on the
// next frame.
func (l *Loop) Select(ctx context.Context, x, y float64) error {
	return l.enqueue(ctx, request{kind: requestSelect, x: x, y: y})
}

// Drop asks the loop to stop tracking on the next frame.
func (l *Loop) Drop(ctx context.Context) error {
	return l.enqueue(ctx, request{kind: requestDrop})
}

func (l *Loop) enqueue(ctx context.Context, r request) error {
	select {
	case l.requests <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the status after the most recent frame.
func (l *Loop) Snapshot() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Run reads frames from src until ctx is cancelled or the source ends.
// The actuator is stopped on return.
func (l *Loop) Run(ctx context.Context, src Source) error {
	if l.det == nil {
		return errors.New("pipeline: no detector")
	}
	frame := gocv.NewMat()
	defer frame.Close()
	defer l.stopActuator()

	l.logger.Info("tracking loop started", "cost", l.cfg.CostFunc,
		"max_missed", l.cfg.MaxMissed, "stop_after", l.cfg.StopAfter)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !src.Read(&frame) {
			return ErrSourceClosed
		}
		if frame.Empty() {
			continue
		}

		start := time.Now()
		cands, err := l.det.Detect(frame)
		if err != nil {
			l.logger.Warn("detection failed", "error", err)
			cands = nil
		}
		l.Step(ctx, cands)
		l.Metrics.frame(time.Since(start))
	}
}

// Step runs one cycle against this frame's detections. It must only be
// called from one goroutine.
func (l *Loop) Step(ctx context.Context, cands []detection.Candidate) Status {
	cands = detection.FilterMinSize(cands, l.cfg.MinSize)
	l.drainRequests(ctx, cands)
	l.frames++

	st := Status{
		State:      l.trk.State(),
		TrackID:    l.trackID,
		Candidates: len(cands),
		Time:       time.Now(),
	}

	if st.State == tracking.Tracking {
		if pred, ok := l.trk.Predict(l.missed); ok {
			st.Predicted = &pred
		}
		costs := l.trk.Costs(l.cfg.CostFunc, cands, l.missed)
		if idx, ok := tracking.Best(costs); ok {
			box := cands[idx].Box
			l.trk.Update(box)
			l.missed = 0
			st.Box = &box

			cmd := l.ctl.Follow(box)
			st.Command = cmd
			l.Metrics.command(cmd)
			if err := l.act.Dispatch(ctx, cmd); err != nil {
				l.dispatchFailed(err)
			}
		} else {
			l.missed++
			l.Metrics.miss()
			switch {
			case l.cfg.MaxMissed > 0 && l.missed >= l.cfg.MaxMissed:
				l.logger.Info("track lost", "track_id", l.trackID, "missed", l.missed)
				l.drop(ctx)
				st.State = tracking.Idle
				st.TrackID = ""
			case l.missed == l.cfg.StopAfter:
				l.logger.Debug("target missing, stopping", "track_id", l.trackID, "missed", l.missed)
				if err := l.act.Stop(ctx); err != nil {
					l.dispatchFailed(err)
				}
			}
		}
	}

	st.Missed = l.missed
	st.Frames = l.frames
	st.DispatchErrors = l.dispatchErr
	l.publish(st)
	return st
}

func (l *Loop) drainRequests(ctx context.Context, cands []detection.Candidate) {
	for {
		select {
		case r := <-l.requests:
			l.apply(ctx, r, cands)
		default:
			return
		}
	}
}

func (l *Loop) apply(ctx context.Context, r request, cands []detection.Candidate) {
	switch r.kind {
	case requestSelect:
		if !l.trk.Select(cands, r.x, r.y) {
			l.logger.Info("select ignored, no detections", "x", r.x, "y", r.y)
			return
		}
		// A new object starts with fresh integral and derivative state.
		if err := l.ctl.Reconfigure(l.ctl.Config()); err != nil {
			l.logger.Warn("controller reset failed", "error", err)
		}
		l.missed = 0
		l.trackID = uuid.NewString()
		l.Metrics.acquired()
		l.logger.Info("tracking", "track_id", l.trackID, "x", r.x, "y", r.y)
	case requestDrop:
		if l.trk.IsTracking() {
			l.logger.Info("track dropped", "track_id", l.trackID)
			l.drop(ctx)
		}
	}
}

func (l *Loop) drop(ctx context.Context) {
	l.trk.Drop()
	l.missed = 0
	l.trackID = ""
	l.Metrics.dropped()
	if err := l.act.Stop(ctx); err != nil {
		l.dispatchFailed(err)
	}
}

// dispatchFailed logs at most once per second and counts every failure.
func (l *Loop) dispatchFailed(err error) {
	l.dispatchErr++
	l.Metrics.dispatchError()
	if time.Since(l.lastErrLog) < time.Second {
		l.suppressed++
		return
	}
	l.logger.Warn("dispatch failed", "error", err, "suppressed", l.suppressed)
	l.lastErrLog = time.Now()
	l.suppressed = 0
}

func (l *Loop) publish(st Status) {
	l.mu.Lock()
	l.status = st
	l.mu.Unlock()
	if l.OnStatus != nil {
		l.OnStatus(st)
	}
}

func (l *Loop) stopActuator() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.act.Stop(ctx); err != nil {
		l.logger.Warn("stop on exit failed", "error", err)
	}
}
