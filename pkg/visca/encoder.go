// Package visca encodes normalized pan/tilt/zoom commands as VISCA
// frames and sends them to a camera over UDP.
package visca

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/teslashibe/go-ptz/pkg/control"
)

// Frame headers and fixed fields, as hex text.
const (
	PanTiltHeader = "81010601"
	ZoomHeader    = "81010407"

	panRight = "02"
	panLeft  = "01"
	panStop  = "03"

	tiltDown = "02ff"
	tiltUp   = "01ff"
	tiltStop = "03ff"

	zoomPositive = "2" // box wider than the setpoint
	zoomNegative = "3"
	zoomTrailer  = "ff"
	zoomStop     = "00ff"
)

// Speed scale per axis: |command| * gain, truncated.
const (
	PanSpeedGain  = 24
	TiltSpeedGain = 20
	ZoomSpeedGain = 7
)

// Encoder maps commands to VISCA frames. It is stateless.
type Encoder struct {
	PanDeadZone  float64
	TiltDeadZone float64
	ZoomDeadZone float64

	// InvertZoom swaps the zoom direction digits.
	InvertZoom bool
}

// NewEncoder takes its dead zones from a controller configuration.
func NewEncoder(cfg control.Config) Encoder {
	pan, tilt, zoom := cfg.DeadZones()
	return Encoder{PanDeadZone: pan, TiltDeadZone: tilt, ZoomDeadZone: zoom}
}

// speedField formats the truncated speed as zero-padded decimal text.
// The camera firmware this targets reads the field digit by digit, so
// a speed of 12 is sent as the byte 0x12.
func speedField(v float64, gain int) string {
	n := int(math.Abs(v) * float64(gain))
	s := strconv.Itoa(n)
	if len(s) < 2 {
		s = "0" + s
	}
	return s
}

// PanTiltHex returns the pan/tilt drive frame as hex text.
func (e Encoder) PanTiltHex(cmd control.Command) string {
	panSpeed, tiltSpeed := "00", "00"
	panDir, tiltDir := panStop, tiltStop

	switch {
	case cmd.Pan > e.PanDeadZone:
		panSpeed, panDir = speedField(cmd.Pan, PanSpeedGain), panRight
	case cmd.Pan < -e.PanDeadZone:
		panSpeed, panDir = speedField(cmd.Pan, PanSpeedGain), panLeft
	}

	switch {
	case cmd.Tilt > e.TiltDeadZone:
		tiltSpeed, tiltDir = speedField(cmd.Tilt, TiltSpeedGain), tiltDown
	case cmd.Tilt < -e.TiltDeadZone:
		tiltSpeed, tiltDir = speedField(cmd.Tilt, TiltSpeedGain), tiltUp
	}

	return PanTiltHeader + panSpeed + tiltSpeed + panDir + tiltDir
}

// ZoomHex returns the variable-speed zoom frame as hex text.
func (e Encoder) ZoomHex(cmd control.Command) string {
	pos, neg := zoomPositive, zoomNegative
	if e.InvertZoom {
		pos, neg = neg, pos
	}

	speed := strconv.Itoa(int(math.Abs(cmd.Zoom) * ZoomSpeedGain))
	switch {
	case cmd.Zoom > e.ZoomDeadZone:
		return ZoomHeader + pos + speed + zoomTrailer
	case cmd.Zoom < -e.ZoomDeadZone:
		return ZoomHeader + neg + speed + zoomTrailer
	}
	return ZoomHeader + zoomStop
}

// Frames encodes cmd as the pan/tilt and zoom datagrams.
func (e Encoder) Frames(cmd control.Command) (panTilt, zoom []byte, err error) {
	panTilt, err = Decode(e.PanTiltHex(cmd))
	if err != nil {
		return nil, nil, err
	}
	zoom, err = Decode(e.ZoomHex(cmd))
	if err != nil {
		return nil, nil, err
	}
	return panTilt, zoom, nil
}

// StopFrames returns the frames that halt all motion.
func (e Encoder) StopFrames() (panTilt, zoom []byte) {
	// Neutral always encodes to valid hex.
	panTilt, zoom, _ = e.Frames(control.Neutral)
	return panTilt, zoom
}

// Decode converts hex text to frame bytes.
func Decode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("visca: bad frame %q: %w", s, err)
	}
	return b, nil
}
