// viscactl - runs one controller cycle for a synthetic box and prints or
// sends the resulting VISCA frames
//
//	viscactl -x 400 -y 300 -w 80 -h 80
//	viscactl -x 400 -y 300 -w 80 -h 80 -send -camera 192.168.10.97
//	viscactl -stop -send
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-ptz/internal/config"
	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/control"
	"github.com/teslashibe/go-ptz/pkg/detection"
	"github.com/teslashibe/go-ptz/pkg/visca"
)

func main() {
	path := flag.String("config", "", "YAML configuration file")
	x := flag.Float64("x", 0, "Box left edge (px)")
	y := flag.Float64("y", 0, "Box top edge (px)")
	w := flag.Float64("w", 0, "Box width (px)")
	h := flag.Float64("h", 0, "Box height (px)")
	cycles := flag.Int("cycles", 1, "Controller cycles to run on the same box")
	stop := flag.Bool("stop", false, "Emit the stop frames instead")
	send := flag.Bool("send", false, "Send the last frames to the camera")
	camera := flag.String("camera", "", "Camera host (overrides config and CAMERA_IP)")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fail(err)
	}
	log.Init(cfg.LogLevel)
	if *camera != "" {
		cfg.VISCA.Host = *camera
	}

	ctl, err := control.NewController(cfg.Control)
	if err != nil {
		fail(err)
	}
	enc := visca.NewEncoder(cfg.Control)
	enc.InvertZoom = cfg.VISCA.InvertZoom

	cmd := control.Neutral
	if !*stop {
		box := detection.Rect{X: *x, Y: *y, W: *w, H: *h}
		ex, ey, ez := ctl.Errors(box)
		fmt.Printf("errors   x=%.1f y=%.1f z=%.1f\n", ex, ey, ez)
		for i := 0; i < *cycles; i++ {
			cmd = ctl.Follow(box)
			fmt.Printf("cycle %d  pan=%+.3f tilt=%+.3f zoom=%+.3f saturated=%v\n",
				i+1, cmd.Pan, cmd.Tilt, cmd.Zoom, cmd.Saturated)
		}
		fmt.Printf("pan/tilt %s\n", enc.PanTiltHex(cmd))
		fmt.Printf("zoom     %s\n", enc.ZoomHex(cmd))
	} else {
		pt, z := enc.StopFrames()
		fmt.Printf("pan/tilt %x\nzoom     %x\n", pt, z)
	}

	if !*send {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := visca.NewClient(cfg.VISCA, enc)
	if err := client.Dial(ctx); err != nil {
		fail(err)
	}
	defer client.Close()

	if *stop {
		err = client.Stop(ctx)
	} else {
		err = client.Dispatch(ctx, cmd)
	}
	if err != nil {
		fail(err)
	}
	fmt.Printf("sent to %s\n", client.Addr())
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "viscactl: %v\n", err)
	os.Exit(1)
}
