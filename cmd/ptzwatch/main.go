// ptzwatch - prints live tracker status from a running ptztrack
//
//	ptzwatch -addr localhost:8181
//	ptzwatch -addr localhost:8181 -status
//	ptzwatch -addr localhost:8181 -select 320,240
//	ptzwatch -addr localhost:8181 -drop
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-ptz/internal/httpc"
	"github.com/teslashibe/go-ptz/internal/log"
	"github.com/teslashibe/go-ptz/pkg/pipeline"
)

func main() {
	addr := flag.String("addr", "localhost:8181", "ptztrack web address")
	sel := flag.String("select", "", "Select the detection nearest x,y and exit")
	drop := flag.Bool("drop", false, "Drop the current track and exit")
	status := flag.Bool("status", false, "Print the current status once and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	api := httpc.NewTrackerClient("http://" + *addr)
	switch {
	case *status:
		if err := printStatus(ctx, api, os.Stdout); err != nil {
			fail(err)
		}
		return
	case *sel != "":
		x, y, err := parsePoint(*sel)
		if err != nil {
			fail(err)
		}
		if err := api.Select(ctx, x, y); err != nil {
			fail(err)
		}
		fmt.Printf("select queued at (%.0f, %.0f)\n", x, y)
		return
	case *drop:
		if err := api.Drop(ctx); err != nil {
			fail(err)
		}
		fmt.Println("drop queued")
		return
	}

	if err := watch(ctx, *addr); err != nil && ctx.Err() == nil {
		fail(err)
	}
}

// printStatus fetches one status over the REST API.
func printStatus(ctx context.Context, api *httpc.TrackerClient, w io.Writer) error {
	st, err := api.Status(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, format(st))
	return err
}

// watch prints every status pushed on /ws/status until ctx ends.
func watch(ctx context.Context, addr string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}
	log.Debug("connecting", "url", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var st pipeline.Status
		if err := json.Unmarshal(data, &st); err != nil {
			log.Warn("bad status message", "error", err)
			continue
		}
		fmt.Println(format(st))
	}
}

func format(st pipeline.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%-6d %-8s", st.Frames, st.State)
	if st.TrackID != "" {
		fmt.Fprintf(&b, " id=%.8s", st.TrackID)
	}
	fmt.Fprintf(&b, " cands=%d missed=%d", st.Candidates, st.Missed)
	if st.Box != nil {
		fmt.Fprintf(&b, " box=(%.0f,%.0f %.0fx%.0f)", st.Box.X, st.Box.Y, st.Box.W, st.Box.H)
	}
	fmt.Fprintf(&b, " cmd=[%+.2f %+.2f %+.2f]", st.Command.Pan, st.Command.Tilt, st.Command.Zoom)
	if st.DispatchErrors > 0 {
		fmt.Fprintf(&b, " errors=%d", st.DispatchErrors)
	}
	return b.String()
}

func parsePoint(s string) (x, y float64, err error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("point %q: want x,y", s)
	}
	if x, err = strconv.ParseFloat(strings.TrimSpace(xs), 64); err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	if y, err = strconv.ParseFloat(strings.TrimSpace(ys), 64); err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	return x, y, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "ptzwatch: %v\n", err)
	os.Exit(1)
}
