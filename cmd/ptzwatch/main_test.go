package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-ptz/internal/httpc"

	"github.com/teslashibe/go-ptz/pkg/control"
	"github.com/teslashibe/go-ptz/pkg/detection"
	"github.com/teslashibe/go-ptz/pkg/pipeline"
	"github.com/teslashibe/go-ptz/pkg/tracking"
)

func TestParsePoint(t *testing.T) {
	x, y, err := parsePoint(" 320, 240.5")
	if err != nil || x != 320 || y != 240.5 {
		t.Errorf("parsePoint() = %v, %v, %v", x, y, err)
	}
	for _, bad := range []string{"320", "a,1", "1,b"} {
		if _, _, err := parsePoint(bad); err == nil {
			t.Errorf("parsePoint(%q) = nil error", bad)
		}
	}
}

func TestFormat(t *testing.T) {
	box := detection.Rect{X: 10, Y: 20, W: 30, H: 40}
	got := format(pipeline.Status{
		State:   tracking.Tracking,
		TrackID: "0123456789abcdef",
		Box:     &box,
		Command: control.Command{Pan: 0.5, Tilt: -0.25},
		Frames:  12,
	})
	for _, want := range []string{"tracking", "id=01234567", "box=(10,20 30x40)", "cmd=[+0.50 -0.25 +0.00]"} {
		if !strings.Contains(got, want) {
			t.Errorf("format() = %q, missing %q", got, want)
		}
	}
}

func TestPrintStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"state":"tracking","track_id":"feedbeefcafe","frames":12,"candidates":1,"missed":0}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := printStatus(context.Background(), httpc.NewTrackerClient(srv.URL), &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"#12", "tracking", "id=feedbeef", "cands=1"} {
		if !strings.Contains(got, want) {
			t.Errorf("printStatus() = %q, missing %q", got, want)
		}
	}
}

func TestPrintStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := printStatus(context.Background(), httpc.NewTrackerClient(srv.URL), &out); err == nil {
		t.Error("printStatus() = nil, want error")
	}
}
