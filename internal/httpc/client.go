// Package httpc provides an HTTP client with sensible defaults and a
// small client for the tracker web API.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-ptz/pkg/pipeline"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient creates an HTTP client with the specified timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
	}
}

// TrackerClient talks to a running ptztrack web API.
type TrackerClient struct {
	base string
	http *http.Client
}

// NewTrackerClient targets base, e.g. "http://localhost:8181".
func NewTrackerClient(base string) *TrackerClient {
	return &TrackerClient{
		base: strings.TrimRight(base, "/"),
		http: NewClient(DefaultTimeout),
	}
}

// Status fetches the latest loop status.
func (c *TrackerClient) Status(ctx context.Context) (pipeline.Status, error) {
	var st pipeline.Status
	body, err := c.do(ctx, http.MethodGet, "/api/status", nil, http.StatusOK)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(body, &st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Select asks the tracker to lock onto the detection nearest (x, y).
func (c *TrackerClient) Select(ctx context.Context, x, y float64) error {
	payload, err := json.Marshal(map[string]float64{"x": x, "y": y})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/api/track", payload, http.StatusAccepted)
	return err
}

// Drop asks the tracker to release its target.
func (c *TrackerClient) Drop(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/track", nil, http.StatusAccepted)
	return err
}

func (c *TrackerClient) do(ctx context.Context, method, path string, payload []byte, want int) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
