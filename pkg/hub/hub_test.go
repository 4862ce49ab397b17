package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	texts  []string
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}
func (c *fakeConn) Close() error                      { c.once.Do(func() { close(c.closed) }); return nil }

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == websocket.TextMessage {
		c.texts = append(c.texts, string(data))
	}
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestHub_BroadcastJSON(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status")
	go h.Run(ctx)

	conn := newFakeConn()
	client := NewClient(h, conn, []byte(`{"hello":true}`))
	go client.Run()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.BroadcastJSON(map[string]int{"frames": 3}))

	assert.Eventually(t, func() bool {
		msgs := conn.messages()
		return len(msgs) == 2 && msgs[0] == `{"hello":true}` && msgs[1] == `{"frames":3}`
	}, time.Second, 5*time.Millisecond)
}

func TestHub_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("status")
	go h.Run(ctx)

	conn := newFakeConn()
	client := NewClient(h, conn, nil)
	go client.Run()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("status")
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	client := NewClient(h, newFakeConn(), nil)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, ok := <-client.send
	assert.False(t, ok, "client channel should be closed")
	assert.Zero(t, h.ClientCount())
}

func TestHub_ClientRunReturnsAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("status")
	go h.Run(ctx)

	conn := newFakeConn()
	client := NewClient(h, conn, nil)
	returned := make(chan struct{})
	go func() {
		client.Run()
		close(returned)
	}()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-h.Done()
	conn.Close()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("client Run did not return after hub stopped")
	}
}

func TestHub_NewClientAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("status")
	cancel()
	h.Run(ctx)

	created := make(chan *Client)
	go func() { created <- NewClient(h, newFakeConn(), []byte("hi")) }()

	var client *Client
	select {
	case client = <-created:
	case <-time.After(time.Second):
		t.Fatal("NewClient blocked on a stopped hub")
	}

	msg, ok := <-client.send
	assert.True(t, ok)
	assert.Equal(t, "hi", string(msg))
	_, ok = <-client.send
	assert.False(t, ok, "client channel should be closed")

	returned := make(chan struct{})
	go func() {
		client.Run()
		close(returned)
	}()
	client.conn.Close()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("client Run did not return")
	}
}

func TestHub_BroadcastFull(t *testing.T) {
	h := New("status")
	for i := 0; i < cap(h.broadcast); i++ {
		require.True(t, h.Broadcast([]byte("x")))
	}
	assert.False(t, h.Broadcast([]byte("x")))
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("status")
	assert.Error(t, h.BroadcastJSON(func() {}))
}
