package chatclient_test

import (
	"carchat/backend/internal/chatclient"
	"carchat/backend/internal/models"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

// timeoutError mimics the net.Error a websocket read returns past its deadline.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn is an in-memory transport. Frames pushed with Push are returned by
// ReadMessage; Ping runs the ping handler from inside ReadMessage; Drop
// simulates the remote side going away. Reads honour the read deadline.
type fakeConn struct {
	inbound chan []byte
	pings   chan string
	gone    chan struct{}

	mu           sync.Mutex
	readDeadline time.Time
	pingHandler  func(string) error
	pongs        []string
	written      [][]byte
	closed   bool
	failNext bool
	dropOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		pings:   make(chan string, 16),
		gone:    make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		c.mu.Lock()
		deadline := c.readDeadline
		handler := c.pingHandler
		c.mu.Unlock()

		var expired <-chan time.Time
		if !deadline.IsZero() {
			expired = time.After(time.Until(deadline))
		}

		select {
		case data := <-c.inbound:
			return websocket.TextMessage, data, nil
		case appData := <-c.pings:
			if handler != nil {
				if err := handler(appData); err != nil {
					return 0, nil, err
				}
			}
		case <-expired:
			return 0, nil, timeoutError{}
		case <-c.gone:
			return 0, nil, errConnClosed
		}
	}
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if messageType == websocket.PongMessage {
		c.pongs = append(c.pongs, string(data))
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDeadline = t
	return nil
}

func (c *fakeConn) SetPingHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingHandler = h
}

// Ping delivers a ping from the hub.
func (c *fakeConn) Ping(appData string) { c.pings <- appData }

func (c *fakeConn) Pongs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pongs...)
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	if c.failNext {
		c.failNext = false
		return errors.New("broken pipe")
	}
	if messageType == websocket.TextMessage {
		c.written = append(c.written, append([]byte(nil), data...))
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Drop()
	return nil
}

// Drop makes pending and future reads fail, as if the hub closed the socket.
func (c *fakeConn) Drop() {
	c.dropOnce.Do(func() { close(c.gone) })
}

func (c *fakeConn) Push(data []byte) { c.inbound <- data }

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Written decodes every text frame written so far.
func (c *fakeConn) Written() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Envelope, 0, len(c.written))
	for _, data := range c.written {
		env, err := models.DecodeEnvelope(data)
		if err == nil {
			out = append(out, env)
		}
	}
	return out
}

// fakeDialer hands out fakeConns. The first `failures` dials return an error;
// when gate is non-nil every dial waits for a value on it.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	conns    []*fakeConn
	attempts int
	headers  []http.Header
	gate     chan struct{}
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (chatclient.Conn, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	d.headers = append(d.headers, header)
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDialer) Last() *fakeConn {
	conns := d.Conns()
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

// transitionLog records state changes reported by the Manager.
type transitionLog struct {
	mu    sync.Mutex
	edges [][2]chatclient.State
}

func (l *transitionLog) record(prev, next chatclient.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edges = append(l.edges, [2]chatclient.State{prev, next})
}

func (l *transitionLog) Edges() [][2]chatclient.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][2]chatclient.State(nil), l.edges...)
}
