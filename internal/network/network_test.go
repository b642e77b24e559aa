package network

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"inputlink/internal/framing"
	"inputlink/internal/input"
	"inputlink/internal/metrics"
	"inputlink/internal/protocol"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

// collector gathers decoded events.
type collector struct {
	mu     sync.Mutex
	events []input.Event
	got    chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 64)}
}

func (c *collector) handle(_ string, ev input.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []input.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d events", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]input.Event(nil), c.events...)
}

func newSealer(t *testing.T) *framing.Sealer {
	t.Helper()
	s, err := framing.NewSealer(testKey, testIV)
	require.NoError(t, err)
	return s
}

// sendAll seals events with s, which carries the stream's CBC chain.
func sendAll(t *testing.T, s *framing.Sealer, conn Conn, events []input.Event) {
	t.Helper()
	var buf framing.Buffer
	for _, ev := range events {
		p, err := protocol.Encode(ev, 7)
		require.NoError(t, err)
		msg, err := s.Seal(&buf, p.Bytes())
		require.NoError(t, err)
		protocol.Release(p)
		_, err = conn.Write(msg)
		require.NoError(t, err)
	}
}

var testEvents = []input.Event{
	input.MouseMove(10, -10),
	input.MouseButton(input.ButtonActionPress, input.ButtonRight),
	input.Key(0x1B, input.KeyActionUp, input.ModifierCtrl|input.ModifierAlt),
	input.Gamepad(2, input.GamepadState{Buttons: input.GamepadB | input.GamepadLB, RightTrigger: 255, RightStickY: -32768}),
	input.Scroll(-1),
}

func TestTCP_DialAndReceive(t *testing.T) {
	logger := zaptest.NewLogger(t)
	coll := newCollector()
	r, err := NewReceiver(testKey, testIV, WithReceiverLogger(logger), WithEventHandler(coll.handle))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx, ln) }()

	port := ln.Addr().(*net.TCPAddr).Port
	d := &TCPDialer{Timeout: time.Second, SendBuffer: 64 << 10, Logger: logger}
	conn, err := d.Dial(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)

	sendAll(t, newSealer(t), conn, testEvents)
	assert.Equal(t, testEvents, coll.wait(t, len(testEvents)))
	assert.Equal(t, uint64(len(testEvents)), r.Stats().Events)

	require.NoError(t, conn.Close())
	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestTCP_EachStreamChainsFromIV(t *testing.T) {
	coll := newCollector()
	r, err := NewReceiver(testKey, testIV, WithReceiverLogger(zaptest.NewLogger(t)), WithEventHandler(coll.handle))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx, ln) }()

	port := ln.Addr().(*net.TCPAddr).Port
	d := &TCPDialer{Timeout: time.Second}
	first, err := d.Dial(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)
	second, err := d.Dial(context.Background(), "127.0.0.1", port)
	require.NoError(t, err)

	// both streams open at once, each with its own chain
	firstSealer, secondSealer := newSealer(t), newSealer(t)
	sendAll(t, firstSealer, first, testEvents[:2])
	coll.wait(t, 2)
	sendAll(t, secondSealer, second, testEvents)
	coll.wait(t, len(testEvents))
	sendAll(t, firstSealer, first, testEvents[2:3])
	coll.wait(t, 1)

	stats := r.Stats()
	assert.Zero(t, stats.Errors)
	assert.Equal(t, uint64(len(testEvents)+3), stats.Events)

	first.Close()
	second.Close()
	cancel()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

// failingListener hands out queued conns, then fails Accept.
type failingListener struct {
	conns chan net.Conn
	err   error
}

func (l *failingListener) Accept() (net.Conn, error) {
	if c, ok := <-l.conns; ok {
		return c, nil
	}
	return nil, l.err
}

func (l *failingListener) Close() error   { return nil }
func (l *failingListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func TestServe_AcceptFailureClosesStreams(t *testing.T) {
	r, err := NewReceiver(testKey, testIV, WithReceiverLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	server, client := net.Pipe()
	defer client.Close()
	ln := &failingListener{conns: make(chan net.Conn, 1), err: errors.New("too many open files")}
	ln.conns <- server
	close(ln.conns)

	served := make(chan error, 1)
	go func() { served <- r.Serve(context.Background(), ln) }()

	select {
	case err := <-served:
		assert.ErrorContains(t, err, "too many open files")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve waited on an open stream")
	}
	assert.Zero(t, r.Stats().Streams)
}

func TestTCP_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	d := &TCPDialer{Timeout: time.Second}
	_, err = d.Dial(context.Background(), "127.0.0.1", port)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}

func TestWS_DialAndReceive(t *testing.T) {
	logger := zaptest.NewLogger(t)
	coll := newCollector()
	r, err := NewReceiver(testKey, testIV, WithReceiverLogger(logger), WithEventHandler(coll.handle))
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	d := &WSDialer{Timeout: time.Second, Logger: logger}
	conn, err := d.Dial(context.Background(), host, port)
	require.NoError(t, err)

	sendAll(t, newSealer(t), conn, testEvents)
	assert.Equal(t, testEvents, coll.wait(t, len(testEvents)))
	require.NoError(t, conn.Close())
	r.Close()
}

func TestWS_RejectsTrailingData(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewReceiver(metrics.WithRegistry(reg))
	r, err := NewReceiver(testKey, testIV, WithReceiverLogger(zaptest.NewLogger(t)), WithReceiverMetrics(m))
	require.NoError(t, err)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	s, err := framing.NewSealer(testKey, testIV)
	require.NoError(t, err)
	var buf framing.Buffer
	msg, err := s.Seal(&buf, []byte{0, 0, 0, 8, 6, 0, 0, 0, 0, 1, 0, 1})
	require.NoError(t, err)
	doubled := append(append([]byte(nil), msg...), msg...)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, doubled))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	assert.Error(t, err, "receiver drops the stream")
	assert.Equal(t, uint64(1), r.Stats().Errors)
	assert.Zero(t, r.Stats().Events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("frame")))
}

func TestNewReceiver_BadIV(t *testing.T) {
	_, err := NewReceiver(testKey, testIV[:4])
	assert.ErrorIs(t, err, framing.ErrInvalidIV)
}
