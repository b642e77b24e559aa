package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"inputlink/internal/framing"
	"inputlink/internal/input"
	"inputlink/internal/metrics"
	"inputlink/internal/protocol"
)

// ErrTrailingData is returned for a WebSocket message holding more than one frame.
var ErrTrailingData = errors.New("network: trailing data after frame")

// EventHandler is called for every decoded event, in arrival order per peer.
type EventHandler func(remote string, ev input.Event)

// Receiver is the host side of the input stream: it reads framed messages,
// decrypts and decodes them. It accepts plain TCP through Serve and
// WebSocket through ServeHTTP. Each stream gets its own CBC chain.
type Receiver struct {
	opener   *framing.Opener // key holder; streams use NewStream
	logger   *zap.Logger
	onEvent  EventHandler
	upgrader websocket.Upgrader
	metrics  *metrics.Receiver

	events   atomic.Uint64
	failures atomic.Uint64

	mu    sync.Mutex
	conns map[io.Closer]struct{}
	wg    sync.WaitGroup
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverLogger sets the logger.
func WithReceiverLogger(l *zap.Logger) ReceiverOption {
	return func(r *Receiver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEventHandler sets the callback for decoded events.
func WithEventHandler(h EventHandler) ReceiverOption {
	return func(r *Receiver) {
		r.onEvent = h
	}
}

// WithReceiverMetrics sets the collectors.
func WithReceiverMetrics(m *metrics.Receiver) ReceiverOption {
	return func(r *Receiver) {
		r.metrics = m
	}
}

// Stats is a snapshot of receiver activity.
type Stats struct {
	Streams int    `json:"streams"`
	Events  uint64 `json:"events"`
	Errors  uint64 `json:"errors"`
}

// NewReceiver creates a receiver for streams sealed with key and iv.
func NewReceiver(key, iv []byte, opts ...ReceiverOption) (*Receiver, error) {
	opener, err := framing.NewOpener(key, iv)
	if err != nil {
		return nil, err
	}
	r := &Receiver{
		opener: opener,
		logger: zap.NewNop(),
		conns:  make(map[io.Closer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local network tool
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Serve accepts TCP streams on ln until ctx is cancelled or Accept fails,
// then closes ln and every open stream and waits for their readers.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		r.closeAll()
	})
	defer stop()

	r.logger.Info("receiver listening", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			r.closeAll()
			r.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		if !r.track(conn) {
			conn.Close()
			continue
		}
		go func() {
			defer r.untrack(conn)
			remote := conn.RemoteAddr().String()
			if err := r.ReadStream(conn, remote); err != nil && ctx.Err() == nil {
				r.logger.Warn("stream ended", zap.String("remote", remote), zap.Error(err))
			}
		}()
	}
}

// ReadStream consumes frames from a byte stream until EOF.
func (r *Receiver) ReadStream(rd io.Reader, remote string) error {
	o, err := r.opener.NewStream()
	if err != nil {
		return err
	}
	r.logger.Info("stream opened", zap.String("remote", remote))
	defer r.logger.Info("stream closed", zap.String("remote", remote))

	for {
		body, err := framing.ReadFrame(rd, framing.MaxCiphertextSize)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, framing.ErrFrameTooLarge) {
				r.fail("frame")
			}
			return err
		}
		if err := r.handle(o, remote, body); err != nil {
			return err
		}
	}
}

// ServeHTTP upgrades to WebSocket and reads one framed message per binary
// message.
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if !r.track(conn) {
		conn.Close()
		return
	}
	defer r.untrack(conn)

	o, err := r.opener.NewStream()
	if err != nil {
		return
	}
	remote := conn.RemoteAddr().String()
	r.logger.Info("stream opened", zap.String("remote", remote), zap.String("transport", "ws"))
	conn.SetReadLimit(framing.HeaderSize + framing.MaxCiphertextSize)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Warn("stream ended", zap.String("remote", remote), zap.Error(err))
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if err := r.handleMessage(o, remote, data); err != nil {
			r.logger.Warn("bad message", zap.String("remote", remote), zap.Error(err))
			return
		}
	}
}

func (r *Receiver) handleMessage(o *framing.Opener, remote string, data []byte) error {
	rd := bytes.NewReader(data)
	body, err := framing.ReadFrame(rd, framing.MaxCiphertextSize)
	if err != nil {
		r.fail("frame")
		return err
	}
	if rd.Len() != 0 {
		r.fail("frame")
		return ErrTrailingData
	}
	return r.handle(o, remote, body)
}

func (r *Receiver) handle(o *framing.Opener, remote string, body []byte) error {
	plain, err := o.Open(body)
	if err != nil {
		r.fail("open")
		return err
	}
	ev, err := protocol.Decode(plain)
	if err != nil {
		r.fail("decode")
		return err
	}
	r.events.Add(1)
	r.metrics.Event(ev.Kind.String())
	r.logger.Debug("event", zap.String("remote", remote), zap.Stringer("kind", ev.Kind))
	if r.onEvent != nil {
		r.onEvent(remote, ev)
	}
	return nil
}

func (r *Receiver) fail(stage string) {
	r.failures.Add(1)
	r.metrics.Error(stage)
}

// Stats returns current counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	streams := len(r.conns)
	r.mu.Unlock()
	return Stats{Streams: streams, Events: r.events.Load(), Errors: r.failures.Load()}
}

// Close closes every open stream, waits for their readers and wipes the key.
func (r *Receiver) Close() {
	r.closeAll()
	r.wg.Wait()
	r.opener.Wipe()
}

func (r *Receiver) track(c io.Closer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns == nil {
		return false
	}
	r.conns[c] = struct{}{}
	r.wg.Add(1)
	r.metrics.SetStreams(len(r.conns))
	return true
}

func (r *Receiver) untrack(c io.Closer) {
	r.mu.Lock()
	delete(r.conns, c)
	r.metrics.SetStreams(len(r.conns))
	r.mu.Unlock()
	c.Close()
	r.wg.Done()
}

func (r *Receiver) closeAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = nil
	r.mu.Unlock()
	for c := range conns {
		c.Close()
	}
}
