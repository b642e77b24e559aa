// Package stream is the public face of the input stream: a Session owns the
// key material, the packet queue, the transport and the sender goroutine.
//
// Typical use:
//
//	s := stream.New(stream.WithLogger(logger), stream.WithGeneration(7))
//	if err := s.Init(host, listener, key, iv); err != nil { ... }
//	if err := s.Start(ctx); err != nil { ... }
//	s.SendMouseMove(5, -3)
//	...
//	s.Stop()
//	s.Destroy()
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inputlink/internal/framing"
	"inputlink/internal/metrics"
	"inputlink/internal/network"
	"inputlink/internal/protocol"
	"inputlink/internal/queue"
	"inputlink/internal/sender"
)

const (
	// DefaultQueueCapacity is the number of packets buffered between
	// submission and the sender.
	DefaultQueueCapacity = 30

	// DefaultGeneration is used when the host generation is not configured.
	DefaultGeneration = 7
)

var (
	ErrNotInitialized     = errors.New("stream: session not initialized")
	ErrQueueFull          = errors.New("stream: send queue full")
	ErrSessionActive      = errors.New("stream: another session is active")
	ErrAlreadyInitialized = errors.New("stream: session already initialized")
	ErrAlreadyStarted     = errors.New("stream: session already started")
)

// active is held by the one initialized session in the process.
var active atomic.Bool

// Listener is told when the stream stops because of a failure. It runs on
// the sender goroutine and must not call Stop or Destroy directly.
type Listener interface {
	ConnectionTerminated(err error)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(err error)

func (f ListenerFunc) ConnectionTerminated(err error) { f(err) }

// State is the lifecycle position of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateFailed // sender terminated on a runtime error
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Sender) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d network.Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithGeneration sets the host generation, which selects the gamepad layout.
func WithGeneration(gen int) Option {
	return func(s *Session) {
		s.gen = protocol.Generation(gen)
	}
}

// WithQueueCapacity sets the queue capacity. Values below 1 are ignored.
func WithQueueCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithPort sets the host port.
func WithPort(port int) Option {
	return func(s *Session) {
		if port > 0 {
			s.port = port
		}
	}
}

// Session is one input stream to one host. Only one Session may be
// initialized per process at a time.
//
// Init, Start, Stop and Destroy are serialized. The Send methods may be
// called from any goroutine and never block.
type Session struct {
	id       string
	logger   *zap.Logger
	metrics  *metrics.Sender
	dialer   network.Dialer
	gen      protocol.Generation
	capacity int
	port     int

	ctl sync.Mutex // serializes lifecycle calls

	mu       sync.RWMutex // guards the fields below
	state    State
	address  string
	listener Listener
	sealer   *framing.Sealer
	queue    *queue.Queue
	conn     network.Conn
	cancel   context.CancelFunc
	worker   *sender.Worker

	// accepted counts packets queued and sent counts packets written, over
	// the life of one Init.
	accepted atomic.Int64
	sent     atomic.Int64
}

// New creates an uninitialized session.
func New(opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		logger:   zap.NewNop(),
		gen:      DefaultGeneration,
		capacity: DefaultQueueCapacity,
		port:     network.DefaultPort,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = &network.TCPDialer{Logger: s.logger}
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Generation returns the host generation in use.
func (s *Session) Generation() protocol.Generation { return s.gen }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Pending returns the number of accepted packets not yet written to the
// transport, including one the sender may be writing.
func (s *Session) Pending() int {
	n := s.accepted.Load() - s.sent.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Init installs the key material and creates the queue. The listener may be
// nil.
func (s *Session) Init(address string, l Listener, key, iv []byte) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if s.State() != StateUninitialized {
		return ErrAlreadyInitialized
	}
	if !active.CompareAndSwap(false, true) {
		return ErrSessionActive
	}

	sealer, err := framing.NewSealer(key, iv)
	if err != nil {
		active.Store(false)
		return err
	}

	s.mu.Lock()
	s.address = address
	s.listener = l
	s.sealer = sealer
	s.queue = queue.New(s.capacity)
	s.state = StateInitialized
	s.mu.Unlock()

	s.logger.Info("session initialized",
		zap.String("address", address),
		zap.Int("generation", int(s.gen)),
		zap.Int("queue_capacity", s.capacity))
	return nil
}

// Start connects to the host and starts the sender. A stopped or failed
// session can be started again; packets submitted in between are sent first.
func (s *Session) Start(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	switch s.State() {
	case StateUninitialized:
		return ErrNotInitialized
	case StateStarted:
		return ErrAlreadyStarted
	case StateFailed:
		if err := s.stop(); err != nil {
			s.logger.Debug("transport close", zap.Error(err))
		}
	}

	conn, err := s.dialer.Dial(ctx, s.address, s.port)
	if err != nil {
		s.logger.Warn("connect failed", zap.Error(err))
		return fmt.Errorf("start input stream: %w", err)
	}

	// a new connection starts a new CBC chain
	s.sealer.Reset()
	wctx, cancel := context.WithCancel(context.Background())
	w := sender.New(s.queue, s.sealer, conn,
		sender.WithLogger(s.logger),
		sender.WithMetrics(s.metrics),
		sender.WithTerminationHandler(s.terminated),
		sender.WithSentCounter(&s.sent))

	s.mu.Lock()
	s.conn = conn
	s.cancel = cancel
	s.worker = w
	s.state = StateStarted
	s.mu.Unlock()

	go w.Run(wctx)
	s.metrics.SetConnected(true)
	s.logger.Info("session started")
	return nil
}

func (s *Session) terminated(te *sender.TerminatedError) {
	s.metrics.SetConnected(false)
	s.mu.Lock()
	if s.state == StateStarted {
		s.state = StateFailed
	}
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		l.ConnectionTerminated(te)
	}
}

// Stop stops the sender and closes the transport. The listener is not
// called. Stop on a failed session releases its transport; on a session
// that is neither started nor failed it does nothing.
func (s *Session) Stop() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.stop()
}

func (s *Session) stop() error {
	s.mu.Lock()
	if s.state != StateStarted && s.state != StateFailed {
		s.mu.Unlock()
		return nil
	}
	conn, cancel, w := s.conn, s.cancel, s.worker
	s.conn, s.cancel, s.worker = nil, nil, nil
	s.state = StateStopped
	s.mu.Unlock()

	// Cancel first so the sender treats the failing write as a stop.
	cancel()
	err := conn.Close()
	<-w.Done()

	// The packet the sender held when it stopped is gone; only the queue
	// is still pending.
	s.mu.Lock()
	s.accepted.Store(s.sent.Load() + int64(s.queue.Len()))
	s.mu.Unlock()

	s.metrics.SetConnected(false)
	s.logger.Info("session stopped")
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Destroy stops the session if needed, releases unsent packets, wipes the
// key material and frees the process-wide slot. The session can be
// initialized again afterwards.
func (s *Session) Destroy() {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if err := s.stop(); err != nil {
		s.logger.Debug("transport close", zap.Error(err))
	}

	s.mu.Lock()
	if s.state == StateUninitialized {
		s.mu.Unlock()
		return
	}
	q, sealer := s.queue, s.sealer
	s.queue, s.sealer, s.listener = nil, nil, nil
	s.state = StateUninitialized
	s.mu.Unlock()

	pending := q.Drain()
	for _, p := range pending {
		protocol.Release(p)
	}
	sealer.Wipe()
	s.accepted.Store(0)
	s.sent.Store(0)
	active.Store(false)

	s.logger.Info("session destroyed", zap.Int("dropped", len(pending)))
}
