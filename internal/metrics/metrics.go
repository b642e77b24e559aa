// Package metrics exposes Prometheus collectors for the input stream.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "inputlink").
	Namespace string

	// Registry is where collectors are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Sender holds the collectors updated by a session and its sender.
// A nil *Sender is valid and records nothing.
type Sender struct {
	EventsQueued   *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	PacketsSent    prometheus.Counter
	BytesSent      prometheus.Counter
	QueueDepth     prometheus.Gauge
	Failures       *prometheus.CounterVec
	Connected      prometheus.Gauge
}

// NewSender creates and registers the sender collectors.
func NewSender(opts ...Option) *Sender {
	cfg := Config{
		Namespace: "inputlink",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Sender{
		EventsQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "events_queued_total",
			Help:      "Input events accepted into the send queue, by kind.",
		}, []string{"kind"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "events_rejected_total",
			Help:      "Input events rejected at submission, by reason.",
		}, []string{"reason"}),
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "packets_sent_total",
			Help:      "Framed packets written to the transport.",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the transport, including length prefixes.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "queue_depth",
			Help:      "Packets waiting in the send queue.",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "stream_failures_total",
			Help:      "Sender terminations caused by runtime errors, by stage.",
		}, []string{"stage"}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "connected",
			Help:      "1 while the input stream is started.",
		}),
	}
}

// Queued records an accepted event.
func (m *Sender) Queued(kind string, depth int) {
	if m == nil {
		return
	}
	m.EventsQueued.WithLabelValues(kind).Inc()
	m.QueueDepth.Set(float64(depth))
}

// Rejected records a refused submission.
func (m *Sender) Rejected(reason string) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(reason).Inc()
}

// Sent records one transport write of n bytes.
func (m *Sender) Sent(n int, depth int) {
	if m == nil {
		return
	}
	m.PacketsSent.Inc()
	m.BytesSent.Add(float64(n))
	m.QueueDepth.Set(float64(depth))
}

// Failed records a sender termination.
func (m *Sender) Failed(stage string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(stage).Inc()
}

// SetConnected flips the connected gauge.
func (m *Sender) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// Receiver holds the collectors updated by the reference receiver.
// A nil *Receiver is valid and records nothing.
type Receiver struct {
	EventsReceived *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	Streams        prometheus.Gauge
}

// NewReceiver creates and registers the receiver collectors.
func NewReceiver(opts ...Option) *Receiver {
	cfg := Config{
		Namespace: "inputlink",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Receiver{
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "receiver",
			Name:      "events_total",
			Help:      "Decoded input events, by kind.",
		}, []string{"kind"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "receiver",
			Name:      "errors_total",
			Help:      "Streams dropped because of a bad frame or packet, by stage.",
		}, []string{"stage"}),
		Streams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "receiver",
			Name:      "open_streams",
			Help:      "Currently open input streams.",
		}),
	}
}

// Event records a decoded event.
func (m *Receiver) Event(kind string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(kind).Inc()
}

// Error records a dropped stream.
func (m *Receiver) Error(stage string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(stage).Inc()
}

// SetStreams sets the open stream gauge.
func (m *Receiver) SetStreams(n int) {
	if m == nil {
		return
	}
	m.Streams.Set(float64(n))
}
