// Package sender drains the packet queue onto the transport.
package sender

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"inputlink/internal/framing"
	"inputlink/internal/metrics"
	"inputlink/internal/protocol"
	"inputlink/internal/queue"
)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics sets the collectors updated per write.
func WithMetrics(m *metrics.Sender) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithTerminationHandler sets the function called when the loop stops
// because of a failure. It is not called for a requested stop.
func WithTerminationHandler(fn func(*TerminatedError)) Option {
	return func(w *Worker) {
		w.onTerminate = fn
	}
}

// WithSentCounter sets a counter incremented after each completed write.
func WithSentCounter(c *atomic.Int64) Option {
	return func(w *Worker) {
		w.sent = c
	}
}

// Worker takes packets off the queue, seals them and writes each framed
// message to the transport in one call. It never retries.
type Worker struct {
	queue  *queue.Queue
	sealer *framing.Sealer
	out    io.Writer

	logger      *zap.Logger
	metrics     *metrics.Sender
	onTerminate func(*TerminatedError)
	sent        *atomic.Int64

	buf       framing.Buffer
	done      chan struct{}
	terminate sync.Once
}

// New creates a worker. Run starts it.
func New(q *queue.Queue, s *framing.Sealer, out io.Writer, opts ...Option) *Worker {
	w := &Worker{
		queue:  q,
		sealer: s,
		out:    out,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Run sends packets until ctx is cancelled or a step fails. Cancelling ctx
// is the requested stop; the caller also closes the transport so a blocked
// Write returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.logger.Debug("sender started")

	for {
		if ctx.Err() != nil {
			w.logger.Debug("sender stopped")
			return
		}

		p, err := w.queue.Take(ctx)
		if err != nil {
			w.fail(ctx, StageQueue, err)
			return
		}

		msg, err := w.sealer.Seal(&w.buf, p.Bytes())
		protocol.Release(p)
		if err != nil {
			w.fail(ctx, StageSeal, err)
			return
		}

		n, err := w.out.Write(msg)
		if err == nil && n < len(msg) {
			err = io.ErrShortWrite
		}
		if err != nil {
			w.fail(ctx, StageWrite, err)
			return
		}
		if w.sent != nil {
			w.sent.Add(1)
		}
		w.metrics.Sent(n, w.queue.Len())
	}
}

func (w *Worker) fail(ctx context.Context, stage Stage, err error) {
	if ctx.Err() != nil {
		w.logger.Debug("sender stopped", zap.String("stage", string(stage)))
		return
	}

	te := &TerminatedError{Stage: stage, Err: err}
	w.terminate.Do(func() {
		w.logger.Error("input stream terminated",
			zap.String("stage", string(stage)),
			zap.Int("code", te.Code()),
			zap.Error(err))
		w.metrics.Failed(string(stage))
		if w.onTerminate != nil {
			w.onTerminate(te)
		}
	})
}
