// Package queue provides the bounded FIFO that decouples event producers
// from the single sender.
package queue

import (
	"context"
	"errors"
	"sync"

	"inputlink/internal/protocol"
)

var (
	// ErrFull is returned by Offer when the queue is at capacity.
	ErrFull = errors.New("queue: full")

	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue: closed")
)

// Queue is a fixed-capacity FIFO of encoded packets. It is safe for any
// number of producers and one consumer.
type Queue struct {
	mu       sync.Mutex
	items    []*protocol.Packet
	head     int
	count    int
	closed   bool
	ready    chan struct{} // signalled after each successful Offer
	done     chan struct{} // closed by Close
	closeOne sync.Once
}

// New creates a queue holding at most capacity packets.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("queue: capacity must be positive")
	}
	return &Queue{
		items: make([]*protocol.Packet, capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Offer appends p without blocking. On error the caller keeps ownership of p.
func (q *Queue) Offer(p *protocol.Packet) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.count == len(q.items) {
		q.mu.Unlock()
		return ErrFull
	}
	q.items[(q.head+q.count)%len(q.items)] = p
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Take removes and returns the head packet, blocking until one is available.
// It returns ErrClosed once the queue is closed and empty, or ctx.Err() if
// ctx is cancelled first. A cancelled ctx never dequeues.
func (q *Queue) Take(ctx context.Context) (*protocol.Packet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p, err := q.pop(); p != nil || err != nil {
			return p, err
		}
		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *Queue) pop() (*protocol.Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		if q.closed {
			return nil, ErrClosed
		}
		return nil, nil
	}
	p := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return p, nil
}

// Close marks the queue closed and wakes a blocked Take. Further Offers fail.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.closeOne.Do(func() { close(q.done) })
}

// Drain closes the queue and hands back every packet still queued, oldest
// first, so the caller can release them.
func (q *Queue) Drain() []*protocol.Packet {
	q.Close()

	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*protocol.Packet, 0, q.count)
	for q.count > 0 {
		out = append(out, q.items[q.head])
		q.items[q.head] = nil
		q.head = (q.head + 1) % len(q.items)
		q.count--
	}
	return out
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.items)
}
