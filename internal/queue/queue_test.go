package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inputlink/internal/input"
	"inputlink/internal/protocol"
)

func packet(t *testing.T, dx int16) *protocol.Packet {
	t.Helper()
	p, err := protocol.Encode(input.MouseMove(dx, 0), 4)
	require.NoError(t, err)
	return p
}

func deltaX(t *testing.T, p *protocol.Packet) int16 {
	t.Helper()
	ev, err := protocol.Decode(p.Bytes())
	require.NoError(t, err)
	return ev.DeltaX
}

func TestQueue_FIFO(t *testing.T) {
	q := New(4)
	for i := int16(1); i <= 4; i++ {
		require.NoError(t, q.Offer(packet(t, i)))
	}
	for i := int16(1); i <= 4; i++ {
		p, err := q.Take(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, deltaX(t, p))
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_WrapAround(t *testing.T) {
	q := New(3)
	next := int16(0)
	want := int16(0)
	for round := 0; round < 5; round++ {
		for q.Len() < q.Cap() {
			next++
			require.NoError(t, q.Offer(packet(t, next)))
		}
		p, err := q.Take(context.Background())
		require.NoError(t, err)
		want++
		assert.Equal(t, want, deltaX(t, p))
	}
}

func TestQueue_FullLeavesStateUnchanged(t *testing.T) {
	q := New(30)
	for i := 0; i < 30; i++ {
		require.NoError(t, q.Offer(packet(t, int16(i))))
	}

	extra := packet(t, 999)
	assert.ErrorIs(t, q.Offer(extra), ErrFull)
	assert.Equal(t, 30, q.Len())

	p, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(0), deltaX(t, p))

	// Caller kept ownership of the rejected packet and can still use it.
	assert.Equal(t, int16(999), deltaX(t, extra))
}

func TestQueue_OfferAfterClose(t *testing.T) {
	q := New(2)
	q.Close()
	assert.ErrorIs(t, q.Offer(packet(t, 1)), ErrClosed)
	q.Close() // idempotent
}

func TestQueue_TakeAfterCloseEmpty(t *testing.T) {
	q := New(2)
	q.Close()

	done := make(chan error, 1)
	go func() {
		_, err := q.Take(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Take blocked on a closed, empty queue")
	}
}

func TestQueue_TakeReturnsQueuedBeforeClosed(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Offer(packet(t, 7)))
	q.Close()

	p, err := q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(7), deltaX(t, p))

	_, err = q.Take(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_CloseWakesBlockedTake(t *testing.T) {
	q := New(2)
	done := make(chan error, 1)
	go func() {
		_, err := q.Take(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake Take")
	}
}

func TestQueue_ContextInterruptsTake(t *testing.T) {
	q := New(2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Take(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancel did not interrupt Take")
	}
	// The queue itself stays open.
	assert.NoError(t, q.Offer(packet(t, 1)))
}

func TestQueue_CancelledTakeLeavesPackets(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Offer(packet(t, 1)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := q.Take(ctx)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())

	p, err = q.Take(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int16(1), deltaX(t, p))
}

func TestQueue_OfferWakesBlockedTake(t *testing.T) {
	q := New(2)
	got := make(chan *protocol.Packet, 1)
	go func() {
		p, err := q.Take(context.Background())
		if err == nil {
			got <- p
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Offer(packet(t, 42)))

	select {
	case p := <-got:
		assert.Equal(t, int16(42), deltaX(t, p))
	case <-time.After(time.Second):
		t.Fatal("Offer did not wake Take")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New(5)
	for i := int16(1); i <= 3; i++ {
		require.NoError(t, q.Offer(packet(t, i)))
	}

	items := q.Drain()
	require.Len(t, items, 3)
	for i, p := range items {
		assert.Equal(t, int16(i+1), deltaX(t, p))
		protocol.Release(p)
	}
	assert.Equal(t, 0, q.Len())
	assert.ErrorIs(t, q.Offer(packet(t, 9)), ErrClosed)
	assert.Empty(t, q.Drain())
}

func TestQueue_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	const producers = 4
	const perProducer = 200
	q := New(8)

	var wg sync.WaitGroup
	for id := 0; id < producers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for seq := 0; seq < perProducer; {
				p, err := protocol.Encode(input.MouseMove(int16(id), int16(seq)), 4)
				if err != nil {
					t.Error(err)
					return
				}
				if err := q.Offer(p); err != nil {
					protocol.Release(p)
					time.Sleep(time.Microsecond)
					continue
				}
				seq++
			}
		}(id)
	}

	last := make([]int16, producers)
	for i := range last {
		last[i] = -1
	}
	for n := 0; n < producers*perProducer; n++ {
		p, err := q.Take(context.Background())
		require.NoError(t, err)
		ev, err := protocol.Decode(p.Bytes())
		require.NoError(t, err)
		require.Greater(t, ev.DeltaY, last[ev.DeltaX], "producer %d out of order", ev.DeltaX)
		last[ev.DeltaX] = ev.DeltaY
		protocol.Release(p)
	}
	wg.Wait()
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}
