package media

import "sync/atomic"

// Ring is a fixed-capacity, single-producer/single-consumer queue of
// decoded frames. Capacity must be a power of two; it is fixed at
// construction and never resized.
//
// Only the producer goroutine may call TryPush; only the consumer
// goroutine may call TryPop. Close is a single atomic store and may be
// called from any goroutine. Used may be called by either side,
// or by a third party for telemetry, with no synchronization guarantee
// beyond what atomic.Load already gives it.
//
// TryPush publishes a frame with release semantics (the atomic store to
// tail happens-after the slot write); TryPop observes it with acquire
// semantics (the atomic load of tail happens-before the slot read). This
// mirrors the classic bounded SPSC ring: the producer only ever advances
// tail, the consumer only ever advances head, and the mask makes both
// wrap without a modulo.
type Ring struct {
	mask uint64
	buf  []Frame

	// head is the next slot the consumer will read; tail is the next slot
	// the producer will write. Both only ever increase.
	head atomic.Uint64
	tail atomic.Uint64

	closed atomic.Bool
}

// NewRing constructs a Ring with the given capacity, which must be a
// power of two. A non-power-of-two capacity is rounded up.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 64
	}
	c := nextPowerOfTwo(capacity)
	return &Ring{
		mask: uint64(c - 1),
		buf:  make([]Frame, c),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the ring's fixed capacity.
func (r *Ring) Capacity() int {
	return len(r.buf)
}

// TryPush attempts to enqueue frame without blocking. It returns false if
// the ring is full or has been closed; frame is only transferred into the
// ring on a true return.
func (r *Ring) TryPush(frame Frame) bool {
	if r.closed.Load() {
		return false
	}
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = frame
	r.tail.Store(tail + 1)
	return true
}

// Peek returns the oldest buffered frame without removing it. Only the
// consumer goroutine may call Peek, for the same reason only it may call
// TryPop: a concurrent pop from another goroutine would race the read.
// It exists so a ChannelSlot's consumer can report the PTS of the frame
// it is about to emit (spec §4.7's switch-to-live protocol) before
// committing to delivering it.
func (r *Ring) Peek() (Frame, bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return Frame{}, false
	}
	return r.buf[head&r.mask], true
}

// TryPop attempts to dequeue the oldest frame without blocking. It returns
// false if the ring is currently empty, regardless of Close having been
// called; pops continue to succeed on a closed-but-nonempty ring until it
// drains.
func (r *Ring) TryPop() (Frame, bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return Frame{}, false
	}
	frame := r.buf[head&r.mask]
	r.buf[head&r.mask] = Frame{}
	r.head.Store(head + 1)
	return frame, true
}

// Used returns the approximate number of buffered frames. It is safe to
// call from any goroutine but carries no synchronization guarantee beyond
// the two atomic loads: a concurrent push or pop may race the read.
func (r *Ring) Used() int {
	return int(r.tail.Load() - r.head.Load())
}

// Close marks the ring as drained. Subsequent TryPush calls fail; TryPop
// continues to succeed until the ring is empty. Close is idempotent.
func (r *Ring) Close() {
	r.closed.Store(true)
}

// Closed reports whether Close has been called.
func (r *Ring) Closed() bool {
	return r.closed.Load()
}
