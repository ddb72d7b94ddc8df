package core

import "sync/atomic"

// RingBuffer is a fixed-capacity byte queue shared between one producer
// and one consumer, one of which may be an interrupt handler. head is
// written only by the producer and tail only by the consumer. Indices run
// free and are reduced modulo the capacity on access, so all
// UARTBufferSize slots are usable: empty iff head == tail, full iff
// head-tail == UARTBufferSize.
type RingBuffer struct {
	buf  [UARTBufferSize]byte
	head uint32
	tail uint32
}

// Len returns the number of queued bytes.
func (r *RingBuffer) Len() int {
	return int(atomic.LoadUint32(&r.head) - atomic.LoadUint32(&r.tail))
}

// Free returns the number of bytes that can be queued.
func (r *RingBuffer) Free() int {
	return UARTBufferSize - r.Len()
}

// Cap returns the capacity.
func (r *RingBuffer) Cap() int {
	return UARTBufferSize
}

// IsEmpty reports whether nothing is queued.
func (r *RingBuffer) IsEmpty() bool {
	return atomic.LoadUint32(&r.head) == atomic.LoadUint32(&r.tail)
}

// Put queues one byte. It returns false when the buffer is full.
func (r *RingBuffer) Put(c byte) bool {
	head := atomic.LoadUint32(&r.head)
	if head-atomic.LoadUint32(&r.tail) == UARTBufferSize {
		return false
	}
	r.buf[head%UARTBufferSize] = c
	memoryBarrier()
	atomic.StoreUint32(&r.head, head+1)
	return true
}

// Write queues all of p or nothing. It returns false when p does not fit.
func (r *RingBuffer) Write(p []byte) bool {
	head := atomic.LoadUint32(&r.head)
	if uint32(len(p)) > UARTBufferSize-(head-atomic.LoadUint32(&r.tail)) {
		return false
	}
	for _, c := range p {
		r.buf[head%UARTBufferSize] = c
		head++
	}
	memoryBarrier()
	atomic.StoreUint32(&r.head, head)
	return true
}

// Get dequeues one byte.
func (r *RingBuffer) Get() (byte, bool) {
	tail := atomic.LoadUint32(&r.tail)
	if tail == atomic.LoadUint32(&r.head) {
		return 0, false
	}
	c := r.buf[tail%UARTBufferSize]
	memoryBarrier()
	atomic.StoreUint32(&r.tail, tail+1)
	return c, true
}

// Reset discards queued bytes. The caller must exclude the other side,
// typically with a CriticalSection.
func (r *RingBuffer) Reset() {
	atomic.StoreUint32(&r.tail, atomic.LoadUint32(&r.head))
}
