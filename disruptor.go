package match

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrDisruptorTimeout is returned when shutdown times out
var ErrDisruptorTimeout = errors.New("disruptor: shutdown timeout")

// EventHandler consumes events published to a RingBuffer.
type EventHandler[T any] interface {
	OnEvent(event T)
}

// RingBuffer is a multi-producer single-consumer ring. Producers claim a sequence with CAS,
// write the slot and mark it published; one consumer goroutine hands slots to the handler
// in sequence order. An idle consumer parks on a wake channel instead of spinning.
type RingBuffer[T any] struct {
	// Cache line padding to avoid false sharing
	_                [56]byte
	producerSequence atomic.Int64
	_                [56]byte
	consumerSequence atomic.Int64
	_                [56]byte

	buffer     []T
	bufferMask int64
	capacity   int64

	// published[i] holds the sequence last written to slot i
	published []int64

	handler EventHandler[T]

	wake       chan struct{}
	stopped    chan struct{}
	isStarted  atomic.Bool
	isShutdown atomic.Bool
}

// NewRingBuffer creates a ring of the given capacity, which must be a power of 2.
func NewRingBuffer[T any](capacity int64, handler EventHandler[T]) *RingBuffer[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("size must be a power of 2")
	}

	rb := &RingBuffer[T]{
		buffer:     make([]T, capacity),
		published:  make([]int64, capacity),
		capacity:   capacity,
		bufferMask: capacity - 1,
		handler:    handler,
		wake:       make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}

	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)

	for i := range rb.published {
		atomic.StoreInt64(&rb.published[i], -1)
	}

	return rb
}

// Publish writes an event into the ring. It is safe for concurrent producers and
// blocks (yielding) while the ring is full. Returns ErrShutdown after Shutdown.
func (rb *RingBuffer[T]) Publish(event T) error {
	if rb.isShutdown.Load() {
		return ErrShutdown
	}

	var nextSeq int64
	for {
		current := rb.producerSequence.Load()
		nextSeq = current + 1

		// a producer may not lap the consumer
		wrapPoint := nextSeq - rb.capacity
		if wrapPoint > rb.consumerSequence.Load() {
			rb.signal()
			runtime.Gosched()
			continue
		}

		if rb.producerSequence.CompareAndSwap(current, nextSeq) {
			break
		}
		runtime.Gosched()
	}

	index := nextSeq & rb.bufferMask
	rb.buffer[index] = event
	atomic.StoreInt64(&rb.published[index], nextSeq)

	rb.signal()
	return nil
}

func (rb *RingBuffer[T]) signal() {
	select {
	case rb.wake <- struct{}{}:
	default:
	}
}

// Start launches the consumer goroutine. Calling Start twice is a no-op.
func (rb *RingBuffer[T]) Start() {
	if !rb.isStarted.CompareAndSwap(false, true) {
		return
	}
	go rb.consumerLoop()
}

// Shutdown stops accepting events and waits until every claimed event was handled.
func (rb *RingBuffer[T]) Shutdown(ctx context.Context) error {
	rb.isShutdown.Store(true)
	rb.signal()

	if !rb.isStarted.Load() {
		return nil
	}

	select {
	case <-rb.stopped:
		return nil
	case <-ctx.Done():
		return ErrDisruptorTimeout
	}
}

func (rb *RingBuffer[T]) consumerLoop() {
	defer close(rb.stopped)

	next := rb.consumerSequence.Load() + 1

	for {
		available := rb.producerSequence.Load()

		if next > available {
			if rb.isShutdown.Load() {
				rb.drain(next)
				return
			}
			<-rb.wake
			continue
		}

		next = rb.consume(next, available)
	}
}

// consume hands events next..available to the handler and returns the next sequence to read.
func (rb *RingBuffer[T]) consume(next, available int64) int64 {
	for next <= available {
		index := next & rb.bufferMask

		// the slot is claimed but its producer may not have finished writing yet
		for atomic.LoadInt64(&rb.published[index]) != next {
			runtime.Gosched()
		}

		event := rb.buffer[index]
		var zero T
		rb.buffer[index] = zero

		rb.handler.OnEvent(event)

		rb.consumerSequence.Store(next)
		next++
	}
	return next
}

func (rb *RingBuffer[T]) drain(next int64) {
	rb.consume(next, rb.producerSequence.Load())
}

// ConsumerSequence returns the last handled sequence.
func (rb *RingBuffer[T]) ConsumerSequence() int64 {
	return rb.consumerSequence.Load()
}

// ProducerSequence returns the last claimed sequence.
func (rb *RingBuffer[T]) ProducerSequence() int64 {
	return rb.producerSequence.Load()
}

// GetPendingEvents returns the number of claimed but not yet handled events.
func (rb *RingBuffer[T]) GetPendingEvents() int64 {
	return rb.producerSequence.Load() - rb.consumerSequence.Load()
}
