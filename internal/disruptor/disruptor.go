// Package disruptor is a multi-producer, single-consumer ring buffer.
// Producers never block on the consumer's work, only on a full ring.
package disruptor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

const (
	idleSpins = 64
	idleSleep = time.Millisecond
)

// EventHandler consumes events on the single consumer goroutine.
// The pointer is only valid for the duration of the call.
type EventHandler[T any] interface {
	OnEvent(event *T)
}

// RingBuffer is an MPSC ring buffer.
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

	// published[i] holds the sequence last written to slot i.
	published []int64

	handler    EventHandler[T]
	isShutdown atomic.Bool
	done       chan struct{}
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
		done:       make(chan struct{}),
	}

	rb.producerSequence.Store(-1)
	rb.consumerSequence.Store(-1)

	for i := range rb.published {
		atomic.StoreInt64(&rb.published[i], -1)
	}

	return rb
}

// Publish copies event into the ring. It is safe for concurrent producers and
// returns false, dropping the event, once Shutdown has been called.
func (rb *RingBuffer[T]) Publish(event T) bool {
	if rb.isShutdown.Load() {
		return false
	}

	var nextSeq int64
	for {
		currentProducerSeq := rb.producerSequence.Load()
		nextSeq = currentProducerSeq + 1

		// The producer may not lap the consumer.
		wrapPoint := nextSeq - rb.capacity
		if wrapPoint > rb.consumerSequence.Load() {
			if rb.isShutdown.Load() {
				return false
			}
			runtime.Gosched()
			continue
		}

		if rb.producerSequence.CompareAndSwap(currentProducerSeq, nextSeq) {
			break
		}
		runtime.Gosched()
	}

	index := nextSeq & rb.bufferMask
	rb.buffer[index] = event

	// Make the slot visible to the consumer.
	atomic.StoreInt64(&rb.published[index], nextSeq)
	return true
}

// TryPublish is Publish that never waits for the consumer. It returns false,
// dropping the event, when the ring is full or Shutdown has been called.
func (rb *RingBuffer[T]) TryPublish(event T) bool {
	var nextSeq int64
	for {
		if rb.isShutdown.Load() {
			return false
		}

		currentProducerSeq := rb.producerSequence.Load()
		nextSeq = currentProducerSeq + 1
		if nextSeq-rb.capacity > rb.consumerSequence.Load() {
			return false
		}

		if rb.producerSequence.CompareAndSwap(currentProducerSeq, nextSeq) {
			break
		}
	}

	index := nextSeq & rb.bufferMask
	rb.buffer[index] = event
	atomic.StoreInt64(&rb.published[index], nextSeq)
	return true
}

// Run consumes events on the calling goroutine until Shutdown is called and
// every claimed slot has been handled.
func (rb *RingBuffer[T]) Run() {
	defer close(rb.done)

	nextConsumerSeq := rb.consumerSequence.Load() + 1
	idle := 0

	for {
		shuttingDown := rb.isShutdown.Load()
		availableSeq := rb.producerSequence.Load()

		processed := false
		for nextConsumerSeq <= availableSeq {
			rb.consume(nextConsumerSeq)
			nextConsumerSeq++
			processed = true
		}

		if shuttingDown {
			// Producers that claimed before the flag flipped are drained above;
			// one more pass picks up claims that raced with it.
			for last := rb.producerSequence.Load(); nextConsumerSeq <= last; nextConsumerSeq++ {
				rb.consume(nextConsumerSeq)
			}
			return
		}

		if processed {
			idle = 0
			continue
		}

		idle++
		if idle < idleSpins {
			runtime.Gosched()
		} else {
			time.Sleep(idleSleep)
		}
	}
}

func (rb *RingBuffer[T]) consume(seq int64) {
	index := seq & rb.bufferMask

	// Wait until the producer that claimed seq has written it.
	for atomic.LoadInt64(&rb.published[index]) != seq {
		runtime.Gosched()
	}

	rb.handler.OnEvent(&rb.buffer[index])
	rb.consumerSequence.Store(seq)
}

// Shutdown stops accepting events and waits for Run to drain the ring.
// It returns ctx.Err() if the context ends first.
func (rb *RingBuffer[T]) Shutdown(ctx context.Context) error {
	rb.isShutdown.Store(true)

	select {
	case <-rb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumerSequence returns the last consumed sequence (for monitoring).
func (rb *RingBuffer[T]) ConsumerSequence() int64 {
	return rb.consumerSequence.Load()
}

// ProducerSequence returns the last claimed sequence (for monitoring).
func (rb *RingBuffer[T]) ProducerSequence() int64 {
	return rb.producerSequence.Load()
}

// GetPendingEvents returns the number of claimed but unconsumed events.
func (rb *RingBuffer[T]) GetPendingEvents() int64 {
	return rb.producerSequence.Load() - rb.consumerSequence.Load()
}
