// Package kafka publishes book events to a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/disruptor"
	"github.com/0x5487/tradesim/protocol"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultBuffer is the number of Publish batches the sink queues for the writer.
const DefaultBuffer = 4096

var ErrClosed = errors.New("kafka sink is closed")

// Sink is a match.PublishLog that forwards every BookLog to Kafka, keyed by
// order id so one order's events stay in one partition. Publish serializes on
// the caller's goroutine and queues the batch; a single consumer goroutine
// owns the writer.
type Sink struct {
	writer     MessageWriter
	serializer protocol.Serializer
	logger     *slog.Logger
	buffer     int64

	ring   *disruptor.RingBuffer[batch]
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

type batch struct {
	msgs []kafka.Message
}

type Option func(*Sink)

func WithSerializer(s protocol.Serializer) Option {
	return func(sink *Sink) { sink.serializer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(sink *Sink) { sink.logger = l }
}

// WithWriter replaces the Kafka writer, e.g. with a fake in tests.
func WithWriter(w MessageWriter) Option {
	return func(sink *Sink) { sink.writer = w }
}

// WithBuffer sets the queue capacity, which must be a power of 2.
func WithBuffer(n int64) Option {
	return func(sink *Sink) { sink.buffer = n }
}

// NewSink creates a producer for topic and starts its writer goroutine.
func NewSink(brokers []string, topic string, opts ...Option) *Sink {
	sink := &Sink{
		serializer: protocol.JSONSerializer{},
		logger:     slog.Default(),
		buffer:     DefaultBuffer,
	}
	for _, opt := range opts {
		opt(sink)
	}
	sink.logger = sink.logger.With("component", "kafka", "topic", topic)

	if sink.writer == nil {
		sink.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			BatchTimeout: 10 * time.Millisecond,
			Completion:   sink.onCompletion,
		}
	}

	sink.ctx, sink.cancel = context.WithCancel(context.Background())
	sink.ring = disruptor.NewRingBuffer[batch](sink.buffer, &producer{sink: sink})
	go sink.ring.Run()
	return sink
}

// Publish implements match.PublishLog. It never waits on the network or on a
// full queue: batches that do not fit are dropped and counted.
func (s *Sink) Publish(logs ...*match.BookLog) {
	if len(logs) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(logs))
	for _, log := range logs {
		value, err := s.serializer.Marshal(log)
		if err != nil {
			s.failed.Add(1)
			s.logger.Error("serialize book log", "seq_id", log.SequenceID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(log.OrderID, 10)),
			Value: value,
			Headers: []kafka.Header{
				{Key: "content-type", Value: []byte(s.serializer.ContentType())},
				{Key: "type", Value: []byte(log.Type)},
			},
			Time: log.CreatedAt,
		})
	}
	if len(msgs) == 0 {
		return
	}

	if !s.ring.TryPublish(batch{msgs: msgs}) {
		s.dropped.Add(uint64(len(msgs)))
		s.logger.Warn("book logs dropped", "count", len(msgs), "pending", s.ring.GetPendingEvents())
	}
}

// producer is the ring's only consumer.
type producer struct {
	sink *Sink
}

func (p *producer) OnEvent(b *batch) {
	s := p.sink
	msgs := b.msgs
	b.msgs = nil

	if err := s.writer.WriteMessages(s.ctx, msgs...); err != nil {
		s.failed.Add(uint64(len(msgs)))
		s.logger.Error("write book logs", "count", len(msgs), "error", err)
		return
	}
	s.published.Add(uint64(len(msgs)))
}

func (s *Sink) onCompletion(messages []kafka.Message, err error) {
	if err != nil {
		s.failed.Add(uint64(len(messages)))
		s.logger.Error("deliver book logs", "count", len(messages), "error", err)
	}
}

// Published returns the number of messages handed to the writer.
func (s *Sink) Published() uint64 { return s.published.Load() }

// Failed returns the number of messages that could not be serialized or delivered.
func (s *Sink) Failed() uint64 { return s.failed.Load() }

// Dropped returns the number of messages discarded because the queue was
// full or the sink was closed.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting events and waits for queued batches to reach the
// writer. If ctx ends first, in-flight writes are cancelled. The writer is
// closed either way.
func (s *Sink) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	err := s.ring.Shutdown(ctx)
	s.cancel()
	if err != nil {
		err = fmt.Errorf("drain book logs: %w", err)
	}
	return errors.Join(err, s.writer.Close())
}
