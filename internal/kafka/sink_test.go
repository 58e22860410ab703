package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type failingSerializer struct{}

func (failingSerializer) Marshal(any) ([]byte, error) { return nil, errors.New("boom") }
func (failingSerializer) Unmarshal([]byte, any) error { return errors.New("boom") }
func (failingSerializer) ContentType() string { return "x" }

// blockingWriter stalls every write until release is closed or ctx ends,
// like a broker that accepts connections and never answers.
type blockingWriter struct {
	release chan struct{}
	calls   atomic.Int64
}

func (w *blockingWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	w.calls.Add(1)
	select {
	case <-w.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *blockingWriter) Close() error { return nil }

func TestSinkPublishesEngineEvents(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewSink(nil, "book", WithWriter(writer))
	engine := match.NewMatchingEngine(match.WithPublishLog(sink))

	_, err := engine.NewLimitOrder("maker", match.Sell, 5, match.MustParsePrice("10.00"))
	require.NoError(t, err)
	exec, err := engine.SubmitMarket("taker", match.Buy, 2)
	require.NoError(t, err)

	require.NoError(t, sink.Close(context.Background()))
	assert.True(t, writer.closed)

	require.Len(t, writer.msgs, 2)
	assert.Equal(t, uint64(2), sink.Published())

	open := writer.msgs[0]
	assert.Equal(t, "1", string(open.Key))
	assert.Contains(t, string(open.Value), `"type":"open"`)
	assert.Equal(t, kafka.Header{Key: "content-type", Value: []byte("application/json")}, open.Headers[0])

	fill := writer.msgs[1]
	assert.Equal(t, []byte("2"), fill.Key)
	assert.Equal(t, match.OrderID(2), exec.OrderID)
	assert.Equal(t, "match", string(fill.Headers[1].Value))
	assert.Contains(t, string(fill.Value), `"maker_client":"maker"`)

	assert.ErrorIs(t, sink.Close(context.Background()), ErrClosed)
}

func TestSinkDoesNotBlockEngine(t *testing.T) {
	writer := &blockingWriter{release: make(chan struct{})}
	sink := NewSink(nil, "book", WithWriter(writer), WithBuffer(2))
	engine := match.NewMatchingEngine(match.WithPublishLog(sink))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			_, err := engine.NewLimitOrder("a", match.Buy, 1, match.MustParsePrice("10.00"))
			assert.NoError(t, err)
		}
		assert.True(t, engine.Cancel(1))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine blocked on a stalled writer")
	}

	// The writer holds the first batch; one more fits in the queue.
	assert.Equal(t, uint64(0), sink.Published())
	assert.Equal(t, uint64(9), sink.Dropped())
	assert.Equal(t, match.Qty(9), engine.Top().BidQty)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Close(ctx), context.DeadlineExceeded)

	assert.Eventually(t, func() bool { return sink.Failed() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), writer.calls.Load())

	sink.Publish(&match.BookLog{SequenceID: 99})
	assert.Equal(t, uint64(10), sink.Dropped())
}

func TestSinkFailures(t *testing.T) {
	t.Run("serializer", func(t *testing.T) {
		writer := &fakeWriter{}
		sink := NewSink(nil, "book", WithWriter(writer), WithSerializer(failingSerializer{}))

		sink.Publish(&match.BookLog{SequenceID: 1}, &match.BookLog{SequenceID: 2})
		require.NoError(t, sink.Close(context.Background()))
		assert.Empty(t, writer.msgs)
		assert.Equal(t, uint64(2), sink.Failed())
	})

	t.Run("writer", func(t *testing.T) {
		writer := &fakeWriter{err: errors.New("closed")}
		sink := NewSink(nil, "book", WithWriter(writer))

		sink.Publish(&match.BookLog{SequenceID: 1, Type: match.LogTypeOpen, Side: match.Buy, Price: 1})
		require.NoError(t, sink.Close(context.Background()))
		assert.Equal(t, uint64(1), sink.Failed())
		assert.Equal(t, uint64(0), sink.Published())
	})

	t.Run("delivery", func(t *testing.T) {
		sink := NewSink(nil, "book", WithWriter(&fakeWriter{}))
		sink.onCompletion(make([]kafka.Message, 3), errors.New("leader not available"))
		assert.Equal(t, uint64(3), sink.Failed())
		require.NoError(t, sink.Close(context.Background()))
	})
}
