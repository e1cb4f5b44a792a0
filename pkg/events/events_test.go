package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	name   string
	err    error
	panics bool
	delay  time.Duration

	mu   sync.Mutex
	seen []Event
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Handle(ctx context.Context, evt Event) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.seen = append(h.seen, evt)
	h.mu.Unlock()
	if h.panics {
		panic("boom")
	}
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func sampleExpired() OrderExpired {
	userID := int64(7)
	return OrderExpired{
		ID:          "evt-1",
		OrderID:     42,
		OrderNumber: "ORD-42",
		UserID:      &userID,
		GrandTotal:  15000,
		ItemCount:   5,
		ExpiredAt:   time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
		OccurredAt:  time.Date(2026, 10, 15, 10, 0, 1, 0, time.UTC),
	}
}

func TestEncodeDecode_PreservesConcreteType(t *testing.T) {
	// Arrange
	evt := sampleExpired()

	// Act
	data, err := Encode(evt)
	require.NoError(t, err)
	decoded, err := Decode(data)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, evt, decoded)
	assert.Equal(t, "42", decoded.Key())
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"order.created","data":{}}`))

	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestLocalBus_HandlersAreIndependent(t *testing.T) {
	// Arrange
	bus := NewLocalBus(time.Second)
	failing := &recordingHandler{name: "failing", err: errors.New("smtp down")}
	panicking := &recordingHandler{name: "panicking", panics: true}
	healthy := &recordingHandler{name: "healthy"}
	bus.Subscribe(failing, panicking, healthy)

	// Act
	err := bus.Publish(context.Background(), sampleExpired())
	bus.Wait()

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, panicking.count())
	assert.Equal(t, 1, healthy.count())
}

func TestLocalBus_PublishDoesNotWaitForHandlers(t *testing.T) {
	bus := NewLocalBus(time.Second)
	slow := &recordingHandler{name: "slow", delay: 200 * time.Millisecond}
	bus.Subscribe(slow)

	start := time.Now()
	require.NoError(t, bus.Publish(context.Background(), sampleExpired()))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond)
	bus.Wait()
	assert.Equal(t, 1, slow.count())
}

func TestLocalBus_HandlersOutliveCancelledPublisherContext(t *testing.T) {
	bus := NewLocalBus(time.Second)
	h := &ctxCheckingHandler{}
	bus.Subscribe(h)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, sampleExpired()))
	cancel()
	bus.Wait()

	assert.NoError(t, h.ctxErr)
}

type ctxCheckingHandler struct {
	ctxErr error
}

func (h *ctxCheckingHandler) Name() string { return "ctx" }

func (h *ctxCheckingHandler) Handle(ctx context.Context, evt Event) error {
	time.Sleep(20 * time.Millisecond)
	h.ctxErr = ctx.Err()
	return nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_UsesOrderIDAsKey(t *testing.T) {
	// Arrange
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}

	// Act
	err := publisher.Publish(context.Background(), sampleExpired())

	// Assert
	require.NoError(t, err)
	require.Len(t, writer.msgs, 1)
	assert.Equal(t, "42", string(writer.msgs[0].Key))
	decoded, err := Decode(writer.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, TypeOrderExpired, decoded.EventType())
}

func TestKafkaPublisher_WrapsWriteErrors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	publisher := &KafkaPublisher{writer: writer}

	err := publisher.Publish(context.Background(), sampleExpired())

	assert.ErrorContains(t, err, "broker unavailable")
}

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    atomic.Bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *fakeReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func TestKafkaConsumer_CommitsEvenWhenHandlerFails(t *testing.T) {
	// Arrange
	payload, err := Encode(sampleExpired())
	require.NoError(t, err)
	reader := &fakeReader{pending: []kafka.Message{
		{Offset: 1, Value: payload},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: payload},
	}}
	handler := &recordingHandler{name: "notification", err: errors.New("smtp down")}
	consumer := &KafkaConsumer{reader: reader, handler: handler, timeout: time.Second, retryBackoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Act
	go func() { done <- consumer.Run(ctx) }()
	assert.Eventually(t, func() bool { return reader.committedCount() == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	// Assert
	assert.NoError(t, <-done)
	assert.Equal(t, 2, handler.count())
	assert.True(t, reader.closed.Load())
}

func TestNewKafkaClient_ParsesBrokers(t *testing.T) {
	client := NewKafkaClient(" kafka-1:9092, ,kafka-2:9092 ")

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, client.Brokers)
	assert.True(t, client.Enabled())
	assert.False(t, NewKafkaClient("").Enabled())
}
