package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"storefront/internal/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaPublisher_PublishAndFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeWriter{}
	p := newKafkaPublisher(w, 8)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	ev, err := New(OrderCreated, 12, map[string]int{"qty": 3})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	cancel()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	require.Len(t, w.msgs, 1)
	assert.True(t, w.closed)
	assert.Equal(t, "12", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "order.created", string(w.msgs[0].Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "storefront", got.Producer)
	assert.Equal(t, uint(12), got.OrderID)
}

func TestKafkaPublisher_BufferFull(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{}, 1)
	ev, err := New(OrderDeleted, 1, struct{}{})
	require.NoError(t, err)

	// loop not started, nothing drains the buffer
	assert.NoError(t, p.Publish(context.Background(), ev))
	assert.ErrorIs(t, p.Publish(context.Background(), ev), ErrBufferFull)
}

func TestKafkaPublisher_PublishAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newKafkaPublisher(&fakeWriter{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	ev, err := New(OrderDeleted, 1, struct{}{})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Publish(context.Background(), ev), ErrClosed)
}

func TestKafkaPublisher_ShutdownKeepsAcceptedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &fakeWriter{}
	p := newKafkaPublisher(w, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	ev, err := New(OrderCreated, 3, struct{}{})
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Publish(context.Background(), ev)
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrClosed)
		}()
		if i == 16 {
			cancel()
		}
	}
	wg.Wait()
	p.WaitClosed()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.msgs, accepted)
}

func TestKafkaPublisher_WriteErrorIsLogged(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.ErrorLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	ev, err := New(OrderStatusChanged, 5, map[string]string{"to": "shipped"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), ev))

	cancel()
	p.WaitClosed()

	entries := logs.FilterMessage("failed to publish event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "5", entries[0].ContextMap()["key"])
}

func TestNewAndDecodePayload(t *testing.T) {
	type payload struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	ev, err := New(OrderStatusChanged, 3, payload{From: "pending", To: "shipped"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.OccurredAt.IsZero())

	got, err := DecodePayload[payload](ev)
	require.NoError(t, err)
	assert.Equal(t, "shipped", got.To)

	_, err = New(OrderCreated, 1, make(chan int))
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}
