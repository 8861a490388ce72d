package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"storefront/internal/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	ErrBufferFull = errors.New("event buffer full")
	ErrClosed     = errors.New("publisher closed")
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues events and writes them from a single goroutine, so
// Publish never waits on the broker.
type KafkaPublisher struct {
	w     messageWriter
	inbox chan kafka.Message
	done  chan struct{}
	once  sync.Once

	// closed flips under mu before the final flush; Publish sends under mu.RLock.
	mu     sync.RWMutex
	closed bool
}

func NewKafkaPublisher(brokers []string, topic string, buf int) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, buf)
}

func newKafkaPublisher(w messageWriter, buf int) *KafkaPublisher {
	return &KafkaPublisher{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start runs the writer loop until ctx is done, then flushes what is queued
// and closes the writer.
func (p *KafkaPublisher) Start(ctx context.Context) {
	p.once.Do(func() {
		go p.run(ctx)
	})
}

func (p *KafkaPublisher) run(ctx context.Context) {
	log := logger.L().With(zap.String("component", "kafka_publisher"))
	defer close(p.done)

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.closed = true
			p.mu.Unlock()

			p.flush(log)
			if err := p.w.Close(); err != nil {
				log.Warn("failed to close kafka writer", zap.Error(err))
			}
			return
		case m := <-p.inbox:
			p.write(log, m)
		}
	}
}

func (p *KafkaPublisher) flush(log *zap.Logger) {
	for {
		select {
		case m := <-p.inbox:
			p.write(log, m)
		default:
			return
		}
	}
}

func (p *KafkaPublisher) write(log *zap.Logger, m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, m); err != nil {
		log.Error("failed to publish event",
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.OrderID), 10)),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.inbox <- msg:
		logger.FromCtx(ctx).Debug("event queued",
			zap.String("event_type", string(ev.Type)),
			zap.String("event_id", ev.ID),
		)
		return nil
	default:
		return ErrBufferFull
	}
}

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *KafkaPublisher) WaitClosed() {
	<-p.done
}
