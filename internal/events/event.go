package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	OrderCreated       Type = "order.created"
	OrderStatusChanged Type = "order.status_changed"
	OrderDeleted       Type = "order.deleted"
)

const Producer = "storefront"

// Event is the envelope written to the order topic.
type Event struct {
	ID         string          `json:"event_id"`
	Type       Type            `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Producer   string          `json:"producer"`
	OrderID    uint            `json:"order_id"`
	Payload    json.RawMessage `json:"payload"`
}

func New(t Type, orderID uint, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Producer:   Producer,
		OrderID:    orderID,
		Payload:    raw,
	}, nil
}

// DecodePayload unpacks the payload of ev into T.
func DecodePayload[T any](ev Event) (T, error) {
	var t T
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
