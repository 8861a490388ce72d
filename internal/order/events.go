package order

import (
	"context"

	"storefront/internal/events"
	"storefront/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreatedPayload struct {
	UserID uint            `json:"user_id"`
	Items  []LineItem      `json:"items"`
	Total  decimal.Decimal `json:"total"`
}

type StatusChangedPayload struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

type DeletedPayload struct {
	UserID uint `json:"user_id"`
}

// publish never fails the caller; broker trouble is only logged.
func (s *service) publish(ctx context.Context, t events.Type, orderID uint, payload any) {
	log := logger.FromCtx(ctx).With(
		zap.String("event_type", string(t)),
		zap.Uint("order_id", orderID),
	)

	ev, err := events.New(t, orderID, payload)
	if err != nil {
		log.Warn("failed to build event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn("failed to publish event", zap.Error(err))
	}
}
