package order

import (
	"context"
	"errors"
	"time"

	"storefront/internal/events"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/product"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const restoreTimeout = 10 * time.Second

// Stock is what a cancellation needs to hand units back to the catalog.
type Stock interface {
	IncreaseStock(ctx context.Context, id uint, qty int) error
}

type Service interface {
	Place(ctx context.Context, userID uint, items []LineItem) (*Order, error)
	Get(ctx context.Context, id uint) (*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
	ListForUser(ctx context.Context, userID uint) ([]*Order, error)

	SetStatus(ctx context.Context, id uint, status Status) (*Transition, error)
	Cancel(ctx context.Context, id uint) (*Transition, error)
	// Delete removes the record. Stock is not restored.
	Delete(ctx context.Context, id uint) error
}

type service struct {
	repo      Repository
	stock     Stock
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func NewService(repo Repository, stock Stock, publisher events.Publisher, m *metrics.Metrics) Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &service{
		repo:      repo,
		stock:     stock,
		publisher: publisher,
		metrics:   m,
	}
}

// Place persists a pending order. Stock must already be reserved.
func (s *service) Place(ctx context.Context, userID uint, items []LineItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	o := &Order{
		UserID: userID,
		Items:  items,
		Status: StatusPending,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderCreated, o.ID, CreatedPayload{
		UserID: userID,
		Items:  o.Items,
		Total:  o.Total(),
	})
	return o, nil
}

func (s *service) Get(ctx context.Context, id uint) (*Order, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListAll(ctx context.Context) ([]*Order, error) {
	return s.repo.ListAll(ctx)
}

func (s *service) ListForUser(ctx context.Context, userID uint) ([]*Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) SetStatus(ctx context.Context, id uint, status Status) (*Transition, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "SetStatus"),
		zap.Uint("order_id", id),
	)

	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := o.Status

	if prev == StatusCancelled {
		if status == StatusCancelled {
			return &Transition{Order: o, Previous: prev, Outcome: OutcomeAlreadyCancelled}, nil
		}
		return nil, ErrOrderCancelled
	}

	ok, err := s.repo.UpdateStatus(ctx, id, prev, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.resolveConflict(ctx, id, status)
	}
	o.Status = status

	log.Info("order status changed",
		zap.String("from", string(prev)),
		zap.String("to", string(status)),
	)
	s.publish(ctx, events.OrderStatusChanged, id, StatusChangedPayload{From: prev, To: status})

	if status != StatusCancelled {
		return &Transition{Order: o, Previous: prev, Outcome: OutcomeUpdated}, nil
	}

	s.restoreStock(ctx, o)
	return &Transition{Order: o, Previous: prev, Outcome: OutcomeCancelled}, nil
}

// resolveConflict runs when the compare-and-set lost against another writer.
func (s *service) resolveConflict(ctx context.Context, id uint, status Status) (*Transition, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == StatusCancelled && status == StatusCancelled {
		return &Transition{Order: cur, Previous: cur.Status, Outcome: OutcomeAlreadyCancelled}, nil
	}
	if cur.Status == StatusCancelled {
		return nil, ErrOrderCancelled
	}
	return nil, ErrStatusConflict
}

// restoreStock returns every line's quantity to the catalog. The cancellation
// stands even when some lines cannot be restored.
func (s *service) restoreStock(ctx context.Context, o *Order) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.Uint("order_id", o.ID),
	)

	// outlives the request, the status change is already committed
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	var errs error
	for _, it := range o.Items {
		err := s.stock.IncreaseStock(rctx, it.ProductID, it.Qty)
		switch {
		case err == nil:
			s.metrics.Compensated(metrics.ReasonCancel, it.Qty)
		case errors.Is(err, product.ErrProductNotFound):
			log.Warn("product gone, stock not restored",
				zap.Uint("product_id", it.ProductID),
				zap.Int("qty", it.Qty),
			)
		default:
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		log.Error("stock restore incomplete", zap.Error(errs))
	}
}

func (s *service) Cancel(ctx context.Context, id uint) (*Transition, error) {
	return s.SetStatus(ctx, id, StatusCancelled)
}

func (s *service) Delete(ctx context.Context, id uint) error {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	logger.FromCtx(ctx).Info("order deleted",
		zap.String("layer", "service"),
		zap.Uint("order_id", id),
	)
	s.publish(ctx, events.OrderDeleted, id, DeletedPayload{UserID: o.UserID})
	return nil
}
