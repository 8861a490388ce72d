package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/cart"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/order"
	"storefront/internal/product"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultReservationTimeout = 5 * time.Second
	compensationTimeout       = 10 * time.Second
)

// Catalog locks products for the duration of a checkout.
type Catalog interface {
	WithStockLock(ctx context.Context, ids []uint, fn func(product.Stock) error) error
}

type Ledger interface {
	Place(ctx context.Context, userID uint, items []order.LineItem) (*order.Order, error)
}

type Config struct {
	ReservationTimeout time.Duration
}

type Orchestrator struct {
	catalog Catalog
	ledger  Ledger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewOrchestrator(catalog Catalog, ledger Ledger, m *metrics.Metrics, cfg Config) *Orchestrator {
	timeout := cfg.ReservationTimeout
	if timeout <= 0 {
		timeout = DefaultReservationTimeout
	}
	return &Orchestrator{
		catalog: catalog,
		ledger:  ledger,
		metrics: m,
		timeout: timeout,
	}
}

// Checkout turns the cart into a pending order. Either every remaining line is
// reserved and the order saved, or stock is left as it was and the cart kept.
// Checkouts of the same cart run one after another.
func (o *Orchestrator) Checkout(ctx context.Context, userID uint, c *cart.Cart) (*order.Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Checkout"),
		zap.Uint("user_id", userID),
	)

	unlock, err := c.LockCheckout(ctx)
	if err != nil {
		o.metrics.Checkout(outcome(err))
		log.Warn("checkout failed, cart busy", zap.Error(err))
		return nil, err
	}
	defer unlock()

	items := c.Items()
	placed, err := o.checkout(ctx, userID, items)
	o.metrics.Checkout(outcome(err))
	if err != nil {
		log.Warn("checkout failed", zap.Error(err))
		return nil, err
	}

	c.Consume(items)
	log.Info("checkout completed",
		zap.Uint("order_id", placed.ID),
		zap.Int("lines", len(placed.Items)),
		zap.String("total", placed.Total().String()),
	)
	return placed, nil
}

func (o *Orchestrator) checkout(ctx context.Context, userID uint, items []cart.Item) (*order.Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	var placed *order.Order
	err := o.catalog.WithStockLock(ctx, ids, func(st product.Stock) error {
		lines, err := o.validate(ctx, st, items)
		if err != nil {
			return err
		}

		reserved, err := o.reserve(ctx, st, lines)
		if err != nil {
			return err
		}

		placed, err = o.ledger.Place(ctx, userID, reserved)
		if err != nil {
			o.compensate(ctx, st, reserved, metrics.ReasonCommit)
			return fmt.Errorf("%w: %w", ErrCommitFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// validate snapshots every line without touching stock. Lines whose product
// no longer exists are dropped.
func (o *Orchestrator) validate(ctx context.Context, st product.Stock, items []cart.Item) ([]order.LineItem, error) {
	lines := make([]order.LineItem, 0, len(items))

	for _, it := range items {
		p, err := st.GetByID(ctx, it.ProductID)
		if errors.Is(err, product.ErrProductNotFound) {
			logger.FromCtx(ctx).Warn("dropping cart line, product no longer exists",
				zap.Uint("product_id", it.ProductID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		if p.Stock < it.Quantity {
			return nil, &StockShortageError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: p.Stock,
			}
		}

		lines = append(lines, order.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Qty:       it.Quantity,
		})
	}

	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	return lines, nil
}

// reserve decrements stock line by line under the reservation deadline. On any
// failure the lines already reserved are handed back before returning.
func (o *Orchestrator) reserve(ctx context.Context, st product.Stock, lines []order.LineItem) ([]order.LineItem, error) {
	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	defer func() { o.metrics.ObserveReservation(time.Since(start)) }()

	reserved := make([]order.LineItem, 0, len(lines))
	for _, l := range lines {
		if err := rctx.Err(); err != nil {
			o.compensate(ctx, st, reserved, metrics.ReasonReservation)
			return nil, fmt.Errorf("%w: %w", ErrReservationFailed, err)
		}

		_, err := st.ReduceStock(rctx, l.ProductID, l.Qty)
		if errors.Is(err, product.ErrProductNotFound) {
			logger.FromCtx(ctx).Warn("dropping cart line, product removed during reservation",
				zap.Uint("product_id", l.ProductID),
			)
			continue
		}
		if err != nil {
			o.compensate(ctx, st, reserved, metrics.ReasonReservation)
			return nil, fmt.Errorf("%w: product %d: %w", ErrReservationFailed, l.ProductID, err)
		}
		reserved = append(reserved, l)
	}

	if len(reserved) == 0 {
		return nil, ErrEmptyCart
	}
	return reserved, nil
}

// compensate restores reserved stock on a context that outlives the caller's
// deadline. Failures are logged and never replace the primary error.
func (o *Orchestrator) compensate(ctx context.Context, st product.Stock, reserved []order.LineItem, reason string) {
	if len(reserved) == 0 {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	log := logger.FromCtx(ctx).With(zap.String("reason", reason))

	var errs error
	for i := len(reserved) - 1; i >= 0; i-- {
		l := reserved[i]
		if _, err := st.IncreaseStock(cctx, l.ProductID, l.Qty); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %d: %w", l.ProductID, err))
			continue
		}
		o.metrics.Compensated(reason, l.Qty)
	}

	if errs != nil {
		log.Error("stock compensation incomplete", zap.Error(errs))
		return
	}
	log.Info("stock compensated", zap.Int("lines", len(reserved)))
}

func outcome(err error) string {
	var shortage *StockShortageError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrEmptyCart):
		return metrics.OutcomeEmptyCart
	case errors.As(err, &shortage):
		return metrics.OutcomeInsufficientStock
	case errors.Is(err, ErrReservationFailed):
		return metrics.OutcomeReservationFailed
	case errors.Is(err, ErrCommitFailed):
		return metrics.OutcomeCommitFailed
	default:
		return metrics.OutcomeError
	}
}
