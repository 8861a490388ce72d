package cart

import (
	"context"
	"errors"

	"storefront/internal/logger"
	"storefront/internal/product"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Catalog is the read access the cart needs from the product store.
type Catalog interface {
	GetByID(ctx context.Context, id uint) (*product.Product, error)
}

type Service interface {
	Add(ctx context.Context, c *Cart, productID uint, qty int) error
	Remove(ctx context.Context, c *Cart, productID uint) error
	View(ctx context.Context, c *Cart) (*View, error)
}

type service struct {
	catalog Catalog
}

func NewService(catalog Catalog) Service {
	return &service{catalog: catalog}
}

// Add records the request only; stock is checked again and reserved at checkout.
func (s *service) Add(ctx context.Context, c *Cart, productID uint, qty int) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AddToCart"),
		zap.Uint("product_id", productID),
	)

	if qty <= 0 {
		return ErrInvalidQuantity
	}

	p, err := s.catalog.GetByID(ctx, productID)
	if errors.Is(err, product.ErrProductNotFound) {
		return ErrProductNotFound
	}
	if err != nil {
		log.Error("failed to load product", zap.Error(err))
		return err
	}
	if !p.InStock() {
		return ErrOutOfStock
	}

	total, err := c.add(productID, qty)
	if err != nil {
		log.Warn("cart line limit reached", zap.Int("qty", qty), zap.Int("cart_qty", total))
		return err
	}
	log.Info("added to cart", zap.Int("qty", qty), zap.Int("cart_qty", total))
	return nil
}

func (s *service) Remove(ctx context.Context, c *Cart, productID uint) error {
	if !c.remove(productID) {
		return ErrNotInCart
	}

	logger.FromCtx(ctx).Info("removed from cart",
		zap.String("layer", "service"),
		zap.Uint("product_id", productID),
	)
	return nil
}

func (s *service) View(ctx context.Context, c *Cart) (*View, error) {
	view := &View{Lines: make([]Line, 0), Total: decimal.Zero}

	for _, it := range c.Items() {
		p, err := s.catalog.GetByID(ctx, it.ProductID)
		if errors.Is(err, product.ErrProductNotFound) {
			logger.FromCtx(ctx).Warn("cart line skipped, product no longer exists",
				zap.String("layer", "service"),
				zap.Uint("product_id", it.ProductID),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		subtotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		view.Lines = append(view.Lines, Line{
			Product:  *p,
			Quantity: it.Quantity,
			Subtotal: subtotal,
		})
		view.Total = view.Total.Add(subtotal)
	}

	return view, nil
}
