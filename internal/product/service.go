package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/logger"

	"go.uber.org/zap"
)

// Stock is the stock-mutation surface handed to callers that already hold
// the product locks (see Service.WithStockLock).
type Stock interface {
	GetByID(ctx context.Context, id uint) (*Product, error)
	ReduceStock(ctx context.Context, id uint, qty int) (int, error)
	IncreaseStock(ctx context.Context, id uint, qty int) (int, error)
}

type Service interface {
	Create(ctx context.Context, input NewProductInput) (*Product, error)
	Update(ctx context.Context, id uint, input UpdateProductInput) (*Product, error)
	Delete(ctx context.Context, id uint) error
	GetByID(ctx context.Context, id uint) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Search(ctx context.Context, keyword string) ([]*Product, error)

	ReduceStock(ctx context.Context, id uint, qty int) error
	IncreaseStock(ctx context.Context, id uint, qty int) error

	// WithStockLock runs fn while holding the locks of every id in ids.
	WithStockLock(ctx context.Context, ids []uint, fn func(Stock) error) error
}

type service struct {
	repo   Repository
	locker *Locker
}

func NewService(repo Repository, locker *Locker) Service {
	if locker == nil {
		locker = NewLocker()
	}
	return &service{repo: repo, locker: locker}
}

func (s *service) Create(ctx context.Context, input NewProductInput) (*Product, error) {
	input.Name = strings.TrimSpace(input.Name)

	if input.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidProduct)
	}
	if input.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}
	if input.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}

	return s.repo.Create(ctx, input)
}

func (s *service) Update(ctx context.Context, id uint, input UpdateProductInput) (*Product, error) {
	if input.IsEmpty() {
		return nil, ErrNoFieldsToUpdate
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidProduct)
	}
	if input.Price != nil && input.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}
	if input.Stock != nil && *input.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}

	// A stock overwrite must not interleave with a reservation on the same product.
	if input.Stock != nil {
		unlock, err := s.locker.Lock(ctx, id)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	p, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}

	logger.FromCtx(ctx).Info("product updated",
		zap.String("layer", "service"),
		zap.Uint("product_id", id),
	)
	return p, nil
}

func (s *service) Delete(ctx context.Context, id uint) error {
	unlock, err := s.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	logger.FromCtx(ctx).Info("product deleted",
		zap.String("layer", "service"),
		zap.Uint("product_id", id),
	)
	return nil
}

func (s *service) GetByID(ctx context.Context, id uint) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context) ([]*Product, error) {
	return s.repo.List(ctx)
}

func (s *service) Search(ctx context.Context, keyword string) ([]*Product, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.repo.List(ctx)
	}
	return s.repo.Search(ctx, keyword)
}

func (s *service) ReduceStock(ctx context.Context, id uint, qty int) error {
	return s.WithStockLock(ctx, []uint{id}, func(st Stock) error {
		_, err := st.ReduceStock(ctx, id, qty)
		return err
	})
}

func (s *service) IncreaseStock(ctx context.Context, id uint, qty int) error {
	return s.WithStockLock(ctx, []uint{id}, func(st Stock) error {
		_, err := st.IncreaseStock(ctx, id, qty)
		return err
	})
}

func (s *service) WithStockLock(ctx context.Context, ids []uint, fn func(Stock) error) error {
	start := time.Now()

	unlock, err := s.locker.Lock(ctx, ids...)
	if err != nil {
		return err
	}
	defer unlock()

	logger.FromCtx(ctx).Debug("stock locks acquired",
		zap.String("layer", "service"),
		zap.Int("products", len(ids)),
		zap.Duration("wait", time.Since(start)),
	)

	return fn(&stockView{repo: s.repo})
}

// stockView validates quantities before touching the repository; it takes no locks.
type stockView struct {
	repo Repository
}

func (v *stockView) GetByID(ctx context.Context, id uint) (*Product, error) {
	return v.repo.GetByID(ctx, id)
}

func (v *stockView) ReduceStock(ctx context.Context, id uint, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	remaining, err := v.repo.ReduceStock(ctx, id, qty)
	if err != nil {
		return remaining, err
	}

	logger.FromCtx(ctx).Debug("stock reduced",
		zap.Uint("product_id", id),
		zap.Int("qty", qty),
		zap.Int("remaining", remaining),
	)
	return remaining, nil
}

func (v *stockView) IncreaseStock(ctx context.Context, id uint, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	stock, err := v.repo.IncreaseStock(ctx, id, qty)
	if err != nil {
		return 0, err
	}

	logger.FromCtx(ctx).Debug("stock increased",
		zap.Uint("product_id", id),
		zap.Int("qty", qty),
		zap.Int("stock", stock),
	)
	return stock, nil
}
