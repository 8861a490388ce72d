package checkout

import (
	"errors"
	"fmt"

	"storefront/internal/product"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrReservationFailed = errors.New("stock reservation failed")
	ErrCommitFailed      = errors.New("order could not be saved")
)

// StockShortageError reports the first cart line the catalog cannot cover.
type StockShortageError struct {
	ProductID uint
	Name      string
	Requested int
	Available int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (product %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *StockShortageError) Unwrap() error {
	return product.ErrInsufficientStock
}
