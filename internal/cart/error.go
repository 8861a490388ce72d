package cart

import "errors"

var (
	// -- Validation & Input --
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")

	// -- Resource State --
	ErrProductNotFound = errors.New("product not found")
	ErrOutOfStock      = errors.New("product is out of stock")
	ErrNotInCart       = errors.New("product is not in the cart")
)
