package product

import "errors"

var (
	// -- Resource State --
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")

	// -- Validation & Input --
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrInvalidProduct   = errors.New("invalid product")
	ErrNoFieldsToUpdate = errors.New("no fields to update")
)
