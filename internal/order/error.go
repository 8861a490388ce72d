package order

import "errors"

var (
	// -- Resource State --
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderCancelled = errors.New("order is cancelled and cannot change status")
	ErrStatusConflict = errors.New("order status changed concurrently")

	// -- Validation & Input --
	ErrInvalidStatus = errors.New("invalid order status")
	ErrEmptyOrder    = errors.New("order has no items")
)
