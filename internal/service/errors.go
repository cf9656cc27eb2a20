package service

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrProductInactive    = errors.New("product is not available")
	ErrCartItemNotFound   = errors.New("cart item not found")
	ErrEmptyOrder         = errors.New("order has no items")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAccessDenied  = errors.New("access denied")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrAddressNotFound    = errors.New("address not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyReviewed    = errors.New("product already reviewed")
)

// InsufficientStockError carries the context clients need to render an
// actionable message.
type InsufficientStockError struct {
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}
