package domain

import "errors"

var (
	ErrInvalidQuantity        = errors.New("quantity must be at least 1")
	ErrInvalidItem            = errors.New("invalid line item")
	ErrCartNotFound           = errors.New("cart not found")
	ErrItemNotFound           = errors.New("item not found in cart")
	ErrDependencyUnavailable  = errors.New("cart storage unavailable")
	ErrConcurrentModification = errors.New("cart was modified concurrently")
)

// IsClientError reports whether err is an outcome caused by the request itself
// rather than by the infrastructure behind the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidItem) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrItemNotFound)
}
