package repository

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Mode tells Update what to do when the user has no cart yet.
type Mode int

const (
	// RequireExisting fails with domain.ErrCartNotFound on an absent cart.
	RequireExisting Mode = iota
	// CreateIfAbsent starts from an empty cart when none exists.
	CreateIfAbsent
)

// MutateFunc changes a private copy of the cart. Returning an error aborts the
// update and nothing is written.
type MutateFunc func(cart *domain.Cart) error

// CartRepository defines the interface for cart data operations.
// Update is a single atomic read-modify-write per user: concurrent updates for
// the same user are serialized and never lose each other's changes.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	Update(ctx context.Context, userID string, mode Mode, fn MutateFunc) (*domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
	Close(ctx context.Context) error
}
