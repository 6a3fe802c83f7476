package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
}

// BreakerRepository fails fast with domain.ErrDependencyUnavailable while the
// underlying store keeps failing. Domain outcomes never count as failures.
type BreakerRepository struct {
	next CartRepository
	cb   *gobreaker.CircuitBreaker[*domain.Cart]
}

func NewBreakerRepository(next CartRepository, settings BreakerSettings, logger *zap.Logger) *BreakerRepository {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[*domain.Cart](gobreaker.Settings{
		Name:        "cart-store",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: isStoreHealthy,
	})
	return &BreakerRepository{next: next, cb: cb}
}

func isStoreHealthy(err error) bool {
	return err == nil ||
		domain.IsClientError(err) ||
		errors.Is(err, domain.ErrConcurrentModification) ||
		errors.Is(err, context.Canceled)
}

func (b *BreakerRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := b.cb.Execute(func() (*domain.Cart, error) {
		return b.next.GetCart(ctx, userID)
	})
	return cart, breakerError(err)
}

func (b *BreakerRepository) Update(ctx context.Context, userID string, mode Mode, fn MutateFunc) (*domain.Cart, error) {
	cart, err := b.cb.Execute(func() (*domain.Cart, error) {
		return b.next.Update(ctx, userID, mode, fn)
	})
	return cart, breakerError(err)
}

func (b *BreakerRepository) DeleteCart(ctx context.Context, userID string) error {
	_, err := b.cb.Execute(func() (*domain.Cart, error) {
		return nil, b.next.DeleteCart(ctx, userID)
	})
	return breakerError(err)
}

func (b *BreakerRepository) Close(ctx context.Context) error {
	return b.next.Close(ctx)
}

// State reports the current breaker state.
func (b *BreakerRepository) State() gobreaker.State {
	return b.cb.State()
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	return err
}
