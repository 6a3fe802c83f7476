package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	cacheWriteTimeout = time.Second
	sharedReadTimeout = 10 * time.Second
)

type CartService struct {
	repo   repository.CartRepository
	cache  cache.CartCache
	engine *pricing.Engine
	log    *zap.Logger
	sfg    singleflight.Group // Prevents cache stampede
	now    func() time.Time
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, engine *pricing.Engine, log *zap.Logger) *CartService {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		repo:   repo,
		cache:  c,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
}

// GetCart returns the user's cart. A user without a cart gets an empty view
// with a zero summary.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.CartView, error) {
	// Concurrent misses for the same user share one read. The read runs detached
	// from any single caller so one caller giving up does not fail the others.
	ch := s.sfg.DoChan(userID, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()

		cart, err := s.cache.Get(readCtx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx, s.log).Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		cart, err = s.repo.GetCart(readCtx, userID)
		if errors.Is(err, domain.ErrCartNotFound) {
			return (*domain.Cart)(nil), nil
		}
		if err != nil {
			return nil, err
		}

		go s.fillCache(userID, cart)
		return cart, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, s.classify(ctx, "get cart", userID, res.Err)
	}

	cart := res.Val.(*domain.Cart)
	if cart == nil {
		return s.emptyView(userID), nil
	}
	return s.view(cart), nil
}

// AddItem validates the request, then merges the item into the cart, creating
// the cart on first add.
func (s *CartService) AddItem(ctx context.Context, userID string, item domain.LineItem, quantity int) (*domain.CartView, error) {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return nil, domain.ErrInvalidQuantity
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.Images = append([]string(nil), item.Images...)
	item.Quantity = 0
	item.AddedAt = time.Time{}

	cart, err := s.repo.Update(ctx, userID, repository.CreateIfAbsent, func(c *domain.Cart) error {
		return c.AddItem(item, quantity, s.now())
	})
	if err != nil {
		return nil, s.classify(ctx, "add item", userID, err)
	}

	logger.FromContext(ctx, s.log).Info("item added",
		zap.String("user_id", userID),
		zap.String("product_id", item.ProductID),
		zap.Int("quantity", quantity),
		zap.Int64("version", cart.Version))
	s.writeThrough(ctx, userID, cart)
	return s.view(cart), nil
}

// UpdateQuantity sets the absolute quantity of a line item already in the cart.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 || quantity > domain.MaxQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	cart, err := s.repo.Update(ctx, userID, repository.RequireExisting, func(c *domain.Cart) error {
		return c.SetQuantity(productID, quantity, s.now())
	})
	if err != nil {
		return nil, s.classify(ctx, "update quantity", userID, err)
	}

	logger.FromContext(ctx, s.log).Info("quantity updated",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int64("version", cart.Version))
	s.writeThrough(ctx, userID, cart)
	return s.view(cart), nil
}

// RemoveItem drops a line item. Removing a product that is not in the cart
// succeeds and returns the cart unchanged.
func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) (*domain.CartView, error) {
	var removed bool
	cart, err := s.repo.Update(ctx, userID, repository.RequireExisting, func(c *domain.Cart) error {
		removed = c.RemoveItem(productID, s.now())
		return nil
	})
	if err != nil {
		return nil, s.classify(ctx, "remove item", userID, err)
	}

	logger.FromContext(ctx, s.log).Info("item removed",
		zap.String("user_id", userID),
		zap.String("product_id", productID),
		zap.Bool("removed", removed),
		zap.Int64("version", cart.Version))
	s.writeThrough(ctx, userID, cart)
	return s.view(cart), nil
}

// ClearCart deletes the cart. Clearing a user without a cart is a no-op.
func (s *CartService) ClearCart(ctx context.Context, userID string) (*domain.CartView, error) {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrCartNotFound) {
		return nil, s.classify(ctx, "clear cart", userID, err)
	}

	s.invalidateCache(userID)
	logger.FromContext(ctx, s.log).Info("cart cleared",
		zap.String("user_id", userID),
		zap.Bool("existed", err == nil))
	return s.emptyView(userID), nil
}

func (s *CartService) view(cart *domain.Cart) *domain.CartView {
	items := cart.Clone().Items
	return &domain.CartView{
		UserID:  cart.UserID,
		Items:   items,
		Summary: s.engine.Summarize(items),
	}
}

func (s *CartService) emptyView(userID string) *domain.CartView {
	return &domain.CartView{
		UserID:  userID,
		Items:   []domain.LineItem{},
		Summary: s.engine.Summarize(nil),
	}
}

// writeThrough stores the freshly committed cart. If that fails the cached
// copy is dropped instead so readers fall back to the store.
func (s *CartService) writeThrough(ctx context.Context, userID string, cart *domain.Cart) {
	setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()

	if err := s.cache.Set(setCtx, userID, cart); err != nil {
		logger.FromContext(ctx, s.log).Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
		s.invalidateCache(userID)
	}
}

func (s *CartService) fillCache(userID string, cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, userID, cart); err != nil {
		s.log.Warn("cache fill failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Error("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// classify passes domain outcomes and cancellations through and reports every
// other store failure as domain.ErrDependencyUnavailable.
func (s *CartService) classify(ctx context.Context, op, userID string, err error) error {
	switch {
	case domain.IsClientError(err),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrDependencyUnavailable):
		logger.FromContext(ctx, s.log).Warn(op+" failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	logger.FromContext(ctx, s.log).Error(op+" failed", zap.String("user_id", userID), zap.Error(err))
	return fmt.Errorf("%s: %w: %w", op, domain.ErrDependencyUnavailable, err)
}
