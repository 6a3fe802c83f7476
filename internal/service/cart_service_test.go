package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockCache struct {
	m       sync.RWMutex
	carts   map[string]*domain.Cart
	err     error
	sets    int
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[string]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (m *mockCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.sets++
	if m.err != nil {
		return m.err
	}
	if current, ok := m.carts[userID]; ok && current.Version >= cart.Version {
		return nil
	}
	m.carts[userID] = cart.Clone()
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.carts, userID)
	return m.err
}

func (m *mockCache) getCart(userID string) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[userID]
}

func (m *mockCache) counts() (int, int) {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.sets, m.deletes
}

// brokenRepository fails every call with err.
type brokenRepository struct {
	err   error
	calls int
	m     sync.Mutex
}

func (b *brokenRepository) fail() error {
	b.m.Lock()
	defer b.m.Unlock()
	b.calls++
	return b.err
}

func (b *brokenRepository) GetCart(context.Context, string) (*domain.Cart, error) {
	return nil, b.fail()
}

func (b *brokenRepository) Update(context.Context, string, repository.Mode, repository.MutateFunc) (*domain.Cart, error) {
	return nil, b.fail()
}

func (b *brokenRepository) DeleteCart(context.Context, string) error { return b.fail() }

func (b *brokenRepository) Close(context.Context) error { return nil }

func testPolicy() pricing.Policy {
	return pricing.Policy{
		FreeDeliveryThreshold: decimal.NewFromInt(50),
		DeliveryFee:           decimal.RequireFromString("4.99"),
	}
}

func newTestService(t *testing.T) (*CartService, *repository.MemoryRepository, *mockCache) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	c := newMockCache()
	return NewCartService(repo, c, pricing.NewEngine(testPolicy()), zap.NewNop()), repo, c
}

func product(id, price string) domain.LineItem {
	return domain.LineItem{
		ProductID: id,
		Title:     "Product " + id,
		Category:  "misc",
		Images:    []string{"https://img.example/" + id + ".png"},
		Price:     decimal.RequireFromString(price),
	}
}

func discounted(id, price, original string) domain.LineItem {
	item := product(id, price)
	item.OriginalPrice = decimal.NewNullDecimal(decimal.RequireFromString(original))
	return item
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// assertSummaryMatches checks the returned summary against a fresh derivation.
func assertSummaryMatches(t *testing.T, view *domain.CartView) {
	t.Helper()
	want := pricing.NewEngine(testPolicy()).Summarize(view.Items)
	assert.Equal(t, want.TotalItems, view.Summary.TotalItems)
	assert.Equal(t, want.TotalQuantity, view.Summary.TotalQuantity)
	assert.True(t, want.Subtotal.Equal(view.Summary.Subtotal), "subtotal %s != %s", want.Subtotal, view.Summary.Subtotal)
	assert.True(t, want.Discount.Equal(view.Summary.Discount))
	assert.True(t, want.DeliveryCharges.Equal(view.Summary.DeliveryCharges))
	assert.True(t, want.Total.Equal(view.Summary.Total))
}

func TestGetCart_NoCartReturnsEmptyView(t *testing.T) {
	sut, _, c := newTestService(t)

	view, err := sut.GetCart(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", view.UserID)
	assert.NotNil(t, view.Items)
	assert.Empty(t, view.Items)
	assert.Equal(t, 0, view.Summary.TotalItems)
	assert.Equal(t, 0, view.Summary.TotalQuantity)
	assert.True(t, view.Summary.Subtotal.IsZero())
	assert.True(t, view.Summary.DeliveryCharges.IsZero())
	assert.True(t, view.Summary.Total.IsZero())
	assert.Nil(t, c.getCart("123"), "absent carts are not cached")
}

func TestGetCart_FillsCacheOnMiss(t *testing.T) {
	sut, repo, c := newTestService(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, "123", repository.CreateIfAbsent, func(cart *domain.Cart) error {
		return cart.AddItem(product("p1", "10"), 3, time.Now())
	})
	require.NoError(t, err)

	view, err := sut.GetCart(ctx, "123")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)

	require.Eventually(t, func() bool {
		return c.getCart("123") != nil
	}, time.Second, 10*time.Millisecond, "cart was not set in cache")
}

func TestGetCart_CacheHit(t *testing.T) {
	repo := &brokenRepository{err: errors.New("repo must not be called")}
	c := newMockCache()
	cart := domain.NewCart("123", time.Now())
	require.NoError(t, cart.AddItem(product("p1", "2.50"), 4, time.Now()))
	c.carts["123"] = cart

	sut := NewCartService(repo, c, pricing.NewEngine(testPolicy()), zap.NewNop())
	view, err := sut.GetCart(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.True(t, view.Summary.Subtotal.Equal(dec("10")))
	assert.Equal(t, 0, repo.calls)
}

func TestGetCart_CacheErrorFallsBackToStore(t *testing.T) {
	sut, repo, c := newTestService(t)
	ctx := context.Background()
	_, err := repo.Update(ctx, "123", repository.CreateIfAbsent, func(cart *domain.Cart) error {
		return cart.AddItem(product("p1", "1"), 1, time.Now())
	})
	require.NoError(t, err)
	c.err = errors.New("redis down")

	view, err := sut.GetCart(ctx, "123")
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
}

func TestGetCart_StoreFailureIsDependencyUnavailable(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	repo := &brokenRepository{err: errors.New("connection refused")}
	sut := NewCartService(repo, newMockCache(), pricing.NewEngine(testPolicy()), zap.New(core))

	view, err := sut.GetCart(context.Background(), "123")
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.ErrorContains(t, err, "connection refused")
	assert.Nil(t, view, "no stale or empty cart on store failure")
	assert.Equal(t, 1, logs.FilterMessage("get cart failed").Len())
}

func TestGetCart_ConcurrentMissesShareOneStoreRead(t *testing.T) {
	sut, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := repo.Update(ctx, "123", repository.CreateIfAbsent, func(cart *domain.Cart) error {
		return cart.AddItem(product("p1", "1"), 1, time.Now())
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := sut.GetCart(ctx, "123")
			assert.NoError(t, err)
			assert.Len(t, view.Items, 1)
		}()
	}
	wg.Wait()
}

// gatedRepository holds GetCart until release is closed.
type gatedRepository struct {
	repository.CartRepository
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.CartRepository.GetCart(ctx, userID)
}

func TestGetCart_CanceledCallerDoesNotFailSharedRead(t *testing.T) {
	mem := repository.NewMemoryRepository()
	_, err := mem.Update(context.Background(), "123", repository.CreateIfAbsent, func(cart *domain.Cart) error {
		return cart.AddItem(product("p1", "1"), 1, time.Now())
	})
	require.NoError(t, err)

	repo := &gatedRepository{CartRepository: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
	sut := NewCartService(repo, nil, pricing.NewEngine(testPolicy()), zap.NewNop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := sut.GetCart(firstCtx, "123")
		firstErr <- err
	}()
	<-repo.entered

	type result struct {
		view *domain.CartView
		err  error
	}
	second := make(chan result, 1)
	go func() {
		view, err := sut.GetCart(context.Background(), "123")
		second <- result{view, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.view.Items, 1)
}

func TestAddItem_CreatesCartOnFirstAdd(t *testing.T) {
	sut, repo, c := newTestService(t)
	ctx := context.Background()

	view, err := sut.AddItem(ctx, "123", product("p1", "20"), 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "p1", view.Items[0].ProductID)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.False(t, view.Items[0].AddedAt.IsZero())
	assertSummaryMatches(t, view)

	stored, err := repo.GetCart(ctx, "123")
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)

	cached := c.getCart("123")
	require.NotNil(t, cached, "mutations write through to the cache")
	assert.Equal(t, stored.Version, cached.Version)
}

func TestAddItem_MergeKeepsFirstSnapshot(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()

	first := discounted("p1", "20", "25")
	first.Title = "Original title"
	_, err := sut.AddItem(ctx, "123", first, 1)
	require.NoError(t, err)

	second := product("p1", "99")
	second.Title = "Changed title"
	view, err := sut.AddItem(ctx, "123", second, 2)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.Equal(t, "Original title", view.Items[0].Title)
	assert.True(t, view.Items[0].Price.Equal(dec("20")))
	assert.True(t, view.Items[0].OriginalPrice.Valid)
	assertSummaryMatches(t, view)
}

func TestAddItem_AppendsInInsertionOrder(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := sut.AddItem(ctx, "123", product(id, "1"), 1)
		require.NoError(t, err)
	}
	view, err := sut.GetCart(ctx, "123")
	require.NoError(t, err)
	require.Len(t, view.Items, 3)
	assert.Equal(t, "c", view.Items[0].ProductID)
	assert.Equal(t, "a", view.Items[1].ProductID)
	assert.Equal(t, "b", view.Items[2].ProductID)
}

func TestAddItem_QuantityFloor(t *testing.T) {
	sut, repo, c := newTestService(t)
	ctx := context.Background()

	for _, qty := range []int{0, -1} {
		view, err := sut.AddItem(ctx, "123", product("p1", "1"), qty)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
		assert.Nil(t, view)
	}

	_, err := repo.GetCart(ctx, "123")
	assert.ErrorIs(t, err, domain.ErrCartNotFound, "rejected adds must not create a cart")
	sets, _ := c.counts()
	assert.Equal(t, 0, sets)
}

func TestAddItem_InvalidItem(t *testing.T) {
	sut, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "123", product("", "1"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidItem)

	_, err = sut.AddItem(ctx, "123", product("p1", "-1"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidItem)

	_, err = repo.GetCart(ctx, "123")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestAddItem_MergeOverflowIsRejected(t *testing.T) {
	sut, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "u1", product("p1", "1"), 2)
	require.NoError(t, err)

	view, err := sut.AddItem(ctx, "u1", product("p1", "1"), math.MaxInt)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Nil(t, view)

	view, err = sut.AddItem(ctx, "u1", product("p1", "1"), domain.MaxQuantity-1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	assert.Nil(t, view)

	stored, err := repo.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.Equal(t, int64(1), stored.Version, "rejected merges write nothing")
}

func TestAddItem_SubCentPriceIsRejected(t *testing.T) {
	sut, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "u1", product("p1", "0.335"), 3)
	assert.ErrorIs(t, err, domain.ErrInvalidItem)

	_, err = sut.AddItem(ctx, "u1", discounted("p1", "1", "1.255"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidItem)

	_, err = repo.GetCart(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestAddItem_HugePriceIsClientError(t *testing.T) {
	repo := &brokenRepository{err: errors.New("repo must not be called")}
	sut := NewCartService(repo, newMockCache(), pricing.NewEngine(testPolicy()), zap.NewNop())

	_, err := sut.AddItem(context.Background(), "u1", product("p1", "1e7000"), 1)
	assert.ErrorIs(t, err, domain.ErrInvalidItem)
	assert.NotErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.Equal(t, 0, repo.calls)
}

func TestAddItem_DoesNotShareCallerImages(t *testing.T) {
	sut, _, _ := newTestService(t)
	item := product("p1", "1")

	_, err := sut.AddItem(context.Background(), "123", item, 1)
	require.NoError(t, err)
	item.Images[0] = "mutated"

	view, err := sut.GetCart(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/p1.png", view.Items[0].Images[0])
}

func TestAddItem_StoreFailure(t *testing.T) {
	repo := &brokenRepository{err: errors.New("database error")}
	c := newMockCache()
	sut := NewCartService(repo, c, pricing.NewEngine(testPolicy()), zap.NewNop())

	_, err := sut.AddItem(context.Background(), "123", product("p1", "1"), 1)
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	require.ErrorContains(t, err, "database error")
	sets, _ := c.counts()
	assert.Equal(t, 0, sets)
}

func TestAddItem_CacheFailureInvalidates(t *testing.T) {
	sut, _, c := newTestService(t)
	c.err = errors.New("redis down")

	view, err := sut.AddItem(context.Background(), "123", product("p1", "1"), 1)
	require.NoError(t, err, "cache failures never fail a committed mutation")
	assert.Len(t, view.Items, 1)

	sets, deletes := c.counts()
	assert.Equal(t, 1, sets)
	assert.Equal(t, 1, deletes)
}

func TestUpdateQuantity_Success(t *testing.T) {
	sut, _, c := newTestService(t)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "123", product("p1", "20"), 2)
	require.NoError(t, err)

	view, err := sut.UpdateQuantity(ctx, "123", "p1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assertSummaryMatches(t, view)
	assert.Equal(t, 5, c.getCart("123").Items[0].Quantity)
}

func TestUpdateQuantity_AboveMaxIsRejected(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "u1", product("p1", "1"), 1)
	require.NoError(t, err)

	_, err = sut.UpdateQuantity(ctx, "u1", "p1", domain.MaxQuantity+1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	view, err := sut.UpdateQuantity(ctx, "u1", "p1", domain.MaxQuantity)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxQuantity, view.Items[0].Quantity)
	assertSummaryMatches(t, view)
}

func TestUpdateQuantity_Errors(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := sut.UpdateQuantity(ctx, "123", "p1", 2)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = sut.AddItem(ctx, "123", product("p1", "1"), 1)
	require.NoError(t, err)

	_, err = sut.UpdateQuantity(ctx, "123", "missing", 2)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	for _, qty := range []int{0, -1} {
		_, err = sut.UpdateQuantity(ctx, "123", "p1", qty)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	}

	view, err := sut.GetCart(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Items[0].Quantity, "failed updates leave the cart unchanged")
}

func TestRemoveItem_Success(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "123", product("p1", "1"), 1)
	require.NoError(t, err)
	_, err = sut.AddItem(ctx, "123", product("p2", "2"), 1)
	require.NoError(t, err)

	view, err := sut.RemoveItem(ctx, "123", "p1")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "p2", view.Items[0].ProductID)
	assertSummaryMatches(t, view)
}

func TestRemoveItem_Idempotent(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "123", product("p1", "1"), 1)
	require.NoError(t, err)

	first, err := sut.RemoveItem(ctx, "123", "p1")
	require.NoError(t, err)
	second, err := sut.RemoveItem(ctx, "123", "p1")
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Empty(t, second.Items)
	assert.True(t, second.Summary.DeliveryCharges.IsZero())
	assert.True(t, second.Summary.Total.IsZero())
}

func TestRemoveItem_LastItemLeavesEmptyCart(t *testing.T) {
	sut, repo, _ := newTestService(t)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "123", product("p1", "1"), 1)
	require.NoError(t, err)

	_, err = sut.RemoveItem(ctx, "123", "p1")
	require.NoError(t, err)

	stored, err := repo.GetCart(ctx, "123")
	require.NoError(t, err, "cart stays present after its last item is removed")
	assert.Empty(t, stored.Items)

	_, err = sut.UpdateQuantity(ctx, "123", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRemoveItem_NoCart(t *testing.T) {
	sut, _, _ := newTestService(t)
	_, err := sut.RemoveItem(context.Background(), "123", "p1")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestClearCart(t *testing.T) {
	sut, repo, c := newTestService(t)
	ctx := context.Background()
	_, err := sut.AddItem(ctx, "123", product("p1", "1"), 1)
	require.NoError(t, err)

	view, err := sut.ClearCart(ctx, "123")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Summary.Total.IsZero())
	assert.Nil(t, c.getCart("123"))

	_, err = repo.GetCart(ctx, "123")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = sut.ClearCart(ctx, "123")
	assert.NoError(t, err, "clearing an absent cart succeeds")
}

func TestClearCart_StoreFailure(t *testing.T) {
	repo := &brokenRepository{err: fmt.Errorf("database error")}
	sut := NewCartService(repo, newMockCache(), pricing.NewEngine(testPolicy()), zap.NewNop())

	_, err := sut.ClearCart(context.Background(), "123")
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}

func TestClassify_PassesThroughKnownOutcomes(t *testing.T) {
	for _, err := range []error{
		domain.ErrConcurrentModification,
		context.Canceled,
		fmt.Errorf("breaker open: %w", domain.ErrDependencyUnavailable),
	} {
		repo := &brokenRepository{err: err}
		sut := NewCartService(repo, nil, pricing.NewEngine(testPolicy()), nil)

		_, got := sut.UpdateQuantity(context.Background(), "123", "p1", 1)
		assert.ErrorIs(t, got, err)
		if !errors.Is(err, domain.ErrDependencyUnavailable) {
			assert.NotErrorIs(t, got, domain.ErrDependencyUnavailable)
		}
	}
}

func TestScenario_DiscountedPairPaysDelivery(t *testing.T) {
	sut, _, _ := newTestService(t)

	view, err := sut.AddItem(context.Background(), "u", discounted("A", "20", "25"), 2)
	require.NoError(t, err)

	s := view.Summary
	assert.Equal(t, 1, s.TotalItems)
	assert.Equal(t, 2, s.TotalQuantity)
	assert.True(t, s.Subtotal.Equal(dec("40")))
	assert.True(t, s.Discount.Equal(dec("10")))
	assert.True(t, s.DeliveryCharges.Equal(dec("4.99")))
	assert.True(t, s.Total.Equal(dec("34.99")))
}

func TestScenario_MergedAddCrossesFreeDeliveryThreshold(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := sut.AddItem(ctx, "u", discounted("A", "20", "25"), 2)
	require.NoError(t, err)
	view, err := sut.AddItem(ctx, "u", discounted("A", "20", "25"), 3)
	require.NoError(t, err)

	s := view.Summary
	assert.Equal(t, 5, s.TotalQuantity)
	assert.True(t, s.Subtotal.Equal(dec("100")))
	assert.True(t, s.Discount.Equal(dec("25")))
	assert.True(t, s.DeliveryCharges.IsZero())
	assert.True(t, s.Total.Equal(dec("75")))
}

func TestScenario_ZeroQuantityUpdateLeavesCartUnchanged(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()
	before, err := sut.AddItem(ctx, "u", product("A", "20"), 2)
	require.NoError(t, err)

	_, err = sut.UpdateQuantity(ctx, "u", "A", 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	after, err := sut.GetCart(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, before.Items[0].Quantity, after.Items[0].Quantity)
	assert.True(t, before.Summary.Total.Equal(after.Summary.Total))
}

func TestConcurrentAddsOfSameNewProduct(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()

	const workers = 2
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := sut.AddItem(ctx, "u", product("X", "3"), 1)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	view, err := sut.GetCart(ctx, "u")
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, workers, view.Items[0].Quantity)
}

func TestConcurrentMixedOperationsKeepSummaryConsistent(t *testing.T) {
	sut, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i%5)
			view, err := sut.AddItem(ctx, "u", product(id, "1.10"), 1)
			if assert.NoError(t, err) {
				assertSummaryMatches(t, view)
			}
		}(i)
	}
	wg.Wait()

	view, err := sut.GetCart(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 5, view.Summary.TotalItems)
	assert.Equal(t, 50, view.Summary.TotalQuantity)
	assert.True(t, view.Summary.Subtotal.Equal(dec("55")))
}
