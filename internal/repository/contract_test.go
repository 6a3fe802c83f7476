package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract checks the behaviour every CartRepository must share.
func runContract(t *testing.T, repo CartRepository) {
	t.Run("GetCart_NotFound", func(t *testing.T) {
		cart, err := repo.GetCart(context.Background(), "nonexistent")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)
		assert.Nil(t, cart)
	})

	t.Run("Update_RequireExisting_Absent", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.Update(ctx, "absent-user", RequireExisting, func(*domain.Cart) error {
			t.Fatal("mutation must not run for an absent cart")
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrCartNotFound)

		_, err = repo.GetCart(ctx, "absent-user")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)
	})

	t.Run("Update_CreateIfAbsent", func(t *testing.T) {
		ctx := context.Background()
		cart, err := repo.Update(ctx, "creator", CreateIfAbsent, addFn(snapshot("p1", "20", "25"), 2))
		require.NoError(t, err)
		assert.NotEmpty(t, cart.ID)
		assert.Equal(t, "creator", cart.UserID)
		assert.Equal(t, int64(1), cart.Version)

		stored, err := repo.GetCart(ctx, "creator")
		require.NoError(t, err)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, cart.ID, stored.ID)
		assert.Equal(t, 2, stored.Items[0].Quantity)
		assert.True(t, stored.Items[0].Price.Equal(decimal.NewFromInt(20)))
		require.True(t, stored.Items[0].OriginalPrice.Valid)
		assert.True(t, stored.Items[0].OriginalPrice.Decimal.Equal(decimal.NewFromInt(25)))
		assert.Equal(t, []string{"https://img.example/p1.png"}, stored.Items[0].Images)
	})

	t.Run("Update_MergesAndBumpsVersion", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.Update(ctx, "merger", CreateIfAbsent, addFn(snapshot("p1", "10", ""), 1))
		require.NoError(t, err)
		cart, err := repo.Update(ctx, "merger", CreateIfAbsent, addFn(snapshot("p1", "8", ""), 2))
		require.NoError(t, err)

		assert.Equal(t, int64(2), cart.Version)
		require.Len(t, cart.Items, 1)
		assert.Equal(t, 3, cart.Items[0].Quantity)
		assert.True(t, cart.Items[0].Price.Equal(decimal.NewFromInt(10)))
		assert.False(t, cart.Items[0].OriginalPrice.Valid)
	})

	t.Run("Update_MutationErrorWritesNothing", func(t *testing.T) {
		ctx := context.Background()
		boom := errors.New("boom")

		_, err := repo.Update(ctx, "aborted-new", CreateIfAbsent, func(*domain.Cart) error { return boom })
		assert.ErrorIs(t, err, boom)
		_, err = repo.GetCart(ctx, "aborted-new")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)

		_, err = repo.Update(ctx, "aborted", CreateIfAbsent, addFn(snapshot("p1", "10", ""), 4))
		require.NoError(t, err)
		_, err = repo.Update(ctx, "aborted", RequireExisting, func(c *domain.Cart) error {
			c.Items[0].Quantity = 99
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := repo.GetCart(ctx, "aborted")
		require.NoError(t, err)
		assert.Equal(t, 4, stored.Items[0].Quantity)
		assert.Equal(t, int64(1), stored.Version)
	})

	t.Run("EmptyCartStaysPresent", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.Update(ctx, "emptied", CreateIfAbsent, addFn(snapshot("p1", "10", ""), 1))
		require.NoError(t, err)
		_, err = repo.Update(ctx, "emptied", RequireExisting, func(c *domain.Cart) error {
			c.RemoveItem("p1", time.Now())
			return nil
		})
		require.NoError(t, err)

		stored, err := repo.GetCart(ctx, "emptied")
		require.NoError(t, err)
		assert.NotNil(t, stored.Items)
		assert.Empty(t, stored.Items)
	})

	t.Run("DeleteCart", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.Update(ctx, "deleted", CreateIfAbsent, addFn(snapshot("p1", "10", ""), 1))
		require.NoError(t, err)

		require.NoError(t, repo.DeleteCart(ctx, "deleted"))
		_, err = repo.GetCart(ctx, "deleted")
		assert.ErrorIs(t, err, domain.ErrCartNotFound)
		assert.ErrorIs(t, repo.DeleteCart(ctx, "deleted"), domain.ErrCartNotFound)
	})

	t.Run("ConcurrentAddsAllLand", func(t *testing.T) {
		ctx := context.Background()
		const writers = 10

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Update(ctx, "contended", CreateIfAbsent, addFn(snapshot("p1", "1.10", ""), 1))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		stored, err := repo.GetCart(ctx, "contended")
		require.NoError(t, err)
		require.Len(t, stored.Items, 1)
		assert.Equal(t, writers, stored.Items[0].Quantity)
		assert.Equal(t, int64(writers), stored.Version)
	})

	t.Run("UsersAreIndependent", func(t *testing.T) {
		ctx := context.Background()
		_, err := repo.Update(ctx, "alice", CreateIfAbsent, addFn(snapshot("p1", "10", ""), 1))
		require.NoError(t, err)
		_, err = repo.Update(ctx, "bob", CreateIfAbsent, addFn(snapshot("p2", "10", ""), 5))
		require.NoError(t, err)

		alice, err := repo.GetCart(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, alice.Items, 1)
		assert.Equal(t, "p1", alice.Items[0].ProductID)
	})
}

func snapshot(id, price, original string) domain.LineItem {
	item := domain.LineItem{
		ProductID: id,
		Title:     "Product " + id,
		Category:  "misc",
		Images:    []string{"https://img.example/" + id + ".png"},
		Price:     decimal.RequireFromString(price),
	}
	if original != "" {
		item.OriginalPrice = decimal.NewNullDecimal(decimal.RequireFromString(original))
	}
	return item
}

func addFn(item domain.LineItem, qty int) MutateFunc {
	return func(c *domain.Cart) error {
		return c.AddItem(item, qty, time.Now())
	}
}
