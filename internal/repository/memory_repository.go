package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
)

// MemoryRepository keeps carts in process memory. Writers for the same user are
// serialized by a per-user lock; different users never wait on each other.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart // userID -> cart

	locksMu sync.Mutex
	locks   map[string]*userLock

	now func() time.Time
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		carts: make(map[string]*domain.Cart),
		locks: make(map[string]*userLock),
		now:   time.Now,
	}
}

// lockUser blocks until the caller owns userID and returns the release func.
// Lock entries are reference counted so the table does not grow with every user ever seen.
func (r *MemoryRepository) lockUser(userID string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &userLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, userID)
		}
		r.locksMu.Unlock()
	}
}

func (r *MemoryRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryRepository) Update(ctx context.Context, userID string, mode Mode, fn MutateFunc) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.RLock()
	current, exists := r.carts[userID]
	r.mu.RUnlock()

	now := r.now()
	var working *domain.Cart
	switch {
	case exists:
		working = current.Clone()
	case mode == CreateIfAbsent:
		working = domain.NewCart(userID, now)
		working.ID = uuid.NewString()
	default:
		return nil, domain.ErrCartNotFound
	}

	if err := fn(working); err != nil {
		return nil, err
	}

	// a caller that gave up must not see its change applied later
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working.Version++
	working.UpdatedAt = now

	r.mu.Lock()
	r.carts[userID] = working
	r.mu.Unlock()

	return working.Clone(), nil
}

func (r *MemoryRepository) DeleteCart(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := r.lockUser(userID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[userID]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.carts, userID)
	return nil
}

func (r *MemoryRepository) Close(context.Context) error {
	return nil
}
