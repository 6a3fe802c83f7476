package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxQuantity bounds a single line so quantities survive every wire format.
	MaxQuantity = math.MaxInt32

	// Prices are whole cents below 10^12.
	priceScale        = 2
	maxPriceDigits    = 12
	maxPriceFractions = 20
)

// LineItem is one product in a cart. Everything except Quantity is a snapshot
// taken when the product was first added and is never re-synced from the catalog.
type LineItem struct {
	ProductID     string              `json:"productId"`
	Title         string              `json:"title"`
	Category      string              `json:"category"`
	Images        []string            `json:"images"`
	Price         decimal.Decimal     `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice"`
	Quantity      int                 `json:"quantity"`
	AddedAt       time.Time           `json:"addedAt"`
}

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Items     []LineItem `json:"items"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Summary is derived from a cart's items on every read and is never stored.
type Summary struct {
	TotalItems      int             `json:"totalItems"`
	TotalQuantity   int             `json:"totalQuantity"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Discount        decimal.Decimal `json:"discount"`
	DeliveryCharges decimal.Decimal `json:"deliveryCharges"`
	Total           decimal.Decimal `json:"total"`
}

// CartView is what every cart operation hands back to callers.
type CartView struct {
	UserID  string
	Items   []LineItem
	Summary Summary
}

// NewCart returns the Present([]) state for userID.
func NewCart(userID string, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     []LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]LineItem, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = item
		if item.Images != nil {
			out.Items[i].Images = append([]string(nil), item.Images...)
		}
	}
	return &out
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Find returns the line item for productID.
func (c *Cart) Find(productID string) (LineItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

// AddItem merges item into the cart. When the product is already present only
// the quantity grows; the first snapshot is kept.
func (c *Cart) AddItem(item LineItem, quantity int, now time.Time) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	if i := c.indexOf(item.ProductID); i >= 0 {
		if c.Items[i].Quantity > MaxQuantity-quantity {
			return fmt.Errorf("%w: line %s would exceed %d", ErrInvalidQuantity, item.ProductID, MaxQuantity)
		}
		c.Items[i].Quantity += quantity
		c.UpdatedAt = now
		return nil
	}

	item.Quantity = quantity
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = now
	return nil
}

// SetQuantity replaces the quantity of an existing line item.
func (c *Cart) SetQuantity(productID string, quantity int, now time.Time) error {
	if quantity < 1 || quantity > MaxQuantity {
		return ErrInvalidQuantity
	}
	i := c.indexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items[i].Quantity = quantity
	c.UpdatedAt = now
	return nil
}

// RemoveItem drops productID from the cart. It reports whether anything was removed;
// removing an absent product is not an error.
func (c *Cart) RemoveItem(productID string, now time.Time) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	c.UpdatedAt = now
	return true
}

// Validate checks the snapshot fields a caller supplies on add.
func (i LineItem) Validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return fmt.Errorf("%w: productId is required", ErrInvalidItem)
	}
	if err := validPrice(i.Price); err != nil {
		return fmt.Errorf("%w: price %v", ErrInvalidItem, err)
	}
	if i.OriginalPrice.Valid {
		if err := validPrice(i.OriginalPrice.Decimal); err != nil {
			return fmt.Errorf("%w: originalPrice %v", ErrInvalidItem, err)
		}
	}
	return nil
}

// validPrice accepts non-negative amounts in whole cents below 10^12. The
// exponent is checked before any rescaling so huge exponents stay cheap.
func validPrice(p decimal.Decimal) error {
	if p.IsNegative() {
		return errors.New("must not be negative")
	}
	if p.IsZero() {
		return nil
	}
	if int64(p.NumDigits())+int64(p.Exponent()) > maxPriceDigits {
		return fmt.Errorf("must be below 10^%d", maxPriceDigits)
	}
	if p.Exponent() >= -priceScale {
		return nil
	}
	if p.Exponent() < -maxPriceFractions || !p.Equal(p.Truncate(priceScale)) {
		return fmt.Errorf("must have at most %d decimal places", priceScale)
	}
	return nil
}
