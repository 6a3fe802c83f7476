// Package pricing derives a cart summary from its line items.
package pricing

import (
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Policy holds the delivery-charge configuration. Orders whose subtotal reaches
// FreeDeliveryThreshold ship for free, everything else pays DeliveryFee.
type Policy struct {
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

func (p Policy) Validate() error {
	if p.FreeDeliveryThreshold.IsNegative() {
		return errors.New("free delivery threshold must not be negative")
	}
	if p.DeliveryFee.IsNegative() {
		return errors.New("delivery fee must not be negative")
	}
	return nil
}

type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Summarize is a pure function of items.
func (e *Engine) Summarize(items []domain.LineItem) domain.Summary {
	summary := domain.Summary{
		TotalItems:      len(items),
		Subtotal:        decimal.Zero,
		Discount:        decimal.Zero,
		DeliveryCharges: decimal.Zero,
		Total:           decimal.Zero,
	}

	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		summary.TotalQuantity += item.Quantity
		summary.Subtotal = summary.Subtotal.Add(item.Price.Mul(qty))
		summary.Discount = summary.Discount.Add(effectiveOriginal(item).Sub(item.Price).Mul(qty))
	}

	summary.DeliveryCharges = e.deliveryCharges(len(items), summary.Subtotal)

	total := summary.Subtotal.Sub(summary.Discount).Add(summary.DeliveryCharges)
	if total.IsNegative() {
		total = decimal.Zero
	}
	summary.Total = total
	return summary
}

func (e *Engine) deliveryCharges(lines int, subtotal decimal.Decimal) decimal.Decimal {
	if lines == 0 {
		return decimal.Zero
	}
	if subtotal.GreaterThanOrEqual(e.policy.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	if e.policy.DeliveryFee.IsNegative() {
		return decimal.Zero
	}
	return e.policy.DeliveryFee
}

// effectiveOriginal is the original price only when it is a real markdown.
func effectiveOriginal(item domain.LineItem) decimal.Decimal {
	if item.OriginalPrice.Valid && item.OriginalPrice.Decimal.GreaterThan(item.Price) {
		return item.OriginalPrice.Decimal
	}
	return item.Price
}
