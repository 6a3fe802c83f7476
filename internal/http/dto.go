package http

import (
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type AddItemRequestDTO struct {
	ProductID     string              `json:"productId"`
	Title         string              `json:"title"`
	Category      string              `json:"category"`
	Images        []string            `json:"images"`
	Price         decimal.Decimal     `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice"`
	Quantity      int                 `json:"quantity"`
}

func (r AddItemRequestDTO) lineItem() domain.LineItem {
	return domain.LineItem{
		ProductID:     r.ProductID,
		Title:         r.Title,
		Category:      r.Category,
		Images:        r.Images,
		Price:         r.Price,
		OriginalPrice: r.OriginalPrice,
	}
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type LineItemDTO struct {
	ProductID     string       `json:"productId"`
	Title         string       `json:"title"`
	Category      string       `json:"category"`
	Images        []string     `json:"images"`
	Price         json.Number  `json:"price"`
	OriginalPrice *json.Number `json:"originalPrice,omitempty"`
	Quantity      int          `json:"quantity"`
	AddedAt       time.Time    `json:"addedAt"`
}

type SummaryDTO struct {
	TotalItems      int         `json:"totalItems"`
	TotalQuantity   int         `json:"totalQuantity"`
	Subtotal        json.Number `json:"subtotal"`
	Discount        json.Number `json:"discount"`
	DeliveryCharges json.Number `json:"deliveryCharges"`
	Total           json.Number `json:"total"`
}

type CartResponseDTO struct {
	UserID  string        `json:"userId"`
	Items   []LineItemDTO `json:"items"`
	Summary SummaryDTO    `json:"summary"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func toCartResponse(view *domain.CartView) CartResponseDTO {
	items := make([]LineItemDTO, 0, len(view.Items))
	for _, it := range view.Items {
		dto := LineItemDTO{
			ProductID: it.ProductID,
			Title:     it.Title,
			Category:  it.Category,
			Images:    it.Images,
			Price:     money(it.Price),
			Quantity:  it.Quantity,
			AddedAt:   it.AddedAt,
		}
		if dto.Images == nil {
			dto.Images = []string{}
		}
		if it.OriginalPrice.Valid {
			op := money(it.OriginalPrice.Decimal)
			dto.OriginalPrice = &op
		}
		items = append(items, dto)
	}

	s := view.Summary
	return CartResponseDTO{
		UserID: view.UserID,
		Items:  items,
		Summary: SummaryDTO{
			TotalItems:      s.TotalItems,
			TotalQuantity:   s.TotalQuantity,
			Subtotal:        money(s.Subtotal),
			Discount:        money(s.Discount),
			DeliveryCharges: money(s.DeliveryCharges),
			Total:           money(s.Total),
		},
	}
}
