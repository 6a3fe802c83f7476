// Package cartapi is the gRPC contract of the cart service: request and
// response messages, the service descriptor and a typed client.
//
// Messages travel as JSON (see Codec). Money amounts are decimal strings with
// two fractional digits.
package cartapi

type LineItem struct {
	ProductID     string   `json:"product_id"`
	Title         string   `json:"title,omitempty"`
	Category      string   `json:"category,omitempty"`
	Images        []string `json:"images,omitempty"`
	Price         string   `json:"price"`
	OriginalPrice string   `json:"original_price,omitempty"`
	Quantity      int32    `json:"quantity"`
	AddedAt       string   `json:"added_at,omitempty"`
}

type Summary struct {
	TotalItems      int32  `json:"total_items"`
	TotalQuantity   int64  `json:"total_quantity"`
	Subtotal        string `json:"subtotal"`
	Discount        string `json:"discount"`
	DeliveryCharges string `json:"delivery_charges"`
	Total           string `json:"total"`
}

type Cart struct {
	UserID  string      `json:"user_id"`
	Items   []*LineItem `json:"items"`
	Summary *Summary    `json:"summary"`
}

type CartResponse struct {
	Cart *Cart `json:"cart"`
}

type GetCartRequest struct {
	UserID string `json:"user_id"`
}

type AddItemRequest struct {
	UserID   string    `json:"user_id"`
	Item     *LineItem `json:"item"`
	Quantity int32     `json:"quantity"`
}

type UpdateQuantityRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type RemoveItemRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

type ClearCartRequest struct {
	UserID string `json:"user_id"`
}
