package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/cartapi"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const timeFormat string = "2006-01-02T15:04:05Z07:00"

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.CartView, error)
	AddItem(ctx context.Context, userID string, item domain.LineItem, quantity int) (*domain.CartView, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.CartView, error)
	ClearCart(ctx context.Context, userID string) (*domain.CartView, error)
}

type CartServiceServer struct {
	cartapi.UnimplementedCartServiceServer
	service CartService
}

func NewCartServiceServer(service CartService) *CartServiceServer {
	return &CartServiceServer{
		service: service,
	}
}

func convertCart(view *domain.CartView) *cartapi.Cart {
	cart := &cartapi.Cart{
		UserID: view.UserID,
		Items:  make([]*cartapi.LineItem, len(view.Items)),
		Summary: &cartapi.Summary{
			TotalItems:      int32(view.Summary.TotalItems),
			TotalQuantity:   int64(view.Summary.TotalQuantity),
			Subtotal:        view.Summary.Subtotal.StringFixed(2),
			Discount:        view.Summary.Discount.StringFixed(2),
			DeliveryCharges: view.Summary.DeliveryCharges.StringFixed(2),
			Total:           view.Summary.Total.StringFixed(2),
		},
	}

	for i, item := range view.Items {
		cart.Items[i] = &cartapi.LineItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			Category:  item.Category,
			Images:    item.Images,
			Price:     item.Price.StringFixed(2),
			Quantity:  int32(item.Quantity),
			AddedAt:   item.AddedAt.Format(timeFormat),
		}
		if item.OriginalPrice.Valid {
			cart.Items[i].OriginalPrice = item.OriginalPrice.Decimal.StringFixed(2)
		}
	}

	return cart
}

func convertItem(in *cartapi.LineItem) (domain.LineItem, error) {
	if in == nil {
		return domain.LineItem{}, status.Error(codes.InvalidArgument, "item is required")
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil {
		return domain.LineItem{}, status.Errorf(codes.InvalidArgument, "invalid price %q", in.Price)
	}

	item := domain.LineItem{
		ProductID: in.ProductID,
		Title:     in.Title,
		Category:  in.Category,
		Images:    in.Images,
		Price:     price,
	}
	if in.OriginalPrice != "" {
		original, err := decimal.NewFromString(in.OriginalPrice)
		if err != nil {
			return domain.LineItem{}, status.Errorf(codes.InvalidArgument, "invalid original_price %q", in.OriginalPrice)
		}
		item.OriginalPrice = decimal.NewNullDecimal(original)
	}
	return item, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return status.Error(codes.InvalidArgument, "user_id is required")
	}
	return nil
}

// toStatus maps service errors to gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	message := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidItem):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrCartNotFound), errors.Is(err, domain.ErrItemNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrConcurrentModification):
		code = codes.Aborted
	case errors.Is(err, domain.ErrDependencyUnavailable):
		code = codes.Unavailable
		message = domain.ErrDependencyUnavailable.Error()
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
		message = "internal error"
	}
	return status.Error(code, message)
}

func respond(view *domain.CartView, err error) (*cartapi.CartResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &cartapi.CartResponse{
		Cart: convertCart(view),
	}, nil
}

func (s *CartServiceServer) GetCart(
	ctx context.Context,
	req *cartapi.GetCartRequest) (*cartapi.CartResponse, error) {

	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}

	return respond(s.service.GetCart(ctx, req.UserID))
}

func (s *CartServiceServer) AddItem(
	ctx context.Context,
	req *cartapi.AddItemRequest) (*cartapi.CartResponse, error) {

	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}
	item, err := convertItem(req.Item)
	if err != nil {
		return nil, err
	}

	return respond(s.service.AddItem(ctx, req.UserID, item, int(req.Quantity)))
}

func (s *CartServiceServer) UpdateQuantity(
	ctx context.Context,
	req *cartapi.UpdateQuantityRequest) (*cartapi.CartResponse, error) {

	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}

	return respond(s.service.UpdateQuantity(ctx, req.UserID, req.ProductID, int(req.Quantity)))
}

func (s *CartServiceServer) RemoveItem(
	ctx context.Context,
	req *cartapi.RemoveItemRequest) (*cartapi.CartResponse, error) {

	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}

	return respond(s.service.RemoveItem(ctx, req.UserID, req.ProductID))
}

func (s *CartServiceServer) ClearCart(
	ctx context.Context,
	req *cartapi.ClearCartRequest) (*cartapi.CartResponse, error) {

	if err := requireUser(req.UserID); err != nil {
		return nil, err
	}

	return respond(s.service.ClearCart(ctx, req.UserID))
}

var _ cartapi.CartServiceServer = (*CartServiceServer)(nil)
