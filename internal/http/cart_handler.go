package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// statusClientClosedRequest is the nginx convention for a caller that went away.
const statusClientClosedRequest = 499

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.CartView, error)
	AddItem(ctx context.Context, userID string, item domain.LineItem, quantity int) (*domain.CartView, error)
	UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (*domain.CartView, error)
	ClearCart(ctx context.Context, userID string) (*domain.CartView, error)
}

type CartHandler struct {
	service CartService
	log     *zap.Logger
}

func NewCartHandler(service CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{
		service: service,
		log:     log,
	}
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCart(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.addItem(http.StatusCreated)(w, r)
}

// addItem is shared by the v1 route, which answers 201, and the legacy
// route, which answers 200.
func (h *CartHandler) addItem(successStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddItemRequestDTO
		if !decodeJSON(w, r, &req) {
			return
		}

		view, err := h.service.AddItem(r.Context(), UserIDFromContext(r.Context()), req.lineItem(), req.Quantity)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}

		respondJSON(w, successStatus, toCartResponse(view))
	}
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.UpdateQuantity(r.Context(), UserIDFromContext(r.Context()), productID, req.Quantity)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	view, err := h.service.RemoveItem(r.Context(), UserIDFromContext(r.Context()), productID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(view))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.ClearCart(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(view))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
		return false
	}
	respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts service errors to HTTP status codes. Messages of
// infrastructure failures are not echoed to the caller.
func (h *CartHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var httpStatus int
	var code string
	message := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		httpStatus, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrInvalidItem):
		httpStatus, code = http.StatusBadRequest, "invalid_item"
	case errors.Is(err, domain.ErrCartNotFound):
		httpStatus, code = http.StatusNotFound, "cart_not_found"
	case errors.Is(err, domain.ErrItemNotFound):
		httpStatus, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, domain.ErrConcurrentModification):
		httpStatus, code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrDependencyUnavailable):
		httpStatus, code = http.StatusServiceUnavailable, "dependency_unavailable"
		message = "cart storage is temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		httpStatus, code = statusClientClosedRequest, "canceled"
		message = "request canceled"
	default:
		httpStatus, code = http.StatusInternalServerError, "internal_error"
		message = "internal server error"
		logger.FromContext(r.Context(), h.log).Error("unexpected service error", zap.Error(err))
	}

	respondError(w, httpStatus, code, message)
}
