package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/internal/middleware"
	"github.com/SergeyBogomolovv/checkout-service/internal/service"
	"github.com/SergeyBogomolovv/checkout-service/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]entities.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (entities.Product, error)
}

type CartService interface {
	Add(ctx context.Context, key string, productID int64, qty int) error
	Update(ctx context.Context, key string, productID int64, qty int) error
	Remove(ctx context.Context, key string, productID int64) error
	Clear(ctx context.Context, key string) error
	View(ctx context.Context, key string) (service.CartView, error)
	Count(ctx context.Context, key string) (int, error)
}

type HTTPHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	catalog  Catalog
	cart     CartService
	checkout CheckoutService
	webhooks WebhookParser
}

func NewHTTPHandler(logger *slog.Logger, catalog Catalog, cart CartService, checkout CheckoutService, webhooks WebhookParser) *HTTPHandler {
	return &HTTPHandler{
		logger:   logger.With(slog.String("handler", "http")),
		validate: validator.New(),
		catalog:  catalog,
		cart:     cart,
		checkout: checkout,
		webhooks: webhooks,
	}
}

func (h *HTTPHandler) Init(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Get("/products/{slug}", h.GetProduct)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.ViewCart)
		r.Get("/count", h.CartCount)
		r.Post("/add/{product_id}", h.AddToCart)
		r.Post("/update/{product_id}", h.UpdateCart)
		r.Post("/remove/{product_id}", h.RemoveFromCart)
		r.Post("/clear", h.ClearCart)
	})

	r.Post("/checkout", h.Checkout)

	r.Route("/payments", func(r chi.Router) {
		r.Post("/mpesa/stk-push", h.StkPush)
		r.Post("/mpesa/callback", h.MpesaCallback)
		r.Get("/mpesa/status/{order_id}", h.PaymentStatus)
		r.Get("/success/{order_id}", h.PaymentSuccess)
		r.Post("/cancel/{order_id}", h.CancelOrder)
		r.Post("/stripe/webhook", h.StripeWebhook)
	})

	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{order_id}", h.GetOrder)
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	res := make([]Product, 0, len(products))
	for _, p := range products {
		res = append(res, ProductEntityToJSON(p))
	}
	utils.WriteJSON(w, res, http.StatusOK)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := h.validate.Var(slug, "required"); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	product, err := h.catalog.GetProductBySlug(r.Context(), slug)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, ProductEntityToJSON(product), http.StatusOK)
}

func (h *HTTPHandler) ViewCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	view, err := h.cart.View(r.Context(), userID)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, CartViewToJSON(view), http.StatusOK)
}

func (h *HTTPHandler) CartCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	count, err := h.cart.Count(r.Context(), userID)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, CartCountResponse{Count: count}, http.StatusOK)
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	// пустое тело - одна штука
	qty := 1
	var req QuantityRequest
	if err := utils.DecodeBody(r, &req); err == nil && req.Quantity > 0 {
		qty = req.Quantity
	}

	if err := h.cart.Add(r.Context(), userID, productID, qty); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	h.CartCount(w, r)
}

func (h *HTTPHandler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	var req QuantityRequest
	if err := utils.DecodeBody(r, &req); err != nil && err != io.EOF {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.cart.Update(r.Context(), userID, productID, req.Quantity); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	h.CartCount(w, r)
}

func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}

	if err := h.cart.Remove(r.Context(), userID, productID); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	h.CartCount(w, r)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	if err := h.cart.Clear(r.Context(), userID); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, CartCountResponse{Count: 0}, http.StatusOK)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	orders, err := h.checkout.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	res := make([]Order, 0, len(orders))
	for _, o := range orders {
		res = append(res, OrderEntityToJSON(o))
	}
	utils.WriteJSON(w, res, http.StatusOK)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

func (h *HTTPHandler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		utils.WriteError(w, "authentication required", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (h *HTTPHandler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, "invalid product id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || id <= 0 {
		utils.WriteError(w, "invalid order id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrProductNotFound):
		utils.WriteError(w, "product not found", http.StatusNotFound)
	case errors.Is(err, entities.ErrOrderNotFound):
		utils.WriteError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, entities.ErrInsufficientStock):
		stockConflicts.Inc()
		utils.WriteError(w, "not enough stock available", http.StatusConflict)
	case errors.Is(err, entities.ErrEmptyCart):
		utils.WriteError(w, "cart is empty", http.StatusBadRequest)
	case errors.Is(err, entities.ErrInvalidQuantity):
		utils.WriteError(w, "invalid quantity", http.StatusBadRequest)
	case errors.Is(err, entities.ErrInvalidPayment):
		utils.WriteError(w, "invalid payment method", http.StatusBadRequest)
	case errors.Is(err, entities.ErrUnauthorized):
		utils.WriteError(w, "access denied", http.StatusForbidden)
	case errors.Is(err, entities.ErrOrderNotPending):
		utils.WriteError(w, "order is not pending", http.StatusConflict)
	case errors.Is(err, entities.ErrOrderNotCancellable):
		utils.WriteError(w, "order cannot be cancelled", http.StatusConflict)
	case errors.Is(err, entities.ErrProviderUnavailable):
		utils.WriteError(w, "payment provider unavailable, try again later", http.StatusBadGateway)
	default:
		h.logger.ErrorContext(ctx, "internal error", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
	}
}
