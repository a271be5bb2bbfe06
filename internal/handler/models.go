package handler

import (
	"time"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/internal/service"
)

// Product представляет товар каталога
type Product struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
	ImageURL   string `json:"image_url,omitempty"`
}

// CartLine позиция корзины с актуальной ценой каталога
type CartLine struct {
	Product       Product `json:"product"`
	Quantity      int     `json:"quantity"`
	SubtotalCents int64   `json:"subtotal_cents"`
}

type CartResponse struct {
	Items      []CartLine `json:"items"`
	TotalCents int64      `json:"total_cents"`
	Count      int        `json:"count"`
}

type CartCountResponse struct {
	Count int `json:"count"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type CheckoutRequest struct {
	PaymentMethod   string `json:"payment_method" validate:"required,oneof=card mpesa"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	Phone           string `json:"phone" validate:"required"`
}

type CheckoutResponse struct {
	OrderID     int64  `json:"order_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type StkPushRequest struct {
	OrderID int64  `json:"order_id" validate:"required"`
	Phone   string `json:"phone"`
}

type StkPushResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
}

type PaymentStatusResponse struct {
	Status string `json:"status"`
	Paid   bool   `json:"paid"`
}

// MpesaAck - тело подтверждения, которое ожидает Daraja.
// Отдаётся с кодом 200 независимо от того, нашёлся ли заказ.
type MpesaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// OrderItem позиция заказа с зафиксированной ценой
type OrderItem struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	PriceCents    int64  `json:"price_cents"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

// Order представляет заказ
type Order struct {
	ID              int64       `json:"id"`
	Status          string      `json:"status"`
	PaymentMethod   string      `json:"payment_method"`
	TotalCents      int64       `json:"total_cents"`
	ShippingAddress string      `json:"shipping_address"`
	Phone           string      `json:"phone"`
	PaymentRef      string      `json:"payment_ref,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	Items           []OrderItem `json:"items"`
}

func ProductEntityToJSON(p entities.Product) Product {
	return Product{
		ID:         p.ID,
		Name:       p.Name,
		Slug:       p.Slug,
		PriceCents: p.PriceCents,
		Stock:      p.Stock,
		ImageURL:   p.ImageURL,
	}
}

func CartViewToJSON(view service.CartView) CartResponse {
	items := make([]CartLine, 0, len(view.Lines))
	for _, line := range view.Lines {
		items = append(items, CartLine{
			Product:       ProductEntityToJSON(line.Product),
			Quantity:      line.Quantity,
			SubtotalCents: line.SubtotalCents,
		})
	}
	return CartResponse{Items: items, TotalCents: view.TotalCents, Count: view.Count}
}

func OrderEntityToJSON(o entities.Order) Order {
	items := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItem{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Quantity:      it.Quantity,
			PriceCents:    it.PriceCents,
			SubtotalCents: it.SubtotalCents(),
		})
	}

	return Order{
		ID:              o.ID,
		Status:          string(o.Status),
		PaymentMethod:   string(o.PaymentMethod),
		TotalCents:      o.TotalCents,
		ShippingAddress: o.ShippingAddress,
		Phone:           o.Phone,
		PaymentRef:      o.PaymentRef,
		CreatedAt:       o.CreatedAt,
		Items:           items,
	}
}

func PaymentStatusToJSON(o entities.Order) PaymentStatusResponse {
	return PaymentStatusResponse{Status: string(o.Status), Paid: o.Paid()}
}
