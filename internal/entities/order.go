package entities

import (
	"errors"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusFailed    OrderStatus = "failed"
	StatusCancelled OrderStatus = "cancelled"
)

// IsTerminal сообщает, что из статуса больше нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCancelled
}

type PaymentMethod string

const (
	PaymentCard  PaymentMethod = "card"
	PaymentMpesa PaymentMethod = "mpesa"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCard || m == PaymentMpesa
}

type OrderItem struct {
	ProductID int64
	Name      string
	Quantity  int
	// Цена фиксируется на момент оформления и не следует за каталогом
	PriceCents int64
}

func (i OrderItem) SubtotalCents() int64 {
	return int64(i.Quantity) * i.PriceCents
}

type Order struct {
	ID              int64
	UserID          string
	TotalCents      int64
	Status          OrderStatus
	PaymentMethod   PaymentMethod
	ShippingAddress string
	Phone           string

	// PaymentRef хранит CheckoutRequestID, пока платёж не подтверждён,
	// после подтверждения - идентификатор от провайдера (receipt / intent)
	PaymentRef string

	CreatedAt time.Time
	Items     []OrderItem
}

func (o Order) Paid() bool {
	return o.Status == StatusPaid
}

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrUnauthorized        = errors.New("order belongs to another user")
	ErrOrderNotPending     = errors.New("order is not pending")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrInvalidPayment      = errors.New("invalid payment method")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)
