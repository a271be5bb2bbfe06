package repo

import (
	"database/sql"
	"time"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
)

type Order struct {
	ID              int64          `db:"id"`
	UserID          string         `db:"user_id"`
	TotalCents      int64          `db:"total_cents"`
	Status          string         `db:"status"`
	PaymentMethod   string         `db:"payment_method"`
	ShippingAddress string         `db:"shipping_address"`
	Phone           string         `db:"phone"`
	PaymentRef      sql.NullString `db:"payment_ref"`
	CreatedAt       time.Time      `db:"created_at"`
}

type OrderItem struct {
	OrderID    int64  `db:"order_id"`
	ProductID  int64  `db:"product_id"`
	Name       string `db:"name"`
	Quantity   int    `db:"quantity"`
	PriceCents int64  `db:"price_cents"`
}

type Product struct {
	ID         int64          `db:"id"`
	Name       string         `db:"name"`
	Slug       string         `db:"slug"`
	PriceCents int64          `db:"price_cents"`
	Stock      int            `db:"stock"`
	Active     bool           `db:"active"`
	ImageURL   sql.NullString `db:"image_url"`
}

func OrderToEntity(o Order, items []OrderItem) entities.Order {
	result := entities.Order{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalCents:      o.TotalCents,
		Status:          entities.OrderStatus(o.Status),
		PaymentMethod:   entities.PaymentMethod(o.PaymentMethod),
		ShippingAddress: o.ShippingAddress,
		Phone:           o.Phone,
		PaymentRef:      nullStringToString(o.PaymentRef),
		CreatedAt:       o.CreatedAt,
		Items:           make([]entities.OrderItem, 0, len(items)),
	}
	for _, it := range items {
		result.Items = append(result.Items, ItemToEntity(it))
	}
	return result
}

func ItemToEntity(i OrderItem) entities.OrderItem {
	return entities.OrderItem{
		ProductID:  i.ProductID,
		Name:       i.Name,
		Quantity:   i.Quantity,
		PriceCents: i.PriceCents,
	}
}

func ProductToEntity(p Product) entities.Product {
	return entities.Product{
		ID:         p.ID,
		Name:       p.Name,
		Slug:       p.Slug,
		PriceCents: p.PriceCents,
		Stock:      p.Stock,
		Active:     p.Active,
		ImageURL:   nullStringToString(p.ImageURL),
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringToString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
