package entities

import "errors"

type Product struct {
	ID         int64
	Name       string
	Slug       string
	PriceCents int64
	Stock      int
	Active     bool
	ImageURL   string
}

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)
