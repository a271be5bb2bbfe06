package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
)

type ProductRepo interface {
	GetProduct(ctx context.Context, id int64) (entities.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (entities.Product, error)
	ListProducts(ctx context.Context) ([]entities.Product, error)

	// Декремент атомарный и условный, при нехватке остатка возвращает
	// entities.ErrInsufficientStock
	DecrementStock(ctx context.Context, productID int64, qty int) error
	RestoreStock(ctx context.Context, productID int64, qty int) error
}

type CartStore interface {
	Get(ctx context.Context, key string) (entities.Cart, error)
	Save(ctx context.Context, key string, cart entities.Cart) error
	Delete(ctx context.Context, key string) error
}

type CartService struct {
	logger   *slog.Logger
	store    CartStore
	products ProductRepo
}

func NewCartService(logger *slog.Logger, store CartStore, products ProductRepo) *CartService {
	return &CartService{
		logger:   logger.With(slog.String("service", "cart")),
		store:    store,
		products: products,
	}
}

type CartLine struct {
	Product       entities.Product
	Quantity      int
	SubtotalCents int64
}

type CartView struct {
	Lines      []CartLine
	TotalCents int64
	Count      int
}

// Add накапливает количество по позиции; суммарное количество
// проверяется против текущего остатка до любой мутации.
func (s *CartService) Add(ctx context.Context, key string, productID int64, qty int) error {
	if qty <= 0 {
		return entities.ErrInvalidQuantity
	}

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return err
	}

	cart, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	if cart[productID]+qty > product.Stock {
		return entities.ErrInsufficientStock
	}

	cart.Add(productID, qty)
	return s.store.Save(ctx, key, cart)
}

// Update выставляет количество; qty <= 0 удаляет позицию.
func (s *CartService) Update(ctx context.Context, key string, productID int64, qty int) error {
	if qty <= 0 {
		return s.Remove(ctx, key, productID)
	}

	product, err := s.activeProduct(ctx, productID)
	if err != nil {
		return err
	}
	if qty > product.Stock {
		return entities.ErrInsufficientStock
	}

	cart, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	cart.Set(productID, qty)
	return s.store.Save(ctx, key, cart)
}

func (s *CartService) Remove(ctx context.Context, key string, productID int64) error {
	cart, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}

	cart.Remove(productID)
	return s.store.Save(ctx, key, cart)
}

func (s *CartService) Clear(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// View собирает корзину с актуальными ценами каталога.
// Пропавшие из каталога товары молча выпадают из выдачи.
func (s *CartService) View(ctx context.Context, key string) (CartView, error) {
	cart, err := s.store.Get(ctx, key)
	if err != nil {
		return CartView{}, err
	}

	view := CartView{Lines: make([]CartLine, 0, len(cart)), Count: cart.TotalCount()}
	for _, line := range cart.Snapshot() {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if errors.Is(err, entities.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return CartView{}, fmt.Errorf("failed to get product: %w", err)
		}

		subtotal := int64(line.Quantity) * product.PriceCents
		view.Lines = append(view.Lines, CartLine{Product: product, Quantity: line.Quantity, SubtotalCents: subtotal})
		view.TotalCents += subtotal
	}
	return view, nil
}

func (s *CartService) Count(ctx context.Context, key string) (int, error) {
	cart, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return cart.TotalCount(), nil
}

func (s *CartService) activeProduct(ctx context.Context, productID int64) (entities.Product, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return entities.Product{}, err
	}
	if !product.Active {
		return entities.Product{}, entities.ErrProductNotFound
	}
	return product, nil
}
