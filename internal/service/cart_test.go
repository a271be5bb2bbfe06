package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartFixture(t *testing.T) (*service.CartService, *fakeStore, *fakeProducts) {
	t.Helper()
	store := &fakeStore{carts: make(map[string]entities.Cart)}
	products := &fakeProducts{products: map[int64]entities.Product{
		1: {ID: 1, Name: "Coffee", Slug: "coffee", PriceCents: 1000, Stock: 5, Active: true},
		2: {ID: 2, Name: "Tea", Slug: "tea", PriceCents: 250, Stock: 2, Active: true},
		3: {ID: 3, Name: "Retired", Slug: "retired", PriceCents: 100, Stock: 10, Active: false},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewCartService(logger, store, products), store, products
}

func TestCartService_Add(t *testing.T) {
	testCases := []struct {
		name      string
		existing  entities.Cart
		productID int64
		qty       int
		wantErr   error
		wantCart  entities.Cart
	}{
		{
			name:      "first item",
			productID: 1,
			qty:       2,
			wantCart:  entities.Cart{1: 2},
		},
		{
			name:      "accumulates quantity",
			existing:  entities.Cart{1: 2},
			productID: 1,
			qty:       1,
			wantCart:  entities.Cart{1: 3},
		},
		{
			name:      "accumulated quantity exceeds stock",
			existing:  entities.Cart{2: 2},
			productID: 2,
			qty:       1,
			wantErr:   entities.ErrInsufficientStock,
		},
		{
			name:      "zero quantity",
			productID: 1,
			qty:       0,
			wantErr:   entities.ErrInvalidQuantity,
		},
		{
			name:      "unknown product",
			productID: 99,
			qty:       1,
			wantErr:   entities.ErrProductNotFound,
		},
		{
			name:      "inactive product",
			productID: 3,
			qty:       1,
			wantErr:   entities.ErrProductNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newCartFixture(t)
			if tc.existing != nil {
				require.NoError(t, store.Save(context.Background(), "alice", tc.existing))
			}

			err := svc.Add(context.Background(), "alice", tc.productID, tc.qty)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			cart, _ := store.Get(context.Background(), "alice")
			assert.Equal(t, tc.wantCart, cart)
		})
	}
}

func TestCartService_Update(t *testing.T) {
	testCases := []struct {
		name      string
		existing  entities.Cart
		productID int64
		qty       int
		wantErr   error
		wantCart  entities.Cart
	}{
		{
			name:      "sets quantity",
			existing:  entities.Cart{1: 1},
			productID: 1,
			qty:       4,
			wantCart:  entities.Cart{1: 4},
		},
		{
			name:      "zero quantity removes line",
			existing:  entities.Cart{1: 2, 2: 1},
			productID: 1,
			qty:       0,
			wantCart:  entities.Cart{2: 1},
		},
		{
			name:      "quantity above stock",
			existing:  entities.Cart{2: 1},
			productID: 2,
			qty:       3,
			wantErr:   entities.ErrInsufficientStock,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, _ := newCartFixture(t)
			require.NoError(t, store.Save(context.Background(), "alice", tc.existing))

			err := svc.Update(context.Background(), "alice", tc.productID, tc.qty)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			cart, _ := store.Get(context.Background(), "alice")
			assert.Equal(t, tc.wantCart, cart)
		})
	}
}

func TestCartService_View(t *testing.T) {
	t.Run("totals follow catalog prices", func(t *testing.T) {
		svc, store, _ := newCartFixture(t)
		require.NoError(t, store.Save(context.Background(), "alice", entities.Cart{1: 2, 2: 1}))

		view, err := svc.View(context.Background(), "alice")
		require.NoError(t, err)

		assert.Equal(t, int64(2250), view.TotalCents)
		assert.Equal(t, 3, view.Count)
		require.Len(t, view.Lines, 2)
		assert.Equal(t, int64(2000), view.Lines[0].SubtotalCents)
		assert.Equal(t, int64(250), view.Lines[1].SubtotalCents)
	})

	t.Run("vanished product drops out of view", func(t *testing.T) {
		svc, store, products := newCartFixture(t)
		require.NoError(t, store.Save(context.Background(), "alice", entities.Cart{1: 1, 2: 1}))
		products.mu.Lock()
		delete(products.products, 2)
		products.mu.Unlock()

		view, err := svc.View(context.Background(), "alice")
		require.NoError(t, err)
		require.Len(t, view.Lines, 1)
		assert.Equal(t, int64(1000), view.TotalCents)
	})

	t.Run("empty cart", func(t *testing.T) {
		svc, _, _ := newCartFixture(t)

		view, err := svc.View(context.Background(), "alice")
		require.NoError(t, err)
		assert.Empty(t, view.Lines)
		assert.Zero(t, view.TotalCents)
	})
}

func TestCartService_RemoveAndClear(t *testing.T) {
	svc, store, _ := newCartFixture(t)
	require.NoError(t, store.Save(context.Background(), "alice", entities.Cart{1: 2, 2: 1}))

	require.NoError(t, svc.Remove(context.Background(), "alice", 1))
	count, err := svc.Count(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, svc.Clear(context.Background(), "alice"))
	count, err = svc.Count(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}
