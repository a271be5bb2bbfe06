package session

import (
	"context"
	"testing"
	"time"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		capacity int
		ttl      time.Duration
		actions  func(s *Store, t *testing.T)
	}{
		{
			name:     "save and get within TTL",
			capacity: 2,
			ttl:      time.Second,
			actions: func(s *Store, t *testing.T) {
				s.Save(ctx, "u1", entities.Cart{1: 2})
				cart, err := s.Get(ctx, "u1")
				if err != nil || cart[1] != 2 {
					t.Errorf("expected qty=2, got=%v, err=%v", cart, err)
				}
			},
		},
		{
			name:     "missing key is an empty cart",
			capacity: 2,
			ttl:      time.Second,
			actions: func(s *Store, t *testing.T) {
				cart, err := s.Get(ctx, "nobody")
				if err != nil || !cart.Empty() {
					t.Errorf("expected empty cart, got=%v, err=%v", cart, err)
				}
			},
		},
		{
			name:     "get after expiration",
			capacity: 2,
			ttl:      time.Millisecond * 50,
			actions: func(s *Store, t *testing.T) {
				s.Save(ctx, "u1", entities.Cart{1: 2})
				time.Sleep(time.Millisecond * 60)
				cart, _ := s.Get(ctx, "u1")
				if !cart.Empty() {
					t.Errorf("expected session to be expired")
				}
			},
		},
		{
			name:     "evict oldest when over capacity",
			capacity: 2,
			ttl:      time.Second,
			actions: func(s *Store, t *testing.T) {
				s.Save(ctx, "a", entities.Cart{1: 1})
				s.Save(ctx, "b", entities.Cart{2: 1})
				s.Save(ctx, "c", entities.Cart{3: 1})
				if cart, _ := s.Get(ctx, "a"); !cart.Empty() {
					t.Errorf("expected session 'a' to be evicted")
				}
				if s.Size() != 2 {
					t.Errorf("expected size 2, got %d", s.Size())
				}
			},
		},
		{
			name:     "delete clears the cart",
			capacity: 2,
			ttl:      time.Second,
			actions: func(s *Store, t *testing.T) {
				s.Save(ctx, "u1", entities.Cart{1: 2})
				s.Delete(ctx, "u1")
				if cart, _ := s.Get(ctx, "u1"); !cart.Empty() {
					t.Errorf("expected cart to be deleted")
				}
			},
		},
		{
			name:     "janitor removes expired",
			capacity: 2,
			ttl:      time.Millisecond * 50,
			actions: func(s *Store, t *testing.T) {
				cctx, cancel := context.WithCancel(context.Background())
				defer cancel()
				s.Start(cctx)

				s.Save(ctx, "u1", entities.Cart{1: 2})
				time.Sleep(time.Millisecond * 60)

				s.cleanup()

				if s.Size() != 0 {
					t.Errorf("expected janitor cleanup to remove expired session")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.capacity, tt.ttl)
			tt.actions(s, t)
		})
	}
}
