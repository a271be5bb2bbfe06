package session

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
)

const janitorInterval = 2 * time.Minute

// Store - ограниченное по ёмкости KV-хранилище корзин с TTL.
// Корзина живёт только здесь и никогда не попадает в durable storage.
type Store struct {
	capacity int
	mu       sync.Mutex
	ll       *list.List
	index    map[string]*list.Element
	ttl      time.Duration
}

type entry struct {
	key        string
	value      []byte
	expiration time.Time
}

func New(capacity int, ttl time.Duration) *Store {
	return &Store{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
		ttl:      ttl,
	}
}

// Get возвращает корзину по ключу сессии. Отсутствие записи - пустая корзина.
func (s *Store) Get(_ context.Context, key string) (entities.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ele, ok := s.index[key]
	if !ok {
		return entities.Cart{}, nil
	}

	ent := ele.Value.(*entry)
	if time.Now().After(ent.expiration) {
		s.removeElement(ele)
		return entities.Cart{}, nil
	}
	s.ll.MoveToFront(ele)

	var cart entities.Cart
	if err := cart.Unmarshal(ent.value); err != nil {
		s.removeElement(ele)
		return nil, err
	}
	return cart, nil
}

// Save перезаписывает корзину и продлевает её TTL.
func (s *Store) Save(_ context.Context, key string, cart entities.Cart) error {
	data, err := cart.Marshal()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ele, ok := s.index[key]; ok {
		s.ll.MoveToFront(ele)
		ent := ele.Value.(*entry)
		ent.value = data
		ent.expiration = time.Now().Add(s.ttl)
		return nil
	}

	ent := &entry{key: key, value: data, expiration: time.Now().Add(s.ttl)}
	s.index[key] = s.ll.PushFront(ent)

	if s.ll.Len() > s.capacity {
		s.removeOldest()
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ele, ok := s.index[key]; ok {
		s.removeElement(ele)
	}
	return nil
}

func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// Start запускает фоновую чистку просроченных сессий.
func (s *Store) Start(ctx context.Context) error {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *Store) removeOldest() {
	if ele := s.ll.Back(); ele != nil {
		s.removeElement(ele)
	}
}

func (s *Store) removeElement(e *list.Element) {
	s.ll.Remove(e)
	delete(s.index, e.Value.(*entry).key)
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.ll.Back(); e != nil; {
		prev := e.Prev()
		if time.Now().After(e.Value.(*entry).expiration) {
			s.removeElement(e)
		}
		e = prev
	}
}
