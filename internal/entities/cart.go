package entities

import (
	"bytes"
	"encoding/gob"
	"errors"
	"sort"
)

// Cart - отображение product id -> количество, живёт только в сессии.
type Cart map[int64]int

var (
	ErrInvalidCart     = errors.New("invalid cart data")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Add накапливает количество по позиции.
func (c Cart) Add(productID int64, qty int) {
	c[productID] += qty
}

// Set выставляет количество; qty <= 0 удаляет позицию.
func (c Cart) Set(productID int64, qty int) {
	if qty <= 0 {
		delete(c, productID)
		return
	}
	c[productID] = qty
}

func (c Cart) Remove(productID int64) {
	delete(c, productID)
}

func (c Cart) Empty() bool {
	return len(c) == 0
}

func (c Cart) TotalCount() int {
	var count int
	for _, qty := range c {
		count += qty
	}
	return count
}

type CartLine struct {
	ProductID int64
	Quantity  int
}

// Snapshot возвращает позиции в детерминированном порядке,
// чтобы блокировки строк склада брались всегда одинаково.
func (c Cart) Snapshot() []CartLine {
	lines := make([]CartLine, 0, len(c))
	for id, qty := range c {
		lines = append(lines, CartLine{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func (c Cart) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Cart) Unmarshal(data []byte) error {
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(c); err != nil {
		return ErrInvalidCart
	}
	return nil
}

func init() {
	gob.Register(Cart{})
}
