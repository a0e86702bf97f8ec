package datasheet

import "errors"

// MergeResult counts what a merge did.
type MergeResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Book holds orders keyed by order code, in first-seen order. It is not
// safe for concurrent use; Service guards it.
type Book struct {
	orders []Order
	index  map[string]int
}

// NewBook builds an empty book.
func NewBook() *Book {
	return &Book{index: make(map[string]int)}
}

// Len returns the number of orders.
func (b *Book) Len() int { return len(b.orders) }

// Orders returns a copy of every order.
func (b *Book) Orders() []Order {
	out := make([]Order, len(b.orders))
	copy(out, b.orders)
	return out
}

// Get returns the order with the code.
func (b *Book) Get(code string) (Order, bool) {
	i, ok := b.index[code]
	if !ok {
		return Order{}, false
	}
	return b.orders[i], true
}

// Merge upserts incoming orders by order code. An existing order takes every
// field of the incoming one but keeps its document key unless it had none.
// Orders without a code are ignored.
func (b *Book) Merge(incoming []Order) MergeResult {
	var res MergeResult
	for _, o := range incoming {
		if o.OrderCode == "" {
			continue
		}
		if i, ok := b.index[o.OrderCode]; ok {
			id := b.orders[i].ID
			if id == "" {
				id = o.ID
			}
			o.ID = id
			b.orders[i] = o
			res.Updated++
			continue
		}
		b.index[o.OrderCode] = len(b.orders)
		b.orders = append(b.orders, o)
		res.Inserted++
	}
	return res
}

// SetID records the document key assigned to an order.
func (b *Book) SetID(code, id string) bool {
	i, ok := b.index[code]
	if !ok {
		return false
	}
	b.orders[i].ID = id
	return true
}

// Unsaved lists orders that have no document key yet.
func (b *Book) Unsaved() []Order {
	var out []Order
	for _, o := range b.orders {
		if o.ID == "" {
			out = append(out, o)
		}
	}
	return out
}

// ErrMissingCode is returned when saving an order without Mã_đơn_hàng.
var ErrMissingCode = errors.New("datasheet: order code is required")
