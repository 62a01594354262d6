package match

import (
	"sync"
	"sync/atomic"
)

// orderSlot holds the current version of one order. Whole-record replacement swaps the pointer,
// so readers always observe a complete Order.
type orderSlot struct {
	order atomic.Pointer[Order]
}

// OrderStore is the authoritative map from order ID to order snapshot.
//
// Insert and Delete take the writer side of the lock; Alter, Get and Snapshot take the reader side.
// Get returns a copy and Alter replaces by value, so a read-compute-write sequence on the same
// order must be serialized by the caller (the per-instrument-per-side mutex).
type OrderStore struct {
	mu     sync.RWMutex
	orders map[uint64]*orderSlot
}

// NewOrderStore creates an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[uint64]*orderSlot),
	}
}

// Insert adds an order under id, replacing any previous entry.
func (s *OrderStore) Insert(id uint64, order Order) {
	slot := &orderSlot{}
	slot.order.Store(&order)

	s.mu.Lock()
	s.orders[id] = slot
	s.mu.Unlock()
}

// Alter replaces the whole record of an existing order. It returns false when id is absent.
func (s *OrderStore) Alter(id uint64, order Order) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.orders[id]
	if !ok {
		return false
	}
	slot.order.Store(&order)
	return true
}

// Delete removes the order and reports whether it was present.
func (s *OrderStore) Delete(id uint64) bool {
	_, ok := s.Remove(id)
	return ok
}

// Remove deletes the order and returns its last version. It excludes Alter, so no
// replacement can land between the read and the delete.
func (s *OrderStore) Remove(id uint64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	delete(s.orders, id)
	return *slot.order.Load(), true
}

// Get returns a copy of the order.
func (s *OrderStore) Get(id uint64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *slot.order.Load(), true
}

// Snapshot returns copies of all resident orders in no particular order.
func (s *OrderStore) Snapshot() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]Order, 0, len(s.orders))
	for _, slot := range s.orders {
		orders = append(orders, *slot.order.Load())
	}
	return orders
}

// Len returns the number of resident orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
