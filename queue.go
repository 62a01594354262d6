package match

import (
	"github.com/huandu/skiplist"
)

// queue is the set of order IDs resting on one side of one instrument.
// IDs are kept in ascending order; since IDs are allocated in submission order,
// iteration order is first-in-first-out priority. The queue is not ordered by price.
//
// A queue is not safe for concurrent use; the owning bookSide's mutex guards it.
type queue struct {
	side Side
	ids  *skiplist.SkipList
}

func newQueue(side Side) *queue {
	return &queue{
		side: side,
		ids:  skiplist.New(skiplist.Uint64),
	}
}

// NewSellerQueue creates the resting set for sell orders.
func NewSellerQueue() *queue {
	return newQueue(Sell)
}

// NewBuyerQueue creates the resting set for buy orders.
func NewBuyerQueue() *queue {
	return newQueue(Buy)
}

// insertOrder adds id to the set. Inserting an id twice is a no-op.
func (q *queue) insertOrder(id uint64) {
	q.ids.Set(id, struct{}{})
}

// removeOrder removes id and reports whether it was present.
func (q *queue) removeOrder(id uint64) bool {
	return q.ids.Remove(id) != nil
}

// contains reports whether id is resting in the set.
func (q *queue) contains(id uint64) bool {
	return q.ids.Get(id) != nil
}

// front returns the element with the smallest id, or nil when empty.
func (q *queue) front() *skiplist.Element {
	return q.ids.Front()
}

// removeElement removes el and returns its successor.
func (q *queue) removeElement(el *skiplist.Element) *skiplist.Element {
	next := el.Next()
	q.ids.RemoveElement(el)
	return next
}

// orderCount returns the number of resting orders.
func (q *queue) orderCount() int {
	return q.ids.Len()
}

// orderIDs returns the resting ids in priority order.
func (q *queue) orderIDs() []uint64 {
	ids := make([]uint64, 0, q.ids.Len())
	for el := q.ids.Front(); el != nil; el = el.Next() {
		ids = append(ids, elementID(el))
	}
	return ids
}

func elementID(el *skiplist.Element) uint64 {
	id, _ := el.Key().(uint64)
	return id
}
