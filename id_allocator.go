package match

import "sync"

// IDAllocator issues strictly increasing order IDs starting at 1.
// IDs are never reused; callers only ask for one after a request passed validation.
type IDAllocator struct {
	mu   sync.Mutex
	last uint64
}

// NewIDAllocator creates an allocator whose first ID is start+1.
func NewIDAllocator(start uint64) *IDAllocator {
	return &IDAllocator{last: start}
}

// Next returns the next order ID.
func (a *IDAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last++
	return a.last
}

// Last returns the most recently issued ID, or the start value if none was issued.
func (a *IDAllocator) Last() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
