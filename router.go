package match

import (
	"sync"

	"github.com/rs/xid"
)

// ResponseRouter maps order IDs to the handle of the connection that submitted them, so a
// fill produced while processing someone else's order reaches the right stream.
//
// Routes reference connections by handle, never by pointer: once a connection is
// unregistered every route to it resolves to ErrConnGone instead of a stale stream.
type ResponseRouter struct {
	mu     sync.RWMutex
	conns  map[xid.ID]*Conn
	routes map[uint64]xid.ID
	owned  map[xid.ID]map[uint64]struct{}
}

// NewResponseRouter creates an empty router.
func NewResponseRouter() *ResponseRouter {
	return &ResponseRouter{
		conns:  make(map[xid.ID]*Conn),
		routes: make(map[uint64]xid.ID),
		owned:  make(map[xid.ID]map[uint64]struct{}),
	}
}

// Register makes conn reachable through its handle.
func (r *ResponseRouter) Register(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.Handle()] = conn
}

// Unregister tears down a connection and drops every route that pointed at it.
// It returns the number of routes dropped.
func (r *ResponseRouter) Unregister(handle xid.ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, handle)

	orderIDs := r.owned[handle]
	for orderID := range orderIDs {
		delete(r.routes, orderID)
	}
	delete(r.owned, handle)
	return len(orderIDs)
}

// Bind routes reports of orderID to the connection identified by handle.
func (r *ResponseRouter) Bind(orderID uint64, handle xid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.routes[orderID]; ok {
		delete(r.owned[prev], orderID)
	}
	r.routes[orderID] = handle

	set, ok := r.owned[handle]
	if !ok {
		set = make(map[uint64]struct{})
		r.owned[handle] = set
	}
	set[orderID] = struct{}{}
}

// Resolve returns the live connection owning orderID.
// ErrNotFound means no route exists; ErrConnGone means the owner has been torn down.
func (r *ResponseRouter) Resolve(orderID uint64) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.routes[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	conn, ok := r.conns[handle]
	if !ok {
		return nil, ErrConnGone
	}
	return conn, nil
}

// Forget drops the route of an order that can produce no further reports.
func (r *ResponseRouter) Forget(orderID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.routes[orderID]
	if !ok {
		return
	}
	delete(r.routes, orderID)
	delete(r.owned[handle], orderID)
}

// Routes returns the number of routed orders.
func (r *ResponseRouter) Routes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Conns returns the number of registered connections.
func (r *ResponseRouter) Conns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
