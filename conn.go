package match

import (
	"context"
	"sync"

	"github.com/rs/xid"
)

// Stream is the transport side of one call. grpc.ServerStream satisfies it.
type Stream interface {
	Context() context.Context
	SendMsg(m any) error
	RecvMsg(m any) error
}

// Conn is the outbound half of a call's stream.
//
// At most one write is in flight per Conn: the next queued message is only sent once the
// owning call processed the previous write's completion event, so messages arrive in the
// order they were enqueued.
type Conn struct {
	handle xid.ID
	stream Stream
	owner  tag
	post   func(event)

	mu       sync.Mutex
	pending  []any
	inFlight bool
	closed   bool
	sent     uint64
}

func newConn(stream Stream, owner tag, post func(event)) *Conn {
	return &Conn{
		handle: xid.New(),
		stream: stream,
		owner:  owner,
		post:   post,
	}
}

// Handle identifies the connection in the ResponseRouter.
func (c *Conn) Handle() xid.ID {
	return c.handle
}

// Sent returns the number of messages whose write completed successfully.
func (c *Conn) Sent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

// enqueue schedules msg for delivery. It fails with ErrConnClosed once the connection
// finished or broke.
func (c *Conn) enqueue(msg any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.inFlight {
		c.pending = append(c.pending, msg)
		c.mu.Unlock()
		return nil
	}
	c.inFlight = true
	c.mu.Unlock()

	c.write(msg)
	return nil
}

// write sends msg asynchronously; the completion is delivered to the owning call.
func (c *Conn) write(msg any) {
	go func() {
		err := c.stream.SendMsg(msg)
		c.post(event{tag: c.owner, kind: eventWriteDone, ok: err == nil, err: err})
	}()
}

// writeDone consumes one write completion. A failed write breaks the connection and
// discards everything still queued.
func (c *Conn) writeDone(ok bool) {
	c.mu.Lock()
	if !ok {
		c.closed = true
		c.inFlight = false
		c.pending = nil
		c.mu.Unlock()
		return
	}

	c.sent++
	if len(c.pending) == 0 {
		c.inFlight = false
		c.mu.Unlock()
		return
	}

	msg := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	c.mu.Unlock()

	c.write(msg)
}

// closeIfIdle closes the connection when nothing is queued or in flight and reports
// whether the connection is closed afterwards.
func (c *Conn) closeIfIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	if c.inFlight || len(c.pending) > 0 {
		return false
	}
	c.closed = true
	return true
}
