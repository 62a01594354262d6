package match

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/0x5487/order-process-system/protocol"
	"go.uber.org/zap"
)

type callKind uint8

const (
	callSubmitOrders callKind = iota
	callCancelOrder
	callQueryOrders
	callKindCount
)

func (k callKind) String() string {
	switch k {
	case callSubmitOrders:
		return "SubmitOrders"
	case callCancelOrder:
		return "CancelOrder"
	case callQueryOrders:
		return "QueryOrders"
	default:
		return "unknown"
	}
}

type callState uint8

const (
	stateCreate callState = iota
	stateProcess
	stateFinish
)

// call is the per-call record driven by the Dispatcher.
type call struct {
	mu    sync.Mutex
	tag   tag
	kind  callKind
	state callState
	done  chan error
	err   error

	stream  Stream
	conn    *Conn
	writing bool // input side ended, drain the outbox then finish

	cancelReq  *protocol.CancelOrderRequest
	cancelResp *protocol.ExecutionReport

	queryReq     *protocol.QueryOrdersRequest
	queryReports []*protocol.OrderReport
	queryNext    int
}

func newCall(kind callKind, t tag) *call {
	return &call{
		tag:   t,
		kind:  kind,
		state: stateCreate,
		done:  make(chan error, 1),
	}
}

// step advances the state machine by one event and returns the resulting state.
func (c *call) step(d *Dispatcher, ev event) callState {
	if c.state == stateCreate {
		if ev.kind != eventStart {
			logger.Warn("unexpected event for idle call", zap.String("kind", c.kind.String()), zap.Uint8("event", uint8(ev.kind)))
			return c.state
		}
		d.arm(c)
		c.state = stateProcess
		return c.state
	}

	switch c.kind {
	case callSubmitOrders:
		c.state = c.stepSubmit(d, ev)
	case callCancelOrder:
		c.state = c.stepCancel(d, ev)
	case callQueryOrders:
		c.state = c.stepQuery(d, ev)
	}
	return c.state
}

func (c *call) stepSubmit(d *Dispatcher, ev event) callState {
	switch ev.kind {
	case eventRequest:
		d.spawn(c.kind)
		c.conn = newConn(c.stream, c.tag, d.post)
		d.router.Register(c.conn)
		c.read(d)
		return stateProcess

	case eventRead:
		if !ev.ok {
			if ev.err != nil && !errors.Is(ev.err, io.EOF) {
				logger.Debug("submit stream read failed", zap.String("conn", c.conn.Handle().String()), zap.Error(ev.err))
			}
			c.writing = true
			if c.conn.closeIfIdle() {
				return stateFinish
			}
			return stateProcess
		}

		req, _ := ev.payload.(*protocol.NewOrderRequest)
		if req == nil {
			c.read(d)
			return stateProcess
		}
		var accepted *protocol.ExecutionReport
		reports := d.engine.ProcessNewOrder(req, func(accept *protocol.ExecutionReport) {
			accepted = accept
			d.router.Bind(accept.OrderID, c.conn.Handle())
			// queued before the order can match, so it precedes every fill routed here
			d.deliver(c.conn, accept)
		})
		d.route(c.conn, accepted, reports)
		c.read(d)
		return stateProcess

	case eventWriteDone:
		c.conn.writeDone(ev.ok)
		if !ev.ok {
			logger.Debug("submit stream write failed", zap.String("conn", c.conn.Handle().String()), zap.Error(ev.err))
		}
		if c.writing && c.conn.closeIfIdle() {
			return stateFinish
		}
		return stateProcess
	}
	return stateProcess
}

// read issues the next inbound read; the completion comes back as an eventRead.
func (c *call) read(d *Dispatcher) {
	stream, t := c.stream, c.tag
	go func() {
		req := new(protocol.NewOrderRequest)
		err := stream.RecvMsg(req)
		d.post(event{tag: t, kind: eventRead, ok: err == nil, err: err, payload: req})
	}()
}

func (c *call) stepCancel(d *Dispatcher, ev event) callState {
	if ev.kind != eventRequest {
		return stateProcess
	}
	d.spawn(c.kind)

	report := d.engine.ProcessCancelOrder(c.cancelReq)
	if report.Status == protocol.StatusCanceled {
		d.router.Forget(report.OrderID)
	}
	c.cancelResp = report
	return stateFinish
}

func (c *call) stepQuery(d *Dispatcher, ev event) callState {
	switch ev.kind {
	case eventRequest:
		d.spawn(c.kind)
		c.conn = newConn(c.stream, c.tag, d.post)
		c.queryReports = d.engine.ProcessQueryOrders(c.queryReq)
		return c.writeNextOrder()

	case eventWriteDone:
		c.conn.writeDone(ev.ok)
		if !ev.ok {
			c.err = fmt.Errorf("query orders: %w", ev.err)
			return stateFinish
		}
		return c.writeNextOrder()
	}
	return stateProcess
}

// writeNextOrder writes one snapshot entry per write completion.
func (c *call) writeNextOrder() callState {
	if c.queryNext >= len(c.queryReports) {
		c.conn.closeIfIdle()
		return stateFinish
	}
	report := c.queryReports[c.queryNext]
	c.queryNext++
	if err := c.conn.enqueue(report); err != nil {
		c.err = err
		return stateFinish
	}
	return stateProcess
}
