package match

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/0x5487/order-process-system/protocol"
	"go.uber.org/zap"
)

// tag identifies one call record. A tag whose generation no longer matches its slot is stale.
type tag struct {
	slot uint32
	gen  uint32
}

type eventKind uint8

const (
	eventStart     eventKind = iota + 1 // record created, run its Create step
	eventRequest                        // the transport matched a call to the record
	eventRead                           // a read completed
	eventWriteDone                      // a write completed
)

// event is one entry of the completion queue.
type event struct {
	tag     tag
	kind    eventKind
	ok      bool
	err     error
	payload any
}

// callSlab owns every live call record. Slots are reused; the generation distinguishes
// successive records of one slot.
type callSlab struct {
	mu    sync.Mutex
	calls []*call
	gens  []uint32
	free  []uint32
}

func (s *callSlab) alloc(kind callKind) *call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var slot uint32
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		slot = uint32(len(s.calls))
		s.calls = append(s.calls, nil)
		s.gens = append(s.gens, 0)
	}

	s.gens[slot]++
	c := newCall(kind, tag{slot: slot, gen: s.gens[slot]})
	s.calls[slot] = c
	return c
}

func (s *callSlab) get(t tag) *call {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(t.slot) >= len(s.calls) || s.gens[t.slot] != t.gen {
		return nil
	}
	return s.calls[t.slot]
}

func (s *callSlab) release(t tag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(t.slot) >= len(s.calls) || s.gens[t.slot] != t.gen || s.calls[t.slot] == nil {
		return
	}
	s.calls[t.slot] = nil
	s.free = append(s.free, t.slot)
}

func (s *callSlab) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls) - len(s.free)
}

// Dispatcher drives every call through its state machine off a shared completion queue.
//
// Any worker may pick up any event, but a record's mutex is held for the whole step, so the
// steps of one call never run concurrently.
type Dispatcher struct {
	engine    *MatchingEngine
	router    *ResponseRouter
	workers   int
	queue     chan event
	slab      callSlab
	acceptors [callKindCount]chan tag

	quit       chan struct{}
	wg         sync.WaitGroup
	isStarted  atomic.Bool
	isShutdown atomic.Bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkerCount sets the number of goroutines draining the completion queue.
func WithWorkerCount(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithCompletionQueueSize sets the capacity of the completion queue.
func WithCompletionQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan event, n)
		}
	}
}

// WithRouter shares an existing ResponseRouter.
func WithRouter(router *ResponseRouter) DispatcherOption {
	return func(d *Dispatcher) {
		if router != nil {
			d.router = router
		}
	}
}

// NewDispatcher creates a dispatcher in front of engine. Call Start before serving.
func NewDispatcher(engine *MatchingEngine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		router:  NewResponseRouter(),
		workers: DefaultWorkerCount,
		queue:   make(chan event, DefaultCompletionQueueSize),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.acceptors {
		d.acceptors[i] = make(chan tag, 1)
	}
	return d
}

// Router returns the dispatcher's ResponseRouter.
func (d *Dispatcher) Router() *ResponseRouter {
	return d.router
}

// Engine returns the matching engine behind the dispatcher.
func (d *Dispatcher) Engine() *MatchingEngine {
	return d.engine
}

// LiveCalls returns the number of call records currently allocated, including the idle
// records waiting for their next call.
func (d *Dispatcher) LiveCalls() int {
	return d.slab.live()
}

// Start launches the workers and arms one record per call kind. It is idempotent.
func (d *Dispatcher) Start() {
	if !d.isStarted.CompareAndSwap(false, true) {
		return
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	for kind := callKind(0); kind < callKindCount; kind++ {
		d.spawn(kind)
	}

	logger.Info("dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.queue)))
}

// Shutdown stops the workers. Calls still in progress are abandoned; their Serve methods
// return ErrShutdown.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if !d.isShutdown.CompareAndSwap(false, true) {
		return nil
	}
	close(d.quit)

	stopped := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.handle(ev)
		case <-d.quit:
			return
		}
	}
}

// post enqueues a completion. It gives up once the dispatcher is shut down.
func (d *Dispatcher) post(ev event) {
	select {
	case d.queue <- ev:
	case <-d.quit:
	}
}

// spawn allocates a record of kind in the Create state and queues its first step.
func (d *Dispatcher) spawn(kind callKind) {
	c := d.slab.alloc(kind)
	ev := event{tag: c.tag, kind: eventStart, ok: true}

	// spawn runs inside a step; a worker must not block on a full queue it drains itself
	select {
	case d.queue <- ev:
	default:
		go d.post(ev)
	}
}

func (d *Dispatcher) handle(ev event) {
	c := d.slab.get(ev.tag)
	if c == nil {
		logger.Debug("stale completion dropped", zap.Uint32("slot", ev.tag.slot), zap.Uint32("gen", ev.tag.gen))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateFinish {
		return
	}
	if c.step(d, ev) == stateFinish {
		d.finish(c)
	}
}

// finish frees the record and wakes the transport goroutine. Called with c.mu held.
func (d *Dispatcher) finish(c *call) {
	c.state = stateFinish
	if c.kind == callSubmitOrders && c.conn != nil {
		dropped := d.router.Unregister(c.conn.Handle())
		logger.Debug("stream closed",
			zap.String("conn", c.conn.Handle().String()),
			zap.Int("routes_dropped", dropped),
			zap.Uint64("sent", c.conn.Sent()),
		)
	}
	d.slab.release(c.tag)
	c.done <- c.err
}

// arm registers c as the record that the next call of its kind is matched to.
func (d *Dispatcher) arm(c *call) {
	select {
	case d.acceptors[c.kind] <- c.tag:
	default:
		// an idle record of this kind is already waiting
		logger.Warn("acceptor already armed", zap.String("kind", c.kind.String()))
	}
}

// accept waits for the idle record of kind and binds it to the caller.
func (d *Dispatcher) accept(ctx context.Context, kind callKind, bind func(*call)) (*call, error) {
	if d.isShutdown.Load() {
		return nil, ErrShutdown
	}

	for {
		var t tag
		select {
		case t = <-d.acceptors[kind]:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.quit:
			return nil, ErrShutdown
		}

		c := d.slab.get(t)
		if c == nil {
			continue
		}

		c.mu.Lock()
		bind(c)
		c.mu.Unlock()

		d.post(event{tag: t, kind: eventRequest, ok: true})
		return c, nil
	}
}

// wait blocks until c finished.
func (d *Dispatcher) wait(c *call) error {
	select {
	case err := <-c.done:
		return err
	case <-d.quit:
		return ErrShutdown
	}
}

// ServeSubmitOrders runs one bidirectional SubmitOrders stream until the client closed its
// side and every report queued for the stream was written.
func (d *Dispatcher) ServeSubmitOrders(stream Stream) error {
	c, err := d.accept(stream.Context(), callSubmitOrders, func(c *call) {
		c.stream = stream
	})
	if err != nil {
		return err
	}
	return d.wait(c)
}

// ServeQueryOrders streams one OrderReport per resident order.
func (d *Dispatcher) ServeQueryOrders(stream Stream, req *protocol.QueryOrdersRequest) error {
	c, err := d.accept(stream.Context(), callQueryOrders, func(c *call) {
		c.stream = stream
		c.queryReq = req
	})
	if err != nil {
		return err
	}
	return d.wait(c)
}

// CancelOrder runs one unary CancelOrder call.
func (d *Dispatcher) CancelOrder(ctx context.Context, req *protocol.CancelOrderRequest) (*protocol.ExecutionReport, error) {
	if req == nil {
		return nil, ErrInvalidParam
	}
	c, err := d.accept(ctx, callCancelOrder, func(c *call) {
		c.cancelReq = req
	})
	if err != nil {
		return nil, err
	}
	if err := d.wait(c); err != nil {
		return nil, err
	}
	return c.cancelResp, nil
}

// route delivers the reports of one new order. Reports addressed to ID 0 or to the order
// admitted on this call go back to the submitting connection; the others follow the
// ResponseRouter. accepted was already delivered by the admit hook.
func (d *Dispatcher) route(own *Conn, accepted *protocol.ExecutionReport, reports []RoutedReport) {
	for _, r := range reports {
		if accepted != nil && r.Report == accepted {
			continue
		}

		target := own
		if r.OrderID != 0 && (accepted == nil || r.OrderID != accepted.OrderID) {
			conn, err := d.router.Resolve(r.OrderID)
			if err != nil {
				logger.Debug("report not routable",
					zap.Uint64("order_id", r.OrderID),
					zap.String("status", string(r.Report.Status)),
					zap.Error(err),
				)
				d.forgetIfDone(r)
				continue
			}
			target = conn
		}

		d.deliver(target, r.Report)
		d.forgetIfDone(r)
	}
}

func (d *Dispatcher) deliver(conn *Conn, report *protocol.ExecutionReport) {
	if err := conn.enqueue(report); err != nil {
		logger.Debug("report dropped",
			zap.Uint64("order_id", report.OrderID),
			zap.String("conn", conn.Handle().String()),
			zap.Error(err),
		)
	}
}

// forgetIfDone drops the route of an order whose last fill was just reported.
func (d *Dispatcher) forgetIfDone(r RoutedReport) {
	if r.OrderID != 0 && r.Report.Status == protocol.StatusFill && r.Report.LeaveQty == 0 {
		d.router.Forget(r.OrderID)
	}
}
