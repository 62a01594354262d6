package match

import (
	"sort"
	"time"

	"github.com/0x5487/order-process-system/protocol"
	"go.uber.org/zap"
)

// AdmitFunc is invoked with the OrderAccept of a freshly admitted order. It runs after the
// order entered the Order Store and before it can take part in any match, so whatever the
// hook delivers precedes every fill of the order.
type AdmitFunc func(accept *protocol.ExecutionReport)

// MatchingEngine owns the Order Store, the Instrument Registry and the ID Allocator and
// implements price/time crossing over them. It is safe for concurrent use; orders of
// different instruments never contend.
type MatchingEngine struct {
	ids         *IDAllocator
	orders      *OrderStore
	instruments *InstrumentRegistry
	publishLog  PublishLog
	marketPrice float64
	now         func() time.Time
}

// EngineOption configures a MatchingEngine.
type EngineOption func(*MatchingEngine)

// WithMarketPrice sets the reference price displayed by resting market orders.
func WithMarketPrice(price float64) EngineOption {
	return func(engine *MatchingEngine) {
		engine.marketPrice = price
	}
}

// WithClock overrides the time source used to stamp orders and reports.
func WithClock(now func() time.Time) EngineOption {
	return func(engine *MatchingEngine) {
		engine.now = now
	}
}

// NewMatchingEngine creates a new matching engine instance.
// publishLog receives a drop copy of every report; it may be nil.
func NewMatchingEngine(publishLog PublishLog, opts ...EngineOption) *MatchingEngine {
	if publishLog == nil {
		publishLog = NewDiscardPublishLog()
	}

	engine := &MatchingEngine{
		ids:         NewIDAllocator(0),
		orders:      NewOrderStore(),
		instruments: NewInstrumentRegistry(),
		publishLog:  publishLog,
		marketPrice: DefaultMarketPrice,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// MarketPrice returns the reference price of resting market orders.
func (engine *MatchingEngine) MarketPrice() float64 {
	return engine.marketPrice
}

// ProcessNewOrder validates, admits, matches and finally rests or discards one new order.
// The returned reports are addressed by order ID; ID 0 addresses the submitting caller.
func (engine *MatchingEngine) ProcessNewOrder(req *protocol.NewOrderRequest, onAdmit AdmitFunc) []RoutedReport {
	now := engine.now()

	if msg := validateNewOrder(req); msg != "" {
		report := newRejectReport(req, msg, now)
		logger.Debug("order rejected", zap.Uint64("client_id", req.ClientID), zap.String("reason", msg))
		engine.publishLog.Publish(report)
		return []RoutedReport{{OrderID: 0, Report: report}}
	}

	order, book := engine.admit(req, now)
	accept := newAcceptReport(&order, now)
	if onAdmit != nil {
		onAdmit(accept)
	}

	reports := make([]RoutedReport, 0, 4)
	reports = append(reports, RoutedReport{OrderID: order.ID, Report: accept})

	// The two critical sections are acquired independently: until restOrDiscard runs the
	// order is in the store but not yet visible to other orders of its own side.
	var remaining uint32
	reports, remaining = engine.matchOrder(book, &order, reports)
	engine.restOrDiscard(book, &order, remaining)

	published := make([]*protocol.ExecutionReport, len(reports))
	for i := range reports {
		published[i] = reports[i].Report
	}
	engine.publishLog.Publish(published...)

	return reports
}

// admit allocates the order ID, stores the order and makes sure its instrument exists.
func (engine *MatchingEngine) admit(req *protocol.NewOrderRequest, now time.Time) (Order, *OrderBook) {
	order := Order{
		ID:         engine.ids.Next(),
		ClientID:   req.ClientID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.OrderType,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Timestamp:  now,
	}
	engine.orders.Insert(order.ID, order)
	book := engine.instruments.Ensure(order.Instrument)
	return order, book
}

// matchOrder scans the opposite side in ascending order ID while holding that side's mutex.
// It returns the reports extended with the fills and the taker's remaining quantity.
//
// The taker's store record is updated before each trade touches the maker: a filled taker
// leaves the store at once, and a taker canceled meanwhile stops matching, so a Canceled
// report never overlaps a fill.
func (engine *MatchingEngine) matchOrder(book *OrderBook, taker *Order, reports []RoutedReport) ([]RoutedReport, uint32) {
	makers, unlock := book.lockSide(opposite(taker.Side))
	defer unlock()

	original := taker.Quantity
	var filled uint32
	now := engine.now()

	el := makers.front()
	for el != nil && filled < original {
		makerID := elementID(el)
		maker, ok := engine.orders.Get(makerID)
		if !ok {
			// the id outlived its order; it can never trade again
			logger.Warn("resting order missing from store", zap.Uint64("order_id", makerID))
			el = makers.removeElement(el)
			continue
		}

		// no self-trade
		if maker.ClientID == taker.ClientID {
			el = el.Next()
			continue
		}

		if !crosses(taker, &maker) {
			el = el.Next()
			continue
		}

		// the maker sets the price
		fillPrice := maker.Price
		tradeQty := minU32(maker.Quantity, original-filled)

		taker.Quantity = original - filled - tradeQty
		if taker.Quantity == 0 {
			if _, ok := engine.orders.Remove(taker.ID); !ok {
				break
			}
		} else if !engine.orders.Alter(taker.ID, *taker) {
			break
		}
		filled += tradeQty

		makerQty := maker.Quantity
		maker.Quantity -= tradeQty

		reports = append(reports,
			RoutedReport{OrderID: taker.ID, Report: newFillReport(taker, original, tradeQty, fillPrice, original-filled, now)},
			RoutedReport{OrderID: maker.ID, Report: newFillReport(&maker, makerQty, tradeQty, fillPrice, maker.Quantity, now)},
		)

		if maker.Quantity == 0 {
			el = makers.removeElement(el)
			engine.orders.Delete(maker.ID)
			continue
		}

		engine.orders.Alter(maker.ID, maker)
		el = el.Next()
	}

	return reports, original - filled
}

// restOrDiscard runs under the taker's own side mutex. A taker with quantity left joins its
// side's resting set. A filled taker already left the store while matching, and an order
// canceled meanwhile is gone and stays gone.
func (engine *MatchingEngine) restOrDiscard(book *OrderBook, taker *Order, remaining uint32) {
	if remaining == 0 {
		return
	}

	own, unlock := book.lockSide(taker.Side)
	defer unlock()

	order, ok := engine.orders.Get(taker.ID)
	if !ok {
		return
	}

	if order.Type == Market {
		order.Price = engine.marketPrice
		engine.orders.Alter(order.ID, order)
	}
	own.insertOrder(order.ID)
}

// ProcessCancelOrder removes a resident order. Unknown or already resolved IDs yield a
// CancelReject, so retrying a cancel is safe.
func (engine *MatchingEngine) ProcessCancelOrder(req *protocol.CancelOrderRequest) *protocol.ExecutionReport {
	now := engine.now()

	report := engine.cancelOrder(req.OrderID, now)
	if report.Status == protocol.StatusCancelReject {
		logger.Debug("cancel rejected", zap.Uint64("order_id", req.OrderID))
	}
	engine.publishLog.Publish(report)
	return report
}

func (engine *MatchingEngine) cancelOrder(orderID uint64, now time.Time) *protocol.ExecutionReport {
	order, ok := engine.orders.Get(orderID)
	if !ok {
		return newCancelRejectReport(orderID, now)
	}

	book, ok := engine.instruments.OrderBook(order.Instrument)
	if !ok {
		return newCancelRejectReport(orderID, now)
	}

	resting, unlock := book.lockSide(order.Side)
	defer unlock()

	// remove under the side mutex: a match may have changed or removed it meanwhile
	order, ok = engine.orders.Remove(orderID)
	if !ok {
		return newCancelRejectReport(orderID, now)
	}
	resting.removeOrder(orderID)

	return newCanceledReport(&order, now)
}

// ProcessQueryOrders returns every resident order sorted by ascending order ID.
func (engine *MatchingEngine) ProcessQueryOrders(req *protocol.QueryOrdersRequest) []*protocol.OrderReport {
	orders := engine.orders.Snapshot()
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ID < orders[j].ID
	})

	reports := make([]*protocol.OrderReport, len(orders))
	for i := range orders {
		reports[i] = newOrderReport(&orders[i])
	}
	return reports
}

// Stats returns resting order counts for every instrument.
func (engine *MatchingEngine) Stats() *EngineStats {
	stats := &EngineStats{
		EngineVersion: EngineVersion,
		Orders:        engine.orders.Len(),
		LastOrderID:   engine.ids.Last(),
		MarketPrice:   engine.marketPrice,
	}

	for _, symbol := range engine.instruments.Instruments() {
		book, ok := engine.instruments.OrderBook(symbol)
		if !ok {
			continue
		}
		stats.Instruments = append(stats.Instruments, book.stats())
	}
	return stats
}
