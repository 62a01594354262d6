package match

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0x5487/order-process-system/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(opts ...EngineOption) (*MatchingEngine, *MemoryPublishLog) {
	publishLog := NewMemoryPublishLog()
	opts = append([]EngineOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewMatchingEngine(publishLog, opts...), publishLog
}

func limitOrder(client uint64, side Side, qty uint32, price float64) *protocol.NewOrderRequest {
	return &protocol.NewOrderRequest{
		ClientID:   client,
		Instrument: "X",
		Side:       side,
		OrderType:  Limit,
		Quantity:   qty,
		Price:      price,
	}
}

func TestMatchingEngine(t *testing.T) {
	t.Run("AcceptIntoEmptyBook", func(t *testing.T) {
		engine, _ := newTestEngine()

		reports := engine.ProcessNewOrder(limitOrder(1, Sell, 100, 10.0), nil)
		require.Len(t, reports, 1)

		report := reports[0].Report
		assert.Equal(t, uint64(1), reports[0].OrderID)
		assert.Equal(t, protocol.StatusOrderAccept, report.Status)
		assert.Equal(t, uint32(100), report.LeaveQty)
		assert.Equal(t, uint32(100), report.OrderQty)
		assert.Equal(t, testNow.Format(TimeLayout), report.Time)

		stats := engine.Stats()
		assert.Equal(t, 1, stats.Orders)
		require.Len(t, stats.Instruments, 1)
		assert.Equal(t, 1, stats.Instruments[0].SellOrders)
	})

	t.Run("FullFill", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 100, 10.0), nil)
		reports := engine.ProcessNewOrder(limitOrder(2, Buy, 100, 10.0), nil)
		require.Len(t, reports, 3)

		accept, takerFill, makerFill := reports[0], reports[1], reports[2]
		assert.Equal(t, protocol.StatusOrderAccept, accept.Report.Status)

		assert.Equal(t, uint64(2), takerFill.OrderID)
		assert.Equal(t, protocol.StatusFill, takerFill.Report.Status)
		assert.Equal(t, uint32(100), takerFill.Report.FillQty)
		assert.Equal(t, 10.0, takerFill.Report.FillPrice)
		assert.Equal(t, uint32(0), takerFill.Report.LeaveQty)

		assert.Equal(t, uint64(1), makerFill.OrderID)
		assert.Equal(t, uint64(1), makerFill.Report.ClientID)
		assert.Equal(t, uint32(100), makerFill.Report.FillQty)
		assert.Equal(t, uint32(0), makerFill.Report.LeaveQty)

		_, ok := engine.orders.Get(1)
		assert.False(t, ok)
		_, ok = engine.orders.Get(2)
		assert.False(t, ok)
		assert.Empty(t, engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{}))
	})

	t.Run("NoSelfTrade", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(3, Buy, 50, 9.0), nil)
		reports := engine.ProcessNewOrder(limitOrder(3, Sell, 50, 10.0), nil)
		require.Len(t, reports, 1)
		assert.Equal(t, protocol.StatusOrderAccept, reports[0].Report.Status)
		assert.Equal(t, uint32(50), reports[0].Report.LeaveQty)

		// prices do not cross either; same client on a crossing price is skipped too
		reports = engine.ProcessNewOrder(limitOrder(3, Sell, 50, 8.0), nil)
		require.Len(t, reports, 1)

		orders := engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{})
		assert.Len(t, orders, 3)
	})

	t.Run("CancelUnknownOrder", func(t *testing.T) {
		engine, publishLog := newTestEngine()

		report := engine.ProcessCancelOrder(&protocol.CancelOrderRequest{OrderID: 9999})
		assert.Equal(t, protocol.StatusCancelReject, report.Status)
		assert.Equal(t, uint64(9999), report.OrderID)
		assert.Equal(t, MsgOrderNotFound, report.ErrorMessage)
		assert.Equal(t, 1, publishLog.Count())
	})

	t.Run("RejectDoesNotBurnID", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 5, 10.0), nil)

		reports := engine.ProcessNewOrder(limitOrder(1, Buy, 10, 0.0), nil)
		require.Len(t, reports, 1)
		assert.Equal(t, uint64(0), reports[0].OrderID)
		assert.Equal(t, protocol.StatusOrderReject, reports[0].Report.Status)
		assert.Equal(t, MsgIllegalPrice, reports[0].Report.ErrorMessage)
		assert.Equal(t, uint64(0), reports[0].Report.OrderID)

		reports = engine.ProcessNewOrder(limitOrder(2, Buy, 1, 1.0), nil)
		assert.Equal(t, uint64(2), reports[0].OrderID)
	})

	t.Run("PartialFillLeavesMakerResting", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 100, 10.0), nil)
		reports := engine.ProcessNewOrder(limitOrder(2, Buy, 30, 10.0), nil)
		require.Len(t, reports, 3)
		assert.Equal(t, uint32(30), reports[1].Report.FillQty)
		assert.Equal(t, uint32(0), reports[1].Report.LeaveQty)
		assert.Equal(t, uint32(100), reports[2].Report.OrderQty)
		assert.Equal(t, uint32(70), reports[2].Report.LeaveQty)

		orders := engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{})
		require.Len(t, orders, 1)
		assert.Equal(t, uint64(1), orders[0].OrderID)
		assert.Equal(t, uint32(70), orders[0].Quantity)
		assert.Equal(t, Sell, orders[0].Side)
	})
}

func TestMatchingEngineValidation(t *testing.T) {
	tests := []struct {
		name string
		req  *protocol.NewOrderRequest
		msg  string
	}{
		{"ZeroClient", &protocol.NewOrderRequest{Side: Buy, OrderType: Limit, Quantity: 1, Price: 1}, MsgIllegalClientID},
		{"UnknownSide", &protocol.NewOrderRequest{ClientID: 1, OrderType: Limit, Quantity: 1, Price: 1}, MsgIllegalDirection},
		{"ZeroQuantity", &protocol.NewOrderRequest{ClientID: 1, Side: Sell, OrderType: Limit, Price: 1}, MsgIllegalQuantity},
		{"NegativePrice", &protocol.NewOrderRequest{ClientID: 1, Side: Sell, OrderType: Limit, Quantity: 1, Price: -2}, MsgIllegalPrice},
		{"UnknownType", &protocol.NewOrderRequest{ClientID: 1, Side: Sell, OrderType: "stop", Quantity: 1, Price: 1}, MsgIllegalOrderType},
		// the first failing check wins
		{"ZeroClientAndPrice", &protocol.NewOrderRequest{Side: Buy, OrderType: Limit, Quantity: 1}, MsgIllegalClientID},
		{"ZeroQuantityAndPrice", &protocol.NewOrderRequest{ClientID: 1, Side: Buy, OrderType: Limit}, MsgIllegalQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine()

			admitted := false
			reports := engine.ProcessNewOrder(tt.req, func(*protocol.ExecutionReport) { admitted = true })
			require.Len(t, reports, 1)
			assert.False(t, admitted)
			assert.Equal(t, protocol.StatusOrderReject, reports[0].Report.Status)
			assert.Equal(t, tt.msg, reports[0].Report.ErrorMessage)
			assert.Equal(t, uint64(0), engine.ids.Last())
			assert.Equal(t, 0, engine.orders.Len())
		})
	}
}

func TestMatchingEngineMatching(t *testing.T) {
	t.Run("FillAtMakerPrice", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 10, 9.5), nil)
		reports := engine.ProcessNewOrder(limitOrder(2, Buy, 10, 11.0), nil)
		require.Len(t, reports, 3)
		assert.Equal(t, 9.5, reports[1].Report.FillPrice)
		assert.Equal(t, 11.0, reports[1].Report.OrderPrice)
		assert.Equal(t, 9.5, reports[2].Report.FillPrice)
	})

	t.Run("ScanInAdmissionOrder", func(t *testing.T) {
		engine, _ := newTestEngine()

		// the cheaper ask was admitted later and does not get priority
		engine.ProcessNewOrder(limitOrder(1, Sell, 10, 10.0), nil)
		engine.ProcessNewOrder(limitOrder(2, Sell, 10, 9.0), nil)

		reports := engine.ProcessNewOrder(limitOrder(3, Buy, 10, 10.0), nil)
		require.Len(t, reports, 3)
		assert.Equal(t, uint64(1), reports[2].OrderID)
		assert.Equal(t, 10.0, reports[2].Report.FillPrice)
	})

	t.Run("SweepSeveralMakers", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Buy, 10, 10.0), nil)
		engine.ProcessNewOrder(limitOrder(2, Buy, 10, 8.0), nil)
		engine.ProcessNewOrder(limitOrder(3, Buy, 10, 10.0), nil)

		reports := engine.ProcessNewOrder(limitOrder(4, Sell, 25, 9.0), nil)
		// accept, then taker/maker fill pairs against orders 1 and 3; 2 does not cross
		require.Len(t, reports, 5)

		assert.Equal(t, uint64(4), reports[1].OrderID)
		assert.Equal(t, uint32(15), reports[1].Report.LeaveQty)
		assert.Equal(t, uint64(1), reports[2].OrderID)
		assert.Equal(t, uint64(4), reports[3].OrderID)
		assert.Equal(t, uint32(5), reports[3].Report.LeaveQty)
		assert.Equal(t, uint64(3), reports[4].OrderID)

		// the taker rests with its remaining quantity
		taker, ok := engine.orders.Get(4)
		require.True(t, ok)
		assert.Equal(t, uint32(5), taker.Quantity)

		sell, unlock := engine.instruments.Ensure("X").lockSide(Sell)
		assert.Equal(t, []uint64{4}, sell.orderIDs())
		unlock()

		buy, unlock := engine.instruments.Ensure("X").lockSide(Buy)
		assert.Equal(t, []uint64{2}, buy.orderIDs())
		unlock()
	})

	t.Run("PriceEpsilon", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 1, 10.0000005), nil)
		reports := engine.ProcessNewOrder(limitOrder(2, Buy, 1, 10.0), nil)
		assert.Len(t, reports, 3)

		engine.ProcessNewOrder(limitOrder(1, Sell, 1, 10.01), nil)
		reports = engine.ProcessNewOrder(limitOrder(2, Buy, 1, 10.0), nil)
		assert.Len(t, reports, 1)
	})

	t.Run("InstrumentsAreIndependent", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 10, 10.0), nil)

		req := limitOrder(2, Buy, 10, 10.0)
		req.Instrument = "Y"
		reports := engine.ProcessNewOrder(req, nil)
		assert.Len(t, reports, 1)
		assert.Equal(t, []string{"X", "Y"}, engine.instruments.Instruments())
	})

	t.Run("MarketTakerCrossesAnyPrice", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 10, 1000.0), nil)

		req := limitOrder(2, Buy, 4, 1.0)
		req.OrderType = Market
		reports := engine.ProcessNewOrder(req, nil)
		require.Len(t, reports, 3)
		assert.Equal(t, 1000.0, reports[1].Report.FillPrice)
	})

	t.Run("MarketOrderRestsAtMarketPrice", func(t *testing.T) {
		engine, _ := newTestEngine(WithMarketPrice(7.25))
		assert.Equal(t, 7.25, engine.MarketPrice())

		req := limitOrder(1, Buy, 4, 1.0)
		req.OrderType = Market
		engine.ProcessNewOrder(req, nil)

		orders := engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{})
		require.Len(t, orders, 1)
		assert.Equal(t, Market, orders[0].OrderType)
		assert.Equal(t, 7.25, orders[0].Price)

		// the resting market order now matches like a limit order at the reference price
		reports := engine.ProcessNewOrder(limitOrder(2, Sell, 4, 7.25), nil)
		require.Len(t, reports, 3)
		assert.Equal(t, 7.25, reports[1].Report.FillPrice)
	})

	t.Run("OnAdmitRunsBeforeMatching", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 10, 10.0), nil)

		var admitted *protocol.ExecutionReport
		reports := engine.ProcessNewOrder(limitOrder(2, Buy, 10, 10.0), func(accept *protocol.ExecutionReport) {
			admitted = accept
			order, ok := engine.orders.Get(accept.OrderID)
			assert.True(t, ok)
			assert.Equal(t, uint32(10), order.Quantity)
		})
		require.NotNil(t, admitted)
		assert.Equal(t, protocol.StatusOrderAccept, admitted.Status)
		assert.Equal(t, uint64(2), admitted.OrderID)
		require.Len(t, reports, 3)
		assert.Same(t, admitted, reports[0].Report)
	})

	t.Run("FilledTakerLeavesStoreWhileMatching", func(t *testing.T) {
		engine, _ := newTestEngine()

		engine.ProcessNewOrder(limitOrder(1, Sell, 100, 10.0), nil)
		book, ok := engine.instruments.OrderBook("X")
		require.True(t, ok)

		// a filled taker never needs its own side, so holding it must not stall the order
		_, unlock := book.lockSide(Buy)
		defer unlock()

		done := make(chan []RoutedReport, 1)
		go func() {
			done <- engine.ProcessNewOrder(limitOrder(2, Buy, 100, 10.0), nil)
		}()

		select {
		case reports := <-done:
			require.Len(t, reports, 3)
			assert.Equal(t, uint32(0), reports[1].Report.LeaveQty)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "filled taker waited for its own side")
		}
		assert.Empty(t, engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{}))
	})
}

func TestMatchingEngineCancel(t *testing.T) {
	engine, publishLog := newTestEngine()

	engine.ProcessNewOrder(limitOrder(1, Sell, 100, 10.0), nil)
	engine.ProcessNewOrder(limitOrder(2, Buy, 30, 10.0), nil)

	report := engine.ProcessCancelOrder(&protocol.CancelOrderRequest{OrderID: 1})
	assert.Equal(t, protocol.StatusCanceled, report.Status)
	assert.Equal(t, uint32(70), report.LeaveQty)
	assert.Equal(t, uint64(1), report.ClientID)

	// a canceled order is gone from the store and its resting set
	_, ok := engine.orders.Get(1)
	assert.False(t, ok)
	sell, unlock := engine.instruments.Ensure("X").lockSide(Sell)
	assert.Equal(t, 0, sell.orderCount())
	unlock()

	// cancel is idempotent
	report = engine.ProcessCancelOrder(&protocol.CancelOrderRequest{OrderID: 1})
	assert.Equal(t, protocol.StatusCancelReject, report.Status)

	// a fully filled order cannot be canceled either
	report = engine.ProcessCancelOrder(&protocol.CancelOrderRequest{OrderID: 2})
	assert.Equal(t, protocol.StatusCancelReject, report.Status)

	statuses := make([]protocol.ReportStatus, 0, publishLog.Count())
	for _, r := range publishLog.Logs() {
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []protocol.ReportStatus{
		protocol.StatusOrderAccept,
		protocol.StatusOrderAccept,
		protocol.StatusFill,
		protocol.StatusFill,
		protocol.StatusCanceled,
		protocol.StatusCancelReject,
		protocol.StatusCancelReject,
	}, statuses)
}

func TestMatchingEngineQueryOrders(t *testing.T) {
	engine, _ := newTestEngine()

	engine.ProcessNewOrder(limitOrder(1, Sell, 5, 12.0), nil)
	engine.ProcessNewOrder(limitOrder(2, Buy, 6, 11.0), nil)
	engine.ProcessNewOrder(limitOrder(3, Sell, 7, 13.0), nil)

	orders := engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{})
	require.Len(t, orders, 3)
	for i, order := range orders {
		assert.Equal(t, uint64(i+1), order.OrderID)
		assert.Equal(t, testNow.Format(TimeLayout), order.Time)
	}
	assert.Equal(t, uint64(2), orders[1].ClientID)
	assert.Equal(t, Buy, orders[1].Side)
	assert.Equal(t, 11.0, orders[1].Price)
}

// Every fill must have a counterpart, and the quantities must add up across concurrent
// submitters on one instrument.
func TestMatchingEngineConcurrentConservation(t *testing.T) {
	engine := NewMatchingEngine(nil)

	const (
		workers   = 8
		perWorker = 200
	)

	var (
		mu        sync.Mutex
		fills     []*protocol.ExecutionReport
		submitted = map[Side]uint64{}
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			side := Buy
			if w%2 == 1 {
				side = Sell
			}
			for i := 0; i < perWorker; i++ {
				req := limitOrder(uint64(w+1), side, uint32(i%5+1), 10.0)
				reports := engine.ProcessNewOrder(req, nil)

				mu.Lock()
				submitted[side] += uint64(req.Quantity)
				for _, r := range reports {
					if r.Report.Status == protocol.StatusFill {
						fills = append(fills, r.Report)
					}
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, 0, len(fills)%2)

	var traded uint64
	for _, f := range fills {
		traded += uint64(f.FillQty)
	}
	traded /= 2

	resting := map[Side]uint64{}
	for _, order := range engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{}) {
		assert.Greater(t, order.Quantity, uint32(0))
		resting[order.Side] += uint64(order.Quantity)
	}

	assert.Equal(t, submitted[Buy], traded+resting[Buy])
	assert.Equal(t, submitted[Sell], traded+resting[Sell])

	stats := engine.Stats()
	assert.Equal(t, uint64(workers*perWorker), stats.LastOrderID)
}

// Cancels race against crossing submissions on one instrument. Each order must end up
// canceled, filled or resting with exactly its unfilled quantity.
func TestMatchingEngineConcurrentCancel(t *testing.T) {
	engine := NewMatchingEngine(nil)

	const (
		submitters = 4
		cancelers  = 2
		perWorker  = 300
	)

	var (
		mu      sync.Mutex
		reports []*protocol.ExecutionReport
		sides   = map[uint64]Side{}
		stop    atomic.Bool
	)

	var submitWG, cancelWG sync.WaitGroup
	for w := 0; w < submitters; w++ {
		submitWG.Add(1)
		go func(w int) {
			defer submitWG.Done()
			side := Buy
			if w%2 == 1 {
				side = Sell
			}
			for i := 0; i < perWorker; i++ {
				routed := engine.ProcessNewOrder(limitOrder(uint64(w+1), side, uint32(i%7+1), 10.0), nil)

				mu.Lock()
				for _, r := range routed {
					if r.Report.Status == protocol.StatusOrderAccept {
						sides[r.Report.OrderID] = side
					}
					reports = append(reports, r.Report)
				}
				mu.Unlock()
			}
		}(w)
	}

	for c := 0; c < cancelers; c++ {
		cancelWG.Add(1)
		go func() {
			defer cancelWG.Done()
			for !stop.Load() {
				last := engine.ids.Last()
				if last == 0 {
					continue
				}
				// favor the newest orders, the ones most likely still matching
				id := last - rand.Uint64N(min(last, 8))
				report := engine.ProcessCancelOrder(&protocol.CancelOrderRequest{OrderID: id})

				mu.Lock()
				reports = append(reports, report)
				mu.Unlock()
			}
		}()
	}

	submitWG.Wait()
	stop.Store(true)
	cancelWG.Wait()

	accepted := map[uint64]uint32{}
	filled := map[uint64]uint32{}
	canceled := map[uint64][]uint32{}
	traded := map[Side]uint64{}
	for _, r := range reports {
		switch r.Status {
		case protocol.StatusOrderAccept:
			accepted[r.OrderID] = r.OrderQty
		case protocol.StatusFill:
			filled[r.OrderID] += r.FillQty
			traded[sides[r.OrderID]] += uint64(r.FillQty)
		case protocol.StatusCanceled:
			canceled[r.OrderID] = append(canceled[r.OrderID], r.LeaveQty)
		}
	}
	require.Len(t, accepted, submitters*perWorker)

	resident := map[uint64]uint32{}
	for _, order := range engine.ProcessQueryOrders(&protocol.QueryOrdersRequest{}) {
		resident[order.OrderID] = order.Quantity
	}

	for id, qty := range accepted {
		leaves, isCanceled := canceled[id]
		rest, isResident := resident[id]

		switch {
		case isCanceled:
			require.Len(t, leaves, 1, "order %d canceled twice", id)
			assert.False(t, isResident, "canceled order %d still resident", id)
			assert.Greater(t, leaves[0], uint32(0), "order %d canceled with nothing left", id)
			assert.Equal(t, qty, filled[id]+leaves[0], "order %d", id)
		case isResident:
			assert.Equal(t, qty, filled[id]+rest, "order %d", id)
		default:
			assert.Equal(t, qty, filled[id], "order %d neither resting nor filled", id)
		}
	}

	// every trade has a buyer and a seller
	assert.Equal(t, traded[Buy], traded[Sell])

	book, ok := engine.instruments.OrderBook("X")
	require.True(t, ok)
	for _, side := range []Side{Buy, Sell} {
		resting, unlock := book.lockSide(side)
		ids := resting.orderIDs()
		unlock()

		for _, id := range ids {
			_, ok := engine.orders.Get(id)
			assert.True(t, ok, "resting order %d missing from store", id)
		}
	}

	var restingTotal int
	for _, s := range engine.Stats().Instruments {
		restingTotal += s.BuyOrders + s.SellOrders
	}
	assert.Equal(t, len(resident), restingTotal)
}
