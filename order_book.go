package match

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// bookSide is one side of an instrument: a resting set guarded by its own mutex.
// The mutex is held across an entire matching scan, rest or cancel and is the unit of
// serialization for every mutation of orders resting on this side.
type bookSide struct {
	mu     sync.Mutex
	orders *queue
}

// OrderBook holds the resting sets of one instrument.
type OrderBook struct {
	instrument string
	sell       bookSide
	buy        bookSide
}

func newOrderBook(instrument string) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		sell:       bookSide{orders: NewSellerQueue()},
		buy:        bookSide{orders: NewBuyerQueue()},
	}
}

// Instrument returns the symbol of the book.
func (book *OrderBook) Instrument() string {
	return book.instrument
}

func (book *OrderBook) side(s Side) *bookSide {
	if s == Buy {
		return &book.buy
	}
	return &book.sell
}

// lockSide acquires the side's mutex and returns its resting set together with the unlock func.
func (book *OrderBook) lockSide(s Side) (*queue, func()) {
	bs := book.side(s)
	bs.mu.Lock()
	return bs.orders, bs.mu.Unlock
}

// stats counts resting orders on both sides, taking each side's mutex in turn.
func (book *OrderBook) stats() InstrumentStats {
	sell, unlockSell := book.lockSide(Sell)
	sellCount := sell.orderCount()
	unlockSell()

	buy, unlockBuy := book.lockSide(Buy)
	buyCount := buy.orderCount()
	unlockBuy()

	return InstrumentStats{
		Instrument: book.instrument,
		SellOrders: sellCount,
		BuyOrders:  buyCount,
	}
}

// InstrumentRegistry lazily creates one OrderBook per instrument symbol.
// Its lock only guards the symbol map; matching never holds it.
type InstrumentRegistry struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewInstrumentRegistry creates an empty registry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		books: make(map[string]*OrderBook),
	}
}

// Ensure returns the book for instrument, creating it exactly once.
func (r *InstrumentRegistry) Ensure(instrument string) *OrderBook {
	if book, ok := r.OrderBook(instrument); ok {
		return book
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// double-checked: another goroutine may have created it while we waited for the writer lock
	if book, ok := r.books[instrument]; ok {
		return book
	}
	book := newOrderBook(instrument)
	r.books[instrument] = book
	logger.Debug("instrument created", zap.String("instrument", instrument))
	return book
}

// OrderBook returns the book for instrument if it exists.
func (r *InstrumentRegistry) OrderBook(instrument string) (*OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	book, ok := r.books[instrument]
	return book, ok
}

// Instruments returns the known symbols in lexical order.
func (r *InstrumentRegistry) Instruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.books))
	for symbol := range r.books {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
