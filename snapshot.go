package match

// InstrumentStats counts the resting orders of one instrument.
type InstrumentStats struct {
	Instrument string `json:"instrument"`
	SellOrders int    `json:"sell_orders"`
	BuyOrders  int    `json:"buy_orders"`
}

// EngineStats is a point-in-time view of the engine. The counters are read under
// independent locks, so they are not mutually atomic.
type EngineStats struct {
	EngineVersion string            `json:"engine_version"`
	Orders        int               `json:"orders"`        // resident in the Order Store
	LastOrderID   uint64            `json:"last_order_id"` // most recently allocated
	MarketPrice   float64           `json:"market_price"`  // reference price of resting market orders
	Instruments   []InstrumentStats `json:"instruments"`
}
