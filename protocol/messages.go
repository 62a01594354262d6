package protocol

// NewOrderRequest is one inbound message of the SubmitOrders stream.
type NewOrderRequest struct {
	ClientID   uint64    `json:"client_id"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	OrderType  OrderType `json:"order_type"`
	Quantity   uint32    `json:"quantity"`
	Price      float64   `json:"price"`
	Time       string    `json:"time"`
}

// CancelOrderRequest is the payload of the unary CancelOrder call.
type CancelOrderRequest struct {
	OrderID uint64 `json:"order_id"`
	Time    string `json:"time"`
}

// QueryOrdersRequest is the payload of the QueryOrders call.
type QueryOrdersRequest struct {
	Time string `json:"time"`
}

// ExecutionReport is produced by the engine and never mutated after creation.
type ExecutionReport struct {
	Status       ReportStatus `json:"status"`
	ClientID     uint64       `json:"client_id"`
	OrderID      uint64       `json:"order_id"`
	Instrument   string       `json:"instrument"`
	OrderQty     uint32       `json:"order_qty"`
	OrderPrice   float64      `json:"order_price"`
	FillQty      uint32       `json:"fill_qty"`
	FillPrice    float64      `json:"fill_price"`
	LeaveQty     uint32       `json:"leave_qty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Time         string       `json:"time"`
}

// OrderReport describes one resident order in a QueryOrders response.
type OrderReport struct {
	OrderID    uint64    `json:"order_id"`
	ClientID   uint64    `json:"client_id"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	OrderType  OrderType `json:"order_type"`
	Quantity   uint32    `json:"quantity"`
	Price      float64   `json:"price"`
	Time       string    `json:"time"`
}
