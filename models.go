package match

import (
	"time"

	"github.com/0x5487/order-process-system/protocol"
)

type Side = protocol.Side

const (
	Buy  Side = protocol.SideBuy
	Sell Side = protocol.SideSell
)

type OrderType = protocol.OrderType

const (
	Market OrderType = protocol.OrderTypeMarket
	Limit  OrderType = protocol.OrderTypeLimit
)

// Order represents the state of an order held by the Order Store.
// Quantity is the remaining quantity; it is always > 0 while the order is resident.
type Order struct {
	ID         uint64    `json:"id"`
	ClientID   uint64    `json:"client_id"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Quantity   uint32    `json:"quantity"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"` // submission time
}

// RoutedReport pairs a report with the order whose caller must receive it.
// OrderID 0 addresses the call that submitted the request (rejections).
type RoutedReport struct {
	OrderID uint64
	Report  *protocol.ExecutionReport
}

// opposite returns the side an incoming order of side s matches against.
func opposite(s Side) Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
