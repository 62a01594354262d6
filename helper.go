package match

import (
	"github.com/0x5487/order-process-system/protocol"
)

// validateNewOrder checks the request fields in a fixed order and returns the
// message of the first violation, or "" when the request is acceptable.
func validateNewOrder(req *protocol.NewOrderRequest) string {
	switch {
	case req.ClientID == 0:
		return MsgIllegalClientID
	case req.Side != Sell && req.Side != Buy:
		return MsgIllegalDirection
	case req.Quantity == 0:
		return MsgIllegalQuantity
	case !(req.Price > 0):
		return MsgIllegalPrice
	case req.OrderType != Limit && req.OrderType != Market:
		return MsgIllegalOrderType
	}
	return ""
}

// crosses reports whether a taker may trade against a maker resting on the opposite side.
// A market taker is always price compatible; otherwise the sell price must not exceed the buy price.
func crosses(taker, maker *Order) bool {
	if taker.Type == Market {
		return true
	}

	sellPrice, buyPrice := taker.Price, maker.Price
	if taker.Side == Buy {
		sellPrice, buyPrice = maker.Price, taker.Price
	}
	return sellPrice <= buyPrice+PriceEpsilon
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
