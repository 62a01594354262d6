package match

import (
	"time"

	"github.com/0x5487/order-process-system/protocol"
)

// TimeLayout is the layout of every time string the engine emits.
const TimeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// newRejectReport reports a request that failed validation. No order ID is assigned.
func newRejectReport(req *protocol.NewOrderRequest, msg string, now time.Time) *protocol.ExecutionReport {
	return &protocol.ExecutionReport{
		Status:       protocol.StatusOrderReject,
		ClientID:     req.ClientID,
		Instrument:   req.Instrument,
		OrderQty:     req.Quantity,
		OrderPrice:   req.Price,
		LeaveQty:     req.Quantity,
		ErrorMessage: msg,
		Time:         formatTime(now),
	}
}

func newAcceptReport(order *Order, now time.Time) *protocol.ExecutionReport {
	return &protocol.ExecutionReport{
		Status:     protocol.StatusOrderAccept,
		ClientID:   order.ClientID,
		OrderID:    order.ID,
		Instrument: order.Instrument,
		OrderQty:   order.Quantity,
		OrderPrice: order.Price,
		LeaveQty:   order.Quantity,
		Time:       formatTime(now),
	}
}

// newFillReport describes one side of a trade. orderQty is the quantity the order carried
// before the report was produced and leaveQty what remains after it.
func newFillReport(order *Order, orderQty, fillQty uint32, fillPrice float64, leaveQty uint32, now time.Time) *protocol.ExecutionReport {
	return &protocol.ExecutionReport{
		Status:     protocol.StatusFill,
		ClientID:   order.ClientID,
		OrderID:    order.ID,
		Instrument: order.Instrument,
		OrderQty:   orderQty,
		OrderPrice: order.Price,
		FillQty:    fillQty,
		FillPrice:  fillPrice,
		LeaveQty:   leaveQty,
		Time:       formatTime(now),
	}
}

func newCanceledReport(order *Order, now time.Time) *protocol.ExecutionReport {
	return &protocol.ExecutionReport{
		Status:     protocol.StatusCanceled,
		ClientID:   order.ClientID,
		OrderID:    order.ID,
		Instrument: order.Instrument,
		OrderQty:   order.Quantity,
		OrderPrice: order.Price,
		LeaveQty:   order.Quantity,
		Time:       formatTime(now),
	}
}

func newCancelRejectReport(orderID uint64, now time.Time) *protocol.ExecutionReport {
	return &protocol.ExecutionReport{
		Status:       protocol.StatusCancelReject,
		OrderID:      orderID,
		ErrorMessage: MsgOrderNotFound,
		Time:         formatTime(now),
	}
}

func newOrderReport(order *Order) *protocol.OrderReport {
	return &protocol.OrderReport{
		OrderID:    order.ID,
		ClientID:   order.ClientID,
		Instrument: order.Instrument,
		Side:       order.Side,
		OrderType:  order.Type,
		Quantity:   order.Quantity,
		Price:      order.Price,
		Time:       formatTime(order.Timestamp),
	}
}
