package protocol

import "strings"

// Side represents the order side (Sell/Buy).
type Side int8

const (
	SideUnknown Side = 0
	SideBuy     Side = 1
	SideSell    Side = 2
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide parses "SELL"/"BUY" case-insensitively. Unknown input yields SideUnknown.
func ParseSide(s string) Side {
	switch strings.ToUpper(s) {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return SideUnknown
	}
}

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// ParseOrderType parses "LIMIT"/"MARKET" case-insensitively. Unknown input is returned as is
// so that validation can reject it.
func ParseOrderType(s string) OrderType {
	switch strings.ToLower(s) {
	case "limit":
		return OrderTypeLimit
	case "market":
		return OrderTypeMarket
	default:
		return OrderType(s)
	}
}

// ReportStatus is the status carried by an ExecutionReport.
type ReportStatus string

const (
	StatusOrderAccept  ReportStatus = "order_accept"
	StatusOrderReject  ReportStatus = "order_reject"
	StatusFill         ReportStatus = "fill"
	StatusCanceled     ReportStatus = "canceled"
	StatusCancelReject ReportStatus = "cancel_reject"
)
