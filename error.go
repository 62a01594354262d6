package match

import "errors"

var (
	ErrInvalidParam = errors.New("the param is invalid")
	ErrTimeout      = errors.New("timeout")
	ErrShutdown     = errors.New("dispatcher is shutting down")
	ErrNotFound     = errors.New("not found")
	ErrConnGone     = errors.New("connection has been torn down")
	ErrConnClosed   = errors.New("connection is closed")
)

// Messages carried by OrderReject and CancelReject reports.
const (
	MsgIllegalClientID  = "ClientID is illegal!"
	MsgIllegalDirection = "Order direction is illegal!"
	MsgIllegalQuantity  = "Order quantity is illegal!"
	MsgIllegalPrice     = "Order price is illegal!"
	MsgIllegalOrderType = "Order type is illegal!"
	MsgOrderNotFound    = "Can not find OrderID!"
)
