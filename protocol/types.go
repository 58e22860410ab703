package protocol

import (
	"errors"

	match "github.com/0x5487/tradesim"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// PlaceOrderRequest is the JSON body of POST /orders.
// Price is a decimal string and is ignored for market orders.
type PlaceOrderRequest struct {
	Client string      `json:"client"`
	Side   match.Side  `json:"side"`
	Type   OrderType   `json:"type"`
	Qty    match.Qty   `json:"qty"`
	Price  match.Price `json:"price,omitempty"`
}

// CancelOrderResponse is returned by DELETE /orders/{id}.
type CancelOrderResponse struct {
	OrderID   match.OrderID `json:"order_id"`
	Cancelled bool          `json:"cancelled"`
}

// GetTradesResponse lists recent trades, oldest first.
type GetTradesResponse struct {
	Trades []match.Trade `json:"trades"`
}

// GetLevelsResponse lists aggregated price levels of one side, best first,
// as of SequenceID.
type GetLevelsResponse struct {
	SequenceID uint64             `json:"sequence_id"`
	Side       match.Side         `json:"side"`
	Levels     []*match.DepthItem `json:"levels"`
}

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Status    int          `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	Instance  string       `json:"instance,omitempty"`
	Reason    RejectReason `json:"reason,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// RejectReason represents the reason why a request was rejected.
type RejectReason string

const (
	RejectReasonNone            RejectReason = ""
	RejectReasonInvalidQuantity RejectReason = "invalid_quantity"
	RejectReasonInvalidPrice    RejectReason = "invalid_price"
	RejectReasonInvalidSide     RejectReason = "invalid_side"
	RejectReasonInvalidParam    RejectReason = "invalid_param"
	RejectReasonUnknownCommand  RejectReason = "unknown_command"
	RejectReasonInvalidPayload  RejectReason = "invalid_payload"
	RejectReasonOrderNotFound   RejectReason = "order_not_found"
)

// RejectReasonOf classifies an error returned by Parse or by the engine.
func RejectReasonOf(err error) RejectReason {
	switch {
	case err == nil:
		return RejectReasonNone
	case errors.Is(err, match.ErrInvalidQuantity):
		return RejectReasonInvalidQuantity
	case errors.Is(err, match.ErrInvalidPrice):
		return RejectReasonInvalidPrice
	case errors.Is(err, match.ErrInvalidSide), errors.Is(err, ErrInvalidSide):
		return RejectReasonInvalidSide
	case errors.Is(err, match.ErrInvalidParam):
		return RejectReasonInvalidParam
	case errors.Is(err, ErrUnknownCommand):
		return RejectReasonUnknownCommand
	}
	return RejectReasonInvalidPayload
}
