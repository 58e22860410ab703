package protocol

import (
	match "github.com/0x5487/tradesim"
)

// CommandType defines the type of the command (using uint8 for memory alignment and performance)
type CommandType uint8

// Command Type Numbering Strategy:
// - 0-50:  Session and query commands (no book mutation)
// - 51+:   Trading commands (hot path)
const (
	CmdUnknown CommandType = 0
	CmdHelp    CommandType = 1
	CmdQuit    CommandType = 2
	CmdBook    CommandType = 3
	CmdDepth   CommandType = 4
	CmdTrades  CommandType = 5

	CmdNewLimit  CommandType = 51
	CmdNewMarket CommandType = 52
	CmdCancel    CommandType = 53
)

// String returns a lower-case name suitable for log fields and metric labels.
func (t CommandType) String() string {
	switch t {
	case CmdHelp:
		return "help"
	case CmdQuit:
		return "quit"
	case CmdBook:
		return "book"
	case CmdDepth:
		return "depth"
	case CmdTrades:
		return "trades"
	case CmdNewLimit:
		return "new_limit"
	case CmdNewMarket:
		return "new_market"
	case CmdCancel:
		return "cancel"
	}
	return "unknown"
}

// IsTrading reports whether the command may change the book.
func (t CommandType) IsTrading() bool {
	return t > 50
}

// DefaultDepthLevels is used when DEPTH is sent without a level count.
const DefaultDepthLevels = 5

// Command is one parsed request line. Only the fields relevant to Type are set.
type Command struct {
	Type CommandType `json:"type"`

	// NEW LIMIT / NEW MARKET
	Side   match.Side  `json:"side,omitempty"`
	Qty    match.Qty   `json:"qty,omitempty"`
	Price  match.Price `json:"price,omitempty"`
	Client string      `json:"client,omitempty"`

	// CANCEL
	OrderID match.OrderID `json:"order_id,omitempty"`

	// DEPTH
	Levels uint32 `json:"levels,omitempty"`
}
