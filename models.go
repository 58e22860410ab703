package match

import "strings"

type Side int8

const (
	Buy  Side = 1
	Sell Side = 2
)

// ParseSide accepts "buy"/"sell" in any letter case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return 0, ErrInvalidSide
}

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "UNKNOWN"
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrInvalidSide
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Qty is an order or trade quantity.
type Qty = int64

// OrderID is assigned by the engine; ids are never reused.
type OrderID = uint64

// Order represents the state of an order in the order book.
// Qty is the remaining quantity. For market orders Price carries no constraint.
type Order struct {
	ID      OrderID `json:"id"`
	Client  string  `json:"client"`
	Side    Side    `json:"side"`
	Qty     Qty     `json:"qty"`
	Price   Price   `json:"price"`
	IsLimit bool    `json:"is_limit"`

	// Intrusive linked list pointers (ignored by JSON)
	next *Order
	prev *Order
}

// Trade is an immutable execution record. Price is always the maker's price.
type Trade struct {
	ID          uint64  `json:"id"`
	MakerID     OrderID `json:"maker_id"`
	TakerID     OrderID `json:"taker_id"`
	Qty         Qty     `json:"qty"`
	Price       Price   `json:"price"`
	MakerClient string  `json:"maker_client"`
	TakerClient string  `json:"taker_client"`
	MakerSide   Side    `json:"maker_side"`
	TakerSide   Side    `json:"taker_side"`
}

// TopOfBook is the best level on each side at the instant it was taken.
type TopOfBook struct {
	HasBid   bool  `json:"has_bid"`
	BidPrice Price `json:"bid_price"`
	BidQty   Qty   `json:"bid_qty"`
	HasAsk   bool  `json:"has_ask"`
	AskPrice Price `json:"ask_price"`
	AskQty   Qty   `json:"ask_qty"`
}

// DepthItem is one aggregated price level.
type DepthItem struct {
	Price Price `json:"price"`
	Size  Qty   `json:"size"`
	Count int64 `json:"count"`
}

type Depth struct {
	UpdateID uint64       `json:"update_id"`
	Asks     []*DepthItem `json:"asks"`
	Bids     []*DepthItem `json:"bids"`
}

// BookStats contains statistics about the order book queues
type BookStats struct {
	AskDepthCount int64 `json:"ask_depth_count"`
	AskOrderCount int64 `json:"ask_order_count"`
	BidDepthCount int64 `json:"bid_depth_count"`
	BidOrderCount int64 `json:"bid_order_count"`
}

// BookSnapshot lists every resting order, best price first and FIFO within a level.
type BookSnapshot struct {
	SeqID uint64  `json:"seq_id"`
	Bids  []Order `json:"bids"`
	Asks  []Order `json:"asks"`
}
