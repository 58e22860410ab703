package match

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type LogType string

const (
	LogTypeOpen   LogType = "open"
	LogTypeMatch  LogType = "match"
	LogTypeCancel LogType = "cancel"
)

// BookLog represents an event in the order book.
// SequenceID is a globally increasing ID for every event, used for ordering,
// deduplication, and rebuild synchronization in downstream systems.
// For match events Side, OrderID and Client describe the taker.
type BookLog struct {
	SequenceID   uint64          `json:"seq_id"`
	TradeID      uint64          `json:"trade_id,omitempty"` // Only set for Match events
	Type         LogType         `json:"type"`
	Side         Side            `json:"side"`
	Price        Price           `json:"price"`
	Size         Qty             `json:"size"`
	Amount       decimal.Decimal `json:"amount,omitzero"` // Price * Size, only set for Match events
	OrderID      OrderID         `json:"order_id"`
	Client       string          `json:"client"`
	MakerOrderID OrderID         `json:"maker_order_id,omitempty"`
	MakerClient  string          `json:"maker_client,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

var bookLogPool = sync.Pool{
	New: func() any {
		return new(BookLog)
	},
}

func acquireBookLog() *BookLog {
	return bookLogPool.Get().(*BookLog)
}

func releaseBookLog(log *BookLog) {
	*log = BookLog{}
	bookLogPool.Put(log)
}

func newOpenLog(seqID uint64, order *Order, now time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeOpen
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Qty
	log.OrderID = order.ID
	log.Client = order.Client
	log.CreatedAt = now
	return log
}

func newMatchLog(seqID uint64, trade *Trade, now time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.TradeID = trade.ID
	log.Type = LogTypeMatch
	log.Side = trade.TakerSide
	log.Price = trade.Price
	log.Size = trade.Qty
	log.Amount = trade.Price.Decimal().Mul(decimal.NewFromInt(trade.Qty))
	log.OrderID = trade.TakerID
	log.Client = trade.TakerClient
	log.MakerOrderID = trade.MakerID
	log.MakerClient = trade.MakerClient
	log.CreatedAt = now
	return log
}

func newCancelLog(seqID uint64, order *Order, now time.Time) *BookLog {
	log := acquireBookLog()
	log.SequenceID = seqID
	log.Type = LogTypeCancel
	log.Side = order.Side
	log.Price = order.Price
	log.Size = order.Qty
	log.OrderID = order.ID
	log.Client = order.Client
	log.CreatedAt = now
	return log
}
