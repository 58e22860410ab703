package match

import (
	"sync"
	"time"
)

// Execution is the outcome of one order submission.
type Execution struct {
	OrderID OrderID `json:"order_id"`
	Trades  []Trade `json:"trades"`
	// Remaining is the unfilled quantity: resting for limit orders, dropped for market orders.
	Remaining Qty  `json:"remaining"`
	Rested    bool `json:"rested"`
}

// Filled returns the total quantity traded by the submission.
func (e *Execution) Filled() Qty {
	var filled Qty
	for i := range e.Trades {
		filled += e.Trades[i].Qty
	}
	return filled
}

// MatchingEngine owns one order book and serializes every operation on it.
// Each call runs in a single critical section, so a crossing match is atomic
// with respect to all other submissions, cancels and reads.
type MatchingEngine struct {
	mu         sync.Mutex
	book       *OrderBook
	nextID     OrderID
	seqID      uint64
	publishLog PublishLog
}

// Option configures a MatchingEngine.
type Option func(*MatchingEngine)

// WithPublishLog sets the sink that receives every book event.
func WithPublishLog(publishLog PublishLog) Option {
	return func(engine *MatchingEngine) {
		engine.publishLog = publishLog
	}
}

// NewMatchingEngine creates a new matching engine instance with an empty book.
func NewMatchingEngine(opts ...Option) *MatchingEngine {
	engine := &MatchingEngine{
		book:       NewOrderBook(),
		publishLog: discardPublishLog{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// NewLimitOrder submits a limit order and returns the trades it produced.
// Any unfilled remainder rests in the book.
func (engine *MatchingEngine) NewLimitOrder(client string, side Side, qty Qty, price Price) ([]Trade, error) {
	exec, err := engine.SubmitLimit(client, side, qty, price)
	if err != nil {
		return nil, err
	}
	return exec.Trades, nil
}

// NewMarketOrder submits a market order and returns the trades it produced.
// The unfilled remainder is dropped; market orders never rest.
func (engine *MatchingEngine) NewMarketOrder(client string, side Side, qty Qty) ([]Trade, error) {
	exec, err := engine.SubmitMarket(client, side, qty)
	if err != nil {
		return nil, err
	}
	return exec.Trades, nil
}

// SubmitLimit is NewLimitOrder that also reports the assigned order id and the remainder.
// Invalid input is rejected before an id is assigned or the book is touched.
func (engine *MatchingEngine) SubmitLimit(client string, side Side, qty Qty, price Price) (*Execution, error) {
	if err := validateOrder(side, qty); err != nil {
		logger.Debug("limit order rejected", "client", client, "error", err)
		return nil, err
	}
	if price <= 0 {
		logger.Debug("limit order rejected", "client", client, "error", ErrInvalidPrice)
		return nil, ErrInvalidPrice
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	engine.nextID++
	order := &Order{
		ID:      engine.nextID,
		Client:  client,
		Side:    side,
		Qty:     qty,
		Price:   price,
		IsLimit: true,
	}

	trades := engine.book.MatchOrAddLimit(order)

	now := time.Now().UTC()
	logs := make([]*BookLog, 0, len(trades)+1)
	for i := range trades {
		logs = append(logs, newMatchLog(engine.nextSeqID(), &trades[i], now))
	}
	if order.Qty > 0 {
		logs = append(logs, newOpenLog(engine.nextSeqID(), order, now))
	}
	engine.publish(logs)

	return &Execution{
		OrderID:   order.ID,
		Trades:    trades,
		Remaining: order.Qty,
		Rested:    order.Qty > 0,
	}, nil
}

// SubmitMarket is NewMarketOrder that also reports the assigned taker id and
// the quantity that could not be filled.
func (engine *MatchingEngine) SubmitMarket(client string, side Side, qty Qty) (*Execution, error) {
	if err := validateOrder(side, qty); err != nil {
		logger.Debug("market order rejected", "client", client, "error", err)
		return nil, err
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	engine.nextID++
	takerID := engine.nextID

	trades := engine.book.MatchMarket(side, qty)

	now := time.Now().UTC()
	logs := make([]*BookLog, 0, len(trades))
	var filled Qty
	for i := range trades {
		trades[i].TakerID = takerID
		trades[i].TakerClient = client
		trades[i].TakerSide = side
		filled += trades[i].Qty
		logs = append(logs, newMatchLog(engine.nextSeqID(), &trades[i], now))
	}
	engine.publish(logs)

	return &Execution{
		OrderID:   takerID,
		Trades:    trades,
		Remaining: qty - filled,
	}, nil
}

// Cancel removes a resting order. It returns false when the id is unknown,
// already filled or already cancelled.
func (engine *MatchingEngine) Cancel(id OrderID) bool {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	order := engine.book.cancelOrder(id)
	if order == nil {
		return false
	}

	engine.publish([]*BookLog{newCancelLog(engine.nextSeqID(), order, time.Now().UTC())})
	return true
}

// Top returns the current best bid and ask.
func (engine *MatchingEngine) Top() TopOfBook {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return engine.book.Top()
}

// Depth returns the current depth of the order book up to the specified limit.
func (engine *MatchingEngine) Depth(limit uint32) (*Depth, error) {
	if limit == 0 {
		return nil, ErrInvalidParam
	}

	engine.mu.Lock()
	defer engine.mu.Unlock()

	depth := engine.book.Depth(limit)
	depth.UpdateID = engine.seqID
	return depth, nil
}

// Stats returns usage statistics for the order book.
func (engine *MatchingEngine) Stats() BookStats {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return engine.book.Stats()
}

// Snapshot copies every resting order together with the last event sequence id.
func (engine *MatchingEngine) Snapshot() *BookSnapshot {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	snap := engine.book.Snapshot()
	snap.SeqID = engine.seqID
	return snap
}

func (engine *MatchingEngine) nextSeqID() uint64 {
	engine.seqID++
	return engine.seqID
}

func (engine *MatchingEngine) publish(logs []*BookLog) {
	if len(logs) == 0 {
		return
	}

	engine.publishLog.Publish(logs...)
	for _, log := range logs {
		releaseBookLog(log)
	}
}

func validateOrder(side Side, qty Qty) error {
	if !side.Valid() {
		return ErrInvalidSide
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > MaxOrderQty {
		return ErrQuantityTooLarge
	}
	return nil
}
