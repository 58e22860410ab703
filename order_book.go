package match

// OrderBook holds resting limit orders in price-time priority.
// Bids iterate highest price first, asks lowest price first, and every level
// is a FIFO queue. OrderBook is not safe for concurrent use; MatchingEngine
// serializes access to it.
type OrderBook struct {
	bidQueue *queue
	askQueue *queue
	// locator maps every resting order id to its order, which carries its side and price.
	locator map[OrderID]*Order
	tradeID uint64
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bidQueue: NewBuyerQueue(),
		askQueue: NewSellerQueue(),
		locator:  make(map[OrderID]*Order),
	}
}

func (book *OrderBook) queueFor(side Side) *queue {
	if side == Buy {
		return book.bidQueue
	}
	return book.askQueue
}

// AddLimit rests order at the tail of its price level without matching.
// It is only meant for remainders that no longer cross.
func (book *OrderBook) AddLimit(order *Order) {
	if order.Qty <= 0 {
		panic("match: resting order must have a positive quantity")
	}
	if !order.Side.Valid() {
		panic("match: resting order has an invalid side")
	}
	if _, exists := book.locator[order.ID]; exists {
		panic("match: order id is already resting")
	}

	book.queueFor(order.Side).insertOrder(order)
	book.locator[order.ID] = order
}

// MatchMarket consumes liquidity opposite to side, best price first, until qty
// is filled or the opposite side is empty. Nothing rests: the unfilled
// remainder is dropped. Taker id and client are left for the caller to stamp.
func (book *OrderBook) MatchMarket(side Side, qty Qty) []Trade {
	if qty <= 0 {
		return nil
	}

	taker := &Order{Side: side, Qty: qty}
	return book.cross(taker, false)
}

// MatchOrAddLimit crosses order against the opposite side while the best
// opposite price satisfies its limit, then rests whatever is left.
func (book *OrderBook) MatchOrAddLimit(order *Order) []Trade {
	trades := book.cross(order, true)
	if order.Qty > 0 {
		book.AddLimit(order)
	}
	return trades
}

// Cancel removes a resting order. It returns false when no such order rests.
func (book *OrderBook) Cancel(id OrderID) bool {
	return book.cancelOrder(id) != nil
}

// cancelOrder removes a resting order and returns it, or nil when not found.
func (book *OrderBook) cancelOrder(id OrderID) *Order {
	order, ok := book.locator[id]
	if !ok {
		return nil
	}

	book.queueFor(order.Side).removeOrder(order)
	delete(book.locator, id)
	return order
}

// Top reports the best level of each side and the total size resting there.
func (book *OrderBook) Top() TopOfBook {
	var top TopOfBook

	if unit := book.bidQueue.bestUnit(); unit != nil {
		top.HasBid = true
		top.BidPrice = unit.price
		top.BidQty = unit.totalSize
	}

	if unit := book.askQueue.bestUnit(); unit != nil {
		top.HasAsk = true
		top.AskPrice = unit.price
		top.AskQty = unit.totalSize
	}

	return top
}

// Depth returns up to limit best levels per side.
func (book *OrderBook) Depth(limit uint32) *Depth {
	return &Depth{
		Asks: book.askQueue.depth(limit),
		Bids: book.bidQueue.depth(limit),
	}
}

// Stats returns order and level counts per side.
func (book *OrderBook) Stats() BookStats {
	return BookStats{
		AskDepthCount: book.askQueue.depthCount(),
		AskOrderCount: book.askQueue.orderCount(),
		BidDepthCount: book.bidQueue.depthCount(),
		BidOrderCount: book.bidQueue.orderCount(),
	}
}

// Snapshot copies every resting order in priority order.
func (book *OrderBook) Snapshot() *BookSnapshot {
	return &BookSnapshot{
		Bids: book.bidQueue.toSnapshot(),
		Asks: book.askQueue.toSnapshot(),
	}
}

// order returns the resting order with the given id, or nil.
func (book *OrderBook) order(id OrderID) *Order {
	return book.locator[id]
}

// cross fills taker against the opposite side, best level first and FIFO
// within a level. When limited is set it stops at the first level whose price
// no longer satisfies the taker's limit; market takers never look at price.
func (book *OrderBook) cross(taker *Order, limited bool) []Trade {
	targetQueue := book.queueFor(taker.Side.Opposite())
	trades := make([]Trade, 0, 4)

	for taker.Qty > 0 {
		unit := targetQueue.bestUnit()
		if unit == nil {
			break
		}

		if limited && !crosses(taker, unit.price) {
			break
		}

		maker := unit.head
		fill := min(taker.Qty, maker.Qty)

		book.tradeID++
		trades = append(trades, Trade{
			ID:          book.tradeID,
			MakerID:     maker.ID,
			TakerID:     taker.ID,
			Qty:         fill,
			Price:       unit.price,
			MakerClient: maker.Client,
			TakerClient: taker.Client,
			MakerSide:   maker.Side,
			TakerSide:   taker.Side,
		})

		taker.Qty -= fill
		if fill == maker.Qty {
			targetQueue.removeOrder(maker)
			delete(book.locator, maker.ID)
			maker.Qty = 0
		} else {
			targetQueue.reduceHead(unit, fill)
		}
	}

	return trades
}

// crosses reports whether a limit taker may trade at the given opposite price.
func crosses(taker *Order, price Price) bool {
	if taker.Side == Buy {
		return price <= taker.Price
	}
	return price >= taker.Price
}
