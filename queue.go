package match

import (
	"github.com/huandu/skiplist"
)

// priceUnit is one price level: a FIFO of resting orders.
type priceUnit struct {
	price     Price
	totalSize Qty
	head      *Order
	tail      *Order
	count     int64
}

type queue struct {
	side        Side
	totalOrders int64
	depths      int64
	depthList   *skiplist.SkipList
	priceList   map[Price]*skiplist.Element
}

// NewBuyerQueue creates a new queue for buy orders (bids).
// The orders are sorted by price in descending order (highest price first).
func NewBuyerQueue() *queue {
	return &queue{
		side: Buy,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			p1, _ := lhs.(Price)
			p2, _ := rhs.(Price)

			if p1 < p2 {
				return 1
			} else if p1 > p2 {
				return -1
			}

			return 0
		})),
		priceList: make(map[Price]*skiplist.Element),
	}
}

// NewSellerQueue creates a new queue for sell orders (asks).
// The orders are sorted by price in ascending order (lowest price first).
func NewSellerQueue() *queue {
	return &queue{
		side: Sell,
		depthList: skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs any) int {
			p1, _ := lhs.(Price)
			p2, _ := rhs.(Price)

			if p1 > p2 {
				return 1
			} else if p1 < p2 {
				return -1
			}

			return 0
		})),
		priceList: make(map[Price]*skiplist.Element),
	}
}

// insertOrder appends an order at the tail of its price level,
// creating the level when it does not exist yet.
func (q *queue) insertOrder(order *Order) {
	el, ok := q.priceList[order.Price]
	if ok {
		unit, _ := el.Value.(*priceUnit)
		order.prev = unit.tail
		order.next = nil
		if unit.tail != nil {
			unit.tail.next = order
		}
		unit.tail = order
		if unit.head == nil {
			unit.head = order
		}

		unit.totalSize += order.Qty
		unit.count++
		q.totalOrders++
		return
	}

	unit := &priceUnit{
		price:     order.Price,
		head:      order,
		tail:      order,
		totalSize: order.Qty,
		count:     1,
	}
	order.next = nil
	order.prev = nil

	q.priceList[order.Price] = q.depthList.Set(order.Price, unit)
	q.totalOrders++
	q.depths++
}

// removeOrder unlinks a resting order from its level.
// An emptied level is removed from the depth list immediately.
func (q *queue) removeOrder(order *Order) {
	skipElement, ok := q.priceList[order.Price]
	if !ok {
		panic("match: resting order has no price level")
	}
	unit, _ := skipElement.Value.(*priceUnit)

	if order.prev != nil {
		order.prev.next = order.next
	} else {
		unit.head = order.next
	}

	if order.next != nil {
		order.next.prev = order.prev
	} else {
		unit.tail = order.prev
	}

	order.next = nil
	order.prev = nil

	unit.totalSize -= order.Qty
	unit.count--
	q.totalOrders--

	if unit.count == 0 {
		q.depthList.RemoveElement(skipElement)
		delete(q.priceList, order.Price)
		q.depths--
	}
}

// reduceHead takes qty off the first order of the best level in place,
// so a partially filled maker keeps its queue position.
func (q *queue) reduceHead(unit *priceUnit, qty Qty) {
	unit.head.Qty -= qty
	unit.totalSize -= qty
}

// bestUnit returns the best price level, or nil when the side is empty.
func (q *queue) bestUnit() *priceUnit {
	el := q.depthList.Front()
	if el == nil {
		return nil
	}

	unit, _ := el.Value.(*priceUnit)
	return unit
}

// orderCount returns the total number of orders in the queue.
func (q *queue) orderCount() int64 {
	return q.totalOrders
}

// depthCount returns the number of price levels in the queue.
func (q *queue) depthCount() int64 {
	return q.depths
}

// toSnapshot copies the queue in priority order: best level first, FIFO within a level.
func (q *queue) toSnapshot() []Order {
	snapshots := make([]Order, 0, q.totalOrders)

	for elem := q.depthList.Front(); elem != nil; elem = elem.Next() {
		unit, _ := elem.Value.(*priceUnit)
		for order := unit.head; order != nil; order = order.next {
			snapshots = append(snapshots, Order{
				ID:      order.ID,
				Client:  order.Client,
				Side:    order.Side,
				Qty:     order.Qty,
				Price:   order.Price,
				IsLimit: order.IsLimit,
			})
		}
	}

	return snapshots
}

// depth returns the order book depth up to the specified limit.
func (q *queue) depth(limit uint32) []*DepthItem {
	result := make([]*DepthItem, 0, min(int64(limit), q.depths))

	el := q.depthList.Front()

	var i uint32 = 0
	for i < limit && el != nil {
		unit, _ := el.Value.(*priceUnit)
		result = append(result, &DepthItem{
			Price: unit.price,
			Size:  unit.totalSize,
			Count: unit.count,
		})

		el = el.Next()
		i++
	}

	return result
}
