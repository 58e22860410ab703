package match

import (
	"fmt"
	"sync"

	"github.com/igrmk/treemap/v2"
)

// AggregatedBook maintains a simplified view of the order book,
// tracking only price levels and their aggregated sizes (depth).
// It is designed for downstream consumers that rebuild order book state
// from BookLog events alone. Both trees iterate best price first.
type AggregatedBook struct {
	mu    sync.RWMutex
	seqID uint64 // Last applied SequenceID for gap detection and deduplication
	ask   *treemap.TreeMap[Price, Qty]
	bid   *treemap.TreeMap[Price, Qty]
}

// NewAggregatedBook creates a new AggregatedBook instance with empty ask and bid sides.
func NewAggregatedBook() *AggregatedBook {
	return &AggregatedBook{
		ask: newAskTree(),
		bid: newBidTree(),
	}
}

func newAskTree() *treemap.TreeMap[Price, Qty] {
	return treemap.NewWithKeyCompare[Price, Qty](func(a, b Price) bool {
		return a < b
	})
}

func newBidTree() *treemap.TreeMap[Price, Qty] {
	return treemap.NewWithKeyCompare[Price, Qty](func(a, b Price) bool {
		return a > b
	})
}

// SequenceID returns the last processed sequence ID.
func (ab *AggregatedBook) SequenceID() uint64 {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	return ab.seqID
}

// Publish lets the aggregated book subscribe to an engine directly.
func (ab *AggregatedBook) Publish(logs ...*BookLog) {
	for _, log := range logs {
		if err := ab.Replay(log); err != nil {
			logger.Warn("aggregated book replay failed", "seq_id", log.SequenceID, "error", err)
		}
	}
}

// Replay applies a BookLog event to update the aggregated book state.
// Already applied events are ignored; a skipped sequence id returns ErrSequenceGap.
func (ab *AggregatedBook) Replay(log *BookLog) error {
	ab.mu.Lock()
	defer ab.mu.Unlock()

	if log.SequenceID <= ab.seqID {
		return nil
	}
	if log.SequenceID != ab.seqID+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, ab.seqID+1, log.SequenceID)
	}

	change := CalculateDepthChange(log)
	tree := ab.tree(change.Side)
	if tree == nil {
		return fmt.Errorf("%w: unknown log type %q", ErrInvalidParam, log.Type)
	}

	size, _ := tree.Get(change.Price)
	size += change.SizeDiff
	switch {
	case size < 0:
		return fmt.Errorf("%w: negative size %d at %s", ErrInvalidParam, size, change.Price)
	case size == 0:
		tree.Del(change.Price)
	default:
		tree.Set(change.Price, size)
	}

	ab.seqID = log.SequenceID
	return nil
}

// OnRebuild resets the aggregated book from a snapshot.
// Events after snap.SeqID can then be replayed on top of it.
func (ab *AggregatedBook) OnRebuild(snap *BookSnapshot) error {
	if snap == nil {
		return ErrInvalidParam
	}

	ask := newAskTree()
	bid := newBidTree()
	for _, o := range snap.Asks {
		size, _ := ask.Get(o.Price)
		ask.Set(o.Price, size+o.Qty)
	}
	for _, o := range snap.Bids {
		size, _ := bid.Get(o.Price)
		bid.Set(o.Price, size+o.Qty)
	}

	ab.mu.Lock()
	defer ab.mu.Unlock()
	ab.ask = ask
	ab.bid = bid
	ab.seqID = snap.SeqID
	return nil
}

// Depth returns the aggregated size at a specific price level for the given side.
// Returns zero if the price level does not exist.
func (ab *AggregatedBook) Depth(side Side, price Price) (Qty, error) {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	tree := ab.tree(side)
	if tree == nil {
		return 0, ErrInvalidSide
	}
	size, _ := tree.Get(price)
	return size, nil
}

// Top returns the best level of each side.
func (ab *AggregatedBook) Top() TopOfBook {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	var top TopOfBook
	if it := ab.bid.Iterator(); it.Valid() {
		top.HasBid = true
		top.BidPrice = it.Key()
		top.BidQty = it.Value()
	}
	if it := ab.ask.Iterator(); it.Valid() {
		top.HasAsk = true
		top.AskPrice = it.Key()
		top.AskQty = it.Value()
	}
	return top
}

// Levels returns up to limit levels of one side, best price first.
func (ab *AggregatedBook) Levels(side Side, limit int) []*DepthItem {
	ab.mu.RLock()
	defer ab.mu.RUnlock()

	tree := ab.tree(side)
	if tree == nil || limit <= 0 {
		return nil
	}

	items := make([]*DepthItem, 0, min(limit, tree.Len()))
	for it := tree.Iterator(); it.Valid() && len(items) < limit; it.Next() {
		items = append(items, &DepthItem{Price: it.Key(), Size: it.Value()})
	}
	return items
}

func (ab *AggregatedBook) tree(side Side) *treemap.TreeMap[Price, Qty] {
	switch side {
	case Buy:
		return ab.bid
	case Sell:
		return ab.ask
	}
	return nil
}
