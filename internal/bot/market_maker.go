package bot

import (
	"context"
	"fmt"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/client"
)

const (
	DefaultMarketMakerLoops = 80
	DefaultMarketMakerDelay = 400 * time.Millisecond
)

var (
	// DefaultMid is quoted around when the book is empty.
	DefaultMid    = match.MustParsePrice("10.00")
	DefaultSpread = match.MustParsePrice("0.05")
)

// MarketMaker reads the top of book and quotes one lot on each side of the mid.
type MarketMaker struct {
	cfg    Config
	Spread match.Price
	Size   match.Qty
}

func NewMarketMaker(cfg Config) *MarketMaker {
	return &MarketMaker{
		cfg:    cfg.withDefaults(DefaultMarketMakerLoops, "mm"),
		Spread: DefaultSpread,
		Size:   1,
	}
}

// Mid is the midpoint of a two-sided book. A one-sided book is shifted away
// from its only level by the spread; an empty book uses DefaultMid.
func (m *MarketMaker) Mid(top match.TopOfBook) match.Price {
	switch {
	case top.HasBid && top.HasAsk:
		return (top.BidPrice + top.AskPrice) / 2
	case top.HasBid:
		return top.BidPrice + m.Spread
	case top.HasAsk:
		return top.AskPrice - m.Spread
	}
	return DefaultMid
}

// Quote returns the bid and ask to place for top. A bid that would not be a
// positive price is returned as zero.
func (m *MarketMaker) Quote(top match.TopOfBook) (bid, ask match.Price) {
	mid := m.Mid(top)
	bid = mid - m.Spread
	if bid <= 0 {
		bid = 0
	}
	return bid, mid + m.Spread
}

func (m *MarketMaker) Run(ctx context.Context, c *client.Client) (Stats, error) {
	var stats Stats
	err := run(ctx, m.cfg, c, &stats, func() error {
		top, err := c.Book()
		if err != nil {
			return err
		}

		bid, ask := m.Quote(top)
		if bid > 0 {
			if err := send(m.cfg, c, &stats, fmt.Sprintf("NEW LIMIT BUY %d @ %s CLIENT %s", m.Size, bid, m.cfg.Client)); err != nil {
				return err
			}
		}
		return send(m.cfg, c, &stats, fmt.Sprintf("NEW LIMIT SELL %d @ %s CLIENT %s", m.Size, ask, m.cfg.Client))
	})
	return stats, err
}
