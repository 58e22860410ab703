package bot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/client"
)

const (
	DefaultRandomLoops  = 50
	DefaultRandomDelay  = 300 * time.Millisecond
	DefaultRandomMaxQty = 5
)

// Random peeks at the book and sends market orders of random side and size.
type Random struct {
	cfg    Config
	MaxQty match.Qty
	rng    *rand.Rand
}

// NewRandom seeds the generator with seed so runs can be replayed.
func NewRandom(cfg Config, seed uint64) *Random {
	return &Random{
		cfg:    cfg.withDefaults(DefaultRandomLoops, "random"),
		MaxQty: DefaultRandomMaxQty,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next draws the side and quantity (1..MaxQty) of the next order.
func (b *Random) Next() (match.Side, match.Qty) {
	side := match.Sell
	if b.rng.IntN(2) == 1 {
		side = match.Buy
	}
	return side, 1 + b.rng.Int64N(b.MaxQty)
}

func (b *Random) Run(ctx context.Context, c *client.Client) (Stats, error) {
	var stats Stats
	err := run(ctx, b.cfg, c, &stats, func() error {
		if _, err := c.Book(); err != nil {
			return err
		}
		side, qty := b.Next()
		return send(b.cfg, c, &stats, fmt.Sprintf("NEW MARKET %s %d CLIENT %s", side, qty, b.cfg.Client))
	})
	return stats, err
}
