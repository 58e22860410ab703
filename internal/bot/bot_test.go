package bot

import (
	"context"
	"testing"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/client"
	"github.com/0x5487/tradesim/internal/server"
	"github.com/0x5487/tradesim/internal/tradelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*server.Dispatcher, string) {
	t.Helper()

	d := server.NewDispatcher(match.NewMatchingEngine(), tradelog.New(1000))
	srv := server.New("127.0.0.1:0", d)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	})
	return d, srv.Addr().String()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMarketMakerQuote(t *testing.T) {
	mm := NewMarketMaker(Config{})
	px := match.MustParsePrice

	tests := []struct {
		name     string
		top      match.TopOfBook
		bid, ask match.Price
	}{
		{
			name: "empty book",
			bid:  px("9.95"),
			ask:  px("10.05"),
		},
		{
			name: "two sided",
			top:  match.TopOfBook{HasBid: true, BidPrice: px("10.00"), BidQty: 1, HasAsk: true, AskPrice: px("10.20"), AskQty: 1},
			bid:  px("10.05"),
			ask:  px("10.15"),
		},
		{
			name: "bid only",
			top:  match.TopOfBook{HasBid: true, BidPrice: px("9.00"), BidQty: 3},
			bid:  px("9.00"),
			ask:  px("9.10"),
		},
		{
			name: "ask only",
			top:  match.TopOfBook{HasAsk: true, AskPrice: px("11.00"), AskQty: 3},
			bid:  px("10.90"),
			ask:  px("11.00"),
		},
		{
			name: "no room for a bid",
			top:  match.TopOfBook{HasAsk: true, AskPrice: px("0.05"), AskQty: 3},
			bid:  0,
			ask:  px("0.05"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, ask := mm.Quote(tt.top)
			assert.Equal(t, tt.bid, bid)
			assert.Equal(t, tt.ask, ask)
		})
	}
}

func TestRandomNext(t *testing.T) {
	a := NewRandom(Config{}, 42)
	b := NewRandom(Config{}, 42)

	seen := map[match.Side]bool{}
	for i := 0; i < 200; i++ {
		side, qty := a.Next()
		side2, qty2 := b.Next()
		assert.Equal(t, side, side2)
		assert.Equal(t, qty, qty2)

		assert.True(t, side.Valid())
		assert.GreaterOrEqual(t, qty, match.Qty(1))
		assert.LessOrEqual(t, qty, match.Qty(DefaultRandomMaxQty))
		seen[side] = true
	}
	assert.Len(t, seen, 2)
}

func TestMarketMakerRun(t *testing.T) {
	d, addr := startServer(t)

	mm := NewMarketMaker(Config{Client: "mm1", Loops: 3})
	stats, err := mm.Run(context.Background(), dial(t, addr))
	require.NoError(t, err)
	assert.Equal(t, Stats{Loops: 3, Orders: 6}, stats)

	// An unchanged book yields the same quotes every loop.
	book := d.Engine().Snapshot()
	assert.Len(t, book.Bids, 3)
	assert.Len(t, book.Asks, 3)
	assert.Zero(t, d.History().Total())
	for _, o := range book.Bids {
		assert.Equal(t, "mm1", o.Client)
	}

	top := d.Engine().Top()
	assert.Equal(t, match.MustParsePrice("9.95"), top.BidPrice)
	assert.Equal(t, match.MustParsePrice("10.05"), top.AskPrice)
}

func TestRandomRunAgainstMarketMaker(t *testing.T) {
	d, addr := startServer(t)

	_, err := NewMarketMaker(Config{Loops: 10}).Run(context.Background(), dial(t, addr))
	require.NoError(t, err)

	stats, err := NewRandom(Config{Client: "rnd", Loops: 5}, 7).Run(context.Background(), dial(t, addr))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Loops)
	assert.Equal(t, 5, stats.Orders)
	assert.Zero(t, stats.Rejects)

	assert.Positive(t, d.History().Total())
	for _, tr := range d.History().Recent(0) {
		assert.Equal(t, "rnd", tr.TakerClient)
		assert.Equal(t, "mm", tr.MakerClient)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithCancel(context.Background())
	bot := NewRandom(Config{Loops: 1000, Delay: time.Hour}, 1)

	type result struct {
		stats Stats
		err   error
	}
	done := make(chan result, 1)
	go func() {
		stats, err := bot.Run(ctx, c)
		done <- result{stats, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Equal(t, 1, res.stats.Loops)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after cancel")
	}
}
