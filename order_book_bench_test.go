package match

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/rs/xid"
)

func benchClients(n int) []string {
	clients := make([]string, n)
	for i := range clients {
		clients[i] = xid.New().String()
	}
	return clients
}

func BenchmarkPlaceOrders(b *testing.B) {
	engine := NewMatchingEngine()
	clients := benchClients(1000)

	// Use fixed seed for repeatability
	rng := rand.New(rand.NewSource(42))
	midPrice := Price(10 * PriceScale)
	tick := Price(PriceScale / 100)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		side := Buy
		if rng.Intn(2) == 1 {
			side = Sell
		}

		// 80% within 10 ticks of mid, the rest spread over 500 ticks.
		var offset Price
		if rng.Intn(100) < 80 {
			offset = Price(rng.Intn(10)+1) * tick
		} else {
			offset = Price(rng.Intn(490)+11) * tick
		}

		price := midPrice - offset
		if side == Sell {
			price = midPrice + offset
		}

		_, _ = engine.NewLimitOrder(clients[i%len(clients)], side, 1, price)
	}

	b.StopTimer()

	stats := engine.Stats()
	b.Logf("final book: bids=%d levels, asks=%d levels", stats.BidDepthCount, stats.AskDepthCount)

	totalSeconds := b.Elapsed().Seconds()
	if totalSeconds > 0 {
		b.ReportMetric(float64(b.N)/totalSeconds, "orders/sec")
	}
}

func BenchmarkMatching(b *testing.B) {
	engine := NewMatchingEngine()
	price := MustParsePrice("100.00")
	seller := xid.New().String()
	buyer := xid.New().String()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = engine.NewLimitOrder(seller, Sell, 1, price)
		_, _ = engine.NewLimitOrder(buyer, Buy, 1, price)
	}

	b.StopTimer()

	// Report ops/sec (each loop is 2 orders)
	totalSeconds := b.Elapsed().Seconds()
	if totalSeconds > 0 {
		b.ReportMetric(float64(b.N)*2/totalSeconds, "orders/sec")
	}
}

func BenchmarkCancel(b *testing.B) {
	for _, levels := range []int{1, 100, 10000} {
		b.Run(fmt.Sprintf("levels-%d", levels), func(b *testing.B) {
			book := NewOrderBook()
			orders := make([]*Order, b.N)
			for i := range orders {
				orders[i] = &Order{
					ID:      OrderID(i + 1),
					Side:    Buy,
					Qty:     1,
					Price:   Price(i%levels + 1),
					IsLimit: true,
				}
				book.AddLimit(orders[i])
			}

			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				book.Cancel(orders[i].ID)
			}
		})
	}
}
