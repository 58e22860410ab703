// Package tradelog keeps the most recent trades in a fixed-size ring.
package tradelog

import (
	"sync"

	match "github.com/0x5487/tradesim"
)

const DefaultSize = 1000

// Log is a bounded, concurrency-safe history of trades. Once full, each new
// trade evicts the oldest one.
type Log struct {
	mu    sync.RWMutex
	buf   []match.Trade
	start int
	count int
	total uint64
}

// New creates a Log holding at most size trades. A non-positive size uses DefaultSize.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{buf: make([]match.Trade, size)}
}

// Add appends trades in order.
func (l *Log) Add(trades ...match.Trade) {
	if len(trades) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, tr := range trades {
		end := (l.start + l.count) % len(l.buf)
		l.buf[end] = tr
		if l.count < len(l.buf) {
			l.count++
		} else {
			l.start = (l.start + 1) % len(l.buf)
		}
	}
	l.total += uint64(len(trades))
}

// Recent returns up to limit of the newest trades, oldest first.
// A non-positive limit returns everything retained.
func (l *Log) Recent(limit int) []match.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]match.Trade, n)
	first := l.start + l.count - n
	for i := 0; i < n; i++ {
		out[i] = l.buf[(first+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of retained trades.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Total returns the number of trades ever added, including evicted ones.
func (l *Log) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
