package tradelog

import (
	"sync"
	"testing"

	match "github.com/0x5487/tradesim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(trades []match.Trade) []uint64 {
	out := make([]uint64, len(trades))
	for i, tr := range trades {
		out[i] = tr.ID
	}
	return out
}

func TestLog(t *testing.T) {
	l := New(3)
	assert.Empty(t, l.Recent(0))

	l.Add(match.Trade{ID: 1}, match.Trade{ID: 2})
	assert.Equal(t, []uint64{1, 2}, ids(l.Recent(0)))

	l.Add(match.Trade{ID: 3}, match.Trade{ID: 4}, match.Trade{ID: 5})
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(5), l.Total())
	assert.Equal(t, []uint64{3, 4, 5}, ids(l.Recent(0)))
	assert.Equal(t, []uint64{4, 5}, ids(l.Recent(2)))
	assert.Equal(t, []uint64{3, 4, 5}, ids(l.Recent(10)))

	l.Add()
	assert.Equal(t, uint64(5), l.Total())
}

func TestLogDefaultSize(t *testing.T) {
	l := New(0)
	for i := 1; i <= DefaultSize+10; i++ {
		l.Add(match.Trade{ID: uint64(i)})
	}

	recent := l.Recent(0)
	require.Len(t, recent, DefaultSize)
	assert.Equal(t, uint64(11), recent[0].ID)
	assert.Equal(t, uint64(DefaultSize+10), recent[len(recent)-1].ID)
}

func TestLogConcurrent(t *testing.T) {
	l := New(100)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				l.Add(match.Trade{ID: uint64(i)})
				_ = l.Recent(10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), l.Total())
	assert.Equal(t, 100, l.Len())
}
