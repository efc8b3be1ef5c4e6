package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mkBars(symbol string, n int, startAt time.Time) []Bar {
	out := make([]Bar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Bar{
			Symbol: symbol,
			Start:  startAt.Add(time.Duration(i) * time.Minute),
			Close:  100 + float64(i),
			Period: "1m",
		})
	}
	return out
}

func TestCacheRingBound(t *testing.T) {
	c := NewCache(5)
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	c.PutBars("HK.00700", mkBars("HK.00700", 8, start))

	bars := c.GetBars("HK.00700", 0)
	assert.Len(t, bars, 5)
	assert.Equal(t, 103.0, bars[0].Close, "oldest bars dropped")
	assert.Equal(t, 107.0, bars[4].Close)
}

func TestCacheMergeByStart(t *testing.T) {
	c := NewCache(100)
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	c.PutBars("HK.00700", mkBars("HK.00700", 3, start))
	// 重叠窗口：最后一根更新，追加一根新的
	next := mkBars("HK.00700", 2, start.Add(2*time.Minute))
	next[0].Close = 999
	c.PutBars("HK.00700", next)

	bars := c.GetBars("HK.00700", 0)
	assert.Len(t, bars, 4)
	assert.Equal(t, 999.0, bars[2].Close, "same-start bar replaced")

	last, ok := c.LastClose("HK.00700")
	assert.True(t, ok)
	assert.Equal(t, bars[3].Close, last)
}

func TestCacheGetLimit(t *testing.T) {
	c := NewCache(100)
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	c.PutBars("HK.00700", mkBars("HK.00700", 10, start))
	assert.Len(t, c.GetBars("HK.00700", 4), 4)
	assert.Nil(t, c.GetBars("HK.09988", 4))
}
