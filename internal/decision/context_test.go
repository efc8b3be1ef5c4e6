package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeflow/internal/market"
)

func makeBars(closes []float64) []market.Bar {
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	out := make([]market.Bar, 0, len(closes))
	for i, c := range closes {
		out = append(out, market.Bar{
			Symbol: "HK.00700",
			Start:  start.Add(time.Duration(i) * time.Minute),
			Open:   c, High: c + 1, Low: c - 1, Close: c,
			Volume: 1000,
		})
	}
	return out
}

func TestBuildContextBasics(t *testing.T) {
	snap := BuildContext(makeBars([]float64{100, 102, 101, 104, 103}), 3)
	assert.Equal(t, 5, snap.Bars)
	assert.Equal(t, 103.0, snap.CurrentPrice)
	assert.Equal(t, 105.0, snap.RecentHigh, "窗口内最高 high=104+1")
	assert.Equal(t, 100.0, snap.RecentLow, "窗口内最低 low=101-1")
	assert.Greater(t, snap.VolatilityRatio, 0.0)
}

func TestBuildContextVWAPDeviation(t *testing.T) {
	// 平盘时价格即 VWAP（典型价 = 收盘），偏离为 0
	bars := makeBars([]float64{100, 100, 100})
	snap := BuildContext(bars, 50)
	assert.InDelta(t, 0.0, snap.SignalStrength, 1e-9)
	assert.InDelta(t, 0.0, snap.VolatilityRatio, 1e-9)
}

func TestBuildContextEmpty(t *testing.T) {
	snap := BuildContext(nil, 50)
	assert.Equal(t, 0, snap.Bars)
	assert.Equal(t, 0.0, snap.CurrentPrice)
}
