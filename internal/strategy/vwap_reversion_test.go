package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeflow/internal/market"
)

func flatBars(n int, price, volume float64) []market.Bar {
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	out := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.Bar{
			Symbol: "HK.00700",
			Start:  start.Add(time.Duration(i) * time.Minute),
			Open:   price, High: price, Low: price, Close: price,
			Volume: volume,
			Period: "1m",
		})
	}
	return out
}

func TestVWAPReversionBuyBelowVWAP(t *testing.T) {
	s := NewVWAPReversion(VWAPReversionConfig{})
	s.Start()

	bars := flatBars(30, 100, 5000)
	// 最后一根明显跌破 VWAP
	bars[len(bars)-1].Close = 99
	bars[len(bars)-1].Low = 99

	signals := s.OnBars(bars)
	assert.Len(t, signals, 1)
	assert.Equal(t, "buy", signals[0].Action)
	assert.Equal(t, "below_vwap_revert", signals[0].Reason)
	assert.Equal(t, 99.0, signals[0].Price)
}

func TestVWAPReversionNoSignalNearVWAP(t *testing.T) {
	s := NewVWAPReversion(VWAPReversionConfig{})
	s.Start()
	assert.Empty(t, s.OnBars(flatBars(30, 100, 5000)))
}

func TestVWAPReversionVolumeGate(t *testing.T) {
	s := NewVWAPReversion(VWAPReversionConfig{MinVolume: 10000})
	s.Start()
	bars := flatBars(30, 100, 500)
	bars[len(bars)-1].Close = 98
	assert.Empty(t, s.OnBars(bars))
}

func TestVWAPReversionStoppedProducesNothing(t *testing.T) {
	s := NewVWAPReversion(VWAPReversionConfig{})
	bars := flatBars(30, 100, 5000)
	bars[len(bars)-1].Close = 98
	assert.Empty(t, s.OnBars(bars), "未 Start 不产信号")
}
