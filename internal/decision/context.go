package decision

import (
	"math"

	"tradeflow/internal/market"
)

// BuildContext 从K线窗口计算决策用的市场特征：最新价、近 window 根高低点、
// VWAP 偏离强度与近 window 个收益率的标准差。
func BuildContext(bars []market.Bar, window int) market.ContextSnapshot {
	snap := market.ContextSnapshot{Bars: len(bars)}
	if len(bars) == 0 {
		return snap
	}
	if window <= 0 {
		window = 50
	}
	snap.CurrentPrice = bars[len(bars)-1].Close

	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	snap.RecentHigh = bars[start].High
	snap.RecentLow = bars[start].Low
	for _, b := range bars[start:] {
		if b.High > snap.RecentHigh {
			snap.RecentHigh = b.High
		}
		if b.Low < snap.RecentLow {
			snap.RecentLow = b.Low
		}
	}

	var pv, vol float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol > 0 {
		vwap := pv / vol
		if vwap > 0 {
			snap.SignalStrength = math.Abs(snap.CurrentPrice-vwap) / vwap
		}
	}

	returns := make([]float64, 0, window)
	for i := start + 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}
	snap.VolatilityRatio = stdev(returns)
	return snap
}

func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
