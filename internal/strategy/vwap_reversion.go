package strategy

import (
	"time"

	talib "github.com/markcheno/go-talib"

	"tradeflow/internal/logger"
	"tradeflow/internal/market"
)

// VWAPReversionConfig 日内VWAP均值回归参数。
type VWAPReversionConfig struct {
	Deviation  float64 // 触发偏离阈值，默认 0.5%
	MinVolume  float64 // 最近一根K线的最小成交量
	BandPeriod int     // 波动带参考期
}

// VWAPReversion 日内VWAP均值回归策略：价格偏离VWAP超过阈值时反向开仓，
// 偏离同时落在波动带外侧会小幅抬高置信度。
type VWAPReversion struct {
	cfg     VWAPReversionConfig
	running bool
	now     func() time.Time
}

func NewVWAPReversion(cfg VWAPReversionConfig) *VWAPReversion {
	if cfg.Deviation <= 0 {
		cfg.Deviation = 0.005
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 1000
	}
	if cfg.BandPeriod <= 0 {
		cfg.BandPeriod = 20
	}
	return &VWAPReversion{cfg: cfg, now: time.Now}
}

func (s *VWAPReversion) Name() string { return "intraday_vwap_reversion" }

func (s *VWAPReversion) Start() {
	s.running = true
	logger.Infof("初始化策略: %s", s.Name())
}

func (s *VWAPReversion) Stop() { s.running = false }

func (s *VWAPReversion) OnBars(bars []market.Bar) []Signal {
	if !s.running || len(bars) < 10 {
		return nil
	}
	last := bars[len(bars)-1]
	if last.Volume < s.cfg.MinVolume {
		return nil
	}

	var cumPV, cumVol float64
	closes := make([]float64, len(bars))
	for i, b := range bars {
		tp := (b.High + b.Low + b.Close) / 3.0
		cumPV += tp * b.Volume
		cumVol += b.Volume
		closes[i] = b.Close
	}
	price := last.Close
	vwap := price
	if cumVol > 0 {
		vwap = cumPV / cumVol
	}

	confidence := 0.6
	if len(closes) >= s.cfg.BandPeriod {
		sma := talib.Sma(closes, s.cfg.BandPeriod)
		dev := talib.StdDev(closes, s.cfg.BandPeriod, 1.0)
		mean := sma[len(sma)-1]
		band := dev[len(dev)-1]
		if band > 0 && (price > mean+2*band || price < mean-2*band) {
			confidence = 0.7
		}
	}

	var out []Signal
	switch {
	case price < vwap*(1-s.cfg.Deviation):
		out = append(out, Signal{
			Symbol: last.Symbol, Action: "buy", Quantity: 1,
			Price: price, Confidence: confidence,
			Reason: "below_vwap_revert", Timestamp: s.now(),
		})
	case price > vwap*(1+s.cfg.Deviation):
		out = append(out, Signal{
			Symbol: last.Symbol, Action: "sell", Quantity: 1,
			Price: price, Confidence: confidence,
			Reason: "above_vwap_revert", Timestamp: s.now(),
		})
	}
	return out
}
