package market

import (
	"context"
	"time"
)

// Bar 单根 OHLCV K线。
type Bar struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Period string    `json:"period"`
}

// Provider 行情数据能力。核心只消费这个形状，具体实现（Binance/模拟盘）可互换，
// 多数据源故障转移在外层处理。
type Provider interface {
	Connect() error
	Subscribe(symbols []string, period string) error
	FetchBars(ctx context.Context, symbol, period string, limit int) ([]Bar, error)
	Close() error
}

// ContextSnapshot 决策用的市场上下文特征，由最近的K线窗口计算。
type ContextSnapshot struct {
	Bars            int     `json:"bars"`
	CurrentPrice    float64 `json:"current_price"`
	RecentHigh      float64 `json:"recent_high"`
	RecentLow       float64 `json:"recent_low"`
	SignalStrength  float64 `json:"signal_strength"`  // |price-VWAP|/VWAP
	VolatilityRatio float64 `json:"volatility_ratio"` // 最近50个收益率标准差
}
