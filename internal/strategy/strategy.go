package strategy

import (
	"time"

	"tradeflow/internal/market"
)

// Signal 策略产出的原始候选信号（置信度 0-1，进入融合前才归一到 0-100）。
type Signal struct {
	Symbol     string
	Action     string // buy|sell|hold
	Quantity   float64
	Price      float64
	Confidence float64 // 0-1
	Reason     string
	Timestamp  time.Time
}

// Strategy 信号生产能力。指标数学可插拔，运行器只依赖这个接口。
type Strategy interface {
	Name() string
	Start()
	Stop()
	// OnBars 基于一个K线窗口产出零或多个候选信号。
	OnBars(bars []market.Bar) []Signal
}
