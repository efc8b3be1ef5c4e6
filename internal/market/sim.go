package market

import (
	"context"
	"math"
	"time"
)

// SimProvider 生成确定性的正弦波行情，用于干跑和测试。
type SimProvider struct {
	base   float64
	anchor time.Time
}

func NewSimProvider(basePrice float64) *SimProvider {
	if basePrice <= 0 {
		basePrice = 100
	}
	return &SimProvider{base: basePrice, anchor: time.Now().Truncate(time.Minute)}
}

func (p *SimProvider) Connect() error                                { return nil }
func (p *SimProvider) Subscribe(symbols []string, period string) error { return nil }
func (p *SimProvider) Close() error                                  { return nil }

func (p *SimProvider) FetchBars(_ context.Context, symbol, period string, limit int) ([]Bar, error) {
	if limit <= 0 {
		limit = 200
	}
	out := make([]Bar, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		start := p.anchor.Add(-time.Duration(i) * time.Minute)
		phase := float64(start.Unix()/60) / 30.0
		mid := p.base * (1 + 0.01*math.Sin(phase))
		spread := p.base * 0.002
		out = append(out, Bar{
			Symbol: symbol,
			Start:  start,
			Open:   mid - spread/2,
			High:   mid + spread,
			Low:    mid - spread,
			Close:  mid + spread/2,
			Volume: 1000 + 100*math.Abs(math.Sin(phase)),
			Period: period,
		})
	}
	return out, nil
}
