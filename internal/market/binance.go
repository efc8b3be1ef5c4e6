package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"tradeflow/internal/logger"
)

// BinanceProvider 基于 go-binance SDK 的现货行情实现。
type BinanceProvider struct {
	client *binance.Client
}

func NewBinanceProvider(apiKey, secret, baseURL string) *BinanceProvider {
	client := binance.NewClient(apiKey, secret)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceProvider{client: client}
}

func (p *BinanceProvider) Connect() error { return nil }

func (p *BinanceProvider) Subscribe(symbols []string, period string) error {
	// REST 轮询模式下订阅只做记录。
	logger.Infof("binance 行情订阅: symbols=%v period=%s", symbols, period)
	return nil
}

func (p *BinanceProvider) FetchBars(ctx context.Context, symbol, period string, limit int) ([]Bar, error) {
	if symbol == "" || period == "" {
		return nil, fmt.Errorf("symbol/period 不能为空")
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(period).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 拉取K线失败: %w", err)
	}
	out := make([]Bar, 0, len(klines))
	for _, k := range klines {
		out = append(out, Bar{
			Symbol: symbol,
			Start:  time.UnixMilli(k.OpenTime),
			Open:   parseFloat(k.Open),
			High:   parseFloat(k.High),
			Low:    parseFloat(k.Low),
			Close:  parseFloat(k.Close),
			Volume: parseFloat(k.Volume),
			Period: period,
		})
	}
	return out, nil
}

func (p *BinanceProvider) Close() error { return nil }

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
