package strategy

import (
	"context"
	"time"

	"tradeflow/internal/event"
	"tradeflow/internal/logger"
	"tradeflow/internal/market"
	"tradeflow/internal/pkg/ttlcache"
)

const (
	signalCooldown  = 60 * time.Second
	signalCacheSize = 100
)

// RunnerConfig 策略运行器参数。
type RunnerConfig struct {
	Symbols      []string
	Period       string
	PullInterval time.Duration
	Lookback     int
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Period == "" {
		c.Period = "1m"
	}
	if c.PullInterval <= 0 {
		c.PullInterval = 2 * time.Second
	}
	if c.Lookback <= 0 {
		c.Lookback = 200
	}
	return c
}

// Runner 策略运行器：按固定间隔拉取行情喂给策略，对产出信号做
// (symbol,action) 60秒去重后发布到总线。这里的去重缓存与决策层的相互独立。
type Runner struct {
	cfg      RunnerConfig
	provider market.Provider
	cache    *market.Cache
	bus      *event.Bus
	dedup    *ttlcache.Cache
}

func NewRunner(cfg RunnerConfig, provider market.Provider, cache *market.Cache, bus *event.Bus) *Runner {
	return &Runner{
		cfg:      cfg.withDefaults(),
		provider: provider,
		cache:    cache,
		bus:      bus,
		dedup:    ttlcache.New(signalCooldown, signalCacheSize),
	}
}

// Run 驱动策略直到 ctx 取消。行情拉取失败只记录，下个周期重试。
func (r *Runner) Run(ctx context.Context, strat Strategy) error {
	logger.Infof("启动策略运行器: %s, symbols=%v, period=%s", strat.Name(), r.cfg.Symbols, r.cfg.Period)
	if err := r.provider.Connect(); err != nil {
		return err
	}
	if err := r.provider.Subscribe(r.cfg.Symbols, r.cfg.Period); err != nil {
		return err
	}
	strat.Start()
	defer func() {
		strat.Stop()
		if err := r.provider.Close(); err != nil {
			logger.Warnf("关闭行情连接失败: %v", err)
		}
		logger.Infof("策略运行器已停止")
	}()

	ticker := time.NewTicker(r.cfg.PullInterval)
	defer ticker.Stop()
	for {
		r.pollOnce(ctx, strat)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context, strat Strategy) {
	for _, sym := range r.cfg.Symbols {
		bars, err := r.provider.FetchBars(ctx, sym, r.cfg.Period, r.cfg.Lookback)
		if err != nil {
			logger.Warnf("拉取K线失败: %s: %v", sym, err)
			continue
		}
		if len(bars) == 0 {
			continue
		}
		r.cache.PutBars(sym, bars)
		r.emitSignals(strat, strat.OnBars(r.cache.GetBars(sym, r.cfg.Lookback)))
		r.emitMarketData(bars[len(bars)-1])
	}
}

func (r *Runner) emitSignals(strat Strategy, signals []Signal) {
	for _, sig := range signals {
		key := sig.Symbol + "|" + sig.Action
		if elapsed, hit := r.dedup.Seen(key); hit {
			logger.Debugf("[信号去重] 跳过重复信号: %s %s，距离上次仅 %.1f秒", sig.Symbol, sig.Action, elapsed.Seconds())
			continue
		}
		r.dedup.Mark(key)
		r.bus.Publish(event.Event{
			Type: event.TypeStrategySignal,
			Payload: event.StrategySignalPayload{
				Strategy:   strat.Name(),
				Symbol:     sig.Symbol,
				Action:     sig.Action,
				Quantity:   sig.Quantity,
				Price:      sig.Price,
				Confidence: sig.Confidence,
				Reason:     sig.Reason,
			},
			Timestamp: sig.Timestamp,
			Source:    "strategy_runner",
		})
	}
}

func (r *Runner) emitMarketData(last market.Bar) {
	r.bus.Publish(event.Event{
		Type: event.TypeMarketData,
		Payload: event.MarketDataPayload{
			Symbol: last.Symbol,
			Close:  last.Close,
			BarTS:  last.Start,
		},
		Timestamp: last.Start,
		Source:    "strategy_runner",
	})
}
