package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeflow/internal/config"
	"tradeflow/internal/decision"
	"tradeflow/internal/event"
	"tradeflow/internal/fusion"
	"tradeflow/internal/journal"
	"tradeflow/internal/logger"
	"tradeflow/internal/market"
	"tradeflow/internal/store/decisionlog"
	"tradeflow/internal/store/orders"
	"tradeflow/internal/strategy"

	promptmgr "tradeflow/internal/ai"
)

// App 持有装配好的组件并驱动周期任务。
type App struct {
	cfg        *config.Config
	bus        *event.Bus
	cache      *market.Cache
	runner     *strategy.Runner
	strat      strategy.Strategy
	engine     *decision.Engine
	fuser      *fusion.Engine
	filter     *fusion.Filter
	journal    *journal.Journal
	prompts    *promptmgr.PromptManager
	conflicts  *decisionlog.Store
	orderStore *orders.Store
	account    decision.AccountFunc
}

// Run 启动总线、策略采集与周期任务，阻塞到 ctx 取消或某一环节出错。
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.bus.Run(ctx)
		return nil
	})
	g.Go(func() error {
		defer a.bus.Stop()
		return a.runner.Run(ctx, a.strat)
	})
	g.Go(func() error {
		return a.every(ctx, time.Duration(a.cfg.Filter.CapitalRefreshMinutes)*time.Minute, a.refreshCapital)
	})
	g.Go(func() error {
		return a.every(ctx, time.Duration(a.cfg.Fusion.WeightUpdateMinutes)*time.Minute, func(context.Context) {
			a.fuser.UpdateSourceWeights()
		})
	})
	g.Go(func() error {
		return a.every(ctx, time.Duration(a.cfg.Journal.SweepMinutes)*time.Minute, a.sweepJournal)
	})

	logger.Infof("流水线已启动")
	return g.Wait()
}

// every 固定间隔执行任务，ctx 取消时正常退出。
func (a *App) every(ctx context.Context, interval time.Duration, task func(context.Context)) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			task(ctx)
		}
	}
}

func (a *App) refreshCapital(ctx context.Context) {
	snap := a.account(ctx)
	if !snap.OK {
		logger.Warnf("资金刷新失败：账户快照不可用")
		return
	}
	a.filter.UpdateCapital(snap.Cash)
}

// sweepJournal 巡检在途日志条目：进度快照 + 达到闸门条件时的 AI 复盘。
func (a *App) sweepJournal(ctx context.Context) {
	a.journal.RefreshProgress(ctx,
		func(symbol string) (float64, error) {
			if price, ok := a.cache.LastClose(symbol); ok {
				return price, nil
			}
			return 0, fmt.Errorf("symbol %s 无缓存行情", symbol)
		},
		a.engine.Reflect)
}

func (a *App) close() {
	if a.prompts != nil {
		a.prompts.Close()
	}
	if a.conflicts != nil {
		a.conflicts.Close()
	}
	if a.orderStore != nil {
		a.orderStore.Close()
	}
	logger.Infof("流水线已退出")
}
