// Package app 组装并驱动整条决策流水线。
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"tradeflow/internal/ai"
	"tradeflow/internal/config"
	"tradeflow/internal/decision"
	"tradeflow/internal/event"
	"tradeflow/internal/execution"
	"tradeflow/internal/fusion"
	"tradeflow/internal/journal"
	"tradeflow/internal/logger"
	"tradeflow/internal/market"
	"tradeflow/internal/notify"
	"tradeflow/internal/store/decisionlog"
	"tradeflow/internal/store/orders"
	"tradeflow/internal/strategy"
)

// Builder 按配置组装 App，外部能力（行情、模型、券商、账户）留有覆盖点，测试与干跑用。
type Builder struct {
	cfg      *config.Config
	provider market.Provider
	gateway  ai.Gateway
	broker   execution.Broker
	notifier notify.TextNotifier
	account  decision.AccountFunc
}

func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) WithProvider(p market.Provider) *Builder    { b.provider = p; return b }
func (b *Builder) WithGateway(g ai.Gateway) *Builder          { b.gateway = g; return b }
func (b *Builder) WithBroker(br execution.Broker) *Builder    { b.broker = br; return b }
func (b *Builder) WithNotifier(n notify.TextNotifier) *Builder { b.notifier = n; return b }
func (b *Builder) WithAccount(a decision.AccountFunc) *Builder { b.account = a; return b }

// Build 完成装配。除显式覆盖外，各组件按配置构造。
func (b *Builder) Build() (*App, error) {
	cfg := b.cfg
	dataPath := func(name, configured string) string {
		if configured != "" {
			return configured
		}
		return filepath.Join(cfg.DataDir, name)
	}

	provider := b.provider
	if provider == nil {
		switch cfg.Market.Provider {
		case "binance":
			provider = market.NewBinanceProvider(cfg.Market.APIKey, cfg.Market.APISecret, "")
		default:
			provider = market.NewSimProvider(cfg.Market.SimBasePrice)
		}
	}

	gateway := b.gateway
	if gateway == nil {
		gateway = &ai.OpenAIChatClient{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Timeout:     time.Duration(cfg.AI.TimeoutSec) * time.Second,
			MaxRetries:  cfg.AI.MaxRetries,
			Temperature: cfg.AI.Temperature,
		}
	}
	prompts, err := ai.NewPromptManager(cfg.AI.PromptDir)
	if err != nil {
		return nil, fmt.Errorf("初始化提示词失败: %w", err)
	}

	jn, err := journal.Open(journal.Config{
		Path:                  dataPath("journal.jsonl", cfg.Journal.Path),
		CheckInterval:         time.Duration(cfg.Journal.CheckIntervalSec) * time.Second,
		PriceChangeThreshold:  cfg.Journal.PriceChangeThreshold,
		MaxReflectionsPerHour: cfg.Journal.MaxReflectionsPerHour,
	})
	if err != nil {
		prompts.Close()
		return nil, fmt.Errorf("打开交易日志失败: %w", err)
	}

	conflicts, err := decisionlog.New(dataPath("conflicts.db", cfg.Store.ConflictDB))
	if err != nil {
		prompts.Close()
		return nil, fmt.Errorf("打开冲突日志失败: %w", err)
	}
	orderStore, err := orders.New(dataPath("orders.db", cfg.Store.OrdersDB))
	if err != nil {
		prompts.Close()
		conflicts.Close()
		return nil, fmt.Errorf("打开订单库失败: %w", err)
	}

	notifier := b.notifier
	if notifier == nil {
		if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
			notifier = notify.NewTelegram(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID)
		} else {
			notifier = notify.Nop{}
		}
	}

	account := b.account
	if account == nil {
		account = simAccount(cfg.Filter.InitialCapital)
	}

	bus := event.NewBus(0)
	cache := market.NewCache(0)
	fuser := fusion.NewEngine(fusion.EngineConfig{
		StrategyWeight:  cfg.Fusion.StrategyWeight,
		AIWeight:        cfg.Fusion.AIWeight,
		PerformanceFile: dataPath("performance.json", cfg.Fusion.PerformanceFile),
	})
	filter := fusion.NewFilter(fusion.FilterConfig{
		MinConfidence:    cfg.Filter.MinConfidence,
		MinRiskReward:    cfg.Filter.MinRiskReward,
		MaxPositionRatio: cfg.Filter.MaxPositionRatio,
		CooldownMinutes:  cfg.Filter.CooldownMinutes,
		InitialCapital:   cfg.Filter.InitialCapital,
	})

	strat := strategy.NewVWAPReversion(strategy.VWAPReversionConfig{
		Deviation:  cfg.Strategy.Deviation,
		MinVolume:  cfg.Strategy.MinVolume,
		BandPeriod: cfg.Strategy.BandPeriod,
	})
	runner := strategy.NewRunner(strategy.RunnerConfig{
		Symbols:      cfg.Market.Symbols,
		Period:       cfg.Market.Period,
		PullInterval: time.Duration(cfg.Market.PullIntervalSec) * time.Second,
		Lookback:     cfg.Market.Lookback,
	}, provider, cache, bus)

	engine := decision.NewEngine(decision.Config{
		ContextBars:           cfg.Decision.ContextBars,
		HighLowWindow:         cfg.Decision.HighLowWindow,
		DefaultPositionWeight: cfg.Decision.DefaultPositionWeight,
		AICallTimeout:         time.Duration(cfg.AI.TimeoutSec) * time.Second,
	}, decision.Deps{
		Cache:     cache,
		Gateway:   gateway,
		Prompts:   prompts,
		Fuser:     fuser,
		Filter:    filter,
		Journal:   jn,
		Conflicts: conflicts,
		Bus:       bus,
		Account:   account,
	})
	engine.Register()

	var gate *execution.Gate
	if cfg.Execution.Enabled {
		broker := b.broker
		if broker == nil {
			broker = execution.NewSimBroker()
		}
		gate = execution.NewGate(execution.Config{
			ConfidenceThreshold: cfg.Execution.ConfidenceThreshold,
			OrderType:           cfg.Execution.OrderType,
			Env:                 cfg.Execution.Env,
		}, broker, fuser, orderStore, notifier, bus)
		gate.Register()
	}

	logger.Infof("装配完成 symbols=%v provider=%s model=%s execution=%v",
		cfg.Market.Symbols, cfg.Market.Provider, cfg.AI.Model, cfg.Execution.Enabled)
	return &App{
		cfg:        cfg,
		bus:        bus,
		cache:      cache,
		runner:     runner,
		strat:      strat,
		engine:     engine,
		fuser:      fuser,
		filter:     filter,
		journal:    jn,
		prompts:    prompts,
		conflicts:  conflicts,
		orderStore: orderStore,
		account:    account,
	}, nil
}

// simAccount 固定资金的账户快照，未接入真实账户通道时使用。
func simAccount(capital float64) decision.AccountFunc {
	return func(context.Context) decision.AccountSnapshot {
		return decision.AccountSnapshot{OK: true, Cash: capital, Power: capital}
	}
}
