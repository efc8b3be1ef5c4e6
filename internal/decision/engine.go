// Package decision 把策略信号、市场上下文与 AI 观点编排成一次可执行决策。
package decision

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tradeflow/internal/ai"
	"tradeflow/internal/event"
	"tradeflow/internal/fusion"
	"tradeflow/internal/journal"
	"tradeflow/internal/logger"
	"tradeflow/internal/market"
	"tradeflow/internal/pkg/ttlcache"
	"tradeflow/internal/store/decisionlog"
)

const (
	dedupWindow   = 60 * time.Second
	dedupCapacity = 100

	// 策略信号缺省的止损/止盈启发式
	stopLossRatio   = 0.015
	takeProfitRatio = 0.03
)

// AccountSnapshot 账户快照，取不到时 OK=false。
type AccountSnapshot struct {
	OK   bool
	Cash float64
	// 可用购买力，决定 AI 信号的仓位换算
	Power float64
}

// AccountFunc 账户访问能力。
type AccountFunc func(ctx context.Context) AccountSnapshot

// Config 决策引擎参数。
type Config struct {
	ContextBars           int     // 取多少根K线构建上下文，默认 200
	HighLowWindow         int     // 高低点/波动率窗口，默认 50
	DefaultPositionWeight float64 // AI 未给仓位时的默认权重，默认 0.2
	AICallTimeout         time.Duration
	PromptName            string // 默认 decision
	ReflectPromptName     string // 默认 reflect
}

func (c Config) withDefaults() Config {
	if c.ContextBars <= 0 {
		c.ContextBars = 200
	}
	if c.HighLowWindow <= 0 {
		c.HighLowWindow = 50
	}
	if c.DefaultPositionWeight <= 0 {
		c.DefaultPositionWeight = 0.2
	}
	if c.AICallTimeout <= 0 {
		c.AICallTimeout = 90 * time.Second
	}
	if c.PromptName == "" {
		c.PromptName = "decision"
	}
	if c.ReflectPromptName == "" {
		c.ReflectPromptName = "reflect"
	}
	return c
}

// Deps 注入的外部能力。Conflicts、Journal、Account 允许为空。
type Deps struct {
	Cache     *market.Cache
	Gateway   ai.Gateway
	Prompts   *ai.PromptManager
	Fuser     *fusion.Engine
	Filter    *fusion.Filter
	Journal   *journal.Journal
	Conflicts *decisionlog.Store
	Bus       *event.Bus
	Account   AccountFunc
}

// Engine 决策引擎。持有独立于 StrategyRunner 的去重缓存：
// 两层关注点不同（采集侧抑制重复产出，决策侧抑制重复开销），不可合并。
type Engine struct {
	cfg   Config
	deps  Deps
	dedup *ttlcache.Cache
	now   func() time.Time
}

func NewEngine(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		dedup: ttlcache.New(dedupWindow, dedupCapacity),
		now:   time.Now,
	}
}

// SetClock 替换时间源，测试用。
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.dedup.SetClock(now)
}

// Register 订阅策略信号。
func (e *Engine) Register() {
	e.deps.Bus.Subscribe(event.TypeStrategySignal, e.onStrategySignal)
}

func (e *Engine) onStrategySignal(evt event.Event) error {
	p, ok := evt.Payload.(event.StrategySignalPayload)
	if !ok {
		return fmt.Errorf("意外的策略信号载荷类型 %T", evt.Payload)
	}
	key := p.Symbol + "|" + p.Action
	if _, seen := e.dedup.Seen(key); seen {
		logger.Debugf("决策层去重命中 %s，跳过", key)
		return nil
	}
	e.dedup.Mark(key)
	return e.decide(context.Background(), p)
}

func (e *Engine) decide(ctx context.Context, p event.StrategySignalPayload) error {
	snap := BuildContext(e.deps.Cache.GetBars(p.Symbol, e.cfg.ContextBars), e.cfg.HighLowWindow)
	price := snap.CurrentPrice
	if price <= 0 {
		price = p.Price
		snap.CurrentPrice = price
	}
	if price <= 0 {
		return fmt.Errorf("symbol %s 无可用价格，放弃本轮决策", p.Symbol)
	}

	account := e.accountSnapshot(ctx)
	userPrompt, aiText, aiErr := e.consultAI(ctx, p, snap, account)
	op := ParseAIOpinion(aiText)
	if aiErr != nil {
		op = Opinion{Direction: fusion.Hold, Summary: "AI调用失败: " + aiErr.Error()}
	}

	now := e.now()
	stratSig := e.buildStrategySignal(p, price, now)
	aiSig := e.buildAISignal(p.Symbol, op, price, account, now)

	fused := e.deps.Fuser.Fuse(stratSig, aiSig)
	if accepted, reason := e.deps.Filter.ShouldAccept(fused); !accepted {
		logger.Infof("信号被过滤 symbol=%s reason=%s", p.Symbol, reason)
		fused = fusion.NewTradingSignal(fused.Source, fusion.Hold, p.Symbol, now,
			0, price, 0, 0, 0, "过滤拒绝: "+reason,
			map[string]any{"filter_rejected": reason, "fusion_type": fused.Metadata["fusion_type"]})
	}

	directionMatch := stratSig.Direction == aiSig.Direction
	if !directionMatch {
		e.logConflict(ctx, p.Symbol, stratSig, aiSig, fused)
	}
	e.recordJournal(p, op, fused, userPrompt, aiText)

	fusionType, _ := fused.Metadata["fusion_type"].(string)
	aiErrText := ""
	if aiErr != nil {
		aiErrText = aiErr.Error()
	}
	e.deps.Bus.Publish(event.Event{
		Type: event.TypeSystemEvent,
		Payload: event.AIDecisionPayload{
			Symbol:         p.Symbol,
			StrategyAction: p.Action,
			StrategySignal: stratSig,
			AISignal:       aiSig,
			FusedSignal:    fused,
			DirectionMatch: directionMatch,
			FusionType:     fusionType,
			Context:        snap,
			AISummary:      op.Summary,
			AIError:        aiErrText,
		},
		Timestamp: now,
		Source:    "decision_engine",
	})
	logger.Infof("决策完成 symbol=%s direction=%s conf=%.1f size=%d fusion=%s",
		p.Symbol, fused.Direction, fused.Confidence, fused.PositionSize, fusionType)
	return nil
}

func (e *Engine) accountSnapshot(ctx context.Context) AccountSnapshot {
	if e.deps.Account == nil {
		return AccountSnapshot{}
	}
	snap := e.deps.Account(ctx)
	if snap.OK {
		logger.Debugf("账户快照 cash=%.2f power=%.2f", snap.Cash, snap.Power)
	} else {
		logger.Debugf("账户快照不可用，AI 仓位换算退化为 0")
	}
	return snap
}

// consultAI 渲染决策提示词并调用模型；任何失败都降级，不向上抛。
func (e *Engine) consultAI(ctx context.Context, p event.StrategySignalPayload,
	snap market.ContextSnapshot, account AccountSnapshot) (userPrompt, aiText string, err error) {
	vars := map[string]string{
		"symbol":          p.Symbol,
		"action":          p.Action,
		"reason":          p.Reason,
		"price":           fmt.Sprintf("%.3f", snap.CurrentPrice),
		"recent_high":     fmt.Sprintf("%.3f", snap.RecentHigh),
		"recent_low":      fmt.Sprintf("%.3f", snap.RecentLow),
		"signal_strength": fmt.Sprintf("%.4f", snap.SignalStrength),
		"volatility":      fmt.Sprintf("%.4f", snap.VolatilityRatio),
		"reflections":     e.reflectionContext(p.Symbol, p.Action, snap.CurrentPrice),
		"account":         formatAccount(account),
	}
	system, user, rerr := e.deps.Prompts.Render(e.cfg.PromptName, vars)
	if rerr != nil {
		return "", "", rerr
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AICallTimeout)
	defer cancel()
	out, cerr := e.deps.Gateway.Chat(callCtx, system, user)
	logger.DumpAIResponse(e.deps.Gateway.Provider(), "decision", p.Symbol, p.Action, user, out)
	if cerr != nil {
		logger.Warnf("AI 调用失败 symbol=%s: %v", p.Symbol, cerr)
		return user, "", cerr
	}
	return user, out, nil
}

// reflectionContext 拉取同方向、7 天内、目标尚未触达的在途复盘，外加 30 天长期摘要。
func (e *Engine) reflectionContext(symbol, action string, price float64) string {
	if e.deps.Journal == nil {
		return ""
	}
	var b strings.Builder
	for _, r := range e.deps.Journal.QueryRecentReflections(symbol, action, 7, 3, true) {
		if !targetsPending(r.Targets, r.Action, price) {
			continue
		}
		fmt.Fprintf(&b, "- [%s %s] %s\n", r.CreatedAt.Format("01-02"), r.Action, r.Summary)
	}
	if long := e.deps.Journal.SummarizeLongTerm(symbol, 30); long != "" {
		b.WriteString(long)
	}
	return b.String()
}

// targetsPending 判断条目的止盈/止损目标是否仍未被当前价触达。
func targetsPending(t journal.Targets, action string, price float64) bool {
	if t.StopLoss <= 0 && t.TakeProfit <= 0 {
		return true
	}
	switch action {
	case "buy":
		if t.TakeProfit > 0 && price >= t.TakeProfit {
			return false
		}
		if t.StopLoss > 0 && price <= t.StopLoss {
			return false
		}
	case "sell":
		if t.TakeProfit > 0 && price <= t.TakeProfit {
			return false
		}
		if t.StopLoss > 0 && price >= t.StopLoss {
			return false
		}
	}
	return true
}

func (e *Engine) buildStrategySignal(p event.StrategySignalPayload, price float64, now time.Time) fusion.TradingSignal {
	direction := fusion.DirectionFromString(p.Action)
	var stopLoss, takeProfit float64
	switch direction {
	case fusion.Buy:
		stopLoss = price * (1 - stopLossRatio)
		takeProfit = price * (1 + takeProfitRatio)
	case fusion.Sell:
		stopLoss = price * (1 + stopLossRatio)
		takeProfit = price * (1 - takeProfitRatio)
	}
	return fusion.NewTradingSignal(fusion.SourceStrategy, direction, p.Symbol, now,
		p.Confidence*100, price, int(p.Quantity), stopLoss, takeProfit, p.Reason,
		map[string]any{"strategy": p.Strategy})
}

func (e *Engine) buildAISignal(symbol string, op Opinion, price float64,
	account AccountSnapshot, now time.Time) fusion.TradingSignal {
	confidence := op.Confidence
	if confidence <= 0 {
		confidence = 50
	}
	stopLoss, takeProfit := op.StopLoss, op.TakeProfit
	switch op.Direction {
	case fusion.Buy:
		if stopLoss <= 0 {
			stopLoss = price * (1 - stopLossRatio)
		}
		if takeProfit <= 0 {
			takeProfit = price * (1 + takeProfitRatio)
		}
	case fusion.Sell:
		if stopLoss <= 0 {
			stopLoss = price * (1 + stopLossRatio)
		}
		if takeProfit <= 0 {
			takeProfit = price * (1 - takeProfitRatio)
		}
	default:
		stopLoss, takeProfit = 0, 0
	}
	size := 0
	if op.Direction != fusion.Hold && account.OK && account.Power > 0 {
		weight := op.PositionWeight
		if weight <= 0 {
			weight = e.cfg.DefaultPositionWeight
		}
		size = int(math.Floor(account.Power * weight / price))
		size = market.RoundUpToLot(symbol, size)
	}
	return fusion.NewTradingSignal(fusion.SourceAI, op.Direction, symbol, now,
		confidence, price, size, stopLoss, takeProfit, op.Summary,
		map[string]any{"structured": op.Structured})
}

func (e *Engine) logConflict(ctx context.Context, symbol string, strat, aiSig, fused fusion.TradingSignal) {
	if e.deps.Conflicts == nil {
		return
	}
	fusionType, _ := fused.Metadata["fusion_type"].(string)
	winning, _ := fused.Metadata["winning_source"].(string)
	_, err := e.deps.Conflicts.Insert(ctx, decisionlog.ConflictRecord{
		Timestamp:          e.now().UnixMilli(),
		Symbol:             symbol,
		StrategyDirection:  string(strat.Direction),
		AIDirection:        string(aiSig.Direction),
		StrategyConfidence: strat.Confidence,
		AIConfidence:       aiSig.Confidence,
		StrategyScore:      strat.WeightedScore,
		AIScore:            aiSig.WeightedScore,
		Resolution:         fusionType,
		WinningSource:      winning,
		FusedDirection:     string(fused.Direction),
		FusedConfidence:    fused.Confidence,
	})
	if err != nil {
		logger.Errorf("冲突日志写入失败 symbol=%s: %v", symbol, err)
	}
}

func (e *Engine) recordJournal(p event.StrategySignalPayload, op Opinion,
	fused fusion.TradingSignal, aiInput, aiOutput string) {
	if e.deps.Journal == nil {
		return
	}
	targets := journal.Targets{
		StopLoss:   fused.StopLoss,
		TakeProfit: fused.TakeProfit,
		Size:       fused.PositionSize,
		Confidence: fused.Confidence,
	}
	if op.StopLoss > 0 {
		targets.StopLoss = op.StopLoss
	}
	if op.TakeProfit > 0 {
		targets.TakeProfit = op.TakeProfit
	}
	_, err := e.deps.Journal.Record(p.Symbol, strings.ToLower(string(fused.Direction)),
		fused.Reason, aiInput, aiOutput, targets)
	if err != nil {
		logger.Errorf("交易日志写入失败 symbol=%s: %v", p.Symbol, err)
	}
}

// Reflect 对一条在途日志条目做一次 AI 复盘，供日志巡检任务作为回调使用。
func (e *Engine) Reflect(ctx context.Context, entry journal.Entry, price float64) (string, error) {
	vars := map[string]string{
		"symbol":      entry.Symbol,
		"action":      entry.Action,
		"reason":      entry.Reason,
		"created_at":  entry.CreatedAt.Format("2006-01-02 15:04"),
		"price":       fmt.Sprintf("%.3f", price),
		"stop_loss":   fmt.Sprintf("%.3f", entry.Targets.StopLoss),
		"take_profit": fmt.Sprintf("%.3f", entry.Targets.TakeProfit),
	}
	system, user, err := e.deps.Prompts.Render(e.cfg.ReflectPromptName, vars)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.AICallTimeout)
	defer cancel()
	out, err := e.deps.Gateway.Chat(callCtx, system, user)
	logger.DumpAIResponse(e.deps.Gateway.Provider(), "reflect", entry.Symbol, entry.Action, user, out)
	if err != nil {
		return "", err
	}
	return out, nil
}

func formatAccount(a AccountSnapshot) string {
	if !a.OK {
		return "账户信息不可用"
	}
	return fmt.Sprintf("现金 %.2f，购买力 %.2f", a.Cash, a.Power)
}
