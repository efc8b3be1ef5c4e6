// Package execution 消费决策事件并把关下单：置信度门槛、订单级冷却、
// 整手归一，以及把成交结果反哺回融合引擎的表现统计。
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"tradeflow/internal/event"
	"tradeflow/internal/fusion"
	"tradeflow/internal/logger"
	"tradeflow/internal/market"
	"tradeflow/internal/notify"
	"tradeflow/internal/pkg/ttlcache"
	"tradeflow/internal/store/orders"
)

const (
	orderCooldown      = 5 * time.Minute
	orderCooldownSlots = 100
)

// Config 执行闸门参数。
type Config struct {
	ConfidenceThreshold float64 // 默认 60
	OrderType           string  // 默认 market
	Env                 string  // 默认 sim
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 60
	}
	if c.OrderType == "" {
		c.OrderType = "market"
	}
	if c.Env == "" {
		c.Env = "sim"
	}
	return c
}

// Gate 执行闸门。订单冷却独立于过滤器冷却：前者防重复下单，
// 后者防重复决策，粒度与窗口都不同。
type Gate struct {
	cfg      Config
	broker   Broker
	fuser    *fusion.Engine
	store    *orders.Store
	notifier notify.TextNotifier
	bus      *event.Bus
	cooldown *ttlcache.Cache
}

// NewGate 构造执行闸门。store、notifier 允许为空。
func NewGate(cfg Config, broker Broker, fuser *fusion.Engine, store *orders.Store,
	notifier notify.TextNotifier, bus *event.Bus) *Gate {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Gate{
		cfg:      cfg.withDefaults(),
		broker:   broker,
		fuser:    fuser,
		store:    store,
		notifier: notifier,
		bus:      bus,
		cooldown: ttlcache.New(orderCooldown, orderCooldownSlots),
	}
}

// SetClock 替换冷却缓存的时间源，测试用。
func (g *Gate) SetClock(now func() time.Time) {
	g.cooldown.SetClock(now)
}

// Register 订阅决策事件。
func (g *Gate) Register() {
	g.bus.Subscribe(event.TypeSystemEvent, g.onDecision)
}

func (g *Gate) onDecision(evt event.Event) error {
	p, ok := evt.Payload.(event.AIDecisionPayload)
	if !ok {
		return nil
	}
	fused := p.FusedSignal
	if fused.Direction == fusion.Hold {
		return nil
	}
	if fused.Confidence < g.cfg.ConfidenceThreshold {
		logger.Infof("执行层拒绝 symbol=%s conf=%.1f < %.1f", p.Symbol, fused.Confidence, g.cfg.ConfidenceThreshold)
		return nil
	}
	key := p.Symbol + "|" + string(fused.Direction)
	if age, seen := g.cooldown.Seen(key); seen {
		logger.Infof("订单冷却中 %s（%.0fs 前已下单），跳过", key, age.Seconds())
		return nil
	}

	qty := market.RoundUpToLot(p.Symbol, fused.PositionSize)
	if qty <= 0 {
		logger.Warnf("决策数量为 0 symbol=%s，不提交订单", p.Symbol)
		return nil
	}

	req := OrderRequest{
		Symbol:    p.Symbol,
		Side:      string(fused.Direction),
		Quantity:  qty,
		Price:     fused.Price,
		OrderType: g.cfg.OrderType,
		Env:       g.cfg.Env,
	}
	res := g.broker.PlaceOrder(context.Background(), req)
	// 只要真正发起过提交就进入冷却，失败同样占用窗口，避免对拒单的高频重试
	g.cooldown.Mark(key)
	if res.OK {
		logger.Infof("订单已提交 %s %s x%d @%.3f order_id=%s", req.Side, req.Symbol, qty, req.Price, res.OrderID)
	} else {
		logger.Errorf("订单提交失败 %s %s x%d: %s", req.Side, req.Symbol, qty, res.Error)
	}

	g.persist(p, req, res)
	g.attributeOutcome(p, res.OK)
	g.publishUpdate(p, req, res)
	g.push(p, req, res)
	return nil
}

func (g *Gate) persist(p event.AIDecisionPayload, req OrderRequest, res OrderResult) {
	if g.store == nil {
		return
	}
	status := "submitted"
	if !res.OK {
		status = "failed"
	}
	detail, _ := json.Marshal(map[string]any{
		"reason":          p.FusedSignal.Reason,
		"direction_match": p.DirectionMatch,
		"ai_summary":      p.AISummary,
	})
	rec := &orders.OrderRecord{
		ClientOrderID: uuid.NewString(),
		BrokerOrderID: res.OrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		Price:         req.Price,
		OrderType:     req.OrderType,
		Env:           req.Env,
		Status:        status,
		Confidence:    p.FusedSignal.Confidence,
		FusionType:    p.FusionType,
		Error:         res.Error,
		Detail:        datatypes.JSON(detail),
	}
	if err := g.store.Save(rec); err != nil {
		logger.Errorf("订单落盘失败 symbol=%s: %v", req.Symbol, err)
	}
}

// attributeOutcome 按融合类型把结果反哺表现统计：
// agreed 双方同责；conflict_resolved 成功记胜者、失败双方皆负（执行失败覆盖裁决）。
func (g *Gate) attributeOutcome(p event.AIDecisionPayload, orderOK bool) {
	if g.fuser == nil {
		return
	}
	switch p.FusionType {
	case "agreed":
		g.fuser.RecordTradeOutcome(p.StrategySignal, orderOK, 0)
		g.fuser.RecordTradeOutcome(p.AISignal, orderOK, 0)
	case "conflict_resolved":
		winner, _ := p.FusedSignal.Metadata["winning_source"].(string)
		if !orderOK {
			g.fuser.RecordTradeOutcome(p.StrategySignal, false, 0)
			g.fuser.RecordTradeOutcome(p.AISignal, false, 0)
			return
		}
		g.fuser.RecordTradeOutcome(p.StrategySignal, winner == string(fusion.SourceStrategy), 0)
		g.fuser.RecordTradeOutcome(p.AISignal, winner == string(fusion.SourceAI), 0)
	}
}

func (g *Gate) publishUpdate(p event.AIDecisionPayload, req OrderRequest, res OrderResult) {
	status := "submitted"
	if !res.OK {
		status = "failed"
	}
	g.bus.Publish(event.Event{
		Type: event.TypeOrderUpdate,
		Payload: event.OrderUpdatePayload{
			OrderID: res.OrderID,
			Symbol:  req.Symbol,
			Side:    req.Side,
			Status:  status,
			Error:   res.Error,
		},
		Timestamp: time.Now(),
		Source:    "execution_gate",
	})
}

func (g *Gate) push(p event.AIDecisionPayload, req OrderRequest, res OrderResult) {
	var text string
	if res.OK {
		text = fmt.Sprintf("✅ 已提交 %s %s x%d @%.3f（置信度 %.1f，%s）",
			req.Side, req.Symbol, req.Quantity, req.Price, p.FusedSignal.Confidence, p.FusionType)
	} else {
		text = fmt.Sprintf("❌ 下单失败 %s %s x%d: %s", req.Side, req.Symbol, req.Quantity, res.Error)
	}
	if err := g.notifier.SendText(text); err != nil {
		logger.Warnf("通知推送失败: %v", err)
	}
}
