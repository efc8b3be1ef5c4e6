package event

import (
	"time"

	"tradeflow/internal/fusion"
	"tradeflow/internal/market"
)

// Type 事件类型。
type Type string

const (
	TypeMarketData     Type = "market_data"
	TypeOrderUpdate    Type = "order_update"
	TypeStrategySignal Type = "strategy_signal"
	TypeRiskAlert      Type = "risk_alert"
	TypeSystemEvent    Type = "system_event"
)

// Payload 标记联合：每种事件类型一个强类型载荷。
type Payload interface {
	EventType() Type
}

// Event 总线上流转的不可变消息。
type Event struct {
	Type      Type
	Payload   Payload
	Timestamp time.Time
	Source    string
}

// MarketDataPayload 最新收盘价事件。
type MarketDataPayload struct {
	Symbol string
	Close  float64
	BarTS  time.Time
}

func (MarketDataPayload) EventType() Type { return TypeMarketData }

// StrategySignalPayload 策略原始信号事件。
type StrategySignalPayload struct {
	Strategy   string
	Symbol     string
	Action     string // buy|sell|hold
	Quantity   float64
	Price      float64
	Confidence float64 // 0-1
	Reason     string
}

func (StrategySignalPayload) EventType() Type { return TypeStrategySignal }

// OrderUpdatePayload 订单状态变更事件。
type OrderUpdatePayload struct {
	OrderID string
	Symbol  string
	Side    string
	Status  string
	Error   string
}

func (OrderUpdatePayload) EventType() Type { return TypeOrderUpdate }

// RiskAlertPayload 风险告警事件。
type RiskAlertPayload struct {
	Symbol  string
	Kind    string
	Message string
}

func (RiskAlertPayload) EventType() Type { return TypeRiskAlert }

// AIDecisionPayload SYSTEM_EVENT(AI_DECISION)：携带两路原始信号、融合结果与决策上下文。
type AIDecisionPayload struct {
	Symbol         string
	StrategyAction string
	StrategySignal fusion.TradingSignal
	AISignal       fusion.TradingSignal
	FusedSignal    fusion.TradingSignal
	DirectionMatch bool
	FusionType     string
	Context        market.ContextSnapshot
	AISummary      string
	AIError        string
}

func (AIDecisionPayload) EventType() Type { return TypeSystemEvent }
