package fusion

import (
	"math"
	"strings"
	"time"
)

// SignalSource 信号来源。
type SignalSource string

const (
	SourceStrategy SignalSource = "strategy_engine"
	SourceAI       SignalSource = "ai_decision"
)

// Direction 信号方向。
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// DirectionFromString 把策略/AI 的文字方向归一化，未识别一律 HOLD。
func DirectionFromString(s string) Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "买入", "做多":
		return Buy
	case "SELL", "卖出", "做空":
		return Sell
	case "HOLD", "持有", "空仓", "观望":
		return Hold
	default:
		return Hold
	}
}

// TradingSignal 一次决策周期内构造并消费的交易建议，不单独持久化。
// Confidence 在构造边界统一到 0-100。
type TradingSignal struct {
	Source        SignalSource   `json:"source"`
	Direction     Direction      `json:"direction"`
	Symbol        string         `json:"symbol"`
	Timestamp     time.Time      `json:"timestamp"`
	Confidence    float64        `json:"confidence"` // 0-100
	Price         float64        `json:"price"`
	PositionSize  int            `json:"position_size"`
	StopLoss      float64        `json:"stop_loss"`
	TakeProfit    float64        `json:"take_profit"`
	Reason        string         `json:"reason"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	WeightedScore float64        `json:"weighted_score"`
}

// NewTradingSignal 构造信号并计算加权得分。
func NewTradingSignal(source SignalSource, direction Direction, symbol string, ts time.Time,
	confidence, price float64, positionSize int, stopLoss, takeProfit float64,
	reason string, metadata map[string]any) TradingSignal {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	s := TradingSignal{
		Source:       source,
		Direction:    direction,
		Symbol:       symbol,
		Timestamp:    ts,
		Confidence:   confidence,
		Price:        price,
		PositionSize: positionSize,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		Reason:       reason,
		Metadata:     metadata,
	}
	s.WeightedScore = s.calcWeightedScore()
	return s
}

// calcWeightedScore 基础分=置信度；AI 信号 ×1.1；有效风险收益比 ≥2.0 ×1.2、≥1.5 ×1.1；封顶100。
func (s TradingSignal) calcWeightedScore() float64 {
	score := s.Confidence
	if s.Source == SourceAI {
		score *= 1.1
	}
	if rr, ok := s.RiskReward(); ok {
		if rr >= 2.0 {
			score *= 1.2
		} else if rr >= 1.5 {
			score *= 1.1
		}
	}
	return math.Min(100, score)
}

// RiskReward 返回风险收益比；止损/止盈缺失或分母为零时 ok=false。
func (s TradingSignal) RiskReward() (float64, bool) {
	if s.StopLoss <= 0 || s.TakeProfit <= 0 {
		return 0, false
	}
	risk := math.Abs(s.Price - s.StopLoss)
	if risk == 0 {
		return 0, false
	}
	return math.Abs(s.TakeProfit-s.Price) / risk, true
}
