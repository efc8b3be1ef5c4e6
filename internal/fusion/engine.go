package fusion

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tradeflow/internal/logger"
)

const (
	historyCap    = 1000
	recentWindow  = 50
	weightBudget  = 0.9 // 自适应调整后两权重之和，预留10%余量
	scoreDeadband = 10.0
)

// PerformanceRecord 单一信号源的滚动表现。
type PerformanceRecord struct {
	Success           int     `json:"success"`
	Total             int     `json:"total"`
	RecentPerformance float64 `json:"recent_performance"`
}

// historyEntry 融合结果的轻量留痕，用于近期表现统计。
type historyEntry struct {
	Source   SignalSource
	Recorded bool
	Success  bool
}

// EngineConfig 融合引擎配置。
type EngineConfig struct {
	StrategyWeight  float64
	AIWeight        float64
	PerformanceFile string
}

// Engine 信号融合引擎：加权一致增强 + 冲突解决 + 基于表现的自适应权重。
// 内存状态与性能文件视作同一逻辑资源，读改写全程持锁。
type Engine struct {
	mu          sync.Mutex
	weights     map[SignalSource]float64
	performance map[SignalSource]*PerformanceRecord
	history     []historyEntry
	perfFile    string
	now         func() time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.StrategyWeight <= 0 {
		cfg.StrategyWeight = 0.45
	}
	if cfg.AIWeight <= 0 {
		cfg.AIWeight = 0.55
	}
	e := &Engine{
		weights: map[SignalSource]float64{
			SourceStrategy: cfg.StrategyWeight,
			SourceAI:       cfg.AIWeight,
		},
		performance: map[SignalSource]*PerformanceRecord{
			SourceStrategy: {RecentPerformance: 0.5},
			SourceAI:       {RecentPerformance: 0.5},
		},
		perfFile: cfg.PerformanceFile,
		now:      time.Now,
	}
	e.loadPerformance()
	return e
}

// SetClock 测试钩子。
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// Weights 返回当前权重快照。
func (e *Engine) Weights() (strategy, ai float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights[SourceStrategy], e.weights[SourceAI]
}

// Performance 返回某信号源表现的拷贝。
func (e *Engine) Performance(source SignalSource) PerformanceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.performance[source]; ok {
		return *rec
	}
	return PerformanceRecord{}
}

// Fuse 融合策略信号与AI信号。方向一致走增强路径，不一致走冲突解决。
func (e *Engine) Fuse(strategySignal, aiSignal TradingSignal) TradingSignal {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fused TradingSignal
	if strategySignal.Direction == aiSignal.Direction {
		fused = e.fuseAgreed(strategySignal, aiSignal)
	} else {
		fused = e.resolveConflict(strategySignal, aiSignal)
	}

	e.history = append(e.history, historyEntry{Source: fused.Source})
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
	return fused
}

func (e *Engine) fuseAgreed(strat, ai TradingSignal) TradingSignal {
	sw := e.weights[SourceStrategy]
	aw := e.weights[SourceAI]
	confidence := strat.Confidence*sw + ai.Confidence*aw

	position := strat.PositionSize
	if ai.PositionSize < position {
		position = ai.PositionSize
	}

	return NewTradingSignal(
		SourceAI, // 融合结果统一标记为AI侧输出
		strat.Direction,
		strat.Symbol,
		e.now(),
		confidence,
		(strat.Price+ai.Price)/2,
		position,
		fusedStopLoss(strat, ai),
		fusedTakeProfit(strat, ai),
		fmt.Sprintf("信号融合: 策略机(%.1f%%) + AI(%.1f%%) 方向一致", strat.Confidence, ai.Confidence),
		map[string]any{
			"fusion_type":           "agreed",
			"original_sources":      []string{string(strat.Source), string(ai.Source)},
			"component_confidences": []float64{strat.Confidence, ai.Confidence},
		},
	)
}

func (e *Engine) resolveConflict(strat, ai TradingSignal) TradingSignal {
	stratScore := strat.WeightedScore * e.weights[SourceStrategy]
	aiScore := ai.WeightedScore * e.weights[SourceAI]
	logger.Infof("信号冲突: 策略机(%.1f) vs AI(%.1f)", stratScore, aiScore)

	if math.Abs(stratScore-aiScore) <= scoreDeadband {
		// 分数接近，保守观望
		return NewTradingSignal(
			SourceAI, Hold, strat.Symbol, e.now(),
			40, (strat.Price+ai.Price)/2, 0, 0, 0,
			"严重信号冲突，建议观望",
			map[string]any{
				"fusion_type":            "conservative_hold",
				"conflicting_directions": []string{string(strat.Direction), string(ai.Direction)},
				"component_confidences":  []float64{strat.Confidence, ai.Confidence},
			},
		)
	}

	winner := strat
	if aiScore > stratScore {
		winner = ai
	}
	return NewTradingSignal(
		winner.Source, winner.Direction, winner.Symbol, e.now(),
		winner.Confidence*0.7,
		winner.Price,
		int(math.Floor(float64(winner.PositionSize)*0.7)),
		winner.StopLoss,
		winner.TakeProfit,
		fmt.Sprintf("冲突解决: %s胜出 (原置信度:%.1f%%)", winner.Source, winner.Confidence),
		map[string]any{
			"fusion_type":            "conflict_resolved",
			"winning_source":         string(winner.Source),
			"original_scores":        []float64{stratScore, aiScore},
			"confidence_reduction":   0.3,
			"conflicting_directions": []string{string(strat.Direction), string(ai.Direction)},
		},
	)
}

// fusedStopLoss 取更保守的止损：做多取更高，做空取更低；单边缺失时取有效一边。
func fusedStopLoss(strat, ai TradingSignal) float64 {
	if strat.StopLoss <= 0 || ai.StopLoss <= 0 {
		return math.Max(strat.StopLoss, ai.StopLoss)
	}
	if strat.Direction == Buy {
		return math.Max(strat.StopLoss, ai.StopLoss)
	}
	return math.Min(strat.StopLoss, ai.StopLoss)
}

// fusedTakeProfit 取更保守的止盈：做多取更低，做空取更高。
func fusedTakeProfit(strat, ai TradingSignal) float64 {
	if strat.TakeProfit <= 0 || ai.TakeProfit <= 0 {
		return math.Max(strat.TakeProfit, ai.TakeProfit)
	}
	if strat.Direction == Buy {
		return math.Min(strat.TakeProfit, ai.TakeProfit)
	}
	return math.Max(strat.TakeProfit, ai.TakeProfit)
}

// RecordTradeOutcome 记录一次交易结果：更新计数，把结果标注到该信号源最近一条
// 未标注的历史，并按最近50条历史重算近期表现，随后立即落盘。
func (e *Engine) RecordTradeOutcome(signal TradingSignal, success bool, pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.performance[signal.Source]
	if !ok {
		rec = &PerformanceRecord{RecentPerformance: 0.5}
		e.performance[signal.Source] = rec
	}
	rec.Total++
	if success {
		rec.Success++
	}

	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].Source == signal.Source && !e.history[i].Recorded {
			e.history[i].Recorded = true
			e.history[i].Success = success
			break
		}
	}

	start := 0
	if len(e.history) > recentWindow {
		start = len(e.history) - recentWindow
	}
	total, wins := 0, 0
	for _, h := range e.history[start:] {
		if h.Source != signal.Source {
			continue
		}
		total++
		if h.Recorded && h.Success {
			wins++
		}
	}
	if total > 0 {
		rec.RecentPerformance = float64(wins) / float64(total)
	}

	logger.Debugf("交易结果入账: source=%s success=%v pnl=%.2f recent=%.2f",
		signal.Source, success, pnl, rec.RecentPerformance)
	e.savePerformanceLocked()
}

// UpdateSourceWeights 按两侧近期表现把权重按比例归一到 0.9。
func (e *Engine) UpdateSourceWeights() {
	e.mu.Lock()
	defer e.mu.Unlock()

	stratPerf := e.performance[SourceStrategy].RecentPerformance
	aiPerf := e.performance[SourceAI].RecentPerformance
	if total := stratPerf + aiPerf; total > 0 {
		e.weights[SourceStrategy] = stratPerf / total * weightBudget
		e.weights[SourceAI] = aiPerf / total * weightBudget
	}
	logger.Infof("更新权重: 策略机=%.2f, AI=%.2f", e.weights[SourceStrategy], e.weights[SourceAI])
	e.savePerformanceLocked()
}

func (e *Engine) loadPerformance() {
	if e.perfFile == "" {
		return
	}
	raw, err := os.ReadFile(e.perfFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("加载性能数据失败: %v", err)
		}
		return
	}
	var data map[string]PerformanceRecord
	if err := json.Unmarshal(raw, &data); err != nil {
		// 文件损坏不致命：跳过并保留默认值
		logger.Warnf("性能数据损坏，忽略: %v", err)
		return
	}
	for src, rec := range data {
		switch SignalSource(src) {
		case SourceStrategy, SourceAI:
			cp := rec
			e.performance[SignalSource(src)] = &cp
		default:
			logger.Warnf("忽略未知信号源的性能数据: %s", src)
		}
	}
}

func (e *Engine) savePerformanceLocked() {
	if e.perfFile == "" {
		return
	}
	if dir := filepath.Dir(e.perfFile); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warnf("创建性能数据目录失败: %v", err)
			return
		}
	}
	data := make(map[string]PerformanceRecord, len(e.performance))
	for src, rec := range e.performance {
		data[string(src)] = *rec
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		logger.Warnf("保存性能数据失败: %v", err)
		return
	}
	if err := os.WriteFile(e.perfFile, raw, 0o644); err != nil {
		logger.Warnf("保存性能数据失败: %v", err)
	}
}
