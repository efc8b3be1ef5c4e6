package fusion

import (
	"fmt"
	"sync"
	"time"

	"tradeflow/internal/logger"
	"tradeflow/internal/market"
	"tradeflow/internal/pkg/ttlcache"
)

const (
	filterPruneAge  = 24 * time.Hour
	filterPruneSize = 1000
)

// FilterConfig 质量过滤阈值。
type FilterConfig struct {
	MinConfidence    float64
	MinRiskReward    float64
	MaxPositionRatio float64
	CooldownMinutes  int
	InitialCapital   float64
}

func (c FilterConfig) withDefaults() FilterConfig {
	if c.MinConfidence <= 0 {
		c.MinConfidence = 60
	}
	if c.MinRiskReward <= 0 {
		c.MinRiskReward = 1.3
	}
	if c.MaxPositionRatio <= 0 {
		c.MaxPositionRatio = 0.3
	}
	if c.CooldownMinutes <= 0 {
		c.CooldownMinutes = 10
	}
	if c.InitialCapital <= 0 {
		c.InitialCapital = 10000
	}
	return c
}

// Filter 信号质量/风险闸门。检查顺序固定：
// 置信度（HOLD 也查）→ HOLD 放行 → 风险收益比 → 仓位占比 → 同向冷却期。
type Filter struct {
	cfg FilterConfig

	mu      sync.Mutex
	capital float64
	cool    *ttlcache.Cache
}

func NewFilter(cfg FilterConfig) *Filter {
	cfg = cfg.withDefaults()
	return &Filter{
		cfg:     cfg,
		capital: cfg.InitialCapital,
		cool:    ttlcache.New(time.Duration(cfg.CooldownMinutes)*time.Minute, 0),
	}
}

// UpdateCapital 刷新用于仓位占比校验的资金。
func (f *Filter) UpdateCapital(capital float64) {
	if capital <= 0 {
		return
	}
	f.mu.Lock()
	f.capital = capital
	f.mu.Unlock()
}

// ShouldAccept 返回是否接受以及拒绝原因。接受非 HOLD 信号时记录冷却时间戳。
func (f *Filter) ShouldAccept(signal TradingSignal) (bool, string) {
	// 置信度闸门先于 HOLD 放行：低置信度的 HOLD 同样被拒（沿用现行为，待产品确认）
	if signal.Confidence < f.cfg.MinConfidence {
		return false, fmt.Sprintf("置信度过低: %.1f%% < %.1f%%", signal.Confidence, f.cfg.MinConfidence)
	}

	if signal.Direction == Hold {
		return true, "HOLD信号"
	}

	if rr, ok := signal.RiskReward(); ok && rr < f.cfg.MinRiskReward {
		return false, fmt.Sprintf("风险收益比不足: %.2f < %.2f", rr, f.cfg.MinRiskReward)
	}

	f.mu.Lock()
	capital := f.capital
	f.mu.Unlock()
	positionValue := market.PositionValue(signal.Price, signal.PositionSize)
	maxValue := capital * f.cfg.MaxPositionRatio
	if positionValue > maxValue {
		return false, fmt.Sprintf("仓位过大: %.0f > %.0f", positionValue, maxValue)
	}

	key := signal.Symbol + "|" + string(signal.Direction)
	if elapsed, hit := f.cool.Seen(key); hit {
		remaining := time.Duration(f.cfg.CooldownMinutes)*time.Minute - elapsed
		return false, fmt.Sprintf("冷却期内: %.1f分钟剩余", remaining.Minutes())
	}
	f.cool.Mark(key)

	if f.cool.Len() > filterPruneSize {
		f.cool.PruneOlderThan(filterPruneAge)
		logger.Debugf("过滤器冷却表清理后剩余 %d 项", f.cool.Len())
	}
	return true, "信号有效"
}

// SetClock 测试钩子，透传给冷却缓存。
func (f *Filter) SetClock(now func() time.Time) {
	f.cool.SetClock(now)
}
