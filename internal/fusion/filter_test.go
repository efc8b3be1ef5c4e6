package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterConfidenceFloorAppliesToHold(t *testing.T) {
	f := NewFilter(FilterConfig{})
	hold := NewTradingSignal(SourceAI, Hold, "HK.00700", testTime, 40, 300, 0, 0, 0, "", nil)
	ok, reason := f.ShouldAccept(hold)
	assert.False(t, ok)
	assert.Contains(t, reason, "置信度过低")

	hold = NewTradingSignal(SourceAI, Hold, "HK.00700", testTime, 60, 300, 0, 0, 0, "", nil)
	ok, _ = f.ShouldAccept(hold)
	assert.True(t, ok, "达标的 HOLD 无条件放行")
}

func TestFilterRiskReward(t *testing.T) {
	f := NewFilter(FilterConfig{InitialCapital: 1e9})
	// RR = 3/4.5 = 0.67 < 1.3
	s := NewTradingSignal(SourceAI, Buy, "HK.00700", testTime, 80, 300, 100, 295.5, 303, "", nil)
	ok, reason := f.ShouldAccept(s)
	assert.False(t, ok)
	assert.Contains(t, reason, "风险收益比不足")

	// 止损/止盈缺失时跳过该检查
	s = NewTradingSignal(SourceAI, Buy, "HK.00700", testTime, 80, 300, 100, 0, 0, "", nil)
	ok, _ = f.ShouldAccept(s)
	assert.True(t, ok)
}

func TestFilterPositionCap(t *testing.T) {
	f := NewFilter(FilterConfig{InitialCapital: 10000})
	// 300×100 = 30000 > 10000×0.3
	s := NewTradingSignal(SourceAI, Buy, "HK.00700", testTime, 80, 300, 100, 0, 0, "", nil)
	ok, reason := f.ShouldAccept(s)
	assert.False(t, ok)
	assert.Contains(t, reason, "仓位过大")

	f.UpdateCapital(1000000)
	ok, _ = f.ShouldAccept(s)
	assert.True(t, ok)
}

func TestFilterPositionCapBoundaryUsesDecimal(t *testing.T) {
	// 0.1×3 的浮点积略大于 0.3，会把恰好打满额度的仓位误拒；decimal 乘法不会
	f := NewFilter(FilterConfig{InitialCapital: 1})
	s := NewTradingSignal(SourceAI, Buy, "SH.600000", testTime, 80, 0.1, 3, 0, 0, "", nil)
	ok, reason := f.ShouldAccept(s)
	assert.True(t, ok, reason)
}

func TestFilterCooldownWindow(t *testing.T) {
	now := testTime
	f := NewFilter(FilterConfig{InitialCapital: 1e9, CooldownMinutes: 10})
	f.SetClock(func() time.Time { return now })

	s := NewTradingSignal(SourceAI, Buy, "HK.00700", testTime, 80, 300, 10, 0, 0, "", nil)
	ok, _ := f.ShouldAccept(s)
	assert.True(t, ok)

	now = now.Add(5 * time.Minute)
	ok, reason := f.ShouldAccept(s)
	assert.False(t, ok)
	assert.Contains(t, reason, "冷却期内")

	// 不同方向不受影响
	sell := NewTradingSignal(SourceAI, Sell, "HK.00700", testTime, 80, 300, 10, 0, 0, "", nil)
	ok, _ = f.ShouldAccept(sell)
	assert.True(t, ok)

	// 窗口过后重新放行
	now = now.Add(6 * time.Minute)
	ok, _ = f.ShouldAccept(s)
	assert.True(t, ok)
}
