package decision

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradeflow/internal/ai"
	"tradeflow/internal/event"
	"tradeflow/internal/fusion"
	"tradeflow/internal/journal"
	"tradeflow/internal/market"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Chat(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) Provider() string { return "mock" }

type harness struct {
	engine  *Engine
	gateway *mockGateway
	journal *journal.Journal
	bus     *event.Bus

	mu        sync.Mutex
	decisions []event.AIDecisionPayload
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	promptDir := filepath.Join(dir, "prompts")
	require.NoError(t, os.MkdirAll(promptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "decision.yaml"),
		[]byte("name: decision\nsystem: 你是交易员\nuser: \"{{symbol}} {{action}} 价格 {{price}}，复盘:{{reflections}}\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "reflect.yaml"),
		[]byte("name: reflect\nsystem: 复盘助手\nuser: \"{{symbol}} {{action}} 当前 {{price}}\"\n"), 0o644))
	prompts, err := ai.NewPromptManager(promptDir)
	require.NoError(t, err)
	t.Cleanup(func() { prompts.Close() })

	jn, err := journal.Open(journal.Config{Path: filepath.Join(dir, "journal.jsonl")})
	require.NoError(t, err)

	cache := market.NewCache(500)
	bars := make([]market.Bar, 0, 60)
	start := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		bars = append(bars, market.Bar{
			Symbol: "HK.00700",
			Start:  start.Add(time.Duration(i) * time.Minute),
			Open:   100, High: 100, Low: 100, Close: 100, Volume: 1000,
		})
	}
	cache.PutBars("HK.00700", bars)

	gw := &mockGateway{}
	bus := event.NewBus(64)
	h := &harness{gateway: gw, journal: jn, bus: bus}
	bus.Subscribe(event.TypeSystemEvent, func(evt event.Event) error {
		h.mu.Lock()
		h.decisions = append(h.decisions, evt.Payload.(event.AIDecisionPayload))
		h.mu.Unlock()
		return nil
	})

	h.engine = NewEngine(Config{}, Deps{
		Cache:   cache,
		Gateway: gw,
		Prompts: prompts,
		Fuser:   fusion.NewEngine(fusion.EngineConfig{PerformanceFile: filepath.Join(dir, "perf.json")}),
		Filter:  fusion.NewFilter(fusion.FilterConfig{InitialCapital: 1_000_000}),
		Journal: jn,
		Bus:     bus,
		Account: func(context.Context) AccountSnapshot {
			return AccountSnapshot{OK: true, Cash: 200_000, Power: 100_000}
		},
	})
	return h
}

func (h *harness) published() []event.AIDecisionPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]event.AIDecisionPayload, len(h.decisions))
	copy(out, h.decisions)
	return out
}

func buySignal() event.StrategySignalPayload {
	return event.StrategySignalPayload{
		Strategy: "vwap_reversion", Symbol: "HK.00700", Action: "buy",
		Quantity: 300, Price: 100, Confidence: 0.7, Reason: "below vwap",
	}
}

func TestDecideAgreementPublishesFusedBuy(t *testing.T) {
	h := newHarness(t)
	go h.bus.Run(context.Background())
	h.gateway.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return("建议买入。置信度: 80，止损: 97，止盈: 103，仓位: 20%", nil).Once()

	require.NoError(t, h.engine.onStrategySignal(event.Event{
		Type: event.TypeStrategySignal, Payload: buySignal(),
	}))
	h.bus.Stop()

	got := h.published()
	require.Len(t, got, 1)
	d := got[0]
	assert.True(t, d.DirectionMatch)
	assert.Equal(t, "agreed", d.FusionType)
	assert.Equal(t, fusion.Buy, d.FusedSignal.Direction)
	assert.InDelta(t, 75.5, d.FusedSignal.Confidence, 1e-9, "70×0.45+80×0.55")
	// AI 仓位 floor(100000×0.2/100)=200，整手不变；融合取两者较小值
	assert.Equal(t, 200, d.AISignal.PositionSize)
	assert.Equal(t, 200, d.FusedSignal.PositionSize)

	entries := h.journal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "buy", entries[0].Action)
	assert.Equal(t, "open", entries[0].Status)
	h.gateway.AssertExpectations(t)
}

func TestDecideDedupSkipsSecondSignal(t *testing.T) {
	h := newHarness(t)
	go h.bus.Run(context.Background())
	h.gateway.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return("买入，置信度: 80", nil).Once()

	evt := event.Event{Type: event.TypeStrategySignal, Payload: buySignal()}
	require.NoError(t, h.engine.onStrategySignal(evt))
	require.NoError(t, h.engine.onStrategySignal(evt))
	h.bus.Stop()

	assert.Len(t, h.published(), 1, "60 秒窗口内重复信号不触发第二次决策")
	h.gateway.AssertNumberOfCalls(t, "Chat", 1)
}

func TestDecideAIFailureDegradesToHold(t *testing.T) {
	h := newHarness(t)
	go h.bus.Run(context.Background())
	h.gateway.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return("", assert.AnError)

	require.NoError(t, h.engine.onStrategySignal(event.Event{
		Type: event.TypeStrategySignal, Payload: buySignal(),
	}))
	h.bus.Stop()

	got := h.published()
	require.Len(t, got, 1)
	d := got[0]
	assert.NotEmpty(t, d.AIError)
	assert.False(t, d.DirectionMatch, "策略 BUY 对 AI 降级 HOLD")
	// 冲突裁决后策略胜出但置信度 70×0.7=49 低于过滤门槛，最终降级 HOLD
	assert.Equal(t, fusion.Hold, d.FusedSignal.Direction)
	assert.Equal(t, 0.0, d.FusedSignal.Confidence)
	assert.Equal(t, 0, d.FusedSignal.PositionSize)
	assert.Contains(t, d.FusedSignal.Metadata, "filter_rejected")
}

func TestReflectRendersPromptAndCalls(t *testing.T) {
	h := newHarness(t)
	h.gateway.On("Chat", mock.Anything, "复盘助手", "HK.00700 buy 当前 105.000").
		Return("目标尚未触达，继续持有", nil).Once()

	out, err := h.engine.Reflect(context.Background(), journal.Entry{
		Symbol: "HK.00700", Action: "buy",
		Targets: journal.Targets{StopLoss: 97, TakeProfit: 110},
	}, 105)
	require.NoError(t, err)
	assert.Equal(t, "目标尚未触达，继续持有", out)
	h.gateway.AssertExpectations(t)
}

func TestTargetsPending(t *testing.T) {
	targets := journal.Targets{StopLoss: 95, TakeProfit: 110}
	assert.True(t, targetsPending(targets, "buy", 100))
	assert.False(t, targetsPending(targets, "buy", 111), "止盈已触达")
	assert.False(t, targetsPending(targets, "buy", 94), "止损已触达")
	assert.True(t, targetsPending(targets, "sell", 100))
	assert.False(t, targetsPending(targets, "sell", 94), "空头止盈已触达")
	assert.True(t, targetsPending(journal.Targets{}, "buy", 100), "无目标视作在途")
}
