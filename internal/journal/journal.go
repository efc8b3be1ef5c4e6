// Package journal 维护决策意图的 JSONL 交易日志与周期性复盘。
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tradeflow/internal/logger"
)

// Targets 记录 AI 输出中可解析出的结构化目标。
type Targets struct {
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Timeframe  string  `json:"timeframe,omitempty"`
	Size       int     `json:"size,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Note 是附加在条目上的一条进度快照、复盘结果或平仓结论。
type Note struct {
	Kind    string    `json:"kind"` // progress | reflection | outcome
	At      time.Time `json:"at"`
	Price   float64   `json:"price,omitempty"`
	Targets *Targets  `json:"targets,omitempty"`
	Text    string    `json:"text,omitempty"`
}

// Entry 是一条决策意图，状态 open 直到显式 Close。
type Entry struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason,omitempty"`
	AIInput   string    `json:"ai_input,omitempty"`
	AIOutput  string    `json:"ai_output,omitempty"`
	Targets   Targets   `json:"targets"`
	Status    string    `json:"status"` // open | closed
	LastCheck time.Time `json:"last_check,omitempty"`
	Notes     []Note    `json:"reflections,omitempty"`
}

// Config 控制复盘节奏。
type Config struct {
	Path string
	// 同一条目两次复盘的最小间隔
	CheckInterval time.Duration
	// 相对上次进度快照的价格变化阈值（比例）
	PriceChangeThreshold float64
	// 全局复盘调用的每小时上限
	MaxReflectionsPerHour int
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Hour
	}
	if c.PriceChangeThreshold <= 0 {
		c.PriceChangeThreshold = 0.01
	}
	if c.MaxReflectionsPerHour <= 0 {
		c.MaxReflectionsPerHour = 6
	}
	return c
}

// ReflectionSummary 是注入后续决策提示词的摘要。
type ReflectionSummary struct {
	EntryID   string
	Symbol    string
	Action    string
	CreatedAt time.Time
	Targets   Targets
	Summary   string
}

// Journal 持有全部条目，变更时整体重写 JSONL 文件。
type Journal struct {
	cfg     Config
	mu      sync.Mutex
	entries []Entry
	limiter *rate.Limiter
	now     func() time.Time
}

// Open 加载已有日志，坏行跳过并告警。
func Open(cfg Config) (*Journal, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("journal path 不能为空")
	}
	j := &Journal{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.MaxReflectionsPerHour)), cfg.MaxReflectionsPerHour),
		now:     time.Now,
	}
	raw, err := os.ReadFile(cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, fmt.Errorf("读取交易日志失败: %w", err)
	}
	for i, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			logger.Warnf("交易日志第 %d 行损坏，已跳过: %v", i+1, err)
			continue
		}
		j.entries = append(j.entries, e)
	}
	logger.Infof("交易日志已加载 %d 条 (%s)", len(j.entries), filepath.Base(cfg.Path))
	return j, nil
}

// SetClock 替换时间源，测试用。
func (j *Journal) SetClock(now func() time.Time) {
	j.mu.Lock()
	j.now = now
	j.mu.Unlock()
}

// Record 追加一条 open 状态的决策条目并落盘。
func (j *Journal) Record(symbol, action, reason, aiInput, aiOutput string, targets Targets) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := Entry{
		ID:        uuid.NewString(),
		CreatedAt: j.now(),
		Symbol:    symbol,
		Action:    action,
		Reason:    reason,
		AIInput:   aiInput,
		AIOutput:  aiOutput,
		Targets:   targets,
		Status:    "open",
	}
	j.entries = append(j.entries, e)
	if err := j.saveLocked(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Close 显式关闭条目并记录结论。
func (j *Journal) Close(entryID, outcome string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.entries {
		if j.entries[i].ID != entryID {
			continue
		}
		if j.entries[i].Status == "closed" {
			return fmt.Errorf("条目 %s 已关闭", entryID)
		}
		j.entries[i].Status = "closed"
		j.entries[i].Notes = append(j.entries[i].Notes, Note{Kind: "outcome", At: j.now(), Text: outcome})
		return j.saveLocked()
	}
	return fmt.Errorf("条目 %s 不存在", entryID)
}

// GetPriceFunc 获取符号当前价。
type GetPriceFunc func(symbol string) (float64, error)

// ReflectFunc 对一条在途条目做一次 AI 复盘。
type ReflectFunc func(ctx context.Context, e Entry, price float64) (string, error)

// RefreshProgress 为每条 open 条目追加进度快照；满足三道闸门
// （条目冷却、价格变化阈值、全局小时限速）时另行触发复盘。
// 复盘失败被吞掉，进度快照照常追加。
// 取价与复盘回调（可能耗时一次 AI 调用）在锁外执行，
// 巡检期间 Record/Query 不被阻塞；闸门判断依据巡检开始前的快照状态。
func (j *Journal) RefreshProgress(ctx context.Context, getPrice GetPriceFunc, reflect ReflectFunc) {
	j.mu.Lock()
	now := j.now()
	open := make([]Entry, 0, len(j.entries))
	for i := range j.entries {
		if j.entries[i].Status == "open" {
			open = append(open, j.entries[i])
		}
	}
	j.mu.Unlock()

	updates := make(map[string][]Note, len(open))
	for _, e := range open {
		price, err := getPrice(e.Symbol)
		if err != nil {
			logger.Warnf("复盘取价失败 symbol=%s: %v", e.Symbol, err)
			continue
		}
		t := e.Targets
		notes := []Note{{Kind: "progress", At: now, Price: price, Targets: &t}}
		if text, ok := j.maybeReflect(ctx, reflect, e, price, now); ok {
			notes = append(notes, Note{Kind: "reflection", At: now, Price: price, Text: text})
		}
		updates[e.ID] = notes
	}
	if len(updates) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.entries {
		e := &j.entries[i]
		notes, ok := updates[e.ID]
		if !ok {
			continue
		}
		e.Notes = append(e.Notes, notes...)
		e.LastCheck = now
	}
	if err := j.saveLocked(); err != nil {
		logger.Errorf("交易日志落盘失败: %v", err)
	}
}

// maybeReflect 依次过三道闸门后触发复盘。e 是巡检前的条目快照。
func (j *Journal) maybeReflect(ctx context.Context, reflect ReflectFunc, e Entry, price float64, now time.Time) (string, bool) {
	if reflect == nil {
		return "", false
	}
	if !e.LastCheck.IsZero() && now.Sub(e.LastCheck) < j.cfg.CheckInterval {
		return "", false
	}
	if prev := lastProgressPrice(&e); prev > 0 && math.Abs(price-prev)/prev < j.cfg.PriceChangeThreshold {
		return "", false
	}
	if !j.limiter.AllowN(now, 1) {
		logger.Debugf("复盘达到小时限速，跳过 entry=%s", e.ID)
		return "", false
	}
	text, err := reflect(ctx, e, price)
	if err != nil {
		logger.Warnf("复盘调用失败 entry=%s: %v", e.ID, err)
		return "", false
	}
	return text, true
}

// QueryRecentReflections 返回最近 days 天内匹配条目的最新复盘/进度摘要，新者在前。
func (j *Journal) QueryRecentReflections(symbol, action string, days, limit int, onlyOpen bool) []ReflectionSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	cutoff := j.now().AddDate(0, 0, -days)
	var out []ReflectionSummary
	for i := range j.entries {
		e := &j.entries[i]
		if e.Symbol != symbol || e.CreatedAt.Before(cutoff) {
			continue
		}
		if action != "" && e.Action != action {
			continue
		}
		if onlyOpen && e.Status != "open" {
			continue
		}
		out = append(out, ReflectionSummary{
			EntryID:   e.ID,
			Symbol:    e.Symbol,
			Action:    e.Action,
			CreatedAt: e.CreatedAt,
			Targets:   e.Targets,
			Summary:   latestNoteText(e),
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SummarizeLongTerm 汇总最近 days 天该符号的决策与平仓结论。
func (j *Journal) SummarizeLongTerm(symbol string, days int) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	cutoff := j.now().AddDate(0, 0, -days)
	var total, buys, sells, closed int
	var outcomes []string
	for i := range j.entries {
		e := &j.entries[i]
		if e.Symbol != symbol || e.CreatedAt.Before(cutoff) {
			continue
		}
		total++
		switch e.Action {
		case "buy":
			buys++
		case "sell":
			sells++
		}
		if e.Status == "closed" {
			closed++
			for k := len(e.Notes) - 1; k >= 0; k-- {
				if e.Notes[k].Kind == "outcome" {
					outcomes = append(outcomes, e.Notes[k].Text)
					break
				}
			}
		}
	}
	if total == 0 {
		return ""
	}
	s := fmt.Sprintf("近%d天 %s 共%d次决策（买%d/卖%d），已关闭%d次", days, symbol, total, buys, sells, closed)
	if len(outcomes) > 0 {
		s += "；结论: " + strings.Join(outcomes, "；")
	}
	return s
}

// Entries 返回当前条目副本。
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *Journal) saveLocked() error {
	var b strings.Builder
	for i := range j.entries {
		line, err := json.Marshal(&j.entries[i])
		if err != nil {
			return err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if dir := filepath.Dir(j.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(j.cfg.Path, []byte(b.String()), 0o644)
}

func lastProgressPrice(e *Entry) float64 {
	for i := len(e.Notes) - 1; i >= 0; i-- {
		if e.Notes[i].Kind == "progress" {
			return e.Notes[i].Price
		}
	}
	return 0
}

func latestNoteText(e *Entry) string {
	for i := len(e.Notes) - 1; i >= 0; i-- {
		n := e.Notes[i]
		switch n.Kind {
		case "reflection":
			return n.Text
		case "progress":
			return fmt.Sprintf("最近进度: 价格 %.3f @ %s", n.Price, n.At.Format("01-02 15:04"))
		}
	}
	return "尚无进度记录"
}
