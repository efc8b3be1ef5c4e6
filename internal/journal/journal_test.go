package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T, cfg Config) *Journal {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "journal.jsonl")
	}
	j, err := Open(cfg)
	require.NoError(t, err)
	return j
}

func TestRecordAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := newTestJournal(t, Config{Path: path})
	e, err := j.Record("HK.00700", "buy", "vwap 回归", "prompt", "看多", Targets{StopLoss: 310, TakeProfit: 340, Confidence: 72})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "open", e.Status)

	re, err := Open(Config{Path: path})
	require.NoError(t, err)
	entries := re.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID, entries[0].ID)
	assert.Equal(t, 340.0, entries[0].Targets.TakeProfit)
}

func TestOpenSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	good := `{"id":"a","created_at":"2025-03-03T10:00:00Z","symbol":"HK.00700","action":"buy","targets":{},"status":"open"}`
	require.NoError(t, os.WriteFile(path, []byte(good+"\n{not json}\n"), 0o644))
	j, err := Open(Config{Path: path})
	require.NoError(t, err)
	assert.Len(t, j.Entries(), 1)
}

func TestRefreshProgressEntryCooldown(t *testing.T) {
	// last_check 2 分钟前、间隔 1 小时：不触发复盘，但进度照常追加
	j := newTestJournal(t, Config{CheckInterval: time.Hour})
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	j.SetClock(func() time.Time { return now })
	e, err := j.Record("HK.00700", "buy", "", "", "", Targets{TakeProfit: 340})
	require.NoError(t, err)

	reflected := 0
	refresh := func() {
		j.RefreshProgress(context.Background(),
			func(string) (float64, error) { return 320, nil },
			func(context.Context, Entry, float64) (string, error) {
				reflected++
				return "持仓继续", nil
			})
	}
	refresh() // 首次：无 last_check，触发复盘
	assert.Equal(t, 1, reflected)

	now = now.Add(2 * time.Minute)
	refresh() // 冷却内：只追加进度
	assert.Equal(t, 1, reflected)

	got := j.Entries()[0]
	assert.Equal(t, e.ID, got.ID)
	progress := 0
	for _, n := range got.Notes {
		if n.Kind == "progress" {
			progress++
		}
	}
	assert.Equal(t, 2, progress)
	assert.Equal(t, now, got.LastCheck)
}

func TestRefreshProgressPriceThreshold(t *testing.T) {
	j := newTestJournal(t, Config{CheckInterval: time.Minute, PriceChangeThreshold: 0.01})
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	j.SetClock(func() time.Time { return now })
	_, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)

	price := 320.0
	reflected := 0
	refresh := func() {
		j.RefreshProgress(context.Background(),
			func(string) (float64, error) { return price, nil },
			func(context.Context, Entry, float64) (string, error) {
				reflected++
				return "ok", nil
			})
	}
	refresh()
	assert.Equal(t, 1, reflected)

	now = now.Add(2 * time.Minute)
	price = 320.5 // 变化 <1%
	refresh()
	assert.Equal(t, 1, reflected)

	now = now.Add(2 * time.Minute)
	price = 340 // 相对上次快照变化 >1%
	refresh()
	assert.Equal(t, 2, reflected)
}

func TestRefreshProgressHourlyLimit(t *testing.T) {
	j := newTestJournal(t, Config{CheckInterval: time.Minute, MaxReflectionsPerHour: 1})
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	j.SetClock(func() time.Time { return now })
	_, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)
	_, err = j.Record("HK.09988", "sell", "", "", "", Targets{})
	require.NoError(t, err)

	reflected := 0
	j.RefreshProgress(context.Background(),
		func(string) (float64, error) { return 100, nil },
		func(context.Context, Entry, float64) (string, error) {
			reflected++
			return "ok", nil
		})
	assert.Equal(t, 1, reflected, "每小时限额为 1 时第二条不触发")

	// 两条条目都有进度快照
	for _, e := range j.Entries() {
		hasProgress := false
		for _, n := range e.Notes {
			if n.Kind == "progress" {
				hasProgress = true
			}
		}
		assert.True(t, hasProgress, "entry %s 缺少进度快照", e.ID)
	}
}

func TestReflectFailureStillAppendsProgress(t *testing.T) {
	j := newTestJournal(t, Config{})
	_, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)

	j.RefreshProgress(context.Background(),
		func(string) (float64, error) { return 100, nil },
		func(context.Context, Entry, float64) (string, error) {
			return "", assert.AnError
		})
	got := j.Entries()[0]
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "progress", got.Notes[0].Kind)
}

func TestRefreshProgressDoesNotBlockJournal(t *testing.T) {
	// 复盘回调在锁外执行：回调里读写日志不得死锁
	j := newTestJournal(t, Config{})
	_, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)

	j.RefreshProgress(context.Background(),
		func(string) (float64, error) { return 100, nil },
		func(_ context.Context, e Entry, _ float64) (string, error) {
			got := j.QueryRecentReflections(e.Symbol, e.Action, 7, 5, true)
			require.Len(t, got, 1)
			_, err := j.Record("HK.09988", "sell", "", "", "", Targets{})
			require.NoError(t, err)
			return "复盘完成", nil
		})

	entries := j.Entries()
	require.Len(t, entries, 2, "回调期间的 Record 正常落盘")
	var first Entry
	for _, e := range entries {
		if e.Symbol == "HK.00700" {
			first = e
		}
	}
	require.Len(t, first.Notes, 2)
	assert.Equal(t, "progress", first.Notes[0].Kind)
	assert.Equal(t, "reflection", first.Notes[1].Kind)
}

func TestCloseAppendsOutcome(t *testing.T) {
	j := newTestJournal(t, Config{})
	e, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)

	require.NoError(t, j.Close(e.ID, "止盈离场 +2.8%"))
	got := j.Entries()[0]
	assert.Equal(t, "closed", got.Status)
	require.Len(t, got.Notes, 1)
	assert.Equal(t, "outcome", got.Notes[0].Kind)

	assert.Error(t, j.Close(e.ID, "再次关闭"))
	assert.Error(t, j.Close("missing", "x"))
}

func TestQueryRecentReflections(t *testing.T) {
	j := newTestJournal(t, Config{})
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	j.SetClock(func() time.Time { return now })

	old, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)
	require.NoError(t, j.Close(old.ID, "done"))
	_, err = j.Record("HK.00700", "sell", "", "", "", Targets{})
	require.NoError(t, err)
	now = now.Add(time.Hour)
	latest, err := j.Record("HK.00700", "buy", "", "", "", Targets{TakeProfit: 350})
	require.NoError(t, err)

	got := j.QueryRecentReflections("HK.00700", "buy", 7, 5, true)
	require.Len(t, got, 1, "closed 与 sell 条目被过滤")
	assert.Equal(t, latest.ID, got[0].EntryID)
	assert.Equal(t, 350.0, got[0].Targets.TakeProfit)

	all := j.QueryRecentReflections("HK.00700", "", 7, 5, false)
	require.Len(t, all, 3)
	assert.Equal(t, latest.ID, all[0].EntryID, "新者在前")
}

func TestSummarizeLongTerm(t *testing.T) {
	j := newTestJournal(t, Config{})
	e, err := j.Record("HK.00700", "buy", "", "", "", Targets{})
	require.NoError(t, err)
	_, err = j.Record("HK.00700", "sell", "", "", "", Targets{})
	require.NoError(t, err)
	require.NoError(t, j.Close(e.ID, "止损离场"))

	s := j.SummarizeLongTerm("HK.00700", 30)
	assert.Contains(t, s, "共2次决策")
	assert.Contains(t, s, "止损离场")
	assert.Empty(t, j.SummarizeLongTerm("HK.09988", 30))
}
