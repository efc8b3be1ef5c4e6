package market

import "sync"

// Cache 按标的缓存最近的K线，有界环形语义：超出 maxlen 丢弃最旧的。
// 写入方是策略运行器，读取方是决策引擎，跨 goroutine 访问需要锁保护。
type Cache struct {
	mu     sync.RWMutex
	maxlen int
	bars   map[string][]Bar
}

func NewCache(maxlen int) *Cache {
	if maxlen <= 0 {
		maxlen = 2000
	}
	return &Cache{maxlen: maxlen, bars: make(map[string][]Bar)}
}

// PutBars 以最新窗口覆盖合并：按 Start 去重追加，保留最近 maxlen 根。
func (c *Cache) PutBars(symbol string, bars []Bar) {
	if symbol == "" || len(bars) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.bars[symbol]
	merged := existing
	for _, b := range bars {
		if n := len(merged); n > 0 && !b.Start.After(merged[n-1].Start) {
			if b.Start.Equal(merged[n-1].Start) {
				merged[n-1] = b
			}
			continue
		}
		merged = append(merged, b)
	}
	if len(merged) > c.maxlen {
		merged = merged[len(merged)-c.maxlen:]
	}
	c.bars[symbol] = merged
}

// GetBars 返回该标的最近 limit 根K线的拷贝（limit<=0 返回全部）。
func (c *Cache) GetBars(symbol string, limit int) []Bar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars := c.bars[symbol]
	if len(bars) == 0 {
		return nil
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out
}

// LastClose 返回该标的最近收盘价，没有数据时返回 false。
func (c *Cache) LastClose(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars := c.bars[symbol]
	if len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}
