package logger

// 中文说明：
// AI 原始请求/响应落盘：每次模型调用写一行 NDJSON，便于离线复盘决策质量。
// 未设置 writer 或未开启 dump 时为空操作。

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

var (
	aiMu      sync.Mutex
	aiWriter  io.Writer
	aiDumpRaw bool
)

func SetAIDumpWriter(w io.Writer) {
	aiMu.Lock()
	aiWriter = w
	aiMu.Unlock()
}

func EnableAIRawDump(enabled bool) {
	aiMu.Lock()
	aiDumpRaw = enabled
	aiMu.Unlock()
}

type aiDumpRecord struct {
	Timestamp string `json:"timestamp"`
	Provider  string `json:"provider"`
	Purpose   string `json:"purpose"`
	Symbol    string `json:"symbol,omitempty"`
	Action    string `json:"action,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Content   string `json:"content"`
}

// DumpAIResponse 记录一次模型响应。prompt 仅在开启原始 dump 时保留。
func DumpAIResponse(provider, purpose, symbol, action, prompt, content string) {
	aiMu.Lock()
	w := aiWriter
	raw := aiDumpRaw
	aiMu.Unlock()
	if w == nil {
		return
	}
	rec := aiDumpRecord{
		Timestamp: time.Now().Format(time.RFC3339),
		Provider:  provider,
		Purpose:   purpose,
		Symbol:    symbol,
		Action:    action,
		Content:   content,
	}
	if raw {
		rec.Prompt = prompt
	}
	line, err := json.Marshal(rec)
	if err != nil {
		Warnf("AI dump 序列化失败: %v", err)
		return
	}
	aiMu.Lock()
	defer aiMu.Unlock()
	if _, err := w.Write(append(line, '\n')); err != nil {
		Warnf("AI dump 写入失败: %v", err)
	}
}
