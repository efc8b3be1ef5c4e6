// Package notify 在决策通过执行闸门时推送文本通知。
package notify

// TextNotifier 是最小的文本推送接口，调用方不感知具体实现。
type TextNotifier interface {
	SendText(text string) error
}

// Nop 丢弃所有消息，未配置通知渠道时使用。
type Nop struct{}

func (Nop) SendText(string) error { return nil }
