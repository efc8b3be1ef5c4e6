package event

import (
	"context"
	"sync"
	"time"

	"tradeflow/internal/logger"
)

// Handler 处理一个事件；返回的错误只记录不扩散。
type Handler func(Event) error

// Bus 进程内发布/订阅总线：有界队列 + 单 goroutine 顺序分发。
// 同一事件的多个 handler 按注册顺序串行执行，慢 handler 会拖慢后续事件，
// 换取严格的事件顺序（单消费者设计）。
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	queue    chan Event

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Bus{
		handlers: make(map[Type][]Handler),
		queue:    make(chan Event, queueSize),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe 注册某事件类型的处理器。须在 Start 前完成注册。
func (b *Bus) Subscribe(t Type, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], h)
	b.mu.Unlock()
	logger.Infof("注册事件处理器: %s", t)
}

// Publish 入队而不阻塞调用方；队列满时丢弃并告警。
func (b *Bus) Publish(evt Event) {
	select {
	case <-b.stopped:
		logger.Debugf("总线已停止，丢弃事件: %s", evt.Type)
		return
	default:
	}
	select {
	case b.queue <- evt:
		logger.Debugf("发送事件: %s", evt.Type)
	default:
		logger.Warnf("事件队列已满，丢弃事件: %s (source=%s)", evt.Type, evt.Source)
	}
}

// Run 启动分发循环，直到 Stop 或 ctx 取消。停止前清空已入队事件。
func (b *Bus) Run(ctx context.Context) {
	logger.Infof("事件总线已启动")
	defer close(b.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		case <-ticker.C:
			// 周期醒来检查停止标志
			select {
			case <-b.stopped:
				b.drain()
				logger.Infof("事件总线已停止")
				return
			case <-ctx.Done():
				b.drain()
				logger.Infof("事件总线已停止")
				return
			default:
			}
		}
	}
}

// Stop 协作式停止：不打断正在执行的 handler，由循环在下个轮询点观察。
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
	<-b.done
}

func (b *Bus) drain() {
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		default:
			return
		}
	}
}

// dispatch 按注册顺序串行调用 handler；错误与 panic 在边界处隔离。
func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()
	for _, h := range handlers {
		b.invoke(h, evt)
	}
}

func (b *Bus) invoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("事件处理器 panic: %v (event=%s)", r, evt.Type)
		}
	}()
	if err := h(evt); err != nil {
		logger.Errorf("事件处理器执行失败: %v (event=%s)", err, evt.Type)
	}
}
