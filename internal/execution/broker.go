package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// OrderRequest 提交给券商能力的下单请求。Price 为 0 表示市价。
type OrderRequest struct {
	Symbol    string
	Side      string // BUY | SELL
	Quantity  int
	Price     float64
	OrderType string // market | limit
	Env       string // sim | live
}

// OrderResult 下单结果。
type OrderResult struct {
	OK      bool
	OrderID string
	Error   string
}

// Broker 券商下单能力。
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) OrderResult
}

// SimBroker 模拟券商：记录请求并立即成功，干跑与测试用。
type SimBroker struct {
	mu     sync.Mutex
	placed []OrderRequest
}

func NewSimBroker() *SimBroker { return &SimBroker{} }

func (b *SimBroker) PlaceOrder(_ context.Context, req OrderRequest) OrderResult {
	if req.Quantity <= 0 {
		return OrderResult{Error: fmt.Sprintf("无效数量 %d", req.Quantity)}
	}
	b.mu.Lock()
	b.placed = append(b.placed, req)
	b.mu.Unlock()
	return OrderResult{OK: true, OrderID: "sim-" + uuid.NewString()[:8]}
}

// Placed 返回已提交请求的副本。
func (b *SimBroker) Placed() []OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]OrderRequest, len(b.placed))
	copy(out, b.placed)
	return out
}
