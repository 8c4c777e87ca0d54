package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
)

// alphanumericChars for generating Stripe-compatible IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomAlphanumeric generates a random alphanumeric string of given length
func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGateway implements Gateway in memory for development and tests
type MockGateway struct {
	config *MockGatewayConfig

	mu     sync.RWMutex
	orders map[string]*Order
	// byKey maps idempotency keys to order ids
	byKey map[string]string
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int

	// CreateFailureRate is the probability that CreateOrder fails (0.0 to 1.0)
	CreateFailureRate float64
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		DelayMs: 50,
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}

	if config.CreateFailureRate < 0 {
		config.CreateFailureRate = 0
	}
	if config.CreateFailureRate > 1 {
		config.CreateFailureRate = 1
	}

	return &MockGateway{
		config: config,
		orders: make(map[string]*Order),
		byKey:  make(map[string]string),
	}
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// CreateOrder registers an unpaid order. Repeating an idempotency key returns the first order.
func (g *MockGateway) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req == nil {
		return nil, fmt.Errorf("order request is required")
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if req.IdempotencyKey != "" {
		if id, ok := g.byKey[req.IdempotencyKey]; ok {
			o := *g.orders[id]
			return &o, nil
		}
	}

	if g.config.CreateFailureRate > 0 && rand.Float64() < g.config.CreateFailureRate {
		return nil, fmt.Errorf("%w: mock gateway rejected order", domain.ErrUpstreamUnavailable)
	}

	id := "order_" + randomAlphanumeric(14)
	order := &Order{
		ID:           id,
		Reference:    req.Reference,
		AmountMinor:  req.AmountMinor,
		Currency:     strings.ToUpper(req.Currency),
		Status:       OrderStatusCreated,
		ClientSecret: fmt.Sprintf("%s_secret_%s", id, randomAlphanumeric(24)),
	}
	g.orders[id] = order
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = id
	}

	o := *order
	return &o, nil
}

// FetchOrder returns the current state of an order
func (g *MockGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	order, ok := g.orders[orderID]
	if !ok {
		return nil, domain.ErrGatewayNotFound
	}
	o := *order
	return &o, nil
}

// CancelOrder marks an unpaid order failed
func (g *MockGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.delay(ctx); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return domain.ErrGatewayNotFound
	}
	if order.Status == OrderStatusPaid {
		return domain.ErrOrderPaid
	}
	order.Status = OrderStatusFailed
	return nil
}

// MarkPaid simulates a captured payment and returns the payment id
func (g *MockGateway) MarkPaid(orderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return "", domain.ErrGatewayNotFound
	}
	if order.PaymentID == "" {
		order.PaymentID = "pay_" + randomAlphanumeric(14)
	}
	order.Status = OrderStatusPaid
	return order.PaymentID, nil
}

// MarkFailed simulates a declined payment
func (g *MockGateway) MarkFailed(orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return domain.ErrGatewayNotFound
	}
	order.Status = OrderStatusFailed
	return nil
}

// OrderCount returns the number of orders created
func (g *MockGateway) OrderCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.orders)
}

func (g *MockGateway) delay(ctx context.Context) error {
	if g.config.DelayMs <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		return nil
	}
}
