package gateway

import "context"

// OrderStatus is the gateway's view of an order
type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// OrderRequest asks the gateway for a payable order
type OrderRequest struct {
	// Reference ties the order to a booking
	Reference   string
	AmountMinor int64
	Currency    string
	// IdempotencyKey makes retried creates return the same order
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// Order is a payable order at the gateway
type Order struct {
	ID           string      `json:"id"`
	Reference    string      `json:"reference"`
	AmountMinor  int64       `json:"amount_minor"`
	Currency     string      `json:"currency"`
	Status       OrderStatus `json:"status"`
	ClientSecret string      `json:"client_secret,omitempty"`
	PaymentID    string      `json:"payment_id,omitempty"`
}

// IsPaid reports whether money was captured for the order
func (o *Order) IsPaid() bool {
	return o != nil && o.Status == OrderStatusPaid
}

// Gateway creates and inspects payment orders
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	// CancelOrder stops an unpaid order from being paid. Paid orders
	// return domain.ErrOrderPaid.
	CancelOrder(ctx context.Context, orderID string) error
}

// EventKind classifies a webhook notification
type EventKind string

const (
	EventCaptured EventKind = "captured"
	EventFailed   EventKind = "failed"
	EventIgnored  EventKind = "ignored"
)

// Event is a verified, gateway-neutral payment notification
type Event struct {
	Kind EventKind
	// Type is the gateway's own event name
	Type      string
	OrderID   string
	PaymentID string
	// AmountMinor is zero when the gateway did not report an amount
	AmountMinor int64
	Reason      string
}

// WebhookVerifier authenticates and decodes webhook deliveries
type WebhookVerifier interface {
	// SignatureHeader names the HTTP header carrying the signature
	SignatureHeader() string
	// ParseEvent verifies signature over the raw payload and decodes it
	ParseEvent(payload []byte, signature string) (*Event, error)
}
