package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeSignatureHeader is the header Stripe signs webhooks with
const StripeSignatureHeader = "Stripe-Signature"

// StripeGateway creates orders as PaymentIntents and verifies Stripe webhooks
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey     string
	WebhookSecret string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// CreateOrder creates a PaymentIntent for the booking amount
func (g *StripeGateway) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req == nil {
		return nil, fmt.Errorf("order request is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{"booking_id": req.Reference},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, classifyStripeError("create payment intent", err)
	}
	return orderFromIntent(pi), nil
}

// FetchOrder reads a PaymentIntent
func (g *StripeGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, domain.ErrGatewayNotFound
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(orderID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, domain.ErrGatewayNotFound
		}
		return nil, classifyStripeError("get payment intent", err)
	}
	return orderFromIntent(pi), nil
}

// CancelOrder cancels a PaymentIntent that has not succeeded
func (g *StripeGateway) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return domain.ErrGatewayNotFound
	}

	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	pi, err := paymentintent.Cancel(orderID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			switch stripeErr.Code {
			case stripe.ErrorCodeResourceMissing:
				return domain.ErrGatewayNotFound
			case stripe.ErrorCodePaymentIntentUnexpectedState:
				if stripeErr.PaymentIntent != nil && stripeErr.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled {
					return nil
				}
				return domain.ErrOrderPaid
			}
		}
		return classifyStripeError("cancel payment intent", err)
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return domain.ErrOrderPaid
	}
	return nil
}

// SignatureHeader implements WebhookVerifier
func (g *StripeGateway) SignatureHeader() string {
	return StripeSignatureHeader
}

// ParseEvent verifies the Stripe-Signature header and maps PaymentIntent events
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	// A failed attempt leaves the intent in requires_payment_method and the
	// customer may retry with another card, so only cancellation is final.
	ev := &Event{Type: string(event.Type)}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		ev.Kind = EventCaptured
	case stripe.EventTypePaymentIntentCanceled:
		ev.Kind = EventFailed
	default:
		ev.Kind = EventIgnored
		return ev, nil
	}

	var pi stripe.PaymentIntent
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &pi) != nil || pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent missing from %s", domain.ErrMalformedEvent, event.Type)
	}

	ev.OrderID = pi.ID
	ev.PaymentID = paymentIDOf(&pi)
	switch ev.Kind {
	case EventCaptured:
		ev.AmountMinor = pi.AmountReceived
		if ev.AmountMinor == 0 {
			ev.AmountMinor = pi.Amount
		}
	case EventFailed:
		ev.Reason = failureReasonOf(&pi)
	}
	return ev, nil
}

func orderFromIntent(pi *stripe.PaymentIntent) *Order {
	order := &Order{
		ID:           pi.ID,
		Reference:    pi.Metadata["booking_id"],
		AmountMinor:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
		Status:       OrderStatusCreated,
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		order.Status = OrderStatusPaid
		order.PaymentID = paymentIDOf(pi)
	case stripe.PaymentIntentStatusCanceled:
		order.Status = OrderStatusFailed
	}
	return order
}

func paymentIDOf(pi *stripe.PaymentIntent) string {
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		return pi.LatestCharge.ID
	}
	return pi.ID
}

func failureReasonOf(pi *stripe.PaymentIntent) string {
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		return pi.LastPaymentError.Msg
	}
	if pi.CancellationReason != "" {
		return string(pi.CancellationReason)
	}
	return domain.ReasonPaymentFailed
}

// classifyStripeError marks transport and server-side failures as upstream
// unavailability; request errors pass through unchanged.
func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 || stripeErr.Type == stripe.ErrorTypeAPI {
			return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamUnavailable, op, err)
}
