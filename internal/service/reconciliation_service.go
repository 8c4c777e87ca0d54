package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/metrics"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Outcome is how a webhook delivery was handled
type Outcome string

const (
	OutcomeProcessed        Outcome = "processed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeUnknownOrder     Outcome = "unknown_order"
	OutcomeIgnored          Outcome = "ignored"
)

// Ack acknowledges a webhook delivery
type Ack struct {
	Outcome   Outcome `json:"outcome"`
	EventType string  `json:"event_type,omitempty"`
	BookingID string  `json:"booking_id,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// ReconciliationService turns verified gateway events into booking transitions
type ReconciliationService interface {
	// SignatureHeader names the header the verifier reads
	SignatureHeader() string

	// HandleGatewayEvent verifies and applies one webhook delivery
	HandleGatewayEvent(ctx context.Context, rawBody []byte, signature string) (*Ack, error)
}

type reconciliationService struct {
	verifier gateway.WebhookVerifier
	resolver *Resolver
	now      func() time.Time
	log      *logger.Logger
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(verifier gateway.WebhookVerifier, resolver *Resolver, now func() time.Time) ReconciliationService {
	if now == nil {
		now = time.Now
	}
	return &reconciliationService{
		verifier: verifier,
		resolver: resolver,
		now:      now,
		log:      logger.Get().Named("reconciliation"),
	}
}

// SignatureHeader implements ReconciliationService
func (s *reconciliationService) SignatureHeader() string {
	return s.verifier.SignatureHeader()
}

// HandleGatewayEvent implements ReconciliationService
func (s *reconciliationService) HandleGatewayEvent(ctx context.Context, rawBody []byte, signature string) (*Ack, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciliation.handle_event")
	defer span.End()

	start := time.Now()

	event, err := s.verifier.ParseEvent(rawBody, signature)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, domain.ErrInvalidSignature) {
			reason = "invalid_signature"
		}
		metrics.RecordWebhookFailed(ctx, reason)
		s.log.Warn("rejected webhook", zap.String("reason", reason), zap.Error(err))
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("event_type", event.Type),
		attribute.String("event_kind", string(event.Kind)),
		attribute.String("gateway_order_id", event.OrderID),
	)

	ack, err := s.apply(ctx, event)
	if err != nil {
		metrics.RecordWebhookFailed(ctx, failureReason(err))
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	metrics.RecordWebhook(ctx, event.Type, string(ack.Outcome), time.Since(start).Seconds())
	span.SetAttributes(attribute.String("outcome", string(ack.Outcome)))
	span.SetStatus(codes.Ok, "")
	return ack, nil
}

func (s *reconciliationService) apply(ctx context.Context, event *gateway.Event) (*Ack, error) {
	ack := &Ack{EventType: event.Type}

	t := Transition{OrderID: event.OrderID, At: s.now()}
	switch event.Kind {
	case gateway.EventCaptured:
		t.Kind = TransitionConfirm
		t.PaymentID = event.PaymentID
		t.Guard = AmountGuard(event.AmountMinor)
	case gateway.EventFailed:
		t.Kind = TransitionFail
		t.Reason = event.Reason
	default:
		s.log.Debug("ignoring webhook event", zap.String("event_type", event.Type))
		ack.Outcome = OutcomeIgnored
		return ack, nil
	}

	res, err := s.resolver.Resolve(ctx, t)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Acked so the gateway stops redelivering an order we never issued
			s.log.Warn("webhook for unknown order",
				zap.String("gateway_order_id", event.OrderID),
				zap.String("event_type", event.Type),
			)
			ack.Outcome = OutcomeUnknownOrder
			return ack, nil
		}
		if errors.Is(err, domain.ErrAmountMismatch) {
			s.log.Error("webhook amount mismatch",
				zap.String("gateway_order_id", event.OrderID),
				zap.Int64("amount_minor", event.AmountMinor),
				zap.Error(err),
			)
		}
		return nil, err
	}

	ack.BookingID = res.Booking.ID
	ack.Status = res.Booking.Status.String()
	if !res.Applied {
		s.log.Info("duplicate webhook delivery",
			zap.String("booking_id", res.Booking.ID),
			zap.String("status", ack.Status),
			zap.String("event_type", event.Type),
		)
		ack.Outcome = OutcomeAlreadyProcessed
		return ack, nil
	}

	ack.Outcome = OutcomeProcessed
	return ack, nil
}

// AmountGuard rejects captures whose amount differs from the booking total.
// Zero means the gateway did not report an amount.
func AmountGuard(amountMinor int64) func(b *domain.Booking) error {
	return func(b *domain.Booking) error {
		if amountMinor == 0 || amountMinor == b.AmountMinor() {
			return nil
		}
		return fmt.Errorf("%w: booking %s expects %d, event carries %d",
			domain.ErrAmountMismatch, b.ID, b.AmountMinor(), amountMinor)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrTransactionConflict):
		return "transaction_conflict"
	default:
		return "internal"
	}
}
