package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

func reserve(t *testing.T, h *harness, showID string, seats int) *ReserveResult {
	t.Helper()
	res, err := h.bookings.Reserve(context.Background(), "user-1", &dto.ReserveSeatsRequest{ShowID: showID, Seats: seats})
	require.NoError(t, err)
	return res
}

func TestHandleGatewayEvent_CapturedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	show := h.seedShow(t, 100)
	res := reserve(t, h, show.ID, 80)
	ctx := context.Background()

	body, sig := signedEvent(gateway.HMACEventPaymentCaptured, res.Order.ID, "pay_1", res.Order.AmountMinor)

	ack, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, ack.Outcome)
	assert.Equal(t, res.Booking.ID, ack.BookingID)
	assert.Equal(t, "success", ack.Status)

	ledger := h.show(t, show.ID).Seats
	assert.Equal(t, 80, ledger.Booked())
	assert.Zero(t, ledger.Locked())

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, domain.BookingStatusSuccess, b.Status)
	assert.Equal(t, "pay_1", b.GatewayPaymentID)

	dup, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, dup.Outcome)

	ledger = h.show(t, show.ID).Seats
	assert.Equal(t, 80, ledger.Booked())
	assert.Zero(t, ledger.Locked())

	confirmed := h.notifier.Confirmed()
	require.Len(t, confirmed, 1)
	assert.Equal(t, res.Booking.ID, confirmed[0].BookingID)
	assert.Equal(t, domain.EventTypeBookingConfirmed, confirmed[0].EventType)
}

func TestHandleGatewayEvent_Failed(t *testing.T) {
	h := newHarness(t)
	show := h.seedShow(t, 10)
	res := reserve(t, h, show.ID, 4)

	body, sig := signedEvent(gateway.HMACEventPaymentFailed, res.Order.ID, "pay_2", 0)
	ack, err := h.recon.HandleGatewayEvent(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, ack.Outcome)
	assert.Equal(t, "failed", ack.Status)

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, domain.BookingStatusFailed, b.Status)
	assert.Equal(t, "card declined", b.StatusReason)
	assert.Zero(t, h.show(t, show.ID).Seats.Locked())
	assert.Empty(t, h.notifier.Confirmed())
}

func TestHandleGatewayEvent_FailedThenCapturedKeepsFirstOutcome(t *testing.T) {
	h := newHarness(t)
	show := h.seedShow(t, 10)
	res := reserve(t, h, show.ID, 4)
	ctx := context.Background()

	body, sig := signedEvent(gateway.HMACEventPaymentFailed, res.Order.ID, "pay_3", 0)
	_, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	require.NoError(t, err)

	body, sig = signedEvent(gateway.HMACEventPaymentCaptured, res.Order.ID, "pay_3", res.Order.AmountMinor)
	ack, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, ack.Outcome)
	assert.Equal(t, "failed", ack.Status)

	ledger := h.show(t, show.ID).Seats
	assert.Zero(t, ledger.Booked())
	assert.Zero(t, ledger.Locked())
}

func TestHandleGatewayEvent_StripeDeclineThenSuccessConfirms(t *testing.T) {
	h := newHarness(t)
	show := h.seedShow(t, 10)
	res := reserve(t, h, show.ID, 4)
	ctx := context.Background()

	stripeGw, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{SecretKey: "sk_test_123", WebhookSecret: webhookSecret})
	require.NoError(t, err)
	recon := NewReconciliationService(stripeGw, h.resolver, h.clock.Now)

	deliver := func(payload string) *Ack {
		t.Helper()
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload:   []byte(payload),
			Secret:    webhookSecret,
			Timestamp: time.Now(),
		})
		ack, err := recon.HandleGatewayEvent(ctx, signed.Payload, signed.Header)
		require.NoError(t, err)
		return ack
	}

	ack := deliver(fmt.Sprintf(`{"id":"evt_decline","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"status":"requires_payment_method",
		"last_payment_error":{"message":"Your card was declined."}}}}`, res.Order.ID, res.Order.AmountMinor))
	assert.Equal(t, OutcomeIgnored, ack.Outcome)
	assert.Equal(t, domain.BookingStatusPending, h.booking(t, res.Booking.ID).Status)
	assert.Equal(t, 4, h.show(t, show.ID).Seats.Locked())

	ack = deliver(fmt.Sprintf(`{"id":"evt_success","object":"event","type":"payment_intent.succeeded",
		"data":{"object":{"id":%q,"object":"payment_intent","amount":%d,"amount_received":%d,
		"latest_charge":"ch_retry","status":"succeeded"}}}`, res.Order.ID, res.Order.AmountMinor, res.Order.AmountMinor))
	assert.Equal(t, OutcomeProcessed, ack.Outcome)
	assert.Equal(t, "success", ack.Status)

	b := h.booking(t, res.Booking.ID)
	assert.Equal(t, domain.BookingStatusSuccess, b.Status)
	assert.Equal(t, "ch_retry", b.GatewayPaymentID)

	ledger := h.show(t, show.ID).Seats
	assert.Equal(t, 4, ledger.Booked())
	assert.Zero(t, ledger.Locked())
}

func TestHandleGatewayEvent_Rejections(t *testing.T) {
	h := newHarness(t)
	show := h.seedShow(t, 10)
	res := reserve(t, h, show.ID, 2)
	ctx := context.Background()

	t.Run("invalid signature", func(t *testing.T) {
		body, _ := signedEvent(gateway.HMACEventPaymentCaptured, res.Order.ID, "pay", res.Order.AmountMinor)
		_, err := h.recon.HandleGatewayEvent(ctx, body, gateway.SignPayload("wrong", body))
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		body, sig := signedEvent(gateway.HMACEventPaymentCaptured, res.Order.ID, "pay", res.Order.AmountMinor-1)
		_, err := h.recon.HandleGatewayEvent(ctx, body, sig)
		assert.ErrorIs(t, err, domain.ErrAmountMismatch)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("malformed", func(t *testing.T) {
		body := []byte(`{"event":`)
		_, err := h.recon.HandleGatewayEvent(ctx, body, gateway.SignPayload(webhookSecret, body))
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	assert.Equal(t, domain.BookingStatusPending, h.booking(t, res.Booking.ID).Status)
	assert.Equal(t, 2, h.show(t, show.ID).Seats.Locked())
}

func TestHandleGatewayEvent_UnknownOrderAndIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	body, sig := signedEvent(gateway.HMACEventPaymentCaptured, "order_missing", "pay", 100)
	ack, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownOrder, ack.Outcome)
	txs := h.store.TxCount()

	body = []byte(`{"event":"refund.processed","payload":{}}`)
	ack, err = h.recon.HandleGatewayEvent(ctx, body, gateway.SignPayload(webhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, ack.Outcome)
	assert.Equal(t, txs, h.store.TxCount(), "ignored events open no transaction")
}

func TestHandleGatewayEvent_ConflictIsRetryable(t *testing.T) {
	h := newHarness(t)
	show := h.seedShow(t, 10)
	res := reserve(t, h, show.ID, 2)
	ctx := context.Background()

	body, sig := signedEvent(gateway.HMACEventPaymentCaptured, res.Order.ID, "pay", res.Order.AmountMinor)

	h.store.FailNextTx(fmt.Errorf("%w: deadlock detected", domain.ErrTransactionConflict))
	_, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)
	assert.Equal(t, domain.BookingStatusPending, h.booking(t, res.Booking.ID).Status)

	// gateway redelivery
	ack, err := h.recon.HandleGatewayEvent(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, ack.Outcome)
}

func TestSignatureHeader(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, gateway.DefaultSignatureHeader, h.recon.SignatureHeader())
}

func TestWebhookAndSweeperRace_ExactlyOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t)
		show := h.seedShow(t, 100)
		res := reserve(t, h, show.ID, 80)
		ctx := context.Background()
		h.clock.Advance(11 * time.Minute)

		body, sig := signedEvent(gateway.HMACEventPaymentCaptured, res.Order.ID, "pay", res.Order.AmountMinor)

		var (
			wg      sync.WaitGroup
			ack     *Ack
			expired *Resolution
			ackErr  error
			expErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			ack, ackErr = h.recon.HandleGatewayEvent(ctx, body, sig)
		}()
		go func() {
			defer wg.Done()
			expired, expErr = h.bookings.ExpireBooking(ctx, res.Booking.ID, h.clock.Now())
		}()
		wg.Wait()

		require.NoError(t, ackErr)
		require.NoError(t, expErr)

		webhookWon := ack.Outcome == OutcomeProcessed
		assert.NotEqual(t, webhookWon, expired.Applied, "exactly one transition must apply")

		ledger := h.show(t, show.ID).Seats
		assert.Zero(t, ledger.Locked())
		b := h.booking(t, res.Booking.ID)
		if webhookWon {
			assert.Equal(t, domain.BookingStatusSuccess, b.Status)
			assert.Equal(t, 80, ledger.Booked())
		} else {
			assert.Equal(t, domain.BookingStatusExpired, b.Status)
			assert.Equal(t, OutcomeAlreadyProcessed, ack.Outcome)
			assert.Zero(t, ledger.Booked())
		}
	}
}
