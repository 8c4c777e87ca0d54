package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	ReservationsCreated  *telemetry.Counter
	ReservationsRejected *telemetry.Counter
	BookingsConfirmed    *telemetry.Counter
	BookingsFailed       *telemetry.Counter
	BookingsExpired      *telemetry.Counter
	SeatsReserved        *telemetry.Counter

	// Webhook counters
	WebhooksReceived *telemetry.Counter
	WebhooksFailed   *telemetry.Counter

	// Gateway counters
	GatewayOrderErrors *telemetry.Counter

	// Error tracking counters
	ErrorsTotal *telemetry.Counter

	// Histograms
	ReservationDuration   *telemetry.Histogram
	WebhookProcessingTime *telemetry.Histogram
	SweepDuration         *telemetry.Histogram
	PricePerSeat          *telemetry.Histogram

	// Gauges
	PendingBookings *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all ledger metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func newCounter(dst **telemetry.Counter, name, description string) error {
	c, err := telemetry.NewCounter(telemetry.MetricOpts{
		Name:        name,
		Description: description,
		Unit:        "1",
	})
	if err != nil {
		return err
	}
	*dst = c
	return nil
}

func initMetrics() error {
	counters := []struct {
		dst         **telemetry.Counter
		name        string
		description string
	}{
		{&ReservationsCreated, "booking_reservations_total", "Total number of seat reservations created"},
		{&ReservationsRejected, "booking_reservations_rejected_total", "Total number of reservations rejected"},
		{&BookingsConfirmed, "booking_confirmed_total", "Total number of bookings confirmed by payment"},
		{&BookingsFailed, "booking_failed_total", "Total number of bookings failed"},
		{&BookingsExpired, "booking_expired_total", "Total number of bookings expired by the sweeper"},
		{&SeatsReserved, "booking_seats_reserved_total", "Total number of seats placed on hold"},
		{&WebhooksReceived, "booking_webhooks_received_total", "Total number of gateway webhooks by outcome"},
		{&WebhooksFailed, "booking_webhooks_failed_total", "Total number of gateway webhooks rejected or failed"},
		{&GatewayOrderErrors, "booking_gateway_order_errors_total", "Total number of failed gateway order creations"},
		{&ErrorsTotal, "booking_errors_total", "Total number of errors by type"},
	}
	for _, c := range counters {
		if err := newCounter(c.dst, c.name, c.description); err != nil {
			return err
		}
	}

	var err error

	ReservationDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_reservation_duration_seconds",
		Description: "Duration of a reservation including gateway order creation",
		Unit:        "s",
	}, []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}) // 10ms to 10s
	if err != nil {
		return err
	}

	WebhookProcessingTime, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_webhook_processing_seconds",
		Description: "Webhook processing duration",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}) // 5ms to 2.5s
	if err != nil {
		return err
	}

	SweepDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_sweep_duration_seconds",
		Description: "Duration of one expiry sweep",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30})
	if err != nil {
		return err
	}

	PricePerSeat, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "booking_price_per_seat",
		Description: "Quoted price per seat",
		Unit:        "1",
	}, []float64{50, 100, 150, 200, 250, 300, 400, 500, 1000})
	if err != nil {
		return err
	}

	PendingBookings, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "booking_pending",
		Description: "Current number of pending bookings created by this process",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordReservation records a reservation that placed seats on hold
func RecordReservation(ctx context.Context, showID string, seats int, pricePerSeat float64) {
	if ReservationsCreated != nil {
		ReservationsCreated.Inc(ctx, attribute.String("show_id", showID))
	}
	if SeatsReserved != nil {
		SeatsReserved.Add(ctx, int64(seats), attribute.String("show_id", showID))
	}
	if PricePerSeat != nil {
		PricePerSeat.Record(ctx, pricePerSeat)
	}
	if PendingBookings != nil {
		PendingBookings.Inc(ctx)
	}
}

// RecordReservationRejected records a reservation refused before any hold was placed
func RecordReservationRejected(ctx context.Context, reason string) {
	if ReservationsRejected != nil {
		ReservationsRejected.Inc(ctx, attribute.String("reason", reason))
	}
}

// RecordReservationDuration records end-to-end reserve latency
func RecordReservationDuration(ctx context.Context, durationSeconds float64) {
	if ReservationDuration != nil {
		ReservationDuration.Record(ctx, durationSeconds)
	}
}

// RecordGatewayOrderError records a failed order creation
func RecordGatewayOrderError(ctx context.Context, gateway string) {
	if GatewayOrderErrors != nil {
		GatewayOrderErrors.Inc(ctx, attribute.String("gateway", gateway))
	}
}

// RecordResolution records a booking leaving the pending state
func RecordResolution(ctx context.Context, status, reason string) {
	attrs := []attribute.KeyValue{attribute.String("reason", reason)}
	switch status {
	case "success":
		if BookingsConfirmed != nil {
			BookingsConfirmed.Inc(ctx, attrs...)
		}
	case "failed":
		if BookingsFailed != nil {
			BookingsFailed.Inc(ctx, attrs...)
		}
	case "expired":
		if BookingsExpired != nil {
			BookingsExpired.Inc(ctx, attrs...)
		}
	}
	if PendingBookings != nil {
		PendingBookings.Dec(ctx)
	}
}

// RecordWebhook records a processed webhook by outcome
func RecordWebhook(ctx context.Context, eventType, outcome string, durationSeconds float64) {
	if WebhooksReceived != nil {
		WebhooksReceived.Inc(ctx,
			attribute.String("event_type", eventType),
			attribute.String("outcome", outcome),
		)
	}
	if WebhookProcessingTime != nil {
		WebhookProcessingTime.Record(ctx, durationSeconds,
			attribute.String("outcome", outcome),
		)
	}
}

// RecordWebhookFailed records a webhook that was rejected or could not be applied
func RecordWebhookFailed(ctx context.Context, reason string) {
	if WebhooksFailed != nil {
		WebhooksFailed.Inc(ctx, attribute.String("reason", reason))
	}
}

// RecordSweep records one sweeper pass
func RecordSweep(ctx context.Context, durationSeconds float64, failed bool) {
	if SweepDuration != nil {
		SweepDuration.Record(ctx, durationSeconds, attribute.Bool("failed", failed))
	}
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_type", errorType),
			attribute.String("operation", operation),
		)
	}
}
