package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/metrics"
	"github.com/prohmpiriya/showtime-ledger/internal/repository"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TransitionKind names a move out of the pending state
type TransitionKind string

const (
	TransitionConfirm TransitionKind = "confirm"
	TransitionFail    TransitionKind = "fail"
	TransitionExpire  TransitionKind = "expire"
)

// Transition describes one state change for a single booking. The booking is
// located by BookingID, or by OrderID when BookingID is empty.
type Transition struct {
	BookingID string
	OrderID   string
	Kind      TransitionKind
	PaymentID string
	Reason    string
	At        time.Time

	// Guard runs against the locked, still pending booking. An error aborts
	// the transaction without writing anything.
	Guard func(b *domain.Booking) error
}

// Resolution is the outcome of a transition
type Resolution struct {
	Booking *domain.Booking
	// Applied is false when the booking had already left pending
	Applied bool
	// Seats moved out of the hold
	Seats int
}

// Resolver applies booking transitions together with the matching seat
// ledger change in one transaction. Rows are locked booking first, then show.
type Resolver struct {
	tx       repository.TxManager
	shows    repository.ShowRepository
	bookings repository.BookingRepository
	notifier Notifier
	log      *logger.Logger
}

// NewResolver creates a resolver
func NewResolver(tx repository.TxManager, shows repository.ShowRepository, bookings repository.BookingRepository, notifier Notifier) *Resolver {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	return &Resolver{
		tx:       tx,
		shows:    shows,
		bookings: bookings,
		notifier: notifier,
		log:      logger.Get().Named("resolver"),
	}
}

// Resolve runs t. A booking that is already terminal yields a non-applied
// resolution and no error.
func (r *Resolver) Resolve(ctx context.Context, t Transition) (*Resolution, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.resolver.resolve")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", t.BookingID),
		attribute.String("gateway_order_id", t.OrderID),
		attribute.String("transition", string(t.Kind)),
	)

	if t.BookingID == "" && t.OrderID == "" {
		span.SetStatus(codes.Error, "missing booking reference")
		return nil, domain.ErrInvalidBookingID
	}
	if t.At.IsZero() {
		t.At = time.Now()
	}

	var res *Resolution
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		res = nil

		booking, err := r.lockBooking(ctx, t)
		if err != nil {
			return err
		}

		if booking.IsTerminal() {
			level := zapcore.InfoLevel
			if t.OrderID == "" && t.Kind == TransitionFail {
				// a caller tried to fail a booking that already settled
				level = zapcore.WarnLevel
			}
			r.log.Log(level, "transition on resolved booking ignored",
				zap.String("booking_id", booking.ID),
				zap.String("status", booking.Status.String()),
				zap.String("transition", string(t.Kind)),
				zap.Error(domain.ErrBookingResolved),
			)
			res = &Resolution{Booking: booking}
			return nil
		}

		if t.Guard != nil {
			if err := t.Guard(booking); err != nil {
				return err
			}
		}

		show, err := r.shows.GetForUpdate(ctx, booking.ShowID)
		if err != nil {
			return err
		}

		seats, err := apply(booking, show, t)
		if err != nil {
			return err
		}
		if err := show.Seats.Validate(); err != nil {
			return fmt.Errorf("%w: show %s: %v", domain.ErrLedgerInvariant, show.ID, err)
		}
		show.UpdatedAt = t.At

		if err := r.bookings.Update(ctx, booking); err != nil {
			return err
		}
		if err := r.shows.Update(ctx, show); err != nil {
			return err
		}

		res = &Resolution{Booking: booking, Applied: true, Seats: seats}
		return nil
	})
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("applied", res.Applied))
	span.SetStatus(codes.Ok, "")

	if res.Applied {
		metrics.RecordResolution(ctx, res.Booking.Status.String(), res.Booking.StatusReason)
		r.log.Info("booking resolved",
			zap.String("booking_id", res.Booking.ID),
			zap.String("status", res.Booking.Status.String()),
			zap.String("reason", res.Booking.StatusReason),
			zap.Int("seats", res.Seats),
		)
		if res.Booking.Status == domain.BookingStatusSuccess {
			if err := r.notifier.BookingConfirmed(ctx, domain.NewBookingConfirmedEvent(res.Booking)); err != nil {
				r.log.Warn("failed to queue booking confirmation",
					zap.String("booking_id", res.Booking.ID),
					zap.Error(err),
				)
			}
		}
	}
	return res, nil
}

func (r *Resolver) lockBooking(ctx context.Context, t Transition) (*domain.Booking, error) {
	if t.BookingID != "" {
		return r.bookings.GetForUpdate(ctx, t.BookingID)
	}
	return r.bookings.GetByGatewayOrderIDForUpdate(ctx, t.OrderID)
}

func apply(booking *domain.Booking, show *domain.Show, t Transition) (int, error) {
	switch t.Kind {
	case TransitionConfirm:
		seats, err := booking.Confirm(t.PaymentID, t.At)
		if err != nil {
			return 0, err
		}
		show.Seats.Commit(seats)
		return seats, nil
	case TransitionFail:
		seats, err := booking.Fail(t.Reason, t.At)
		if err != nil {
			return 0, err
		}
		show.Seats.Release(seats)
		return seats, nil
	case TransitionExpire:
		seats, err := booking.Expire(t.At)
		if err != nil {
			return 0, err
		}
		show.Seats.Release(seats)
		return seats, nil
	default:
		return 0, fmt.Errorf("%w: unknown transition %q", domain.ErrInvalidTransition, t.Kind)
	}
}
