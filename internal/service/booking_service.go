package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/metrics"
	"github.com/prohmpiriya/showtime-ledger/internal/pricing"
	"github.com/prohmpiriya/showtime-ledger/internal/repository"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/retry"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// Reserve holds seats, prices them and opens a gateway order
	Reserve(ctx context.Context, userID string, req *dto.ReserveSeatsRequest) (*ReserveResult, error)

	// GetBooking returns a booking owned by userID
	GetBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error)

	// ListUserBookings returns a user's bookings, newest first
	ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)

	// FailBooking fails a pending booking on the owner's request and releases its seats
	FailBooking(ctx context.Context, bookingID, userID, reason string) (*domain.Booking, error)

	// ExpireBooking expires a pending booking whose hold has lapsed at now
	ExpireBooking(ctx context.Context, bookingID string, now time.Time) (*Resolution, error)

	// GatewayName names the payment gateway orders are opened with
	GatewayName() string
}

// ReserveResult is a pending booking with its checkout handle
type ReserveResult struct {
	Booking *domain.Booking
	Order   *gateway.Order
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	LockDuration   time.Duration
	Currency       string
	GatewayTimeout time.Duration
	GatewayRetries int
	// Now overrides the clock, for tests
	Now func() time.Time
}

// bookingService implements BookingService
type bookingService struct {
	tx             repository.TxManager
	shows          repository.ShowRepository
	bookings       repository.BookingRepository
	gateway        gateway.Gateway
	calculator     *pricing.Calculator
	resolver       *Resolver
	lockDuration   time.Duration
	currency       string
	gatewayTimeout time.Duration
	gatewayRetry   *retry.Retrier
	now            func() time.Time
	log            *logger.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	tx repository.TxManager,
	shows repository.ShowRepository,
	bookings repository.BookingRepository,
	gw gateway.Gateway,
	calculator *pricing.Calculator,
	resolver *Resolver,
	cfg *BookingServiceConfig,
) BookingService {
	lockDuration := 10 * time.Minute
	currency := "INR"
	gatewayTimeout := 10 * time.Second
	gatewayRetries := 2
	now := time.Now
	if cfg != nil {
		if cfg.LockDuration > 0 {
			lockDuration = cfg.LockDuration
		}
		if cfg.Currency != "" {
			currency = strings.ToUpper(cfg.Currency)
		}
		if cfg.GatewayTimeout > 0 {
			gatewayTimeout = cfg.GatewayTimeout
		}
		if cfg.GatewayRetries >= 0 {
			gatewayRetries = cfg.GatewayRetries
		}
		if cfg.Now != nil {
			now = cfg.Now
		}
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = gatewayRetries
	retryCfg.InitialInterval = 100 * time.Millisecond
	retryCfg.MaxInterval = time.Second
	retryCfg.RetryIf = func(err error) bool {
		return errors.Is(err, domain.ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded)
	}

	return &bookingService{
		tx:             tx,
		shows:          shows,
		bookings:       bookings,
		gateway:        gw,
		calculator:     calculator,
		resolver:       resolver,
		lockDuration:   lockDuration,
		currency:       currency,
		gatewayTimeout: gatewayTimeout,
		gatewayRetry:   retry.New(retryCfg),
		now:            now,
		log:            logger.Get().Named("booking"),
	}
}

// GatewayName implements BookingService
func (s *bookingService) GatewayName() string {
	return s.gateway.Name()
}

// Reserve implements BookingService
func (s *bookingService) Reserve(ctx context.Context, userID string, req *dto.ReserveSeatsRequest) (*ReserveResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RecordReservationDuration(ctx, time.Since(start).Seconds())
	}()

	if strings.TrimSpace(userID) == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || strings.TrimSpace(req.ShowID) == "" {
		span.SetStatus(codes.Error, "invalid show_id")
		return nil, domain.ErrInvalidShowID
	}
	if req.Seats <= 0 {
		// An unknown show is reported before the seat count, without a transaction
		if _, err := s.shows.GetByID(ctx, req.ShowID); err != nil {
			telemetry.SetSpanError(span, err)
			return nil, err
		}
		span.SetStatus(codes.Error, "invalid seats")
		return nil, domain.ErrInvalidSeats
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("show_id", req.ShowID),
		attribute.Int("seats", req.Seats),
	)

	booking, err := s.hold(ctx, userID, req)
	if err != nil {
		metrics.RecordReservationRejected(ctx, rejectionReason(err))
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("booking_id", booking.ID))
	metrics.RecordReservation(ctx, booking.ShowID, booking.SeatsRequested, booking.PricePerSeat)

	order, err := s.openOrder(ctx, booking)
	if err != nil {
		metrics.RecordGatewayOrderError(ctx, s.gateway.Name())
		s.compensate(ctx, booking, err)
		err = fmt.Errorf("%w: %v", domain.ErrGatewayOrder, err)
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	attachedAt := s.now()
	var attached bool
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		attached, err = s.bookings.AttachGatewayOrder(ctx, booking.ID, order.ID, attachedAt)
		return err
	})
	if err != nil {
		s.compensate(ctx, booking, err)
		s.cancelOrder(ctx, booking.ID, order.ID)
		err = fmt.Errorf("failed to attach gateway order: %w", err)
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	if !attached {
		// The hold was failed or expired while the order was being opened
		s.log.Warn("booking resolved before order was attached",
			zap.String("booking_id", booking.ID),
			zap.String("gateway_order_id", order.ID),
		)
		s.cancelOrder(ctx, booking.ID, order.ID)
		span.SetStatus(codes.Error, "booking resolved before order was attached")
		return nil, domain.ErrReservationInterrupted
	}

	booking.GatewayOrderID = &order.ID
	booking.UpdatedAt = attachedAt

	s.log.Info("seats reserved",
		zap.String("booking_id", booking.ID),
		zap.String("show_id", booking.ShowID),
		zap.String("user_id", userID),
		zap.Int("seats", booking.SeatsRequested),
		zap.Float64("total_price", booking.TotalPrice),
		zap.String("gateway_order_id", order.ID),
	)

	span.SetStatus(codes.Ok, "")
	return &ReserveResult{Booking: booking, Order: order}, nil
}

// hold prices the request and places the seat hold in one transaction
func (s *bookingService) hold(ctx context.Context, userID string, req *dto.ReserveSeatsRequest) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		booking = nil

		show, err := s.shows.GetForUpdate(ctx, req.ShowID)
		if err != nil {
			return err
		}

		if show.Seats.Available() < req.Seats {
			return domain.ErrInsufficientSeats
		}

		now := s.now()
		quote, err := s.calculator.Price(pricing.Input{
			BasePrice:      show.BasePrice,
			BookedSeats:    show.Seats.Booked(),
			SeatsRequested: req.Seats,
			TotalSeats:     show.Seats.Total(),
			ShowTime:       show.ShowTime,
			BookingTime:    now,
		})
		if err != nil {
			return err
		}

		lockedUntil := now.Add(s.lockDuration)
		if err := show.Seats.Lock(req.Seats, lockedUntil, now); err != nil {
			return err
		}
		show.UpdatedAt = now

		b, err := domain.NewPendingBooking(uuid.NewString(), show.ID, userID, req.Seats,
			quote.PricePerSeat, quote.TotalPrice, s.currency, lockedUntil, now)
		if err != nil {
			return err
		}

		if err := s.bookings.Create(ctx, b); err != nil {
			return err
		}
		if err := s.shows.Update(ctx, show); err != nil {
			return err
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// openOrder creates the gateway order with a per-attempt timeout. The booking
// id is the idempotency key so retries never open a second order.
func (s *bookingService) openOrder(ctx context.Context, booking *domain.Booking) (*gateway.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.open_order")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("gateway", s.gateway.Name()),
	)

	req := &gateway.OrderRequest{
		Reference:      booking.ID,
		AmountMinor:    booking.AmountMinor(),
		Currency:       booking.Currency,
		IdempotencyKey: booking.ID,
		Description:    fmt.Sprintf("%d seat(s) for show %s", booking.SeatsRequested, booking.ShowID),
		Metadata: map[string]string{
			"show_id": booking.ShowID,
			"user_id": booking.UserID,
		},
	}

	var order *gateway.Order
	result := s.gatewayRetry.DoWithCallback(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()

		o, err := s.gateway.CreateOrder(attemptCtx, req)
		if err != nil {
			return err
		}
		order = o
		return nil
	}, func(attempt int, err error, next time.Duration) {
		s.log.Warn("retrying gateway order",
			zap.String("booking_id", booking.ID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})

	span.SetAttributes(attribute.Int("gateway.attempts", result.Attempts))
	if result.Err != nil {
		telemetry.SetSpanError(span, result.Err)
		return nil, result.Err
	}
	span.SetAttributes(attribute.String("gateway_order_id", order.ID))
	span.SetStatus(codes.Ok, "")
	return order, nil
}

// compensate fails a booking whose order could not be opened or recorded so
// its seats return to the pool. If this also fails the sweeper expires it later.
func (s *bookingService) compensate(ctx context.Context, booking *domain.Booking, cause error) {
	s.log.Warn("compensating reservation",
		zap.String("booking_id", booking.ID),
		zap.Error(cause),
	)

	ctx = context.WithoutCancel(ctx)
	_, err := s.resolver.Resolve(ctx, Transition{
		BookingID: booking.ID,
		Kind:      TransitionFail,
		Reason:    domain.ReasonGatewayOrderFailed,
		At:        s.now(),
	})
	if err != nil {
		s.log.Error("failed to compensate reservation",
			zap.String("booking_id", booking.ID),
			zap.Error(err),
		)
	}
}

// cancelOrder withdraws the gateway order of a booking that can no longer be
// confirmed. Failures are logged only.
func (s *bookingService) cancelOrder(ctx context.Context, bookingID, orderID string) {
	if orderID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.gatewayTimeout)
	defer cancel()

	err := s.gateway.CancelOrder(ctx, orderID)
	switch {
	case err == nil:
		s.log.Debug("gateway order cancelled",
			zap.String("booking_id", bookingID),
			zap.String("gateway_order_id", orderID),
		)
	case errors.Is(err, domain.ErrOrderPaid):
		s.log.Error("gateway order paid for a resolved booking",
			zap.String("booking_id", bookingID),
			zap.String("gateway_order_id", orderID),
		)
	default:
		s.log.Warn("failed to cancel gateway order",
			zap.String("booking_id", bookingID),
			zap.String("gateway_order_id", orderID),
			zap.Error(err),
		)
	}
}

// GetBooking implements BookingService
func (s *bookingService) GetBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	// Other users' bookings are reported as missing
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// ListUserBookings implements BookingService
func (s *bookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_user")
	defer span.End()

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.bookings.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// FailBooking implements BookingService
func (s *bookingService) FailBooking(ctx context.Context, bookingID, userID, reason string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.fail")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	if bookingID == "" {
		return nil, domain.ErrInvalidBookingID
	}
	if reason == "" {
		reason = domain.ReasonCancelledByUser
	}

	res, err := s.resolver.Resolve(ctx, Transition{
		BookingID: bookingID,
		Kind:      TransitionFail,
		Reason:    reason,
		At:        s.now(),
		Guard: func(b *domain.Booking) error {
			if !b.BelongsToUser(userID) {
				return domain.ErrBookingNotFound
			}
			return nil
		},
	})
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	// Terminal bookings are not guarded, so ownership is checked here too
	if !res.Booking.BelongsToUser(userID) {
		return nil, domain.ErrBookingNotFound
	}
	if !res.Applied {
		span.SetStatus(codes.Error, "already resolved")
		return nil, domain.ErrBookingResolved
	}
	s.cancelOrder(ctx, res.Booking.ID, res.Booking.OrderID())

	span.SetStatus(codes.Ok, "")
	return res.Booking, nil
}

// ExpireBooking implements BookingService
func (s *bookingService) ExpireBooking(ctx context.Context, bookingID string, now time.Time) (*Resolution, error) {
	res, err := s.resolver.Resolve(ctx, Transition{
		BookingID: bookingID,
		Kind:      TransitionExpire,
		At:        now,
	})
	if err != nil {
		return nil, err
	}
	if res.Applied {
		s.cancelOrder(ctx, res.Booking.ID, res.Booking.OrderID())
	}
	return res, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrTransactionConflict):
		return "transaction_conflict"
	default:
		return "internal"
	}
}
