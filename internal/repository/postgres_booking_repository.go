package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/pkg/database"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	db *database.PostgresDB
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db *database.PostgresDB) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

const bookingColumns = `
	id::text, show_id::text, user_id, seats_requested,
	price_per_seat::float8, total_price::float8, currency,
	status, status_reason, gateway_order_id, gateway_payment_id,
	locked_seats, locked_until, created_at, updated_at, resolved_at`

// Create inserts a new booking
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("show_id", booking.ShowID),
		attribute.String("user_id", booking.UserID),
	)

	query := `
		INSERT INTO bookings (
			id, show_id, user_id, seats_requested,
			price_per_seat, total_price, currency,
			status, status_reason, gateway_order_id, gateway_payment_id,
			locked_seats, locked_until, created_at, updated_at, resolved_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		booking.ID,
		booking.ShowID,
		booking.UserID,
		booking.SeatsRequested,
		booking.PricePerSeat,
		booking.TotalPrice,
		booking.Currency,
		booking.Status.String(),
		booking.StatusReason,
		booking.GatewayOrderID,
		booking.GatewayPaymentID,
		booking.LockedSeats,
		booking.LockedUntil,
		booking.CreatedAt,
		booking.UpdatedAt,
		booking.ResolvedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID reads a booking without locking
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))
	return r.getOne(ctx, span, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetForUpdate reads a booking and row-locks it
func (r *PostgresBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_for_update")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))
	return r.getOne(ctx, span, `SELECT`+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

// GetByGatewayOrderIDForUpdate reads the booking owning orderID and row-locks it
func (r *PostgresBookingRepository) GetByGatewayOrderIDForUpdate(ctx context.Context, orderID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_order_for_update")
	defer span.End()

	span.SetAttributes(attribute.String("gateway_order_id", orderID))
	return r.getOne(ctx, span, `SELECT`+bookingColumns+` FROM bookings WHERE gateway_order_id = $1 FOR UPDATE`, orderID)
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, span trace.Span, query string, arg string) (*domain.Booking, error) {
	booking, err := scanBooking(r.db.Querier(ctx).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidInput(err) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Update writes status, lock and payment fields
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("status", booking.Status.String()),
	)

	query := `
		UPDATE bookings SET
			status = $2,
			status_reason = $3,
			gateway_order_id = $4,
			gateway_payment_id = $5,
			locked_seats = $6,
			locked_until = $7,
			updated_at = $8,
			resolved_at = $9
		WHERE id = $1
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query,
		booking.ID,
		booking.Status.String(),
		booking.StatusReason,
		booking.GatewayOrderID,
		booking.GatewayPaymentID,
		booking.LockedSeats,
		booking.LockedUntil,
		booking.UpdatedAt,
		booking.ResolvedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// AttachGatewayOrder stores the order id while the booking is still pending
func (r *PostgresBookingRepository) AttachGatewayOrder(ctx context.Context, bookingID, orderID string, at time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.attach_gateway_order")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("gateway_order_id", orderID),
	)

	query := `
		UPDATE bookings
		SET gateway_order_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, bookingID, orderID, at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to attach gateway order: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns a user's bookings, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	return r.list(ctx, span, query, userID, limit, offset)
}

// ListExpiredPending returns pending bookings whose own lock deadline has passed
func (r *PostgresBookingRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_expired_pending")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	query := `SELECT` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND locked_until <= $1
		ORDER BY locked_until ASC
		LIMIT $2`

	return r.list(ctx, span, query, now, limit)
}

func (r *PostgresBookingRepository) list(ctx context.Context, span trace.Span, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// ListAttendees returns distinct users with successful bookings for showID
func (r *PostgresBookingRepository) ListAttendees(ctx context.Context, showID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_attendees")
	defer span.End()

	span.SetAttributes(attribute.String("show_id", showID))

	query := `
		SELECT DISTINCT user_id
		FROM bookings
		WHERE show_id = $1 AND status = 'success'
		ORDER BY user_id
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, showID)
	if err != nil {
		if database.IsInvalidInput(err) {
			return nil, domain.ErrShowNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}

	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		if database.IsInvalidInput(err) {
			return nil, domain.ErrShowNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list attendees: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return users, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)

	err := row.Scan(
		&b.ID,
		&b.ShowID,
		&b.UserID,
		&b.SeatsRequested,
		&b.PricePerSeat,
		&b.TotalPrice,
		&b.Currency,
		&status,
		&b.StatusReason,
		&b.GatewayOrderID,
		&b.GatewayPaymentID,
		&b.LockedSeats,
		&b.LockedUntil,
		&b.CreatedAt,
		&b.UpdatedAt,
		&b.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	return &b, nil
}
