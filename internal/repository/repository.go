package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
)

// TxManager runs a unit of work atomically. Repositories called with the
// context passed to fn join that transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ShowRepository defines data access for shows and their seat ledger
type ShowRepository interface {
	// Create inserts a new show
	Create(ctx context.Context, show *domain.Show) error

	// GetByID reads a show without locking
	GetByID(ctx context.Context, id string) (*domain.Show, error)

	// GetForUpdate reads a show and row-locks it until the transaction ends
	GetForUpdate(ctx context.Context, id string) (*domain.Show, error)

	// Update writes the show's descriptive fields and ledger counters
	Update(ctx context.Context, show *domain.Show) error

	// List returns shows ordered by show time. An empty movieID matches every movie.
	List(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error)
}

// BookingRepository defines data access for bookings
type BookingRepository interface {
	// Create inserts a new booking
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID reads a booking without locking
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetForUpdate reads a booking and row-locks it
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)

	// GetByGatewayOrderIDForUpdate reads the booking owning a gateway order and row-locks it
	GetByGatewayOrderIDForUpdate(ctx context.Context, orderID string) (*domain.Booking, error)

	// Update writes status, lock and payment fields
	Update(ctx context.Context, booking *domain.Booking) error

	// AttachGatewayOrder stores the order id while the booking is still pending.
	// It reports false when the booking was already resolved.
	AttachGatewayOrder(ctx context.Context, bookingID, orderID string, at time.Time) (bool, error)

	// ListByUser returns a user's bookings, newest first
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)

	// ListExpiredPending returns pending bookings whose lock deadline is at or before now, oldest first
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error)

	// ListAttendees returns distinct user ids holding successful bookings for a show
	ListAttendees(ctx context.Context, showID string) ([]string, error)
}
