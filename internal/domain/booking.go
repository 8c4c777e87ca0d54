package domain

import (
	"math"
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending BookingStatus = "pending"
	BookingStatusSuccess BookingStatus = "success"
	BookingStatusFailed  BookingStatus = "failed"
	BookingStatusExpired BookingStatus = "expired"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusSuccess, BookingStatusFailed, BookingStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusSuccess || s == BookingStatusFailed || s == BookingStatusExpired
}

func (s BookingStatus) String() string {
	return string(s)
}

// Status reasons recorded on resolved bookings
const (
	ReasonPaymentCaptured    = "payment_captured"
	ReasonPaymentFailed      = "payment_failed"
	ReasonGatewayOrderFailed = "gateway_order_failed"
	ReasonLockExpired        = "lock_expired"
	ReasonCancelledByUser    = "cancelled_by_user"
)

// Booking represents a seat reservation and its payment outcome
type Booking struct {
	ID               string        `json:"id"`
	ShowID           string        `json:"show_id"`
	UserID           string        `json:"user_id"`
	SeatsRequested   int           `json:"seats_requested"`
	PricePerSeat     float64       `json:"price_per_seat"`
	TotalPrice       float64       `json:"total_price"`
	Currency         string        `json:"currency"`
	Status           BookingStatus `json:"status"`
	StatusReason     string        `json:"status_reason,omitempty"`
	GatewayOrderID   *string       `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	LockedSeats      int           `json:"locked_seats"`
	LockedUntil      *time.Time    `json:"locked_until,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty"`
}

// NewPendingBooking creates a booking holding seats until lockedUntil
func NewPendingBooking(id, showID, userID string, seats int, pricePerSeat, totalPrice float64, currency string, lockedUntil, now time.Time) (*Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidBookingID
	}
	if strings.TrimSpace(showID) == "" {
		return nil, ErrInvalidShowID
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}
	if seats <= 0 {
		return nil, ErrInvalidSeats
	}

	until := lockedUntil
	return &Booking{
		ID:             id,
		ShowID:         showID,
		UserID:         userID,
		SeatsRequested: seats,
		PricePerSeat:   pricePerSeat,
		TotalPrice:     totalPrice,
		Currency:       currency,
		Status:         BookingStatusPending,
		LockedSeats:    seats,
		LockedUntil:    &until,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsTerminal reports whether the booking has been resolved
func (b *Booking) IsTerminal() bool {
	return b.Status.IsTerminal()
}

// BelongsToUser checks if the booking belongs to the specified user
func (b *Booking) BelongsToUser(userID string) bool {
	return b.UserID == userID
}

// OrderID returns the gateway order id or an empty string
func (b *Booking) OrderID() string {
	if b.GatewayOrderID == nil {
		return ""
	}
	return *b.GatewayOrderID
}

// AmountMinor is the total price in the currency's minor unit
func (b *Booking) AmountMinor() int64 {
	return int64(math.Round(b.TotalPrice * 100))
}

// IsLockExpiredAt reports whether the seat hold has lapsed at t
func (b *Booking) IsLockExpiredAt(t time.Time) bool {
	return b.LockedUntil != nil && !t.Before(*b.LockedUntil)
}

// Confirm marks the booking paid and returns the seats to commit
func (b *Booking) Confirm(paymentID string, at time.Time) (int, error) {
	if b.Status != BookingStatusPending {
		return 0, ErrBookingResolved
	}
	b.GatewayPaymentID = paymentID
	return b.resolve(BookingStatusSuccess, ReasonPaymentCaptured, at), nil
}

// Fail marks the booking failed and returns the seats to release
func (b *Booking) Fail(reason string, at time.Time) (int, error) {
	if b.Status != BookingStatusPending {
		return 0, ErrBookingResolved
	}
	if reason == "" {
		reason = ReasonPaymentFailed
	}
	return b.resolve(BookingStatusFailed, reason, at), nil
}

// Expire marks the booking expired once its lock has lapsed and returns the seats to release
func (b *Booking) Expire(at time.Time) (int, error) {
	if b.Status != BookingStatusPending {
		return 0, ErrBookingResolved
	}
	if b.LockedUntil != nil && at.Before(*b.LockedUntil) {
		return 0, ErrLockActive
	}
	return b.resolve(BookingStatusExpired, ReasonLockExpired, at), nil
}

func (b *Booking) resolve(status BookingStatus, reason string, at time.Time) int {
	seats := b.LockedSeats
	b.Status = status
	b.StatusReason = reason
	b.LockedSeats = 0
	b.LockedUntil = nil
	b.UpdatedAt = at
	b.ResolvedAt = &at
	return seats
}
