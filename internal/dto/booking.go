package dto

import (
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
)

// ReserveSeatsRequest represents request to reserve seats
type ReserveSeatsRequest struct {
	ShowID string `json:"show_id" binding:"required"`
	Seats  int    `json:"seats" binding:"required,min=1"`
}

// FailBookingRequest represents a caller-initiated failure, e.g. abandoned checkout
type FailBookingRequest struct {
	Reason string `json:"reason,omitempty" binding:"omitempty,max=200"`
}

// CheckoutResponse is the handle a client needs to pay for a pending booking
type CheckoutResponse struct {
	Gateway      string `json:"gateway"`
	OrderID      string `json:"order_id"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// ReserveSeatsResponse represents response after reserving seats
type ReserveSeatsResponse struct {
	Booking  *BookingResponse  `json:"booking"`
	Checkout *CheckoutResponse `json:"checkout"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID             string     `json:"id"`
	ShowID         string     `json:"show_id"`
	UserID         string     `json:"user_id"`
	Seats          int        `json:"seats"`
	PricePerSeat   float64    `json:"price_per_seat"`
	TotalPrice     float64    `json:"total_price"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	StatusReason   string     `json:"status_reason,omitempty"`
	GatewayOrderID string     `json:"gateway_order_id,omitempty"`
	PaymentID      string     `json:"payment_id,omitempty"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:             b.ID,
		ShowID:         b.ShowID,
		UserID:         b.UserID,
		Seats:          b.SeatsRequested,
		PricePerSeat:   b.PricePerSeat,
		TotalPrice:     b.TotalPrice,
		Currency:       b.Currency,
		Status:         b.Status.String(),
		StatusReason:   b.StatusReason,
		GatewayOrderID: b.OrderID(),
		PaymentID:      b.GatewayPaymentID,
		LockedUntil:    b.LockedUntil,
		CreatedAt:      b.CreatedAt,
		ResolvedAt:     b.ResolvedAt,
	}
}

// FromDomainList converts a slice of bookings
func FromDomainList(bookings []*domain.Booking) []*BookingResponse {
	out := make([]*BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, FromDomain(b))
	}
	return out
}

// NewCheckoutResponse builds the checkout handle for an order
func NewCheckoutResponse(gatewayName string, order *gateway.Order) *CheckoutResponse {
	if order == nil {
		return nil
	}
	return &CheckoutResponse{
		Gateway:      gatewayName,
		OrderID:      order.ID,
		AmountMinor:  order.AmountMinor,
		Currency:     order.Currency,
		ClientSecret: order.ClientSecret,
	}
}
