package domain

import "time"

// Event types published to the notification channel
const (
	EventTypeBookingConfirmed = "booking.confirmed"
	EventTypeShowUpdated      = "show.updated"
)

// BookingConfirmedEvent is emitted after a booking commits as success
type BookingConfirmedEvent struct {
	EventType   string    `json:"event_type"`
	BookingID   string    `json:"booking_id"`
	ShowID      string    `json:"show_id"`
	UserID      string    `json:"user_id"`
	Seats       int       `json:"seats"`
	TotalPrice  float64   `json:"total_price"`
	Currency    string    `json:"currency"`
	PaymentID   string    `json:"payment_id"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the event from a confirmed booking
func NewBookingConfirmedEvent(b *Booking) *BookingConfirmedEvent {
	confirmedAt := b.UpdatedAt
	if b.ResolvedAt != nil {
		confirmedAt = *b.ResolvedAt
	}
	return &BookingConfirmedEvent{
		EventType:   EventTypeBookingConfirmed,
		BookingID:   b.ID,
		ShowID:      b.ShowID,
		UserID:      b.UserID,
		Seats:       b.SeatsRequested,
		TotalPrice:  b.TotalPrice,
		Currency:    b.Currency,
		PaymentID:   b.GatewayPaymentID,
		ConfirmedAt: confirmedAt,
	}
}

// ShowUpdatedEvent tells attendees that a show they booked has changed
type ShowUpdatedEvent struct {
	EventType     string    `json:"event_type"`
	ShowID        string    `json:"show_id"`
	Theater       string    `json:"theater"`
	ShowTime      time.Time `json:"show_time"`
	BasePrice     float64   `json:"base_price"`
	TotalSeats    int       `json:"total_seats"`
	ChangedFields []string  `json:"changed_fields"`
	Attendees     []string  `json:"attendees"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewShowUpdatedEvent builds the event for an updated show
func NewShowUpdatedEvent(s *Show, changed, attendees []string) *ShowUpdatedEvent {
	return &ShowUpdatedEvent{
		EventType:     EventTypeShowUpdated,
		ShowID:        s.ID,
		Theater:       s.Theater,
		ShowTime:      s.ShowTime,
		BasePrice:     s.BasePrice,
		TotalSeats:    s.Seats.Total(),
		ChangedFields: changed,
		Attendees:     attendees,
		UpdatedAt:     s.UpdatedAt,
	}
}
