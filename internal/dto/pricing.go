package dto

import (
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/pricing"
)

// SimulatePriceRequest carries exactly the pricing inputs
type SimulatePriceRequest struct {
	BasePrice      float64   `json:"base_price" binding:"min=0"`
	BookedSeats    int       `json:"booked_seats" binding:"min=0"`
	SeatsRequested int       `json:"seats_requested" binding:"required,min=1"`
	TotalSeats     int       `json:"total_seats" binding:"required,min=1"`
	ShowTime       time.Time `json:"show_time" binding:"required"`
	BookingTime    time.Time `json:"booking_time" binding:"required"`
}

// ToInput converts the request into calculator input
func (r *SimulatePriceRequest) ToInput() pricing.Input {
	return pricing.Input{
		BasePrice:      r.BasePrice,
		BookedSeats:    r.BookedSeats,
		SeatsRequested: r.SeatsRequested,
		TotalSeats:     r.TotalSeats,
		ShowTime:       r.ShowTime,
		BookingTime:    r.BookingTime,
	}
}

// SimulatePriceResponse is the quote returned by the simulation endpoint
type SimulatePriceResponse struct {
	PricePerSeat float64                 `json:"price_per_seat"`
	TotalPrice   float64                 `json:"total_price"`
	Factors      []pricing.AppliedFactor `json:"factors"`
}

// QuoteFromPricing converts a calculator quote
func QuoteFromPricing(q pricing.Quote) *SimulatePriceResponse {
	factors := q.Factors
	if factors == nil {
		factors = []pricing.AppliedFactor{}
	}
	return &SimulatePriceResponse{
		PricePerSeat: q.PricePerSeat,
		TotalPrice:   q.TotalPrice,
		Factors:      factors,
	}
}
