package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
)

// Multipliers and thresholds
const (
	PeakStartHour = 19
	PeakEndHour   = 22
	PeakFactor    = 1.2

	HighDemandThreshold = 0.70
	HighDemandFactor    = 1.3
	LowDemandThreshold  = 0.30
	LowDemandFactor     = 0.9

	LastMinuteWindow = 3 * time.Hour
	LastMinuteFactor = 1.2
)

// Factor names reported in Quote.Factors
const (
	FactorPeak       = "peak_hour"
	FactorHighDemand = "high_demand"
	FactorLowDemand  = "low_demand"
	FactorLastMinute = "last_minute"
)

// Input carries everything the price depends on. Nothing is read from the clock.
type Input struct {
	BasePrice      float64   `json:"base_price"`
	BookedSeats    int       `json:"booked_seats"`
	SeatsRequested int       `json:"seats_requested"`
	TotalSeats     int       `json:"total_seats"`
	ShowTime       time.Time `json:"show_time"`
	BookingTime    time.Time `json:"booking_time"`
}

// AppliedFactor is one multiplier used for a quote
type AppliedFactor struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
}

// Quote is the priced result
type Quote struct {
	PricePerSeat float64         `json:"price_per_seat"`
	TotalPrice   float64         `json:"total_price"`
	Factors      []AppliedFactor `json:"factors"`
}

// Calculator prices seats. The zero value evaluates peak hours in UTC.
type Calculator struct {
	loc *time.Location
}

// NewCalculator creates a calculator that reads show start hours in loc
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// Location returns the timezone used for peak hours
func (c *Calculator) Location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Price computes the per-seat and total price. Factors compose in a fixed
// order: peak hour, demand, last minute. Rounding to the minor unit happens once at the end.
func (c *Calculator) Price(in Input) (Quote, error) {
	if err := in.validate(); err != nil {
		return Quote{}, err
	}

	price := in.BasePrice
	factors := make([]AppliedFactor, 0, 3)
	apply := func(name string, m float64) {
		price *= m
		factors = append(factors, AppliedFactor{Name: name, Multiplier: m})
	}

	hour := in.ShowTime.In(c.Location()).Hour()
	if hour >= PeakStartHour && hour < PeakEndHour {
		apply(FactorPeak, PeakFactor)
	}

	occupancy := float64(in.BookedSeats+in.SeatsRequested) / float64(in.TotalSeats)
	switch {
	case occupancy >= HighDemandThreshold:
		apply(FactorHighDemand, HighDemandFactor)
	case occupancy < LowDemandThreshold:
		apply(FactorLowDemand, LowDemandFactor)
	}

	lead := in.ShowTime.Sub(in.BookingTime)
	if lead > 0 && lead <= LastMinuteWindow {
		apply(FactorLastMinute, LastMinuteFactor)
	}

	perSeat := Round2(price)
	return Quote{
		PricePerSeat: perSeat,
		TotalPrice:   Round2(perSeat * float64(in.SeatsRequested)),
		Factors:      factors,
	}, nil
}

func (in Input) validate() error {
	switch {
	case in.TotalSeats <= 0:
		return fmt.Errorf("%w: total seats must be greater than zero", domain.ErrInvalidRequest)
	case in.SeatsRequested <= 0:
		return domain.ErrInvalidSeats
	case in.BookedSeats < 0:
		return fmt.Errorf("%w: booked seats cannot be negative", domain.ErrInvalidRequest)
	case in.BasePrice < 0 || math.IsNaN(in.BasePrice) || math.IsInf(in.BasePrice, 0):
		return domain.ErrInvalidBasePrice
	case in.ShowTime.IsZero():
		return domain.ErrInvalidShowTime
	case in.BookingTime.IsZero():
		return fmt.Errorf("%w: booking time is required", domain.ErrInvalidRequest)
	}
	return nil
}

// Round2 rounds half away from zero to two decimals
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
