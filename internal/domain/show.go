package domain

import (
	"fmt"
	"strings"
	"time"
)

// SeatLedger tracks seat counts for a show. Fields are unexported so the
// counters only move through Lock, Commit, Release and Resize.
type SeatLedger struct {
	total       int
	booked      int
	locked      int
	lockedUntil *time.Time
}

// NewSeatLedger creates an empty ledger with the given capacity
func NewSeatLedger(total int) (SeatLedger, error) {
	if total <= 0 {
		return SeatLedger{}, ErrInvalidTotalSeats
	}
	return SeatLedger{total: total}, nil
}

// RestoreSeatLedger rebuilds a ledger from stored counters
func RestoreSeatLedger(total, booked, locked int, lockedUntil *time.Time) (SeatLedger, error) {
	l := SeatLedger{total: total, booked: booked, locked: locked, lockedUntil: lockedUntil}
	if locked == 0 {
		l.lockedUntil = nil
	}
	if err := l.Validate(); err != nil {
		return SeatLedger{}, err
	}
	return l, nil
}

func (l SeatLedger) Total() int  { return l.total }
func (l SeatLedger) Booked() int { return l.booked }
func (l SeatLedger) Locked() int { return l.locked }

// Available returns seats neither booked nor locked
func (l SeatLedger) Available() int {
	return l.total - l.booked - l.locked
}

// LockedUntil returns the earliest pending lock deadline, if any
func (l SeatLedger) LockedUntil() *time.Time {
	if l.lockedUntil == nil {
		return nil
	}
	t := *l.lockedUntil
	return &t
}

// Occupancy is the share of capacity that would be taken once requested more seats are held
func (l SeatLedger) Occupancy(requested int) float64 {
	if l.total <= 0 {
		return 0
	}
	return float64(l.booked+requested) / float64(l.total)
}

// Validate checks 0 <= booked, 0 <= locked and booked + locked <= total
func (l SeatLedger) Validate() error {
	if l.total <= 0 || l.booked < 0 || l.locked < 0 || l.booked+l.locked > l.total {
		return fmt.Errorf("%w: total=%d booked=%d locked=%d", ErrLedgerInvariant, l.total, l.booked, l.locked)
	}
	return nil
}

// Lock holds n seats until deadline
func (l *SeatLedger) Lock(n int, deadline, now time.Time) error {
	if n <= 0 {
		return ErrInvalidSeats
	}
	if n > l.Available() {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientSeats, n, l.Available())
	}

	l.locked += n
	if l.lockedUntil == nil || !l.lockedUntil.After(now) || l.lockedUntil.After(deadline) {
		d := deadline
		l.lockedUntil = &d
	}
	return nil
}

// Commit turns n locked seats into booked seats
func (l *SeatLedger) Commit(n int) {
	l.booked += n
	l.release(n)
}

// Release returns n locked seats to the available pool
func (l *SeatLedger) Release(n int) {
	l.release(n)
}

func (l *SeatLedger) release(n int) {
	l.locked -= n
	if l.locked <= 0 {
		l.locked = 0
		l.lockedUntil = nil
	}
}

// Resize changes capacity; it cannot drop below the seats already held
func (l *SeatLedger) Resize(total int) error {
	if total <= 0 {
		return ErrInvalidTotalSeats
	}
	if total < l.booked+l.locked {
		return fmt.Errorf("%w: requested %d, held %d", ErrResizeBelowHeld, total, l.booked+l.locked)
	}
	l.total = total
	return nil
}

// Show is a single screening with its seat inventory
type Show struct {
	ID        string     `json:"id"`
	MovieID   string     `json:"movie_id"`
	Theater   string     `json:"theater"`
	ShowTime  time.Time  `json:"show_time"`
	BasePrice float64    `json:"base_price"`
	Seats     SeatLedger `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewShow creates a show with an empty ledger
func NewShow(id, movieID, theater string, showTime time.Time, basePrice float64, totalSeats int, now time.Time) (*Show, error) {
	if strings.TrimSpace(theater) == "" {
		return nil, ErrInvalidTheater
	}
	if showTime.IsZero() {
		return nil, ErrInvalidShowTime
	}
	if basePrice < 0 {
		return nil, ErrInvalidBasePrice
	}
	seats, err := NewSeatLedger(totalSeats)
	if err != nil {
		return nil, err
	}

	return &Show{
		ID:        id,
		MovieID:   movieID,
		Theater:   theater,
		ShowTime:  showTime,
		BasePrice: basePrice,
		Seats:     seats,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// UpdateShowCommand lists the show fields an operator may change. Nil means unchanged.
type UpdateShowCommand struct {
	Theater    *string
	ShowTime   *time.Time
	BasePrice  *float64
	TotalSeats *int
}

// IsEmpty reports whether the command changes nothing
func (c UpdateShowCommand) IsEmpty() bool {
	return c.Theater == nil && c.ShowTime == nil && c.BasePrice == nil && c.TotalSeats == nil
}

// Validate checks field values without looking at the show
func (c UpdateShowCommand) Validate() error {
	if c.IsEmpty() {
		return ErrEmptyUpdate
	}
	if c.Theater != nil && strings.TrimSpace(*c.Theater) == "" {
		return ErrInvalidTheater
	}
	if c.ShowTime != nil && c.ShowTime.IsZero() {
		return ErrInvalidShowTime
	}
	if c.BasePrice != nil && *c.BasePrice < 0 {
		return ErrInvalidBasePrice
	}
	if c.TotalSeats != nil && *c.TotalSeats <= 0 {
		return ErrInvalidTotalSeats
	}
	return nil
}

// Apply updates the show and returns the names of fields whose value changed
func (s *Show) Apply(cmd UpdateShowCommand, now time.Time) ([]string, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var changed []string
	if cmd.TotalSeats != nil && *cmd.TotalSeats != s.Seats.Total() {
		if err := s.Seats.Resize(*cmd.TotalSeats); err != nil {
			return nil, err
		}
		changed = append(changed, "total_seats")
	}
	if cmd.Theater != nil && *cmd.Theater != s.Theater {
		s.Theater = *cmd.Theater
		changed = append(changed, "theater")
	}
	if cmd.ShowTime != nil && !cmd.ShowTime.Equal(s.ShowTime) {
		s.ShowTime = *cmd.ShowTime
		changed = append(changed, "show_time")
	}
	if cmd.BasePrice != nil && *cmd.BasePrice != s.BasePrice {
		s.BasePrice = *cmd.BasePrice
		changed = append(changed, "base_price")
	}

	if len(changed) > 0 {
		s.UpdatedAt = now
	}
	return changed, nil
}
