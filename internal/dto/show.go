package dto

import (
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
)

// CreateShowRequest represents request to create a show
type CreateShowRequest struct {
	MovieID    string    `json:"movie_id" binding:"required"`
	Theater    string    `json:"theater" binding:"required"`
	ShowTime   time.Time `json:"show_time" binding:"required"`
	BasePrice  float64   `json:"base_price" binding:"min=0"`
	TotalSeats int       `json:"total_seats" binding:"required,min=1"`
}

// UpdateShowRequest represents a partial show update. Absent fields are left unchanged.
type UpdateShowRequest struct {
	Theater    *string    `json:"theater,omitempty"`
	ShowTime   *time.Time `json:"show_time,omitempty"`
	BasePrice  *float64   `json:"base_price,omitempty"`
	TotalSeats *int       `json:"total_seats,omitempty"`
}

// ToCommand converts the request into a domain update command
func (r *UpdateShowRequest) ToCommand() domain.UpdateShowCommand {
	return domain.UpdateShowCommand{
		Theater:    r.Theater,
		ShowTime:   r.ShowTime,
		BasePrice:  r.BasePrice,
		TotalSeats: r.TotalSeats,
	}
}

// ShowResponse represents a show and its seat counters
type ShowResponse struct {
	ID             string     `json:"id"`
	MovieID        string     `json:"movie_id"`
	Theater        string     `json:"theater"`
	ShowTime       time.Time  `json:"show_time"`
	BasePrice      float64    `json:"base_price"`
	TotalSeats     int        `json:"total_seats"`
	BookedSeats    int        `json:"booked_seats"`
	LockedSeats    int        `json:"locked_seats"`
	AvailableSeats int        `json:"available_seats"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ShowFromDomain converts domain Show to ShowResponse
func ShowFromDomain(s *domain.Show) *ShowResponse {
	return &ShowResponse{
		ID:             s.ID,
		MovieID:        s.MovieID,
		Theater:        s.Theater,
		ShowTime:       s.ShowTime,
		BasePrice:      s.BasePrice,
		TotalSeats:     s.Seats.Total(),
		BookedSeats:    s.Seats.Booked(),
		LockedSeats:    s.Seats.Locked(),
		AvailableSeats: s.Seats.Available(),
		LockedUntil:    s.Seats.LockedUntil(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// ShowListResponse groups a page of shows by movie
type ShowListResponse struct {
	ShowsByMovieID map[string][]*ShowResponse `json:"shows_by_movie_id"`
}

// GroupShowsByMovie keeps the input order within each movie
func GroupShowsByMovie(shows []*domain.Show) *ShowListResponse {
	out := &ShowListResponse{ShowsByMovieID: make(map[string][]*ShowResponse)}
	for _, s := range shows {
		out.ShowsByMovieID[s.MovieID] = append(out.ShowsByMovieID[s.MovieID], ShowFromDomain(s))
	}
	return out
}

// UpdateShowResponse reports the updated show and which fields changed
type UpdateShowResponse struct {
	Show          *ShowResponse `json:"show"`
	ChangedFields []string      `json:"changed_fields"`
}

// AttendeesResponse lists users holding successful bookings for a show
type AttendeesResponse struct {
	ShowID    string   `json:"show_id"`
	Attendees []string `json:"attendees"`
}
