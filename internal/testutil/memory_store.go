package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
)

type memTxKey struct{}

// MemoryStore keeps shows and bookings in memory and satisfies the
// repository interfaces. Transactions are fully serialized and roll back
// every write when the unit of work returns an error.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	shows    map[string]*domain.Show
	bookings map[string]*domain.Booking
	byOrder  map[string]string
	txErrs   []error
	txCount  int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shows:    make(map[string]*domain.Show),
		bookings: make(map[string]*domain.Booking),
		byOrder:  make(map[string]string),
	}
}

// FailNextTx makes the next len(errs) transactions fail with errs in order
// before running their unit of work.
func (s *MemoryStore) FailNextTx(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txErrs = append(s.txErrs, errs...)
}

// TxCount returns the number of top-level transactions started
func (s *MemoryStore) TxCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txCount
}

// WithinTx implements repository.TxManager
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.txCount++
	if len(s.txErrs) > 0 {
		err := s.txErrs[0]
		s.txErrs = s.txErrs[1:]
		s.mu.Unlock()
		return err
	}
	shows, bookings, byOrder := s.snapshot()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.shows, s.bookings, s.byOrder = shows, bookings, byOrder
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() (map[string]*domain.Show, map[string]*domain.Booking, map[string]string) {
	shows := make(map[string]*domain.Show, len(s.shows))
	for k, v := range s.shows {
		c := *v
		shows[k] = &c
	}
	bookings := make(map[string]*domain.Booking, len(s.bookings))
	for k, v := range s.bookings {
		c := *v
		bookings[k] = &c
	}
	byOrder := make(map[string]string, len(s.byOrder))
	for k, v := range s.byOrder {
		byOrder[k] = v
	}
	return shows, bookings, byOrder
}

// CreateShow inserts a show
func (s *MemoryStore) CreateShow(ctx context.Context, show *domain.Show) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *show
	s.shows[show.ID] = &c
	return nil
}

// Shows adapts the store to repository.ShowRepository
func (s *MemoryStore) Shows() *MemoryShowRepository {
	return &MemoryShowRepository{s: s}
}

// Bookings adapts the store to repository.BookingRepository
func (s *MemoryStore) Bookings() *MemoryBookingRepository {
	return &MemoryBookingRepository{s: s}
}

// MemoryShowRepository is the show view of a MemoryStore
type MemoryShowRepository struct {
	s *MemoryStore
}

func (r *MemoryShowRepository) Create(ctx context.Context, show *domain.Show) error {
	return r.s.CreateShow(ctx, show)
}

func (r *MemoryShowRepository) GetByID(ctx context.Context, id string) (*domain.Show, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	show, ok := r.s.shows[id]
	if !ok {
		return nil, domain.ErrShowNotFound
	}
	c := *show
	return &c, nil
}

func (r *MemoryShowRepository) GetForUpdate(ctx context.Context, id string) (*domain.Show, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryShowRepository) Update(ctx context.Context, show *domain.Show) error {
	if err := show.Seats.Validate(); err != nil {
		return domain.ErrLedgerInvariant
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.shows[show.ID]; !ok {
		return domain.ErrShowNotFound
	}
	c := *show
	r.s.shows[show.ID] = &c
	return nil
}

func (r *MemoryShowRepository) List(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error) {
	r.s.mu.RLock()
	out := make([]*domain.Show, 0, len(r.s.shows))
	for _, show := range r.s.shows {
		if movieID != "" && show.MovieID != movieID {
			continue
		}
		c := *show
		out = append(out, &c)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ShowTime.Equal(out[j].ShowTime) {
			return out[i].ShowTime.Before(out[j].ShowTime)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return []*domain.Show{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// MemoryBookingRepository is the booking view of a MemoryStore
type MemoryBookingRepository struct {
	s *MemoryStore
}

func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if orderID := booking.OrderID(); orderID != "" {
		if _, dup := r.s.byOrder[orderID]; dup {
			return domain.ErrInvalidRequest
		}
		r.s.byOrder[orderID] = booking.ID
	}
	c := *booking
	r.s.bookings[booking.ID] = &c
	return nil
}

func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	c := *b
	return &c, nil
}

func (r *MemoryBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryBookingRepository) GetByGatewayOrderIDForUpdate(ctx context.Context, orderID string) (*domain.Booking, error) {
	r.s.mu.RLock()
	id, ok := r.s.byOrder[orderID]
	r.s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.bookings[booking.ID]; !ok {
		return domain.ErrBookingNotFound
	}
	if orderID := booking.OrderID(); orderID != "" {
		if owner, dup := r.s.byOrder[orderID]; dup && owner != booking.ID {
			return domain.ErrInvalidRequest
		}
		r.s.byOrder[orderID] = booking.ID
	}
	c := *booking
	r.s.bookings[booking.ID] = &c
	return nil
}

func (r *MemoryBookingRepository) AttachGatewayOrder(ctx context.Context, bookingID, orderID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[bookingID]
	if !ok || b.Status != domain.BookingStatusPending {
		return false, nil
	}
	if owner, dup := r.s.byOrder[orderID]; dup && owner != bookingID {
		return false, domain.ErrInvalidRequest
	}
	c := *b
	c.GatewayOrderID = &orderID
	c.UpdatedAt = at
	r.s.bookings[bookingID] = &c
	r.s.byOrder[orderID] = bookingID
	return true, nil
}

func (r *MemoryBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	out := r.filter(func(b *domain.Booking) bool { return b.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *MemoryBookingRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error) {
	out := r.filter(func(b *domain.Booking) bool {
		return b.Status == domain.BookingStatusPending && b.LockedUntil != nil && !b.LockedUntil.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LockedUntil.Before(*out[j].LockedUntil) })
	return page(out, limit, 0), nil
}

func (r *MemoryBookingRepository) ListAttendees(ctx context.Context, showID string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, b := range r.filter(func(b *domain.Booking) bool {
		return b.ShowID == showID && b.Status == domain.BookingStatusSuccess
	}) {
		seen[b.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users, nil
}

func (r *MemoryBookingRepository) filter(keep func(*domain.Booking) bool) []*domain.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Booking
	for _, b := range r.s.bookings {
		if keep(b) {
			c := *b
			out = append(out, &c)
		}
	}
	return out
}

func page(in []*domain.Booking, limit, offset int) []*domain.Booking {
	if offset >= len(in) {
		return []*domain.Booking{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
