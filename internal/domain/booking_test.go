package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBooking(t *testing.T) *Booking {
	t.Helper()
	b, err := NewPendingBooking("b1", "s1", "u1", 4, 260, 1040, "INR", t0.Add(10*time.Minute), t0)
	require.NoError(t, err)
	return b
}

func TestNewPendingBooking_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		showID  string
		userID  string
		seats   int
		wantErr error
	}{
		{name: "missing id", showID: "s1", userID: "u1", seats: 1, wantErr: ErrInvalidBookingID},
		{name: "missing show", id: "b1", userID: "u1", seats: 1, wantErr: ErrInvalidShowID},
		{name: "missing user", id: "b1", showID: "s1", seats: 1, wantErr: ErrInvalidUserID},
		{name: "zero seats", id: "b1", showID: "s1", userID: "u1", seats: 0, wantErr: ErrInvalidSeats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPendingBooking(tt.id, tt.showID, tt.userID, tt.seats, 1, 1, "INR", t0, t0)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBooking_Confirm(t *testing.T) {
	b := newTestBooking(t)
	at := t0.Add(time.Minute)

	seats, err := b.Confirm("pay_1", at)
	require.NoError(t, err)
	assert.Equal(t, 4, seats)
	assert.Equal(t, BookingStatusSuccess, b.Status)
	assert.Equal(t, "pay_1", b.GatewayPaymentID)
	assert.Zero(t, b.LockedSeats)
	assert.Nil(t, b.LockedUntil)
	require.NotNil(t, b.ResolvedAt)
	assert.Equal(t, at, *b.ResolvedAt)
}

func TestBooking_TerminalStatesAbsorb(t *testing.T) {
	resolve := map[string]func(b *Booking) (int, error){
		"confirm": func(b *Booking) (int, error) { return b.Confirm("pay_2", t0.Add(time.Hour)) },
		"fail":    func(b *Booking) (int, error) { return b.Fail("", t0.Add(time.Hour)) },
		"expire":  func(b *Booking) (int, error) { return b.Expire(t0.Add(time.Hour)) },
	}

	for first, apply := range resolve {
		for second, again := range resolve {
			t.Run(first+" then "+second, func(t *testing.T) {
				b := newTestBooking(t)
				_, err := apply(b)
				require.NoError(t, err)
				status := b.Status

				seats, err := again(b)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Zero(t, seats)
				assert.Equal(t, status, b.Status)
			})
		}
	}
}

func TestBooking_ExpireRespectsLock(t *testing.T) {
	b := newTestBooking(t)

	_, err := b.Expire(t0.Add(9 * time.Minute))
	assert.ErrorIs(t, err, ErrLockActive)
	assert.Equal(t, BookingStatusPending, b.Status)

	seats, err := b.Expire(t0.Add(10 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, seats)
	assert.Equal(t, BookingStatusExpired, b.Status)
	assert.Equal(t, ReasonLockExpired, b.StatusReason)
}

func TestBooking_FailDefaultsReason(t *testing.T) {
	b := newTestBooking(t)
	_, err := b.Fail("", t0)
	require.NoError(t, err)
	assert.Equal(t, ReasonPaymentFailed, b.StatusReason)
}

func TestBooking_AmountMinor(t *testing.T) {
	tests := []struct {
		total float64
		want  int64
	}{
		{20800, 2080000},
		{1040.5, 104050},
		{0.29, 29},
	}
	for _, tt := range tests {
		b := &Booking{TotalPrice: tt.total}
		assert.Equal(t, tt.want, b.AmountMinor())
	}
}

func TestBooking_IsLockExpiredAt(t *testing.T) {
	b := newTestBooking(t)
	assert.False(t, b.IsLockExpiredAt(t0))
	assert.True(t, b.IsLockExpiredAt(t0.Add(10*time.Minute)))
	assert.True(t, b.BelongsToUser("u1"))
	assert.Equal(t, "", b.OrderID())
}

func TestNewBookingConfirmedEvent(t *testing.T) {
	b := newTestBooking(t)
	_, err := b.Confirm("pay_9", t0.Add(time.Minute))
	require.NoError(t, err)

	ev := NewBookingConfirmedEvent(b)
	assert.Equal(t, EventTypeBookingConfirmed, ev.EventType)
	assert.Equal(t, "pay_9", ev.PaymentID)
	assert.Equal(t, 4, ev.Seats)
	assert.Equal(t, t0.Add(time.Minute), ev.ConfirmedAt)
}
