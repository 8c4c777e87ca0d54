package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingHandler_ReserveSeats(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		body           string
		serviceErr     error
		expectCall     bool
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "successful reservation",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":2}`,
			expectCall:     true,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unauthorized - no user id",
			body:           `{"show_id":"show-1","seats":2}`,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "zero seats rejected before the service",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":0}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
		},
		{
			name:           "malformed json",
			userID:         "user-123",
			body:           `{"show_id":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
		},
		{
			name:           "insufficient seats",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":50}`,
			serviceErr:     domain.ErrInsufficientSeats,
			expectCall:     true,
			expectedStatus: http.StatusConflict,
			expectedCode:   "INSUFFICIENT_SEATS",
		},
		{
			name:           "show not found",
			userID:         "user-123",
			body:           `{"show_id":"missing","seats":1}`,
			serviceErr:     domain.ErrShowNotFound,
			expectCall:     true,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "NOT_FOUND",
		},
		{
			name:           "gateway order failed",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":1}`,
			serviceErr:     fmt.Errorf("%w: timeout", domain.ErrGatewayOrder),
			expectCall:     true,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "GATEWAY_UNAVAILABLE",
		},
		{
			name:           "hold resolved while order was opened",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":1}`,
			serviceErr:     domain.ErrReservationInterrupted,
			expectCall:     true,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "GATEWAY_UNAVAILABLE",
		},
		{
			name:           "transaction conflict after retries",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":1}`,
			serviceErr:     fmt.Errorf("%w: %w", retry.ErrMaxRetriesExceeded, domain.ErrTransactionConflict),
			expectCall:     true,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "TRANSACTION_CONFLICT",
		},
		{
			name:           "unexpected error",
			userID:         "user-123",
			body:           `{"show_id":"show-1","seats":1}`,
			serviceErr:     errors.New("disk on fire"),
			expectCall:     true,
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			bookings := &MockBookingService{
				ReserveFunc: func(ctx context.Context, userID string, req *dto.ReserveSeatsRequest) (*service.ReserveResult, error) {
					called = true
					assert.Equal(t, tt.userID, userID)
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &service.ReserveResult{
						Booking: pendingBooking(),
						Order: &gateway.Order{
							ID:           testOrderID,
							AmountMinor:  52000,
							Currency:     "INR",
							ClientSecret: "secret_1",
						},
					}, nil
				},
			}
			router := setupTestRouter(testServices{bookings: bookings})

			w := doRequest(router, http.MethodPost, "/api/v1/bookings", tt.userID, tt.body, nil)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.expectCall, called)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
				return
			}

			var resp dto.ReserveSeatsResponse
			decodeData(t, w, &resp)
			assert.Equal(t, "booking-123", resp.Booking.ID)
			assert.Equal(t, "pending", resp.Booking.Status)
			require.NotNil(t, resp.Checkout)
			assert.Equal(t, "mock", resp.Checkout.Gateway)
			assert.Equal(t, testOrderID, resp.Checkout.OrderID)
			assert.Equal(t, int64(52000), resp.Checkout.AmountMinor)
		})
	}
}

func TestBookingHandler_GetBooking(t *testing.T) {
	bookings := &MockBookingService{
		GetBookingFunc: func(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
			if bookingID != "booking-123" || userID != "user-123" {
				return nil, domain.ErrBookingNotFound
			}
			return pendingBooking(), nil
		},
	}
	router := setupTestRouter(testServices{bookings: bookings})

	w := doRequest(router, http.MethodGet, "/api/v1/bookings/booking-123", "user-123", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.BookingResponse
	decodeData(t, w, &resp)
	assert.Equal(t, testOrderID, resp.GatewayOrderID)
	assert.Equal(t, 520.0, resp.TotalPrice)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings/booking-123", "someone-else", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestBookingHandler_ListBookings(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", query: "", wantLimit: 20, wantOffset: 0},
		{name: "explicit", query: "?limit=5&offset=10", wantLimit: 5, wantOffset: 10},
		{name: "limit above max falls back", query: "?limit=500", wantLimit: 20, wantOffset: 0},
		{name: "garbage ignored", query: "?limit=abc&offset=-3", wantLimit: 20, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit, gotOffset int
			bookings := &MockBookingService{
				ListUserBookingsFunc: func(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
					gotLimit, gotOffset = limit, offset
					return []*domain.Booking{pendingBooking()}, nil
				},
			}
			router := setupTestRouter(testServices{bookings: bookings})

			w := doRequest(router, http.MethodGet, "/api/v1/bookings"+tt.query, "user-123", "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantLimit, gotLimit)
			assert.Equal(t, tt.wantOffset, gotOffset)

			env := decodeEnvelope(t, w)
			require.NotNil(t, env.Meta)
			assert.Equal(t, 1, env.Meta.Count)
			assert.Equal(t, tt.wantLimit, env.Meta.Limit)
		})
	}
}

func TestBookingHandler_FailBooking(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		serviceErr     error
		wantReason     string
		expectedStatus int
		expectedCode   string
	}{
		{name: "empty body", body: "", expectedStatus: http.StatusOK},
		{name: "with reason", body: `{"reason":"checkout_abandoned"}`, wantReason: "checkout_abandoned", expectedStatus: http.StatusOK},
		{name: "bad json", body: `{"reason":`, expectedStatus: http.StatusBadRequest, expectedCode: "BAD_REQUEST"},
		{
			name:           "already resolved",
			body:           "",
			serviceErr:     domain.ErrBookingResolved,
			expectedStatus: http.StatusConflict,
			expectedCode:   "BOOKING_RESOLVED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReason string
			bookings := &MockBookingService{
				FailBookingFunc: func(ctx context.Context, bookingID, userID, reason string) (*domain.Booking, error) {
					gotReason = reason
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					b := pendingBooking()
					_, err := b.Fail(domain.ReasonCancelledByUser, testNow)
					return b, err
				},
			}
			router := setupTestRouter(testServices{bookings: bookings})

			w := doRequest(router, http.MethodPost, "/api/v1/bookings/booking-123/fail", "user-123", tt.body, nil)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
				return
			}
			assert.Equal(t, tt.wantReason, gotReason)

			var resp dto.BookingResponse
			decodeData(t, w, &resp)
			assert.Equal(t, "failed", resp.Status)
			assert.Nil(t, resp.LockedUntil)
		})
	}
}
