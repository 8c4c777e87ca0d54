package handler

import (
	"errors"
	"net/http"
	"testing"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWebhookHandler_HandlePaymentEvent(t *testing.T) {
	const payload = `{"event":"payment.captured"}`

	tests := []struct {
		name           string
		signature      string
		ack            *service.Ack
		serviceErr     error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "processed",
			signature:      "abc",
			ack:            &service.Ack{Outcome: service.OutcomeProcessed, EventType: "payment.captured", BookingID: "booking-1", Status: "success"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown order is acknowledged",
			signature:      "abc",
			ack:            &service.Ack{Outcome: service.OutcomeUnknownOrder, EventType: "payment.captured"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing signature",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "invalid signature",
			signature:      "bad",
			serviceErr:     domain.ErrInvalidSignature,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "amount mismatch",
			signature:      "abc",
			serviceErr:     domain.ErrAmountMismatch,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   "AMOUNT_MISMATCH",
		},
		{
			name:           "malformed event",
			signature:      "abc",
			serviceErr:     domain.ErrMalformedEvent,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "BAD_REQUEST",
		},
		{
			name:           "conflict asks for redelivery",
			signature:      "abc",
			serviceErr:     domain.ErrTransactionConflict,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   "TRANSACTION_CONFLICT",
		},
		{
			name:           "storage failure",
			signature:      "abc",
			serviceErr:     errors.New("connection reset"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recon := &MockReconciliationService{}
			if tt.signature != "" {
				recon.On("HandleGatewayEvent", mock.Anything, []byte(payload), tt.signature).
					Return(tt.ack, tt.serviceErr).Once()
			}
			router := setupTestRouter(testServices{recon: recon})

			headers := map[string]string{}
			if tt.signature != "" {
				headers["X-Webhook-Signature"] = tt.signature
			}
			w := doRequest(router, http.MethodPost, "/api/v1/webhooks/payments", "", payload, headers)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			recon.AssertExpectations(t)
			if tt.signature == "" {
				recon.AssertNotCalled(t, "HandleGatewayEvent", mock.Anything, mock.Anything, mock.Anything)
			}
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
				return
			}

			var ack service.Ack
			decodeData(t, w, &ack)
			assert.Equal(t, tt.ack.Outcome, ack.Outcome)
		})
	}
}

func TestWebhookHandler_ConflictSetsRetryAfter(t *testing.T) {
	recon := &MockReconciliationService{}
	recon.On("HandleGatewayEvent", mock.Anything, mock.Anything, "sig").
		Return(nil, domain.ErrTransactionConflict)
	router := setupTestRouter(testServices{recon: recon})

	w := doRequest(router, http.MethodPost, "/api/v1/webhooks/payments", "", `{}`, map[string]string{"X-Webhook-Signature": "sig"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := setupTestRouter(testServices{health: map[string]HealthChecker{
			"database": fakeChecker{},
			"redis":    nil,
		}})

		w := doRequest(router, http.MethodGet, "/health", "", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = doRequest(router, http.MethodGet, "/ready", "", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"redis":"not configured"`)
	})

	t.Run("unhealthy", func(t *testing.T) {
		router := setupTestRouter(testServices{health: map[string]HealthChecker{
			"database": fakeChecker{err: errors.New("refused")},
		}})

		w := doRequest(router, http.MethodGet, "/ready", "", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "unhealthy: refused")
	})
}
