package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/pricing"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/middleware"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	ReserveFunc          func(ctx context.Context, userID string, req *dto.ReserveSeatsRequest) (*service.ReserveResult, error)
	GetBookingFunc       func(ctx context.Context, bookingID, userID string) (*domain.Booking, error)
	ListUserBookingsFunc func(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error)
	FailBookingFunc      func(ctx context.Context, bookingID, userID, reason string) (*domain.Booking, error)
	ExpireBookingFunc    func(ctx context.Context, bookingID string, now time.Time) (*service.Resolution, error)
}

func (m *MockBookingService) Reserve(ctx context.Context, userID string, req *dto.ReserveSeatsRequest) (*service.ReserveResult, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, userID, req)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, userID)
	}
	return nil, nil
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, error) {
	if m.ListUserBookingsFunc != nil {
		return m.ListUserBookingsFunc(ctx, userID, limit, offset)
	}
	return nil, nil
}

func (m *MockBookingService) FailBooking(ctx context.Context, bookingID, userID, reason string) (*domain.Booking, error) {
	if m.FailBookingFunc != nil {
		return m.FailBookingFunc(ctx, bookingID, userID, reason)
	}
	return nil, nil
}

func (m *MockBookingService) ExpireBooking(ctx context.Context, bookingID string, now time.Time) (*service.Resolution, error) {
	if m.ExpireBookingFunc != nil {
		return m.ExpireBookingFunc(ctx, bookingID, now)
	}
	return nil, nil
}

func (m *MockBookingService) GatewayName() string { return "mock" }

// MockShowService is a mock implementation of ShowService for testing
type MockShowService struct {
	CreateShowFunc func(ctx context.Context, req *dto.CreateShowRequest) (*domain.Show, error)
	GetShowFunc    func(ctx context.Context, showID string) (*domain.Show, error)
	ListShowsFunc  func(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error)
	UpdateShowFunc func(ctx context.Context, showID string, cmd domain.UpdateShowCommand) (*domain.Show, []string, error)
	AttendeesFunc  func(ctx context.Context, showID string) ([]string, error)
}

func (m *MockShowService) CreateShow(ctx context.Context, req *dto.CreateShowRequest) (*domain.Show, error) {
	if m.CreateShowFunc != nil {
		return m.CreateShowFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockShowService) GetShow(ctx context.Context, showID string) (*domain.Show, error) {
	if m.GetShowFunc != nil {
		return m.GetShowFunc(ctx, showID)
	}
	return nil, nil
}

func (m *MockShowService) ListShows(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error) {
	if m.ListShowsFunc != nil {
		return m.ListShowsFunc(ctx, movieID, limit, offset)
	}
	return nil, nil
}

func (m *MockShowService) UpdateShow(ctx context.Context, showID string, cmd domain.UpdateShowCommand) (*domain.Show, []string, error) {
	if m.UpdateShowFunc != nil {
		return m.UpdateShowFunc(ctx, showID, cmd)
	}
	return nil, nil, nil
}

func (m *MockShowService) Attendees(ctx context.Context, showID string) ([]string, error) {
	if m.AttendeesFunc != nil {
		return m.AttendeesFunc(ctx, showID)
	}
	return nil, nil
}

// MockReconciliationService is a testify mock of ReconciliationService
type MockReconciliationService struct {
	mock.Mock
}

func (m *MockReconciliationService) SignatureHeader() string {
	return "X-Webhook-Signature"
}

func (m *MockReconciliationService) HandleGatewayEvent(ctx context.Context, raw []byte, signature string) (*service.Ack, error) {
	args := m.Called(ctx, raw, signature)
	ack, _ := args.Get(0).(*service.Ack)
	return ack, args.Error(1)
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(ctx context.Context) error { return f.err }

type testServices struct {
	bookings *MockBookingService
	shows    *MockShowService
	recon    *MockReconciliationService
	health   map[string]HealthChecker
}

func setupTestRouter(s testServices) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if s.bookings == nil {
		s.bookings = &MockBookingService{}
	}
	if s.shows == nil {
		s.shows = &MockShowService{}
	}
	if s.recon == nil {
		s.recon = &MockReconciliationService{}
	}
	return NewRouter(&RouterConfig{
		ServiceName: "showtime-ledger-test",
		Health:      NewHealthHandler(s.health),
		Booking:     NewBookingHandler(s.bookings),
		Show:        NewShowHandler(s.shows),
		Pricing:     NewPricingHandler(pricing.NewCalculator(time.UTC)),
		Webhook:     NewWebhookHandler(s.recon),
	})
}

func doRequest(router *gin.Engine, method, path, userID, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorData `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	env := decodeEnvelope(t, w)
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := decodeEnvelope(t, w)
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

var (
	testNow      = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	testOrderID  = "order_abc"
	testLockedTo = testNow.Add(10 * time.Minute)
)

func pendingBooking() *domain.Booking {
	return &domain.Booking{
		ID:             "booking-123",
		ShowID:         "show-1",
		UserID:         "user-123",
		SeatsRequested: 2,
		PricePerSeat:   260,
		TotalPrice:     520,
		Currency:       "INR",
		Status:         domain.BookingStatusPending,
		GatewayOrderID: &testOrderID,
		LockedSeats:    2,
		LockedUntil:    &testLockedTo,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func testShow(t *testing.T) *domain.Show {
	t.Helper()
	show, err := domain.NewShow("show-1", "movie-1", "Screen 1", testNow.Add(6*time.Hour), 200, 100, testNow)
	require.NoError(t, err)
	return show
}
