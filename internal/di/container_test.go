package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/internal/testutil"
	"github.com/prohmpiriya/showtime-ledger/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "showtime-ledger-test", Environment: "test"},
		Booking: config.BookingConfig{LockDuration: 10 * time.Minute, Currency: "INR"},
		Pricing: config.PricingConfig{Timezone: "Asia/Kolkata"},
		Sweeper: config.SweeperConfig{Interval: time.Minute, BatchSize: 10},
		Gateway: config.GatewayConfig{
			Provider:        "mock",
			WebhookSecret:   "whsec_di",
			SignatureHeader: "X-Webhook-Signature",
			Timeout:         time.Second,
		},
		Notifier: config.NotifierConfig{Driver: "none"},
	}
}

func TestNewContainer_WiresRoutes(t *testing.T) {
	cfg := testConfig()
	store := testutil.NewMemoryStore()
	now := time.Date(2025, 3, 1, 4, 30, 0, 0, time.UTC)
	show, err := domain.NewShow("show-di", "movie-1", "Screen 1", now.Add(6*time.Hour), 200, 50, now)
	require.NoError(t, err)
	require.NoError(t, store.CreateShow(context.Background(), show))

	gw, err := NewGateway(cfg)
	require.NoError(t, err)

	c, err := NewContainer(&ContainerConfig{
		Config:      cfg,
		TxManager:   store,
		ShowRepo:    store.Shows(),
		BookingRepo: store.Bookings(),
		Gateway:     gw,
		Verifier:    NewWebhookVerifier(cfg, gw),
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)
	require.NotNil(t, c.Router)
	require.NotNil(t, c.ExpiryWorker)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"show_id":"show-di","seats":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	c.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	c.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewContainer_RequiresCollaborators(t *testing.T) {
	_, err := NewContainer(nil)
	assert.Error(t, err)

	_, err = NewContainer(&ContainerConfig{Config: testConfig()})
	assert.Error(t, err)

	_, err = NewPostgresContainer(&ContainerConfig{Config: testConfig()})
	assert.Error(t, err)
}

func TestNewGateway(t *testing.T) {
	cfg := testConfig()

	gw, err := NewGateway(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mock", gw.Name())
	assert.IsType(t, &gateway.HMACVerifier{}, NewWebhookVerifier(cfg, gw))

	cfg.Gateway.Provider = "stripe"
	cfg.Gateway.StripeSecretKey = "sk_test_123"
	gw, err = NewGateway(cfg)
	require.NoError(t, err)
	assert.Equal(t, gateway.StripeSignatureHeader, NewWebhookVerifier(cfg, gw).SignatureHeader())

	cfg.Gateway.Provider = "paypal"
	_, err = NewGateway(cfg)
	assert.Error(t, err)
}

func TestNewNotifier_NoneIsNoOp(t *testing.T) {
	n := NewNotifier(context.Background(), testConfig())
	require.NoError(t, n.BookingConfirmed(context.Background(), &domain.BookingConfirmedEvent{EventType: "booking.confirmed"}))
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.ShowUpdated(context.Background(), &domain.ShowUpdatedEvent{}), service.ErrNotifierClosed)
}
