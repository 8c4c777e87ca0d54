package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/pricing"
	"github.com/prohmpiriya/showtime-ledger/internal/repository"
	"github.com/prohmpiriya/showtime-ledger/internal/testutil"
	"github.com/stretchr/testify/require"
)

var (
	ist = time.FixedZone("IST", 5*3600+1800)
	// 10:00 local, four hours before a 14:00 show
	t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, ist)
)

const webhookSecret = "whsec_test"

var (
	_ repository.TxManager         = (*testutil.MemoryStore)(nil)
	_ repository.ShowRepository    = (*testutil.MemoryShowRepository)(nil)
	_ repository.BookingRepository = (*testutil.MemoryBookingRepository)(nil)
)

// testClock is a settable clock shared by the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures notifications synchronously
type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []*domain.BookingConfirmedEvent
	updated   []*domain.ShowUpdatedEvent
	err       error
}

func (n *recordingNotifier) BookingConfirmed(ctx context.Context, event *domain.BookingConfirmedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, event)
	return n.err
}

func (n *recordingNotifier) ShowUpdated(ctx context.Context, event *domain.ShowUpdatedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, event)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) Confirmed() []*domain.BookingConfirmedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.BookingConfirmedEvent(nil), n.confirmed...)
}

func (n *recordingNotifier) Updated() []*domain.ShowUpdatedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*domain.ShowUpdatedEvent(nil), n.updated...)
}

// failingGateway always fails order creation
type failingGateway struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (g *failingGateway) Name() string { return "failing" }

func (g *failingGateway) CreateOrder(ctx context.Context, req *gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return nil, g.err
}

func (g *failingGateway) FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error) {
	return nil, domain.ErrGatewayNotFound
}

func (g *failingGateway) CancelOrder(ctx context.Context, orderID string) error {
	return domain.ErrGatewayNotFound
}

type harness struct {
	store    *testutil.MemoryStore
	clock    *testClock
	gw       *gateway.MockGateway
	notifier *recordingNotifier
	resolver *Resolver
	bookings BookingService
	shows    ShowService
	recon    ReconciliationService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithGateway(t, gateway.NewMockGateway(&gateway.MockGatewayConfig{}), nil)
}

func newHarnessWithGateway(t *testing.T, mock *gateway.MockGateway, gw gateway.Gateway) *harness {
	t.Helper()
	store := testutil.NewMemoryStore()
	clock := &testClock{now: t0}
	notifier := &recordingNotifier{}

	if gw == nil {
		gw = mock
	}

	resolver := NewResolver(store, store.Shows(), store.Bookings(), notifier)
	bookings := NewBookingService(store, store.Shows(), store.Bookings(), gw, pricing.NewCalculator(ist), resolver,
		&BookingServiceConfig{
			LockDuration:   10 * time.Minute,
			Currency:       "INR",
			GatewayTimeout: time.Second,
			GatewayRetries: 1,
			Now:            clock.Now,
		})

	return &harness{
		store:    store,
		clock:    clock,
		gw:       mock,
		notifier: notifier,
		resolver: resolver,
		bookings: bookings,
		shows:    NewShowService(store, store.Shows(), store.Bookings(), notifier, clock.Now),
		recon:    NewReconciliationService(gateway.NewHMACVerifier(webhookSecret, ""), resolver, clock.Now),
	}
}

// seedShow creates a 14:00 local show with basePrice 200
func (h *harness) seedShow(t *testing.T, seats int) *domain.Show {
	t.Helper()
	showTime := time.Date(2025, 3, 1, 14, 0, 0, 0, ist)
	show, err := domain.NewShow(uuid.NewString(), "movie-1", "Screen 1", showTime, 200, seats, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, h.store.CreateShow(context.Background(), show))
	return show
}

func (h *harness) show(t *testing.T, id string) *domain.Show {
	t.Helper()
	show, err := h.store.Shows().GetByID(context.Background(), id)
	require.NoError(t, err)
	return show
}

func (h *harness) booking(t *testing.T, id string) *domain.Booking {
	t.Helper()
	b, err := h.store.Bookings().GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func signedEvent(event, orderID, paymentID string, amount int64) ([]byte, string) {
	body := []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q,"amount":%d,"error_description":"card declined"}}}}`,
		event, paymentID, orderID, amount))
	return body, gateway.SignPayload(webhookSecret, body)
}

var errBoom = errors.New("boom")
