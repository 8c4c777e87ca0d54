package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/metrics"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ExpiredLister lists pending bookings whose own hold has lapsed at now
type ExpiredLister interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Booking, error)
}

// BookingExpirer expires one booking in its own transaction
type BookingExpirer interface {
	ExpireBooking(ctx context.Context, bookingID string, now time.Time) (*service.Resolution, error)
}

// TransitionResolver applies a booking transition, used to confirm paid orders
type TransitionResolver interface {
	Resolve(ctx context.Context, t service.Transition) (*service.Resolution, error)
}

// Locker keeps concurrent sweeper processes from working the same tick
type Locker interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) (bool, error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// Interval is the time between sweeps
	Interval time.Duration
	// BatchSize caps the bookings handled per sweep
	BatchSize int
	// VerifyWithGateway asks the gateway before expiring a booking with an order
	VerifyWithGateway bool
	// LockKey and LockTTL configure the cross-process lock when a Locker is set
	LockKey string
	LockTTL time.Duration
	// ErrorBuffer sizes the Errors channel
	ErrorBuffer int
	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		Interval:    60 * time.Second,
		BatchSize:   100,
		LockKey:     "showtime:sweeper:lock",
		ErrorBuffer: 64,
		Now:         time.Now,
	}
}

// SweepResult counts what one sweep did
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Confirmed int `json:"confirmed"`
	// Skipped covers bookings resolved by someone else first and holds still active
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// LockBusy is set when another process held the sweep lock
	LockBusy bool `json:"lock_busy"`
}

// ExpiryWorker periodically expires pending bookings whose seat hold has lapsed
type ExpiryWorker struct {
	bookings ExpiredLister
	expirer  BookingExpirer
	resolver TransitionResolver
	gateway  gateway.Gateway
	locker   Locker
	config   *ExpiryWorkerConfig
	owner    string
	log      *logger.Logger
	errCh    chan error

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalSweeps    int64
	totalExpired   int64
	totalConfirmed int64
	totalFailed    int64
	lastSweepTime  time.Time
	lastResult     SweepResult
}

// NewExpiryWorker creates a new expiry worker. gw and locker are optional.
func NewExpiryWorker(
	bookings ExpiredLister,
	expirer BookingExpirer,
	resolver TransitionResolver,
	gw gateway.Gateway,
	locker Locker,
	config *ExpiryWorkerConfig,
) *ExpiryWorker {
	defaults := DefaultExpiryWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.LockKey == "" {
		config.LockKey = defaults.LockKey
	}
	if config.LockTTL <= 0 {
		config.LockTTL = config.Interval
	}
	if config.ErrorBuffer <= 0 {
		config.ErrorBuffer = defaults.ErrorBuffer
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &ExpiryWorker{
		bookings: bookings,
		expirer:  expirer,
		resolver: resolver,
		gateway:  gw,
		locker:   locker,
		config:   config,
		owner:    uuid.NewString(),
		log:      logger.Get().Named("expiry-worker"),
		errCh:    make(chan error, config.ErrorBuffer),
	}
}

// Start starts the expiry worker. The first sweep runs immediately.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.log.Info("starting expiry worker",
		zap.Duration("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Bool("verify_with_gateway", w.config.VerifyWithGateway),
		zap.Bool("distributed_lock", w.locker != nil),
	)

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Stop stops the expiry worker and waits for the current sweep to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("expiry worker stopped")
}

// Errors delivers per-booking and listing failures. Sends never block, so
// errors are dropped when nobody drains the channel.
func (w *ExpiryWorker) Errors() <-chan error {
	return w.errCh
}

func (w *ExpiryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over lapsed pending bookings
func (w *ExpiryWorker) Sweep(ctx context.Context) SweepResult {
	ctx, span := telemetry.StartSpan(ctx, "worker.expiry.sweep")
	defer span.End()

	start := time.Now()
	now := w.config.Now()
	var result SweepResult

	if w.locker != nil {
		acquired, err := w.locker.TryLock(ctx, w.config.LockKey, w.owner, w.config.LockTTL)
		switch {
		case err != nil:
			// The lock only saves duplicate work; transactions keep sweeps correct
			w.log.Warn("sweep lock unavailable, sweeping without it", zap.Error(err))
		case !acquired:
			w.log.Debug("sweep lock held elsewhere", zap.String("key", w.config.LockKey))
			result.LockBusy = true
			w.record(now, result)
			return result
		default:
			defer func() {
				if _, err := w.locker.Unlock(context.WithoutCancel(ctx), w.config.LockKey, w.owner); err != nil {
					w.log.Warn("failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	expired, err := w.bookings.ListExpiredPending(ctx, now, w.config.BatchSize)
	if err != nil {
		err = fmt.Errorf("failed to list expired bookings: %w", err)
		w.log.Error("sweep failed", zap.Error(err))
		telemetry.SetSpanError(span, err)
		w.report(err)
		result.Failed++
		metrics.RecordSweep(ctx, time.Since(start).Seconds(), true)
		w.record(now, result)
		return result
	}

	for _, booking := range expired {
		if ctx.Err() != nil {
			break
		}
		result.Scanned++
		w.handle(ctx, booking, now, &result)
	}

	metrics.RecordSweep(ctx, time.Since(start).Seconds(), result.Failed > 0)
	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("expired", result.Expired),
		attribute.Int("confirmed", result.Confirmed),
		attribute.Int("failed", result.Failed),
	)
	if result.Scanned > 0 {
		w.log.Info("sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("expired", result.Expired),
			zap.Int("confirmed", result.Confirmed),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
			zap.Duration("duration", time.Since(start)),
		)
	}
	w.record(now, result)
	return result
}

func (w *ExpiryWorker) handle(ctx context.Context, booking *domain.Booking, now time.Time, result *SweepResult) {
	if w.config.VerifyWithGateway && w.gateway != nil && w.resolver != nil && booking.OrderID() != "" {
		if done := w.confirmIfPaid(ctx, booking, now, result); done {
			return
		}
	}

	res, err := w.expirer.ExpireBooking(ctx, booking.ID, now)
	switch {
	case errors.Is(err, domain.ErrLockActive):
		result.Skipped++
	case err != nil:
		result.Failed++
		w.log.Error("failed to expire booking", zap.String("booking_id", booking.ID), zap.Error(err))
		w.report(fmt.Errorf("expire booking %s: %w", booking.ID, err))
	case res.Applied:
		result.Expired++
	default:
		result.Skipped++
	}
}

// confirmIfPaid confirms a booking whose order the gateway reports as paid.
// It returns false when the caller should fall back to expiry.
func (w *ExpiryWorker) confirmIfPaid(ctx context.Context, booking *domain.Booking, now time.Time, result *SweepResult) bool {
	order, err := w.gateway.FetchOrder(ctx, booking.OrderID())
	if err != nil {
		w.log.Warn("gateway lookup failed, expiring booking",
			zap.String("booking_id", booking.ID),
			zap.String("gateway_order_id", booking.OrderID()),
			zap.Error(err),
		)
		return false
	}
	if !order.IsPaid() {
		return false
	}

	res, err := w.resolver.Resolve(ctx, service.Transition{
		BookingID: booking.ID,
		Kind:      service.TransitionConfirm,
		PaymentID: order.PaymentID,
		At:        now,
		Guard:     service.AmountGuard(order.AmountMinor),
	})
	switch {
	case err != nil:
		result.Failed++
		w.log.Error("failed to confirm paid booking", zap.String("booking_id", booking.ID), zap.Error(err))
		w.report(fmt.Errorf("confirm booking %s: %w", booking.ID, err))
	case res.Applied:
		result.Confirmed++
		w.log.Info("confirmed booking from gateway order",
			zap.String("booking_id", booking.ID),
			zap.String("gateway_order_id", order.ID),
		)
	default:
		result.Skipped++
	}
	return true
}

func (w *ExpiryWorker) report(err error) {
	select {
	case w.errCh <- err:
	default:
	}
}

func (w *ExpiryWorker) record(at time.Time, result SweepResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.totalSweeps++
	w.totalExpired += int64(result.Expired)
	w.totalConfirmed += int64(result.Confirmed)
	w.totalFailed += int64(result.Failed)
	w.lastSweepTime = at
	w.lastResult = result
}

// Stats returns worker statistics
func (w *ExpiryWorker) Stats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:      w.running,
		TotalSweeps:    w.totalSweeps,
		TotalExpired:   w.totalExpired,
		TotalConfirmed: w.totalConfirmed,
		TotalFailed:    w.totalFailed,
		LastSweepTime:  w.lastSweepTime,
		LastResult:     w.lastResult,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning      bool        `json:"is_running"`
	TotalSweeps    int64       `json:"total_sweeps"`
	TotalExpired   int64       `json:"total_expired"`
	TotalConfirmed int64       `json:"total_confirmed"`
	TotalFailed    int64       `json:"total_failed"`
	LastSweepTime  time.Time   `json:"last_sweep_time"`
	LastResult     SweepResult `json:"last_result"`
}
