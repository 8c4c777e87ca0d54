package di

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/handler"
	"github.com/prohmpiriya/showtime-ledger/internal/pricing"
	"github.com/prohmpiriya/showtime-ledger/internal/repository"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/internal/worker"
	"github.com/prohmpiriya/showtime-ledger/pkg/config"
	"github.com/prohmpiriya/showtime-ledger/pkg/database"
	"github.com/prohmpiriya/showtime-ledger/pkg/middleware"
	pkgredis "github.com/prohmpiriya/showtime-ledger/pkg/redis"
)

// Container holds all dependencies for the ledger service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *pkgredis.Client

	// Repositories
	TxManager   repository.TxManager
	ShowRepo    repository.ShowRepository
	BookingRepo repository.BookingRepository

	// Collaborators
	Gateway    gateway.Gateway
	Verifier   gateway.WebhookVerifier
	Notifier   service.Notifier
	Calculator *pricing.Calculator
	Resolver   *service.Resolver

	// Services
	BookingService        service.BookingService
	ShowService           service.ShowService
	ReconciliationService service.ReconciliationService

	// Workers
	ExpiryWorker *worker.ExpiryWorker

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	ShowHandler    *handler.ShowHandler
	PricingHandler *handler.PricingHandler
	WebhookHandler *handler.WebhookHandler

	Router *gin.Engine
}

// ContainerConfig contains configuration for building the container.
// DB and Redis are optional; repositories may be supplied without them.
type ContainerConfig struct {
	Config      *config.Config
	DB          *database.PostgresDB
	Redis       *pkgredis.Client
	TxManager   repository.TxManager
	ShowRepo    repository.ShowRepository
	BookingRepo repository.BookingRepository
	Gateway     gateway.Gateway
	Verifier    gateway.WebhookVerifier
	Notifier    service.Notifier
	// Now overrides the clock, for tests
	Now func() time.Time
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, fmt.Errorf("container config is required")
	}
	if cfg.TxManager == nil || cfg.ShowRepo == nil || cfg.BookingRepo == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if cfg.Gateway == nil || cfg.Verifier == nil {
		return nil, fmt.Errorf("gateway and webhook verifier are required")
	}

	appCfg := cfg.Config
	loc, err := appCfg.Pricing.Location()
	if err != nil {
		return nil, fmt.Errorf("pricing timezone: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = service.NewNoOpNotifier()
	}

	c := &Container{
		DB:          cfg.DB,
		Redis:       cfg.Redis,
		TxManager:   cfg.TxManager,
		ShowRepo:    cfg.ShowRepo,
		BookingRepo: cfg.BookingRepo,
		Gateway:     cfg.Gateway,
		Verifier:    cfg.Verifier,
		Notifier:    notifier,
		Calculator:  pricing.NewCalculator(loc),
	}

	// Initialize services
	c.Resolver = service.NewResolver(c.TxManager, c.ShowRepo, c.BookingRepo, c.Notifier)
	c.BookingService = service.NewBookingService(
		c.TxManager,
		c.ShowRepo,
		c.BookingRepo,
		c.Gateway,
		c.Calculator,
		c.Resolver,
		&service.BookingServiceConfig{
			LockDuration:   appCfg.Booking.LockDuration,
			Currency:       appCfg.Booking.Currency,
			GatewayTimeout: appCfg.Gateway.Timeout,
			GatewayRetries: appCfg.Gateway.MaxRetries,
			Now:            now,
		},
	)
	c.ShowService = service.NewShowService(c.TxManager, c.ShowRepo, c.BookingRepo, c.Notifier, now)
	c.ReconciliationService = service.NewReconciliationService(c.Verifier, c.Resolver, now)

	// Initialize workers. The lock is only meaningful with a shared Redis.
	var locker worker.Locker
	if c.Redis != nil {
		locker = c.Redis
	}
	c.ExpiryWorker = worker.NewExpiryWorker(
		c.BookingRepo,
		c.BookingService,
		c.Resolver,
		c.Gateway,
		locker,
		&worker.ExpiryWorkerConfig{
			Interval:          appCfg.Sweeper.Interval,
			BatchSize:         appCfg.Sweeper.BatchSize,
			VerifyWithGateway: appCfg.Sweeper.VerifyWithGateway,
			LockKey:           appCfg.Sweeper.LockKey,
			LockTTL:           appCfg.Sweeper.LockTTL,
			Now:               now,
		},
	)

	// Initialize handlers
	components := map[string]handler.HealthChecker{}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(components)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.ShowHandler = handler.NewShowHandler(c.ShowService)
	c.PricingHandler = handler.NewPricingHandler(c.Calculator)
	c.WebhookHandler = handler.NewWebhookHandler(c.ReconciliationService)

	routerCfg := &handler.RouterConfig{
		ServiceName: appCfg.App.Name,
		Health:      c.HealthHandler,
		Booking:     c.BookingHandler,
		Show:        c.ShowHandler,
		Pricing:     c.PricingHandler,
		Webhook:     c.WebhookHandler,
		Tracing:     appCfg.OTel.Enabled,
		Logging:     true,
	}
	if c.Redis != nil {
		routerCfg.Idempotency = middleware.DefaultIdempotencyConfig(c.Redis.Client())
	}
	if appCfg.RateLimit.RPS > 0 {
		routerCfg.SimulateLimit = &middleware.RateLimitConfig{
			RPS:     appCfg.RateLimit.RPS,
			Burst:   appCfg.RateLimit.Burst,
			IdleTTL: 10 * time.Minute,
		}
	}
	c.Router = handler.NewRouter(routerCfg)

	return c, nil
}

// NewPostgresContainer wires the Postgres repositories and transaction manager
// around db before building the container.
func NewPostgresContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	retries := 3
	if cfg.Config != nil && cfg.Config.Database.TxMaxRetries > 0 {
		retries = cfg.Config.Database.TxMaxRetries
	}
	cfg.TxManager = repository.NewPostgresTxManager(cfg.DB, retries)
	cfg.ShowRepo = repository.NewPostgresShowRepository(cfg.DB)
	cfg.BookingRepo = repository.NewPostgresBookingRepository(cfg.DB)
	return NewContainer(cfg)
}
