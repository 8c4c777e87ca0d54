package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/pkg/middleware"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
)

// RouterConfig lists the handlers and optional middleware mounted by NewRouter
type RouterConfig struct {
	ServiceName string

	Health  *HealthHandler
	Booking *BookingHandler
	Show    *ShowHandler
	Pricing *PricingHandler
	Webhook *WebhookHandler
	Tracing bool
	Logging bool

	// Idempotency guards POST /bookings when set
	Idempotency *middleware.IdempotencyConfig
	// SimulateLimit rate limits the pricing simulation when set
	SimulateLimit *middleware.RateLimitConfig
}

// NewRouter builds the gin engine with every API route
func NewRouter(cfg *RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery())
	if cfg.Tracing {
		router.Use(telemetry.TracingMiddleware(cfg.ServiceName))
	}
	if cfg.Logging {
		router.Use(middleware.RequestLogger("/health", "/ready"))
	}

	router.GET("/health", cfg.Health.Health)
	router.GET("/ready", cfg.Health.Ready)

	v1 := router.Group("/api/v1")

	bookings := v1.Group("/bookings")
	bookings.Use(middleware.UserID(true))
	{
		reserve := []gin.HandlerFunc{}
		if cfg.Idempotency != nil {
			reserve = append(reserve, middleware.IdempotencyMiddleware(cfg.Idempotency))
		}
		bookings.POST("", append(reserve, cfg.Booking.ReserveSeats)...)
		bookings.GET("", cfg.Booking.ListBookings)
		bookings.GET("/:id", cfg.Booking.GetBooking)
		bookings.POST("/:id/fail", cfg.Booking.FailBooking)
	}

	shows := v1.Group("/shows")
	{
		shows.POST("", cfg.Show.CreateShow)
		shows.GET("", cfg.Show.ListShows)
		shows.GET("/:id", cfg.Show.GetShow)
		shows.PATCH("/:id", cfg.Show.UpdateShow)
		shows.GET("/:id/attendees", cfg.Show.Attendees)
	}

	simulate := []gin.HandlerFunc{}
	if cfg.SimulateLimit != nil {
		simulate = append(simulate, middleware.RateLimit(*cfg.SimulateLimit))
	}
	v1.POST("/pricing/simulate", append(simulate, cfg.Pricing.Simulate)...)

	// Raw body, no idempotency: the reconciliation itself is idempotent
	v1.POST("/webhooks/payments", cfg.Webhook.HandlePaymentEvent)

	return router
}
