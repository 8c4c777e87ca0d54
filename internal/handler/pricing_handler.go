package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/pricing"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PriceQuoter prices a set of explicit inputs
type PriceQuoter interface {
	Price(in pricing.Input) (pricing.Quote, error)
}

// PricingHandler serves side-effect-free price simulations
type PricingHandler struct {
	quoter PriceQuoter
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(quoter PriceQuoter) *PricingHandler {
	return &PricingHandler{quoter: quoter}
}

// Simulate handles POST /pricing/simulate
func (h *PricingHandler) Simulate(c *gin.Context) {
	_, span := telemetry.StartSpan(c.Request.Context(), "handler.pricing.simulate")
	defer span.End()

	var req dto.SimulatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	quote, err := h.quoter.Price(req.ToInput())
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.Float64("price_per_seat", quote.PricePerSeat),
		attribute.Float64("total_price", quote.TotalPrice),
	)
	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.QuoteFromPricing(quote))
}
