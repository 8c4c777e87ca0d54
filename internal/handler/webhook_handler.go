package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// maxWebhookBody caps the payload read from the gateway
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment gateway events
type WebhookHandler struct {
	reconciliation service.ReconciliationService
	log            *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciliation service.ReconciliationService) *WebhookHandler {
	return &WebhookHandler{
		reconciliation: reconciliation,
		log:            logger.Get().Named("webhook"),
	}
}

// HandlePaymentEvent handles POST /webhooks/payments
// Acknowledged events return 200; the gateway redelivers on 5xx
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.webhook.payment")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("failed to read webhook body", zap.Error(err))
		telemetry.SetSpanError(span, err)
		response.BadRequest(c, "failed to read request body")
		return
	}

	header := h.reconciliation.SignatureHeader()
	signature := c.GetHeader(header)
	if signature == "" {
		h.log.Warn("missing webhook signature", zap.String("header", header))
		span.SetStatus(codes.Error, "missing signature")
		handleError(c, domain.ErrInvalidSignature)
		return
	}

	ack, err := h.reconciliation.HandleGatewayEvent(ctx, payload, signature)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("event_type", ack.EventType),
		attribute.String("outcome", string(ack.Outcome)),
	)
	span.SetStatus(codes.Ok, "")
	response.Success(c, ack)
}
