package handler

import (
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	bookingService service.BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

// ReserveSeats handles POST /bookings
// Holds seats, prices them and returns the pending booking with its checkout handle
func (h *BookingHandler) ReserveSeats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.reserve")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.ReserveSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("show_id", req.ShowID),
		attribute.Int("seats", req.Seats),
	)

	result, err := h.bookingService.Reserve(ctx, userID, &req)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("booking_id", result.Booking.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, &dto.ReserveSeatsResponse{
		Booking:  dto.FromDomain(result.Booking),
		Checkout: dto.NewCheckoutResponse(h.bookingService.GatewayName(), result.Order),
	})
}

// GetBooking handles GET /bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	booking, err := h.bookingService.GetBooking(ctx, bookingID, userID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(booking))
}

// ListBookings handles GET /bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	limit, offset := pagination(c)

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	bookings, err := h.bookingService.ListUserBookings(ctx, userID, limit, offset)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, dto.FromDomainList(bookings), response.Meta{
		Limit:  limit,
		Offset: offset,
		Count:  len(bookings),
	})
}

// FailBooking handles POST /bookings/:id/fail
// The body is optional; an empty reason is recorded as a user cancellation
func (h *BookingHandler) FailBooking(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.fail")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, ok := currentUser(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.FailBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	bookingID := c.Param("id")
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	booking, err := h.bookingService.FailBooking(ctx, bookingID, userID, req.Reason)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.FromDomain(booking))
}

// pagination reads limit and offset query parameters. Out of range values
// fall back to limit 20 and offset 0.
func pagination(c *gin.Context) (limit, offset int) {
	limit = 20
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if o := c.Query("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
