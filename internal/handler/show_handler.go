package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ShowHandler handles show HTTP requests
type ShowHandler struct {
	showService service.ShowService
}

// NewShowHandler creates a new show handler
func NewShowHandler(showService service.ShowService) *ShowHandler {
	return &ShowHandler{showService: showService}
}

// CreateShow handles POST /shows
func (h *ShowHandler) CreateShow(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.show.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.CreateShowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	show, err := h.showService.CreateShow(ctx, &req)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("show_id", show.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.ShowFromDomain(show))
}

// ListShows handles GET /shows
// Optional movie_id narrows the listing to one movie
func (h *ShowHandler) ListShows(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.show.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	movieID := c.Query("movie_id")
	limit, offset := pagination(c)
	span.SetAttributes(
		attribute.String("movie_id", movieID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	shows, err := h.showService.ListShows(ctx, movieID, limit, offset)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, dto.GroupShowsByMovie(shows), response.Meta{
		Limit:  limit,
		Offset: offset,
		Count:  len(shows),
	})
}

// GetShow handles GET /shows/:id
func (h *ShowHandler) GetShow(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.show.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	showID := c.Param("id")
	span.SetAttributes(attribute.String("show_id", showID))

	show, err := h.showService.GetShow(ctx, showID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, dto.ShowFromDomain(show))
}

// UpdateShow handles PATCH /shows/:id
func (h *ShowHandler) UpdateShow(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.show.update")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	showID := c.Param("id")
	span.SetAttributes(attribute.String("show_id", showID))

	var req dto.UpdateShowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	show, changed, err := h.showService.UpdateShow(ctx, showID, req.ToCommand())
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, &dto.UpdateShowResponse{
		Show:          dto.ShowFromDomain(show),
		ChangedFields: changed,
	})
}

// Attendees handles GET /shows/:id/attendees
func (h *ShowHandler) Attendees(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.show.attendees")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	showID := c.Param("id")
	span.SetAttributes(attribute.String("show_id", showID))

	users, err := h.showService.Attendees(ctx, showID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("attendees", len(users)))
	span.SetStatus(codes.Ok, "")
	response.Success(c, &dto.AttendeesResponse{ShowID: showID, Attendees: users})
}
