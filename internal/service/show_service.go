package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/internal/dto"
	"github.com/prohmpiriya/showtime-ledger/internal/repository"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ShowService defines the interface for show management
type ShowService interface {
	// CreateShow creates a show with an empty seat ledger
	CreateShow(ctx context.Context, req *dto.CreateShowRequest) (*domain.Show, error)

	// GetShow retrieves a show by ID
	GetShow(ctx context.Context, showID string) (*domain.Show, error)

	// ListShows returns shows ordered by show time, optionally for one movie
	ListShows(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error)

	// UpdateShow applies a partial update and notifies attendees when anything changed
	UpdateShow(ctx context.Context, showID string, cmd domain.UpdateShowCommand) (*domain.Show, []string, error)

	// Attendees returns distinct users with successful bookings for the show
	Attendees(ctx context.Context, showID string) ([]string, error)
}

type showService struct {
	tx       repository.TxManager
	shows    repository.ShowRepository
	bookings repository.BookingRepository
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

// NewShowService creates a new show service
func NewShowService(tx repository.TxManager, shows repository.ShowRepository, bookings repository.BookingRepository, notifier Notifier, now func() time.Time) ShowService {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	if now == nil {
		now = time.Now
	}
	return &showService{
		tx:       tx,
		shows:    shows,
		bookings: bookings,
		notifier: notifier,
		now:      now,
		log:      logger.Get().Named("show"),
	}
}

// CreateShow implements ShowService
func (s *showService) CreateShow(ctx context.Context, req *dto.CreateShowRequest) (*domain.Show, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.show.create")
	defer span.End()

	if req == nil {
		return nil, domain.ErrInvalidRequest
	}

	show, err := domain.NewShow(uuid.NewString(), req.MovieID, req.Theater, req.ShowTime, req.BasePrice, req.TotalSeats, s.now())
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	if err := s.shows.Create(ctx, show); err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("show_id", show.ID))
	span.SetStatus(codes.Ok, "")
	return show, nil
}

// GetShow implements ShowService
func (s *showService) GetShow(ctx context.Context, showID string) (*domain.Show, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.show.get")
	defer span.End()

	if showID == "" {
		return nil, domain.ErrInvalidShowID
	}
	show, err := s.shows.GetByID(ctx, showID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return show, nil
}

// ListShows implements ShowService
func (s *showService) ListShows(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.show.list")
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	span.SetAttributes(attribute.String("movie_id", movieID))

	shows, err := s.shows.List(ctx, movieID, limit, offset)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(shows)))
	span.SetStatus(codes.Ok, "")
	return shows, nil
}

// UpdateShow implements ShowService
func (s *showService) UpdateShow(ctx context.Context, showID string, cmd domain.UpdateShowCommand) (*domain.Show, []string, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.show.update")
	defer span.End()

	span.SetAttributes(attribute.String("show_id", showID))

	if showID == "" {
		return nil, nil, domain.ErrInvalidShowID
	}
	if err := cmd.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	var (
		show      *domain.Show
		changed   []string
		attendees []string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.shows.GetForUpdate(ctx, showID)
		if err != nil {
			return err
		}

		changed, err = current.Apply(cmd, s.now())
		if err != nil {
			return err
		}
		show = current
		if len(changed) == 0 {
			return nil
		}

		if err := s.shows.Update(ctx, current); err != nil {
			return err
		}

		attendees, err = s.bookings.ListAttendees(ctx, showID)
		return err
	})
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, nil, err
	}

	span.SetAttributes(attribute.StringSlice("changed_fields", changed))
	span.SetStatus(codes.Ok, "")

	if len(changed) > 0 {
		s.log.Info("show updated",
			zap.String("show_id", show.ID),
			zap.Strings("changed_fields", changed),
			zap.Int("attendees", len(attendees)),
		)
		if len(attendees) > 0 {
			if err := s.notifier.ShowUpdated(ctx, domain.NewShowUpdatedEvent(show, changed, attendees)); err != nil {
				s.log.Warn("failed to queue show update notification",
					zap.String("show_id", show.ID),
					zap.Error(err),
				)
			}
		}
	}

	if changed == nil {
		changed = []string{}
	}
	return show, changed, nil
}

// Attendees implements ShowService
func (s *showService) Attendees(ctx context.Context, showID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.show.attendees")
	defer span.End()

	if _, err := s.GetShow(ctx, showID); err != nil {
		return nil, err
	}

	users, err := s.bookings.ListAttendees(ctx, showID)
	if err != nil {
		telemetry.SetSpanError(span, err)
		return nil, err
	}
	if users == nil {
		users = []string{}
	}
	span.SetStatus(codes.Ok, "")
	return users, nil
}
