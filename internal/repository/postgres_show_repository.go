package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/pkg/database"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PostgresShowRepository implements ShowRepository using PostgreSQL
type PostgresShowRepository struct {
	db *database.PostgresDB
}

// NewPostgresShowRepository creates a new PostgresShowRepository
func NewPostgresShowRepository(db *database.PostgresDB) *PostgresShowRepository {
	return &PostgresShowRepository{db: db}
}

const showColumns = `
	id::text, movie_id, theater, show_time, base_price::float8,
	total_seats, booked_seats, locked_seats, locked_until,
	created_at, updated_at`

// Create inserts a new show
func (r *PostgresShowRepository) Create(ctx context.Context, show *domain.Show) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.show.create")
	defer span.End()

	span.SetAttributes(attribute.String("show_id", show.ID))

	query := `
		INSERT INTO shows (
			id, movie_id, theater, show_time, base_price,
			total_seats, booked_seats, locked_seats, locked_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		show.ID,
		show.MovieID,
		show.Theater,
		show.ShowTime,
		show.BasePrice,
		show.Seats.Total(),
		show.Seats.Booked(),
		show.Seats.Locked(),
		show.Seats.LockedUntil(),
		show.CreatedAt,
		show.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create show: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID reads a show without locking
func (r *PostgresShowRepository) GetByID(ctx context.Context, id string) (*domain.Show, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.show.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("show_id", id))
	return r.get(ctx, span, `SELECT`+showColumns+` FROM shows WHERE id = $1`, id)
}

// GetForUpdate reads a show and row-locks it for the rest of the transaction
func (r *PostgresShowRepository) GetForUpdate(ctx context.Context, id string) (*domain.Show, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.show.get_for_update")
	defer span.End()

	span.SetAttributes(attribute.String("show_id", id))
	return r.get(ctx, span, `SELECT`+showColumns+` FROM shows WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresShowRepository) get(ctx context.Context, span trace.Span, query, id string) (*domain.Show, error) {
	show, err := scanShow(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidInput(err) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrShowNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get show: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return show, nil
}

// Update writes descriptive fields and ledger counters
func (r *PostgresShowRepository) Update(ctx context.Context, show *domain.Show) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.show.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("show_id", show.ID),
		attribute.Int("booked_seats", show.Seats.Booked()),
		attribute.Int("locked_seats", show.Seats.Locked()),
	)

	query := `
		UPDATE shows SET
			theater = $2,
			show_time = $3,
			base_price = $4,
			total_seats = $5,
			booked_seats = $6,
			locked_seats = $7,
			locked_until = $8,
			updated_at = $9
		WHERE id = $1
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query,
		show.ID,
		show.Theater,
		show.ShowTime,
		show.BasePrice,
		show.Seats.Total(),
		show.Seats.Booked(),
		show.Seats.Locked(),
		show.Seats.LockedUntil(),
		show.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if database.IsCheckViolation(err) {
			return fmt.Errorf("%w: %w", domain.ErrLedgerInvariant, err)
		}
		return fmt.Errorf("failed to update show: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrShowNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// List returns shows ordered by show time, optionally for one movie
func (r *PostgresShowRepository) List(ctx context.Context, movieID string, limit, offset int) ([]*domain.Show, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.show.list")
	defer span.End()

	span.SetAttributes(
		attribute.String("movie_id", movieID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	query := `SELECT` + showColumns + `
		FROM shows
		WHERE $1::text = '' OR movie_id = $1
		ORDER BY show_time, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Querier(ctx).Query(ctx, query, movieID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query shows: %w", err)
	}
	defer rows.Close()

	shows := []*domain.Show{}
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan show: %w", err)
		}
		shows = append(shows, show)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate shows: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(shows)))
	span.SetStatus(codes.Ok, "")
	return shows, nil
}

func scanShow(row pgx.Row) (*domain.Show, error) {
	var (
		show                  domain.Show
		total, booked, locked int
		lockedUntil           *time.Time
	)

	err := row.Scan(
		&show.ID,
		&show.MovieID,
		&show.Theater,
		&show.ShowTime,
		&show.BasePrice,
		&total,
		&booked,
		&locked,
		&lockedUntil,
		&show.CreatedAt,
		&show.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	show.Seats, err = domain.RestoreSeatLedger(total, booked, locked, lockedUntil)
	if err != nil {
		return nil, err
	}
	return &show, nil
}
