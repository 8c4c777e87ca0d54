package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/pkg/database"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/retry"
	"github.com/prohmpiriya/showtime-ledger/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PostgresTxManager runs units of work in RepeatableRead transactions and
// re-runs the whole unit when PostgreSQL reports a serialization failure or deadlock.
type PostgresTxManager struct {
	db    *database.PostgresDB
	retry *retry.Retrier
}

// NewPostgresTxManager creates a transaction manager. maxRetries counts
// re-runs after the first attempt.
func NewPostgresTxManager(db *database.PostgresDB, maxRetries int) *PostgresTxManager {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.InitialInterval = 10 * time.Millisecond
	cfg.MaxInterval = 500 * time.Millisecond
	cfg.JitterFactor = 0.3
	cfg.RetryIf = func(err error) bool {
		return errors.Is(err, domain.ErrTransactionConflict)
	}
	return &PostgresTxManager{db: db, retry: retry.New(cfg)}
}

// WithinTx implements TxManager
func (m *PostgresTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if database.TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tx")
	defer span.End()

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	result := m.retry.DoWithCallback(ctx, func(ctx context.Context) error {
		return mapTxError(m.db.WithTx(ctx, opts, fn))
	}, func(attempt int, err error, next time.Duration) {
		logger.Get().Debug("retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})

	span.SetAttributes(attribute.Int("tx.attempts", result.Attempts))
	if result.Err != nil {
		telemetry.SetSpanError(span, result.Err)
		return result.Err
	}
	return nil
}

// mapTxError turns serialization failures and deadlocks into ErrTransactionConflict
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	if database.IsRetryableTxError(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
	}
	return err
}
