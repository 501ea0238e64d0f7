// Package postgres implements wallet.Store on postgres via pgx. Row locks
// are taken with FOR UPDATE NOWAIT in ascending id order; lock contention and
// serialization failures surface as KindConflict domain errors for the caller
// to retry.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
)

var _ wallet.Store = (*Store)(nil)

// Store is a postgres-backed wallet.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool against databaseURL, verifies connectivity, and
// ensures the schema exists.
func Connect(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("postgres store connected")

	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WithinTx runs fn inside one database transaction, rolling back on error.
func (s *Store) WithinTx(ctx context.Context, fn func(tx wallet.Tx) error) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: dbTx}); err != nil {
		return translateError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return translateError(fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// Postgres error codes that mean "retry me": lock_not_available (NOWAIT),
// serialization_failure, deadlock_detected.
var retryableCodes = map[string]bool{
	"55P03": true,
	"40001": true,
	"40P01": true,
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && retryableCodes[pgErr.Code] {
		return wallet.NewConflictError("row lock unavailable: " + pgErr.Message)
	}

	return err
}
