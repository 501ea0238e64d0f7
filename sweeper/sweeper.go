// Package sweeper expires stale pending transfers in the background.
//
// A sweep moves PENDING transfers older than the configured horizon to
// EXPIRED and nothing else: it never touches balances, never runs inside a
// foreground request path, and leaves payment-request parents alone — payers
// may act on a request long after the transfer horizon. Expired transfers
// remain cancellable.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/cron"
	"github.com/CSWHenry/wallet/events"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 200
)

// Locker serializes sweeps across instances. Acquire returns false when
// another instance holds the lease; the sweep is then skipped, not queued.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Sweeper periodically expires stale pending transfers.
type Sweeper struct {
	store     wallet.Store
	clock     wallet.Clock
	logger    *zap.Logger
	publisher events.Publisher
	locker    Locker

	horizon   time.Duration
	interval  time.Duration
	schedule  cron.Schedule
	batchSize int
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the sweeper clock.
func WithClock(clock wallet.Clock) Option {
	return func(s *Sweeper) { s.clock = clock }
}

// WithLogger sets the sweeper logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Sweeper) { s.publisher = publisher }
}

// WithLocker enables cross-instance leader locking.
func WithLocker(locker Locker) Option {
	return func(s *Sweeper) { s.locker = locker }
}

// WithInterval sets the fixed delay between sweeps. Ignored when a cron
// schedule is set.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) { s.interval = interval }
}

// WithSchedule runs sweeps on a cron schedule instead of a fixed interval.
func WithSchedule(schedule cron.Schedule) Option {
	return func(s *Sweeper) { s.schedule = schedule }
}

// WithBatchSize caps how many transactions one sweep expires.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) { s.batchSize = n }
}

// New creates a sweeper expiring PENDING transfers older than horizon.
func New(store wallet.Store, horizon time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		clock:     wallet.SystemClock{},
		logger:    zap.NewNop(),
		publisher: events.NopPublisher{},
		horizon:   horizon,
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run sweeps until ctx is cancelled, then returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		delay, err := s.nextDelay()
		if err != nil {
			return err
		}

		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		expired, err := s.SweepOnce(ctx)
		if err != nil {
			// Sweeping is best-effort; the next tick retries.
			s.logger.Warn("sweep failed", zap.Error(err))
			continue
		}

		if expired > 0 {
			s.logger.Info("sweep expired stale transfers", zap.Int("count", expired))
		}
	}
}

// nextDelay measures the sleep against the injected clock, not the wall
// clock, so a pinned test clock behaves.
func (s *Sweeper) nextDelay() (time.Duration, error) {
	if s.schedule != nil {
		now := s.clock.Now()

		next, err := s.schedule.Next(now)
		if err != nil {
			return 0, fmt.Errorf("compute next sweep: %w", err)
		}

		return next.Sub(now), nil
	}

	return s.interval, nil
}

// SweepOnce runs a single sweep pass and returns how many transfers it
// expired. With a locker configured, a pass that loses the lease is a
// successful no-op.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	runID := uuid.New()

	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx, lockKey, s.interval)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lease: %w", err)
		}

		if !acquired {
			s.logger.Debug("sweep lease held elsewhere, skipping", zap.String("run_id", runID.String()))
			return 0, nil
		}

		defer func() {
			if err := s.locker.Release(ctx, lockKey); err != nil {
				s.logger.Warn("release sweep lease", zap.Error(err))
			}
		}()
	}

	now := s.clock.Now()
	cutoff := now.Add(-s.horizon)

	var expired []*wallet.Transaction

	err := s.store.WithinTx(ctx, func(tx wallet.Tx) error {
		stale, err := tx.PendingTransactionsBefore(ctx, cutoff, s.batchSize)
		if err != nil {
			return fmt.Errorf("list stale pending transactions: %w", err)
		}

		for _, transaction := range stale {
			if err := transaction.TransitionTo(wallet.StatusExpired, now); err != nil {
				return err
			}

			if err := tx.UpdateTransaction(ctx, transaction); err != nil {
				return fmt.Errorf("expire transaction %d: %w", transaction.ID, err)
			}

			expired = append(expired, transaction)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, transaction := range expired {
		event := events.FromTransaction(events.TypeTransactionExpired, transaction, now)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("expiry event not delivered",
				zap.Int64("transaction_id", transaction.ID),
				zap.Error(err))
		}
	}

	return len(expired), nil
}

const lockKey = "wallet:sweeper:lease"
