// Package transfer orchestrates peer-to-peer transfers and their reversal.
//
// A transfer resolves its recipient, moves balances atomically when
// resolution succeeds, and records the transaction either COMPLETED (balances
// moved) or PENDING (recipient unknown, nothing moved). Cancellation reverses
// a COMPLETED transfer's balance effect exactly and is idempotent.
package transfer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/events"
	"github.com/CSWHenry/wallet/identity"
	"github.com/CSWHenry/wallet/ledger"
)

// Engine creates and cancels transfers. All persistence goes through one
// Store unit of work per operation; lifecycle events are published only after
// that unit of work commits.
type Engine struct {
	store     wallet.Store
	resolver  identity.Resolver
	ledger    *ledger.Ledger
	clock     wallet.Clock
	logger    *zap.Logger
	publisher events.Publisher
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(clock wallet.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

// NewEngine creates a transfer engine.
func NewEngine(store wallet.Store, resolver identity.Resolver, ldgr *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		resolver:  resolver,
		ledger:    ldgr,
		clock:     wallet.SystemClock{},
		logger:    zap.NewNop(),
		publisher: events.NopPublisher{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateTransferInput carries everything needed to initiate a transfer.
type CreateTransferInput struct {
	SenderID            int64
	SenderSubAccount    string
	RecipientIdentifier string
	Amount              decimal.Decimal
	Note                string
}

func (in CreateTransferInput) validate() error {
	if in.SenderID <= 0 {
		return wallet.NewValidationError("senderId", "sender account id is required")
	}

	if strings.TrimSpace(in.SenderSubAccount) == "" {
		return wallet.NewValidationError("senderSubAccount", "sender sub-account number is required")
	}

	if strings.TrimSpace(in.RecipientIdentifier) == "" {
		return wallet.NewValidationError("recipientIdentifier", "recipient identifier is required")
	}

	if !in.Amount.IsPositive() {
		return wallet.NewValidationError("amount", "amount must be greater than zero")
	}

	return nil
}

// CreateTransfer resolves the recipient and either completes the transfer
// (balances moved atomically, double-entry equal) or stores it PENDING with
// no balance movement. An insufficient sender balance aborts the whole
// operation: no record is created and nothing moves.
func (e *Engine) CreateTransfer(ctx context.Context, in CreateTransferInput) (*wallet.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		transaction *wallet.Transaction
		eventType   events.EventType
	)

	err := e.store.WithinTx(ctx, func(tx wallet.Tx) error {
		if _, err := tx.AccountByID(ctx, in.SenderID); err != nil {
			return err
		}

		senderSub, err := tx.SubAccountByNumber(ctx, in.SenderSubAccount)
		if err != nil {
			return err
		}

		if !senderSub.HeldBy(in.SenderID) {
			return wallet.NewValidationError("senderSubAccount", "sender does not hold this sub-account")
		}

		recipient, err := e.resolver.Resolve(ctx, tx, in.RecipientIdentifier)
		if err != nil {
			return fmt.Errorf("resolve recipient: %w", err)
		}

		now := e.clock.Now()
		transaction = &wallet.Transaction{
			Type:                wallet.TypeTransfer,
			Status:              wallet.StatusPending,
			Amount:              in.Amount,
			Note:                in.Note,
			SenderID:            in.SenderID,
			SenderSubAccount:    senderSub.Number,
			RecipientIdentifier: in.RecipientIdentifier,
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		if recipient == nil {
			// Unresolved is a valid outcome: store PENDING, move nothing.
			eventType = events.TypeTransferPending

			if _, err := tx.InsertTransaction(ctx, transaction); err != nil {
				return fmt.Errorf("insert pending transaction: %w", err)
			}

			return nil
		}

		recipientSub, err := tx.PrimarySubAccount(ctx, recipient.ID)
		if err != nil {
			return err
		}

		if err := e.ledger.TransferAtomic(ctx, tx, senderSub.ID, recipientSub.ID, in.Amount); err != nil {
			return err
		}

		transaction.RecipientID = &recipient.ID
		transaction.RecipientSubAccountID = &recipientSub.ID

		if err := transaction.TransitionTo(wallet.StatusCompleted, now); err != nil {
			return err
		}

		eventType = events.TypeTransferCompleted

		if _, err := tx.InsertTransaction(ctx, transaction); err != nil {
			return fmt.Errorf("insert completed transaction: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("transfer created",
		zap.Int64("transaction_id", transaction.ID),
		zap.String("status", string(transaction.Status)),
		zap.String("amount", transaction.Amount.String()))

	e.publish(ctx, eventType, transaction)

	return transaction, nil
}

// publish emits a lifecycle event after commit. Delivery failures are logged,
// never surfaced: the money movement already happened.
func (e *Engine) publish(ctx context.Context, eventType events.EventType, transaction *wallet.Transaction) {
	event := events.FromTransaction(eventType, transaction, e.clock.Now())
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("lifecycle event not delivered",
			zap.Int64("transaction_id", transaction.ID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
