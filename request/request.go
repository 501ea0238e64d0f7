// Package request creates payment requests: one parent transaction of type
// REQUEST fanned out into independently addressable child obligations, one
// per payer identifier.
//
// Creating a request never touches balances. Money moves only when a payer
// later responds, which settles the child (and eventually the parent) through
// the transfer path; the shapes here leave room for that closure.
package request

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/events"
)

// Engine creates payment requests.
type Engine struct {
	store     wallet.Store
	clock     wallet.Clock
	logger    *zap.Logger
	publisher events.Publisher

	// strictTotals upgrades a child-sum/total divergence from a logged
	// warning to a validation error.
	strictTotals bool
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

// WithStrictTotals rejects requests whose child amounts do not sum to the
// total instead of only warning.
func WithStrictTotals() Option {
	return func(e *Engine) { e.strictTotals = true }
}

// NewEngine creates a payment request engine.
func NewEngine(store wallet.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		clock:     wallet.SystemClock{},
		logger:    zap.NewNop(),
		publisher: events.NopPublisher{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Payer is one payer entry in a request fan-out.
type Payer struct {
	Identifier string
	Amount     decimal.Decimal
}

// CreatePaymentRequestInput carries a request fan-out.
type CreatePaymentRequestInput struct {
	RequesterID int64
	Payers      []Payer
	TotalAmount decimal.Decimal
	Note        string
}

func (in CreatePaymentRequestInput) validate() error {
	if in.RequesterID <= 0 {
		return wallet.NewValidationError("requesterId", "requester account id is required")
	}

	if len(in.Payers) == 0 {
		return wallet.NewValidationError("payers", "at least one payer is required")
	}

	if !in.TotalAmount.IsPositive() {
		return wallet.NewValidationError("totalAmount", "total amount must be greater than zero")
	}

	for i, payer := range in.Payers {
		if strings.TrimSpace(payer.Identifier) == "" {
			return wallet.NewValidationError(fmt.Sprintf("payers[%d].identifier", i), "payer identifier is required")
		}

		if !payer.Amount.IsPositive() {
			return wallet.NewValidationError(fmt.Sprintf("payers[%d].amount", i), "payer amount must be greater than zero")
		}
	}

	return nil
}

func (in CreatePaymentRequestInput) payerSum() decimal.Decimal {
	sum := decimal.Zero
	for _, payer := range in.Payers {
		sum = sum.Add(payer.Amount)
	}

	return sum
}

// CreatePaymentRequest stores the parent transaction (type REQUEST, status
// PENDING, amount = total) and one PENDING child per payer. A divergence
// between the child sum and the total is logged as a warning, or rejected
// when strict totals are enabled. No balance moves.
func (e *Engine) CreatePaymentRequest(ctx context.Context, in CreatePaymentRequestInput) (*wallet.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	sum := in.payerSum()
	if !sum.Equal(in.TotalAmount) {
		if e.strictTotals {
			return nil, wallet.NewValidationError("payers",
				fmt.Sprintf("payer amounts sum to %s, total is %s", sum, in.TotalAmount))
		}

		e.logger.Warn("payment request child amounts diverge from total",
			zap.Int64("requester_id", in.RequesterID),
			zap.String("payer_sum", sum.String()),
			zap.String("total_amount", in.TotalAmount.String()))
	}

	var transaction *wallet.Transaction

	err := e.store.WithinTx(ctx, func(tx wallet.Tx) error {
		if _, err := tx.AccountByID(ctx, in.RequesterID); err != nil {
			return err
		}

		now := e.clock.Now()
		transaction = &wallet.Transaction{
			Type:      wallet.TypeRequest,
			Status:    wallet.StatusPending,
			Amount:    in.TotalAmount,
			Note:      in.Note,
			SenderID:  in.RequesterID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := tx.InsertTransaction(ctx, transaction); err != nil {
			return fmt.Errorf("insert request transaction: %w", err)
		}

		for _, payer := range in.Payers {
			child := &wallet.PaymentRequest{
				TransactionID:   transaction.ID,
				RequesterID:     in.RequesterID,
				PayerIdentifier: payer.Identifier,
				Amount:          payer.Amount,
				Status:          wallet.StatusPending,
				CreatedAt:       now,
			}

			if _, err := tx.InsertPaymentRequest(ctx, child); err != nil {
				return fmt.Errorf("insert payment request child: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("payment request created",
		zap.Int64("transaction_id", transaction.ID),
		zap.Int("payers", len(in.Payers)),
		zap.String("total_amount", in.TotalAmount.String()))

	event := events.FromTransaction(events.TypeRequestCreated, transaction, e.clock.Now())
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("lifecycle event not delivered",
			zap.Int64("transaction_id", transaction.ID),
			zap.Error(err))
	}

	return transaction, nil
}
