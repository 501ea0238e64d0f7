// Package ledger mutates sub-account balances. It is the only code path
// allowed to write a balance.
//
// Every read-modify-write acquires exclusive access to the touched
// sub-accounts through Tx.LockSubAccounts, which orders acquisition by
// ascending sub-account id; two-account transfers therefore cannot deadlock
// against concurrent opposite-direction transfers. Atomicity comes from the
// enclosing Store.WithinTx: either every adjustment in a unit of work
// commits, or none does.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
)

// Ledger applies balance adjustments inside a caller-owned unit of work.
type Ledger struct {
	logger *zap.Logger
}

// New creates a Ledger. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{logger: logger}
}

// Adjust applies a signed delta to exactly one sub-account balance. When
// enforceFloor is true a delta that would drive the balance negative is
// rejected with an insufficient-funds error before anything is written.
// Returns the resulting balance.
func (l *Ledger) Adjust(ctx context.Context, tx wallet.Tx, subAccountID int64, delta decimal.Decimal, enforceFloor bool) (decimal.Decimal, error) {
	locked, err := tx.LockSubAccounts(ctx, subAccountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock sub-account %d: %w", subAccountID, err)
	}

	sub := locked[subAccountID]

	next := sub.Balance.Add(delta)
	if enforceFloor && next.IsNegative() {
		return decimal.Zero, wallet.NewInsufficientFundsError(
			fmt.Sprintf("sub-account %s holds %s, adjustment of %s would overdraw it",
				sub.Number, sub.Balance, delta))
	}

	if err := tx.SetBalance(ctx, subAccountID, next); err != nil {
		return decimal.Zero, fmt.Errorf("write balance for sub-account %d: %w", subAccountID, err)
	}

	l.logger.Debug("balance adjusted",
		zap.Int64("sub_account_id", subAccountID),
		zap.String("delta", delta.String()),
		zap.String("balance", next.String()))

	return next, nil
}

// TransferAtomic applies -amount to from and +amount to to as one indivisible
// unit. Both sub-accounts are locked up front in ascending id order, the
// sender's floor is always enforced, and the two writes commit or roll back
// together with the rest of the enclosing unit of work (double-entry: the
// debit exactly cancels the credit).
func (l *Ledger) TransferAtomic(ctx context.Context, tx wallet.Tx, fromID, toID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return wallet.NewValidationError("amount", "transfer amount must be greater than zero")
	}

	if fromID == toID {
		return wallet.NewValidationError("to", "cannot transfer a sub-account to itself")
	}

	locked, err := tx.LockSubAccounts(ctx, fromID, toID)
	if err != nil {
		return fmt.Errorf("lock sub-accounts %d and %d: %w", fromID, toID, err)
	}

	from := locked[fromID]
	to := locked[toID]

	debited := from.Balance.Sub(amount)
	if debited.IsNegative() {
		return wallet.NewInsufficientFundsError(
			fmt.Sprintf("sub-account %s holds %s, cannot send %s", from.Number, from.Balance, amount))
	}

	if err := tx.SetBalance(ctx, fromID, debited); err != nil {
		return fmt.Errorf("debit sub-account %d: %w", fromID, err)
	}

	if err := tx.SetBalance(ctx, toID, to.Balance.Add(amount)); err != nil {
		return fmt.Errorf("credit sub-account %d: %w", toID, err)
	}

	l.logger.Debug("atomic transfer applied",
		zap.Int64("from_sub_account_id", fromID),
		zap.Int64("to_sub_account_id", toID),
		zap.String("amount", amount.String()))

	return nil
}
