package transfer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/events"
)

// Cancel cancels a transaction. Idempotent: cancelling an already CANCELLED
// transaction is a successful no-op.
//
// State machine:
//   - PENDING or EXPIRED: pure status flip, no balance ever moved.
//   - COMPLETED transfer: the original balance movement is replayed in
//     reverse (debit the recipient sub-account credited at completion time,
//     credit the sender's original sub-account) and only then the status
//     flips. If the recipient can no longer cover the debit, nothing changes
//     and the transaction stays COMPLETED.
//   - REQUEST parents flip status only and drag their still-PENDING children
//     along; request creation never moved balances.
func (e *Engine) Cancel(ctx context.Context, transactionID int64) (*wallet.Transaction, error) {
	var (
		transaction *wallet.Transaction
		changed     bool
	)

	err := e.store.WithinTx(ctx, func(tx wallet.Tx) error {
		loaded, err := tx.TransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}

		transaction = loaded

		if transaction.Status == wallet.StatusCancelled {
			return nil
		}

		now := e.clock.Now()

		if transaction.Status == wallet.StatusCompleted && transaction.Type == wallet.TypeTransfer {
			if err := e.reverseBalances(ctx, tx, transaction); err != nil {
				return err
			}
		}

		if err := transaction.TransitionTo(wallet.StatusCancelled, now); err != nil {
			return err
		}

		if err := tx.UpdateTransaction(ctx, transaction); err != nil {
			return fmt.Errorf("update transaction %d: %w", transaction.ID, err)
		}

		if transaction.Type == wallet.TypeRequest {
			if err := cancelPendingChildren(ctx, tx, transaction.ID); err != nil {
				return err
			}
		}

		changed = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.logger.Info("transaction cancelled", zap.Int64("transaction_id", transaction.ID))
		e.publish(ctx, events.TypeTransactionCancelled, transaction)
	}

	return transaction, nil
}

// reverseBalances undoes a completed transfer's movement inside the current
// unit of work. The sub-account credited at completion time is preferred; the
// identifier is re-resolved only for records that predate capture.
func (e *Engine) reverseBalances(ctx context.Context, tx wallet.Tx, transaction *wallet.Transaction) error {
	senderSub, err := tx.SubAccountByNumber(ctx, transaction.SenderSubAccount)
	if err != nil {
		return err
	}

	recipientSubID, err := e.recipientSubAccountID(ctx, tx, transaction)
	if err != nil {
		return err
	}

	if err := e.ledger.TransferAtomic(ctx, tx, recipientSubID, senderSub.ID, transaction.Amount); err != nil {
		return err
	}

	return nil
}

func (e *Engine) recipientSubAccountID(ctx context.Context, tx wallet.Tx, transaction *wallet.Transaction) (int64, error) {
	if transaction.RecipientSubAccountID != nil {
		return *transaction.RecipientSubAccountID, nil
	}

	recipient, err := e.resolver.Resolve(ctx, tx, transaction.RecipientIdentifier)
	if err != nil {
		return 0, fmt.Errorf("re-resolve recipient: %w", err)
	}

	if recipient == nil {
		return 0, wallet.NewNotFoundError("recipient",
			"completed transfer has no captured recipient sub-account and its identifier no longer resolves")
	}

	recipientSub, err := tx.PrimarySubAccount(ctx, recipient.ID)
	if err != nil {
		return 0, err
	}

	return recipientSub.ID, nil
}

func cancelPendingChildren(ctx context.Context, tx wallet.Tx, transactionID int64) error {
	children, err := tx.PaymentRequestsByTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("load payment requests for transaction %d: %w", transactionID, err)
	}

	for _, child := range children {
		if child.Status != wallet.StatusPending {
			continue
		}

		child.Status = wallet.StatusCancelled

		if err := tx.UpdatePaymentRequest(ctx, child); err != nil {
			return fmt.Errorf("cancel payment request %d: %w", child.ID, err)
		}
	}

	return nil
}
