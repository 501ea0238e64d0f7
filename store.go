package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the unit-of-work boundary every engine operates through. WithinTx
// runs fn inside one atomic transaction: if fn returns an error every write
// performed so far is rolled back and the error is returned verbatim. Partial
// application is never observable.
//
// Implementations must bound lock waits and surface exhaustion as a
// KindConflict domain error; retrying is the caller's responsibility.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// TransactionFilter narrows ListTransactions. Nil fields are ignored. The
// account matches as either sender or resolved recipient.
type TransactionFilter struct {
	AccountID int64
	From      *time.Time
	To        *time.Time
	Type      *TransactionType
	Status    *TransactionStatus
}

// Tx exposes the storage operations available inside one unit of work.
//
// Lookup methods return a KindNotFound domain error when the entity is
// missing, except the Resolve methods, which return (nil, nil): an unresolved
// identifier is a valid business outcome, not a failure.
//
// LockSubAccounts acquires exclusive access to every listed sub-account for
// the remainder of the transaction, always in ascending id order regardless
// of argument order, so concurrent opposite-direction transfers cannot
// deadlock.
type Tx interface {
	// Accounts and sub-accounts.
	AccountByID(ctx context.Context, id int64) (*Account, error)
	SubAccountByNumber(ctx context.Context, number string) (*SubAccount, error)
	SubAccountByID(ctx context.Context, id int64) (*SubAccount, error)
	PrimarySubAccount(ctx context.Context, holderID int64) (*SubAccount, error)
	LockSubAccounts(ctx context.Context, ids ...int64) (map[int64]*SubAccount, error)
	SetBalance(ctx context.Context, subAccountID int64, balance decimal.Decimal) error

	// Verified-contact directory.
	ResolveVerifiedEmail(ctx context.Context, address string) (*Account, error)
	ResolveVerifiedPhone(ctx context.Context, number string) (*Account, error)

	// Transactions. InsertTransaction assigns a monotonically increasing id.
	InsertTransaction(ctx context.Context, transaction *Transaction) (int64, error)
	TransactionByID(ctx context.Context, id int64) (*Transaction, error)
	UpdateTransaction(ctx context.Context, transaction *Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)
	// PendingTransactionsBefore returns PENDING transfers (type TRANSFER only;
	// request parents never expire) created strictly before cutoff, oldest
	// first, capped at limit.
	PendingTransactionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Transaction, error)

	// Payment requests.
	InsertPaymentRequest(ctx context.Context, request *PaymentRequest) (int64, error)
	PaymentRequestsByTransaction(ctx context.Context, transactionID int64) ([]*PaymentRequest, error)
	UpdatePaymentRequest(ctx context.Context, request *PaymentRequest) error
}
