package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies what kind of money movement a transaction
// represents.
type TransactionType string

const (
	// TypeTransfer is a direct peer-to-peer transfer.
	TypeTransfer TransactionType = "TRANSFER"
	// TypeRequest is a payment request fanned out to one or more payers.
	TypeRequest TransactionType = "REQUEST"
)

// Valid reports whether the type is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeTransfer, TypeRequest:
		return true
	default:
		return false
	}
}

// TransactionStatus represents the lifecycle state of a transaction.
//
// Transitions are monotonic and one-directional:
//
//	PENDING   → COMPLETED | CANCELLED | EXPIRED
//	COMPLETED → CANCELLED   (reversal)
//	EXPIRED   → CANCELLED
//	CANCELLED → (terminal)
//
// Once a transaction leaves PENDING it can never return to it.
type TransactionStatus string

const (
	// StatusPending marks a transaction awaiting recipient resolution or
	// payer action; no balance has moved.
	StatusPending TransactionStatus = "PENDING"
	// StatusCompleted marks a transaction whose debit and credit were both
	// applied atomically.
	StatusCompleted TransactionStatus = "COMPLETED"
	// StatusCancelled marks a transaction cancelled by its sender; if it was
	// COMPLETED its balance effect has been exactly reversed. Terminal.
	StatusCancelled TransactionStatus = "CANCELLED"
	// StatusExpired marks a PENDING transaction that outlived the configured
	// horizon without resolving. Still cancellable.
	StatusExpired TransactionStatus = "EXPIRED"
)

// Valid reports whether the status is a known lifecycle state.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCancelled
}

// CanTransitionTo reports whether the state machine permits moving from s to
// next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusCompleted || next == StatusCancelled || next == StatusExpired
	case StatusCompleted:
		return next == StatusCancelled
	case StatusExpired:
		return next == StatusCancelled
	case StatusCancelled:
		return false
	default:
		return false
	}
}

// Account is an account holder. Balances live on sub-accounts; an account is
// never deleted, only its transactions record its history.
type Account struct {
	ID         int64
	HolderName string
	CreatedAt  time.Time
}

// SubAccount is a bank-number-addressed balance bucket. A sub-account may be
// co-owned by several holders; each holder has exactly one primary
// sub-account, which is the default credit target for incoming transfers.
type SubAccount struct {
	ID        int64
	Number    string
	BankName  string
	Balance   decimal.Decimal
	Primary   bool
	Verified  bool
	HolderIDs []int64
	CreatedAt time.Time
}

// HeldBy reports whether the given holder co-owns this sub-account.
func (s *SubAccount) HeldBy(holderID int64) bool {
	for _, id := range s.HolderIDs {
		if id == holderID {
			return true
		}
	}

	return false
}

// Transaction represents one money movement attempt. Amount is strictly
// positive; direction is carried by the sender and recipient references.
//
// RecipientID and RecipientSubAccountID stay nil until the recipient
// identifier resolves. RecipientSubAccountID is captured at completion time
// so a later reversal replays against the exact sub-account that was
// credited, immune to the identifier changing owners in between.
type Transaction struct {
	ID                    int64
	Type                  TransactionType
	Status                TransactionStatus
	Amount                decimal.Decimal
	Note                  string
	SenderID              int64
	SenderSubAccount      string
	RecipientIdentifier   string
	RecipientID           *int64
	RecipientSubAccountID *int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

// TransitionTo moves the transaction to next at the given instant, enforcing
// the status state machine. Reaching COMPLETED stamps CompletedAt.
func (t *Transaction) TransitionTo(next TransactionStatus, at time.Time) error {
	if !next.Valid() {
		return NewValidationError("status", "unknown status "+string(next))
	}

	if !t.Status.CanTransitionTo(next) {
		return NewInvalidStateTransitionError(
			"cannot transition transaction from " + string(t.Status) + " to " + string(next))
	}

	t.Status = next
	t.UpdatedAt = at

	if next == StatusCompleted {
		completed := at
		t.CompletedAt = &completed
	}

	return nil
}

// PaymentRequest is a child obligation under a parent Transaction of type
// REQUEST. PayerID stays nil until the payer acts; each child carries its own
// status so payers settle independently.
type PaymentRequest struct {
	ID              int64
	TransactionID   int64
	RequesterID     int64
	PayerIdentifier string
	PayerID         *int64
	Amount          decimal.Decimal
	Status          TransactionStatus
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Clock supplies the current instant. Engines never call time.Now directly so
// tests can pin timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock. All timestamps are UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
