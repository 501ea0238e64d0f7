// Package events emits transaction lifecycle events for downstream
// consumers. This is an infrastructure stream (reconciliation, analytics),
// not user notification delivery.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	wallet "github.com/CSWHenry/wallet"
)

// EventType names a lifecycle transition worth announcing.
type EventType string

const (
	// TypeTransferCompleted fires when a transfer's debit and credit commit.
	TypeTransferCompleted EventType = "transfer.completed"
	// TypeTransferPending fires when a transfer is stored awaiting resolution.
	TypeTransferPending EventType = "transfer.pending"
	// TypeTransactionCancelled fires when a transaction is cancelled.
	TypeTransactionCancelled EventType = "transaction.cancelled"
	// TypeTransactionExpired fires when the sweep expires a pending transfer.
	TypeTransactionExpired EventType = "transaction.expired"
	// TypeRequestCreated fires when a payment request fan-out is stored.
	TypeRequestCreated EventType = "request.created"
)

// Event is the envelope published for one lifecycle transition. Amount is the
// decimal string representation to keep the payload precision-exact.
type Event struct {
	ID            uuid.UUID                `json:"id"`
	Type          EventType                `json:"type"`
	TransactionID int64                    `json:"transactionId"`
	Status        wallet.TransactionStatus `json:"status"`
	Amount        string                   `json:"amount"`
	OccurredAt    time.Time                `json:"occurredAt"`
}

// FromTransaction builds the envelope for a transaction transition.
func FromTransaction(eventType EventType, transaction *wallet.Transaction, at time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		TransactionID: transaction.ID,
		Status:        transaction.Status,
		Amount:        transaction.Amount.String(),
		OccurredAt:    at,
	}
}

// Publisher delivers events to the stream. Publish failures must not fail the
// money movement that produced them; engines publish only after commit and
// log delivery errors.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. The default when no stream is configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }
