//go:build unit

package wallet

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"completed to cancelled", StatusCompleted, StatusCancelled, true},
		{"expired to cancelled", StatusExpired, StatusCancelled, true},
		{"completed to pending", StatusCompleted, StatusPending, false},
		{"cancelled to pending", StatusCancelled, StatusPending, false},
		{"cancelled to completed", StatusCancelled, StatusCompleted, false},
		{"expired to completed", StatusExpired, StatusCompleted, false},
		{"completed to completed", StatusCompleted, StatusCompleted, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestTransitionToStampsCompletedAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := &Transaction{
		Type:   TypeTransfer,
		Status: StatusPending,
		Amount: decimal.NewFromInt(10),
	}

	require.NoError(t, tx.TransitionTo(StatusCompleted, now))
	assert.Equal(t, StatusCompleted, tx.Status)
	assert.Equal(t, now, tx.UpdatedAt)
	require.NotNil(t, tx.CompletedAt)
	assert.Equal(t, now, *tx.CompletedAt)
}

func TestTransitionToRejectsInvalidMove(t *testing.T) {
	t.Parallel()

	tx := &Transaction{Status: StatusCancelled}

	err := tx.TransitionTo(StatusCompleted, time.Now().UTC())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindInvalidStateTransition))
	assert.Equal(t, StatusCancelled, tx.Status)
}

func TestTransitionToRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	tx := &Transaction{Status: StatusPending}

	err := tx.TransitionTo(TransactionStatus("SETTLED"), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))
}

func TestSubAccountHeldBy(t *testing.T) {
	t.Parallel()

	sub := &SubAccount{HolderIDs: []int64{3, 9}}

	assert.True(t, sub.HeldBy(3))
	assert.True(t, sub.HeldBy(9))
	assert.False(t, sub.HeldBy(4))
}

func TestSystemClockReturnsUTC(t *testing.T) {
	t.Parallel()

	now := SystemClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
}
