//go:build unit

package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/memstore"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	holder := store.AddAccount("alice")
	sub := store.AddSubAccount("ACC-1", "First Bank", decimal.NewFromInt(100), true, true, holder.ID)

	sentinel := errors.New("boom")

	err := store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		require.NoError(t, tx.SetBalance(context.Background(), sub.ID, decimal.Zero))

		if _, err := tx.InsertTransaction(context.Background(), &wallet.Transaction{
			Type:   wallet.TypeTransfer,
			Status: wallet.StatusPending,
			Amount: decimal.NewFromInt(5),
		}); err != nil {
			return err
		}

		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	err = store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		reloaded, err := tx.SubAccountByID(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(100)), "balance write must roll back")

		_, err = tx.TransactionByID(context.Background(), 1)
		assert.True(t, wallet.IsKind(err, wallet.KindNotFound), "insert must roll back")

		return nil
	})
	require.NoError(t, err)
}

func TestWithinTxBoundedWaitSurfacesConflict(t *testing.T) {
	t.Parallel()

	store := memstore.New(memstore.WithLockWait(30 * time.Millisecond))

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithinTx(context.Background(), func(wallet.Tx) error {
			close(holding)
			<-release

			return nil
		})
	}()

	<-holding

	err := store.WithinTx(context.Background(), func(wallet.Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, wallet.IsKind(err, wallet.KindConflict))

	close(release)
	require.NoError(t, <-done)
}

func TestTransactionIDsAreMonotonic(t *testing.T) {
	t.Parallel()

	store := memstore.New()

	var ids []int64

	err := store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		for i := 0; i < 3; i++ {
			id, err := tx.InsertTransaction(context.Background(), &wallet.Transaction{
				Type:   wallet.TypeTransfer,
				Status: wallet.StatusPending,
				Amount: decimal.NewFromInt(1),
			})
			if err != nil {
				return err
			}

			ids = append(ids, id)
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestAddSubAccountKeepsOnePrimaryPerHolder(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	holder := store.AddAccount("alice")

	first := store.AddSubAccount("ACC-1", "First Bank", decimal.Zero, true, true, holder.ID)
	second := store.AddSubAccount("ACC-2", "Second Bank", decimal.Zero, true, true, holder.ID)

	err := store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		primary, err := tx.PrimarySubAccount(context.Background(), holder.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, primary.ID)

		demoted, err := tx.SubAccountByID(context.Background(), first.ID)
		require.NoError(t, err)
		assert.False(t, demoted.Primary)

		return nil
	})
	require.NoError(t, err)
}

func TestPendingTransactionsBeforeFiltersTypeStatusAndAge(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	err := store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		stale := &wallet.Transaction{
			Type: wallet.TypeTransfer, Status: wallet.StatusPending,
			Amount: decimal.NewFromInt(1), CreatedAt: now.Add(-time.Hour),
		}
		fresh := &wallet.Transaction{
			Type: wallet.TypeTransfer, Status: wallet.StatusPending,
			Amount: decimal.NewFromInt(1), CreatedAt: now.Add(-time.Minute),
		}
		completed := &wallet.Transaction{
			Type: wallet.TypeTransfer, Status: wallet.StatusCompleted,
			Amount: decimal.NewFromInt(1), CreatedAt: now.Add(-time.Hour),
		}
		requestParent := &wallet.Transaction{
			Type: wallet.TypeRequest, Status: wallet.StatusPending,
			Amount: decimal.NewFromInt(1), CreatedAt: now.Add(-time.Hour),
		}

		for _, transaction := range []*wallet.Transaction{stale, fresh, completed, requestParent} {
			if _, err := tx.InsertTransaction(context.Background(), transaction); err != nil {
				return err
			}
		}

		due, err := tx.PendingTransactionsBefore(context.Background(), now.Add(-30*time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, stale.ID, due[0].ID)

		return nil
	})
	require.NoError(t, err)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	err := store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		for i := 0; i < 3; i++ {
			_, err := tx.InsertTransaction(context.Background(), &wallet.Transaction{
				Type: wallet.TypeTransfer, Status: wallet.StatusPending,
				Amount:   decimal.NewFromInt(1),
				SenderID: 7,
				CreatedAt: now.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				return err
			}
		}

		listed, err := tx.ListTransactions(context.Background(), wallet.TransactionFilter{AccountID: 7})
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, []int64{3, 2, 1}, []int64{listed[0].ID, listed[1].ID, listed[2].ID})

		return nil
	})
	require.NoError(t, err)
}
