//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/identity"
	"github.com/CSWHenry/wallet/ledger"
	"github.com/CSWHenry/wallet/postgres"
	"github.com/CSWHenry/wallet/request"
	"github.com/CSWHenry/wallet/sweeper"
	"github.com/CSWHenry/wallet/transfer"
)

// setupPostgresContainer starts a disposable PostgreSQL container and returns
// the connection string plus a teardown function.
func setupPostgresContainer(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connStr, func() {
		require.NoError(t, container.Terminate(ctx))
	}
}

// seeder inserts fixture rows through a raw pool, outside the Store's unit of
// work, the way a provisioning flow would.
type seeder struct {
	pool *pgxpool.Pool
}

func newSeeder(t *testing.T, dsn string) *seeder {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &seeder{pool: pool}
}

func (s *seeder) account(t *testing.T, holderName string) int64 {
	t.Helper()

	var id int64
	err := s.pool.QueryRow(context.Background(),
		`INSERT INTO accounts (holder_name) VALUES ($1) RETURNING id`, holderName).Scan(&id)
	require.NoError(t, err)

	return id
}

func (s *seeder) subAccount(t *testing.T, number, bank, balance string, primary bool, holderIDs ...int64) int64 {
	t.Helper()

	var id int64
	err := s.pool.QueryRow(context.Background(),
		`INSERT INTO sub_accounts (number, bank_name, balance, is_primary, is_verified)
		 VALUES ($1, $2, $3::numeric, $4, TRUE) RETURNING id`,
		number, bank, balance, primary).Scan(&id)
	require.NoError(t, err)

	for _, holderID := range holderIDs {
		_, err := s.pool.Exec(context.Background(),
			`INSERT INTO sub_account_holders (sub_account_id, account_id) VALUES ($1, $2)`, id, holderID)
		require.NoError(t, err)
	}

	return id
}

func (s *seeder) email(t *testing.T, address string, accountID int64) {
	t.Helper()

	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO emails (address, account_id, is_verified) VALUES ($1, $2, TRUE)`, address, accountID)
	require.NoError(t, err)
}

func (s *seeder) agePending(t *testing.T, transactionID int64, age time.Duration) {
	t.Helper()

	_, err := s.pool.Exec(context.Background(),
		`UPDATE transactions SET created_at = now() - make_interval(secs => $2) WHERE id = $1`,
		transactionID, age.Seconds())
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func balanceOf(t *testing.T, store *postgres.Store, subAccountID int64) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal

	err := store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		sub, err := tx.SubAccountByID(context.Background(), subAccountID)
		if err != nil {
			return err
		}

		balance = sub.Balance

		return nil
	})
	require.NoError(t, err)

	return balance
}

func TestIntegration_Postgres_ConnectEnsuresSchema(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	store, err := postgres.Connect(ctx, dsn, nil)
	require.NoError(t, err, "Connect() should succeed against running container")
	t.Cleanup(store.Close)

	// Connecting twice must be safe: the schema is idempotent.
	second, err := postgres.Connect(ctx, dsn, nil)
	require.NoError(t, err)
	second.Close()

	err = store.WithinTx(ctx, func(tx wallet.Tx) error {
		_, err := tx.TransactionByID(ctx, 1)
		return err
	})
	require.Error(t, err)
	assert.True(t, wallet.IsKind(err, wallet.KindNotFound))
}

func TestIntegration_Postgres_TransferLifecycle(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	store, err := postgres.Connect(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	seed := newSeeder(t, dsn)
	alice := seed.account(t, "alice")
	bob := seed.account(t, "bob")
	aliceSub := seed.subAccount(t, "ACC-1", "First Bank", "100.00", true, alice)
	bobSub := seed.subAccount(t, "ACC-2", "Second Bank", "50.00", true, bob)
	seed.email(t, "b@x.com", bob)

	engine := transfer.NewEngine(store, identity.NewDirectoryResolver(), ledger.New(nil))

	created, err := engine.CreateTransfer(ctx, transfer.CreateTransferInput{
		SenderID:            alice,
		SenderSubAccount:    "ACC-1",
		RecipientIdentifier: "b@x.com",
		Amount:              dec("30.00"),
		Note:                "lunch",
	})
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusCompleted, created.Status)
	require.NotNil(t, created.RecipientSubAccountID)
	assert.Equal(t, bobSub, *created.RecipientSubAccountID)

	assert.True(t, balanceOf(t, store, aliceSub).Equal(dec("70.00")))
	assert.True(t, balanceOf(t, store, bobSub).Equal(dec("80.00")))

	cancelled, err := engine.Cancel(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, wallet.StatusCancelled, cancelled.Status)

	assert.True(t, balanceOf(t, store, aliceSub).Equal(dec("100.00")))
	assert.True(t, balanceOf(t, store, bobSub).Equal(dec("50.00")))
}

func TestIntegration_Postgres_InsufficientFundsLeavesNoTrace(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	store, err := postgres.Connect(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	seed := newSeeder(t, dsn)
	alice := seed.account(t, "alice")
	bob := seed.account(t, "bob")
	aliceSub := seed.subAccount(t, "ACC-1", "First Bank", "20.00", true, alice)
	seed.subAccount(t, "ACC-2", "Second Bank", "50.00", true, bob)
	seed.email(t, "b@x.com", bob)

	engine := transfer.NewEngine(store, identity.NewDirectoryResolver(), ledger.New(nil))

	_, err = engine.CreateTransfer(ctx, transfer.CreateTransferInput{
		SenderID:            alice,
		SenderSubAccount:    "ACC-1",
		RecipientIdentifier: "b@x.com",
		Amount:              dec("20.01"),
	})
	require.Error(t, err)
	assert.True(t, wallet.IsKind(err, wallet.KindInsufficientFunds))

	assert.True(t, balanceOf(t, store, aliceSub).Equal(dec("20.00")))

	err = store.WithinTx(ctx, func(tx wallet.Tx) error {
		listed, err := tx.ListTransactions(ctx, wallet.TransactionFilter{AccountID: alice})
		require.NoError(t, err)
		assert.Empty(t, listed)

		return nil
	})
	require.NoError(t, err)
}

func TestIntegration_Postgres_RowLockContentionSurfacesConflict(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	store, err := postgres.Connect(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	seed := newSeeder(t, dsn)
	alice := seed.account(t, "alice")
	sub := seed.subAccount(t, "ACC-1", "First Bank", "100.00", true, alice)

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithinTx(ctx, func(tx wallet.Tx) error {
			if _, err := tx.LockSubAccounts(ctx, sub); err != nil {
				return err
			}

			close(holding)
			<-release

			return nil
		})
	}()

	<-holding

	// NOWAIT means the second locker fails immediately instead of queueing.
	err = store.WithinTx(ctx, func(tx wallet.Tx) error {
		_, err := tx.LockSubAccounts(ctx, sub)
		return err
	})
	require.Error(t, err)
	assert.True(t, wallet.IsKind(err, wallet.KindConflict))

	close(release)
	require.NoError(t, <-done)
}

func TestIntegration_Postgres_SweepExpiresStalePending(t *testing.T) {
	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	store, err := postgres.Connect(ctx, dsn, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	seed := newSeeder(t, dsn)
	alice := seed.account(t, "alice")
	seed.subAccount(t, "ACC-1", "First Bank", "100.00", true, alice)

	engine := transfer.NewEngine(store, identity.NewDirectoryResolver(), ledger.New(nil))

	created, err := engine.CreateTransfer(ctx, transfer.CreateTransferInput{
		SenderID:            alice,
		SenderSubAccount:    "ACC-1",
		RecipientIdentifier: "nobody@x.com",
		Amount:              dec("10.00"),
	})
	require.NoError(t, err)
	require.Equal(t, wallet.StatusPending, created.Status)

	requestEngine := request.NewEngine(store)
	parent, err := requestEngine.CreatePaymentRequest(ctx, request.CreatePaymentRequestInput{
		RequesterID: alice,
		Payers:      []request.Payer{{Identifier: "b@x.com", Amount: dec("10.00")}},
		TotalAmount: dec("10.00"),
	})
	require.NoError(t, err)

	seed.agePending(t, created.ID, 20*time.Minute)
	seed.agePending(t, parent.ID, 20*time.Minute)

	sweep := sweeper.New(store, 15*time.Minute)
	expired, err := sweep.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	err = store.WithinTx(ctx, func(tx wallet.Tx) error {
		loaded, err := tx.TransactionByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, wallet.StatusExpired, loaded.Status)

		// The aged request parent is not a transfer and must stay PENDING.
		loadedParent, err := tx.TransactionByID(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, wallet.StatusPending, loadedParent.Status)

		return nil
	})
	require.NoError(t, err)
}
