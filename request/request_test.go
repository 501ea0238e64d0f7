//go:build unit

package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/memstore"
	"github.com/CSWHenry/wallet/request"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}

	return d
}

func TestCreatePaymentRequestFansOutChildren(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	requester := store.AddAccount("alice")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	engine := request.NewEngine(store, request.WithClock(fixedClock{at: now}))

	created, err := engine.CreatePaymentRequest(context.Background(), request.CreatePaymentRequestInput{
		RequesterID: requester.ID,
		Payers: []request.Payer{
			{Identifier: "b@x.com", Amount: dec("20.00")},
			{Identifier: "+255700000001", Amount: dec("30.00")},
		},
		TotalAmount: dec("50.00"),
		Note:        "dinner split",
	})
	require.NoError(t, err)

	assert.Equal(t, wallet.TypeRequest, created.Type)
	assert.Equal(t, wallet.StatusPending, created.Status)
	assert.True(t, created.Amount.Equal(dec("50.00")))

	err = store.WithinTx(context.Background(), func(tx wallet.Tx) error {
		children, err := tx.PaymentRequestsByTransaction(context.Background(), created.ID)
		require.NoError(t, err)
		require.Len(t, children, 2)

		assert.Equal(t, "b@x.com", children[0].PayerIdentifier)
		assert.True(t, children[0].Amount.Equal(dec("20.00")))
		assert.Equal(t, wallet.StatusPending, children[0].Status)
		assert.Nil(t, children[0].PayerID)

		assert.Equal(t, "+255700000001", children[1].PayerIdentifier)
		assert.True(t, children[1].Amount.Equal(dec("30.00")))

		return nil
	})
	require.NoError(t, err)
}

func TestCreatePaymentRequestWarnsOnDivergentTotal(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	requester := store.AddAccount("alice")

	core, logs := observer.New(zap.WarnLevel)
	engine := request.NewEngine(store, request.WithLogger(zap.New(core)))

	_, err := engine.CreatePaymentRequest(context.Background(), request.CreatePaymentRequestInput{
		RequesterID: requester.ID,
		Payers:      []request.Payer{{Identifier: "b@x.com", Amount: dec("20.00")}},
		TotalAmount: dec("50.00"),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("payment request child amounts diverge from total").All()
	require.Len(t, entries, 1)
}

func TestCreatePaymentRequestStrictTotalsRejectsDivergence(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	requester := store.AddAccount("alice")

	engine := request.NewEngine(store, request.WithStrictTotals())

	_, err := engine.CreatePaymentRequest(context.Background(), request.CreatePaymentRequestInput{
		RequesterID: requester.ID,
		Payers:      []request.Payer{{Identifier: "b@x.com", Amount: dec("20.00")}},
		TotalAmount: dec("50.00"),
	})
	require.Error(t, err)
	assert.True(t, wallet.IsKind(err, wallet.KindValidation))
}

func TestCreatePaymentRequestValidation(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	requester := store.AddAccount("alice")
	engine := request.NewEngine(store)

	cases := []struct {
		name  string
		input request.CreatePaymentRequestInput
	}{
		{
			name:  "no payers",
			input: request.CreatePaymentRequestInput{RequesterID: requester.ID, TotalAmount: dec("10.00")},
		},
		{
			name: "non-positive total",
			input: request.CreatePaymentRequestInput{
				RequesterID: requester.ID,
				Payers:      []request.Payer{{Identifier: "b@x.com", Amount: dec("10.00")}},
				TotalAmount: decimal.Zero,
			},
		},
		{
			name: "non-positive payer amount",
			input: request.CreatePaymentRequestInput{
				RequesterID: requester.ID,
				Payers:      []request.Payer{{Identifier: "b@x.com", Amount: dec("-1.00")}},
				TotalAmount: dec("10.00"),
			},
		},
		{
			name: "blank payer identifier",
			input: request.CreatePaymentRequestInput{
				RequesterID: requester.ID,
				Payers:      []request.Payer{{Identifier: "  ", Amount: dec("10.00")}},
				TotalAmount: dec("10.00"),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := engine.CreatePaymentRequest(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, wallet.IsKind(err, wallet.KindValidation))
		})
	}
}

func TestCreatePaymentRequestUnknownRequester(t *testing.T) {
	t.Parallel()

	engine := request.NewEngine(memstore.New())

	_, err := engine.CreatePaymentRequest(context.Background(), request.CreatePaymentRequestInput{
		RequesterID: 31337,
		Payers:      []request.Payer{{Identifier: "b@x.com", Amount: dec("10.00")}},
		TotalAmount: dec("10.00"),
	})
	require.Error(t, err)
	assert.True(t, wallet.IsKind(err, wallet.KindNotFound))
}
