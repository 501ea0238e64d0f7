// Package service is the facade the surrounding application consumes. It
// exposes the five wallet operations with plain request/response shapes; the
// HTTP layer (out of scope here) marshals to and from these.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	wallet "github.com/CSWHenry/wallet"
	"github.com/CSWHenry/wallet/request"
	"github.com/CSWHenry/wallet/transfer"
)

const tracerName = "github.com/CSWHenry/wallet/service"

// Service bundles the engines behind the operation contract.
type Service struct {
	store    wallet.Store
	transfer *transfer.Engine
	request  *request.Engine
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates the service facade. A nil logger is replaced with a no-op
// logger.
func New(store wallet.Store, transferEngine *transfer.Engine, requestEngine *request.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		store:    store,
		transfer: transferEngine,
		request:  requestEngine,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// CreateTransferRequest is the input contract for CreateTransfer.
type CreateTransferRequest struct {
	SenderID            int64
	SenderSubAccount    string
	RecipientIdentifier string
	Amount              decimal.Decimal
	Note                string
}

// CreateTransferResponse reports the stored transaction and its outcome
// status (COMPLETED when the recipient resolved, PENDING otherwise).
type CreateTransferResponse struct {
	TransactionID int64
	Status        wallet.TransactionStatus
}

// CreateTransfer initiates a peer-to-peer transfer.
func (s *Service) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*CreateTransferResponse, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.CreateTransfer")
	defer span.End()

	transaction, err := s.transfer.CreateTransfer(ctx, transfer.CreateTransferInput{
		SenderID:            req.SenderID,
		SenderSubAccount:    req.SenderSubAccount,
		RecipientIdentifier: req.RecipientIdentifier,
		Amount:              req.Amount,
		Note:                req.Note,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(
		attribute.Int64("wallet.transaction_id", transaction.ID),
		attribute.String("wallet.status", string(transaction.Status)),
	)

	return &CreateTransferResponse{TransactionID: transaction.ID, Status: transaction.Status}, nil
}

// CreatePaymentRequestRequest is the input contract for CreatePaymentRequest.
type CreatePaymentRequestRequest struct {
	RequesterID int64
	Payers      []request.Payer
	TotalAmount decimal.Decimal
	Note        string
}

// CreatePaymentRequestResponse reports the stored parent transaction.
type CreatePaymentRequestResponse struct {
	TransactionID int64
}

// CreatePaymentRequest fans a payment request out to its payers.
func (s *Service) CreatePaymentRequest(ctx context.Context, req CreatePaymentRequestRequest) (*CreatePaymentRequestResponse, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.CreatePaymentRequest")
	defer span.End()

	transaction, err := s.request.CreatePaymentRequest(ctx, request.CreatePaymentRequestInput{
		RequesterID: req.RequesterID,
		Payers:      req.Payers,
		TotalAmount: req.TotalAmount,
		Note:        req.Note,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.Int64("wallet.transaction_id", transaction.ID))

	return &CreatePaymentRequestResponse{TransactionID: transaction.ID}, nil
}

// CancelTransactionResponse reports the status after cancellation.
type CancelTransactionResponse struct {
	Status wallet.TransactionStatus
}

// CancelTransaction cancels a transaction; see transfer.Engine.Cancel for the
// state machine. Repeating a cancellation is a successful no-op.
func (s *Service) CancelTransaction(ctx context.Context, transactionID int64) (*CancelTransactionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.CancelTransaction",
		trace.WithAttributes(attribute.Int64("wallet.transaction_id", transactionID)))
	defer span.End()

	transaction, err := s.transfer.Cancel(ctx, transactionID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	return &CancelTransactionResponse{Status: transaction.Status}, nil
}

// PaymentRequestView is the read shape of one payer obligation.
type PaymentRequestView struct {
	ID              int64
	PayerIdentifier string
	PayerID         *int64
	Amount          decimal.Decimal
	Status          wallet.TransactionStatus
	CompletedAt     *time.Time
}

// TransactionView is the read shape of a transaction, the contract history
// views marshal from.
type TransactionView struct {
	ID                  int64
	Type                wallet.TransactionType
	Status              wallet.TransactionStatus
	Amount              decimal.Decimal
	Note                string
	SenderID            int64
	RecipientIdentifier string
	RecipientID         *int64
	CreatedAt           time.Time
	CompletedAt         *time.Time
	PaymentRequests     []PaymentRequestView
}

// GetTransaction loads one transaction; REQUEST parents include their
// children.
func (s *Service) GetTransaction(ctx context.Context, transactionID int64) (*TransactionView, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.GetTransaction",
		trace.WithAttributes(attribute.Int64("wallet.transaction_id", transactionID)))
	defer span.End()

	var view *TransactionView

	err := s.store.WithinTx(ctx, func(tx wallet.Tx) error {
		transaction, err := tx.TransactionByID(ctx, transactionID)
		if err != nil {
			return err
		}

		view = newTransactionView(transaction)

		if transaction.Type != wallet.TypeRequest {
			return nil
		}

		children, err := tx.PaymentRequestsByTransaction(ctx, transaction.ID)
		if err != nil {
			return err
		}

		for _, child := range children {
			view.PaymentRequests = append(view.PaymentRequests, PaymentRequestView{
				ID:              child.ID,
				PayerIdentifier: child.PayerIdentifier,
				PayerID:         child.PayerID,
				Amount:          child.Amount,
				Status:          child.Status,
				CompletedAt:     child.CompletedAt,
			})
		}

		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	return view, nil
}

// ListFilters narrows ListTransactions. Zero values mean "no filter".
type ListFilters struct {
	From   *time.Time
	To     *time.Time
	Type   *wallet.TransactionType
	Status *wallet.TransactionStatus
}

// ListTransactions returns the account's transactions (as sender or resolved
// recipient), newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID int64, filters ListFilters) ([]TransactionView, error) {
	ctx, span := s.tracer.Start(ctx, "wallet.ListTransactions",
		trace.WithAttributes(attribute.Int64("wallet.account_id", accountID)))
	defer span.End()

	var views []TransactionView

	err := s.store.WithinTx(ctx, func(tx wallet.Tx) error {
		if _, err := tx.AccountByID(ctx, accountID); err != nil {
			return err
		}

		transactions, err := tx.ListTransactions(ctx, wallet.TransactionFilter{
			AccountID: accountID,
			From:      filters.From,
			To:        filters.To,
			Type:      filters.Type,
			Status:    filters.Status,
		})
		if err != nil {
			return err
		}

		for _, transaction := range transactions {
			views = append(views, *newTransactionView(transaction))
		}

		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	return views, nil
}

func newTransactionView(t *wallet.Transaction) *TransactionView {
	return &TransactionView{
		ID:                  t.ID,
		Type:                t.Type,
		Status:              t.Status,
		Amount:              t.Amount,
		Note:                t.Note,
		SenderID:            t.SenderID,
		RecipientIdentifier: t.RecipientIdentifier,
		RecipientID:         t.RecipientID,
		CreatedAt:           t.CreatedAt,
		CompletedAt:         t.CompletedAt,
	}
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
