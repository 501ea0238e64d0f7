package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	wallet "github.com/CSWHenry/wallet"
)

var _ wallet.Tx = (*pgTx)(nil)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) AccountByID(ctx context.Context, id int64) (*wallet.Account, error) {
	var account wallet.Account

	err := t.tx.QueryRow(ctx,
		`SELECT id, holder_name, created_at FROM accounts WHERE id = $1`, id).
		Scan(&account.ID, &account.HolderName, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wallet.NewNotFoundError("account", "unknown account")
	}

	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", id, err)
	}

	return &account, nil
}

const subAccountColumns = `id, number, bank_name, balance::text, is_primary, is_verified, created_at`

func (t *pgTx) scanSubAccount(ctx context.Context, row pgx.Row) (*wallet.SubAccount, error) {
	var (
		sub     wallet.SubAccount
		balance string
	)

	err := row.Scan(&sub.ID, &sub.Number, &sub.BankName, &balance, &sub.Primary, &sub.Verified, &sub.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wallet.NewNotFoundError("sub_account", "unknown sub-account")
	}

	if err != nil {
		return nil, fmt.Errorf("scan sub-account: %w", err)
	}

	if sub.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}

	if sub.HolderIDs, err = t.holderIDs(ctx, sub.ID); err != nil {
		return nil, err
	}

	return &sub, nil
}

func (t *pgTx) holderIDs(ctx context.Context, subAccountID int64) ([]int64, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT account_id FROM sub_account_holders WHERE sub_account_id = $1 ORDER BY account_id`, subAccountID)
	if err != nil {
		return nil, fmt.Errorf("load holders of sub-account %d: %w", subAccountID, err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan holder id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (t *pgTx) SubAccountByNumber(ctx context.Context, number string) (*wallet.SubAccount, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+subAccountColumns+` FROM sub_accounts WHERE number = $1`, number)

	return t.scanSubAccount(ctx, row)
}

func (t *pgTx) SubAccountByID(ctx context.Context, id int64) (*wallet.SubAccount, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+subAccountColumns+` FROM sub_accounts WHERE id = $1`, id)

	return t.scanSubAccount(ctx, row)
}

func (t *pgTx) PrimarySubAccount(ctx context.Context, holderID int64) (*wallet.SubAccount, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+subAccountColumns+` FROM sub_accounts s
		 WHERE s.is_primary
		   AND EXISTS (
		       SELECT 1 FROM sub_account_holders h
		       WHERE h.sub_account_id = s.id AND h.account_id = $1
		   )`, holderID)

	sub, err := t.scanSubAccount(ctx, row)
	if wallet.IsKind(err, wallet.KindNotFound) {
		return nil, wallet.NewNotFoundError("sub_account", "holder has no primary sub-account")
	}

	return sub, err
}

// LockSubAccounts locks rows one by one in ascending id order with NOWAIT;
// contention is translated to a conflict error by the enclosing WithinTx.
func (t *pgTx) LockSubAccounts(ctx context.Context, ids ...int64) (map[int64]*wallet.SubAccount, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[int64]*wallet.SubAccount, len(sorted))

	for _, id := range sorted {
		if _, done := out[id]; done {
			continue
		}

		row := t.tx.QueryRow(ctx,
			`SELECT `+subAccountColumns+` FROM sub_accounts WHERE id = $1 FOR UPDATE NOWAIT`, id)

		sub, err := t.scanSubAccount(ctx, row)
		if err != nil {
			return nil, err
		}

		out[id] = sub
	}

	return out, nil
}

func (t *pgTx) SetBalance(ctx context.Context, subAccountID int64, balance decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sub_accounts SET balance = $1 WHERE id = $2`, balance.String(), subAccountID)
	if err != nil {
		return fmt.Errorf("update balance of sub-account %d: %w", subAccountID, err)
	}

	if tag.RowsAffected() == 0 {
		return wallet.NewNotFoundError("sub_account", "unknown sub-account")
	}

	return nil
}

func (t *pgTx) ResolveVerifiedEmail(ctx context.Context, address string) (*wallet.Account, error) {
	return t.resolveContact(ctx,
		`SELECT a.id, a.holder_name, a.created_at
		 FROM emails e JOIN accounts a ON a.id = e.account_id
		 WHERE e.address = $1 AND e.is_verified`, address)
}

func (t *pgTx) ResolveVerifiedPhone(ctx context.Context, number string) (*wallet.Account, error) {
	return t.resolveContact(ctx,
		`SELECT a.id, a.holder_name, a.created_at
		 FROM phones p JOIN accounts a ON a.id = p.account_id
		 WHERE p.number = $1 AND p.is_verified`, number)
}

func (t *pgTx) resolveContact(ctx context.Context, query, identifier string) (*wallet.Account, error) {
	var account wallet.Account

	err := t.tx.QueryRow(ctx, query, identifier).
		Scan(&account.ID, &account.HolderName, &account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unresolved is a business outcome, not an error.
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("resolve contact: %w", err)
	}

	return &account, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, transaction *wallet.Transaction) (int64, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (
			type, status, amount, note, sender_id, sender_sub_account,
			recipient_identifier, recipient_id, recipient_sub_account_id,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		transaction.Type, transaction.Status, transaction.Amount.String(), transaction.Note,
		transaction.SenderID, transaction.SenderSubAccount, transaction.RecipientIdentifier,
		transaction.RecipientID, transaction.RecipientSubAccountID,
		transaction.CreatedAt, transaction.UpdatedAt, transaction.CompletedAt).
		Scan(&transaction.ID)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}

	return transaction.ID, nil
}

const transactionColumns = `id, type, status, amount::text, note, sender_id, sender_sub_account,
	recipient_identifier, recipient_id, recipient_sub_account_id, created_at, updated_at, completed_at`

func scanTransaction(row pgx.Row) (*wallet.Transaction, error) {
	var (
		transaction wallet.Transaction
		amount      string
	)

	err := row.Scan(&transaction.ID, &transaction.Type, &transaction.Status, &amount,
		&transaction.Note, &transaction.SenderID, &transaction.SenderSubAccount,
		&transaction.RecipientIdentifier, &transaction.RecipientID, &transaction.RecipientSubAccountID,
		&transaction.CreatedAt, &transaction.UpdatedAt, &transaction.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, wallet.NewNotFoundError("transaction", "unknown transaction")
	}

	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if transaction.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}

	return &transaction, nil
}

func (t *pgTx) TransactionByID(ctx context.Context, id int64) (*wallet.Transaction, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)

	return scanTransaction(row)
}

func (t *pgTx) UpdateTransaction(ctx context.Context, transaction *wallet.Transaction) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE transactions SET
			status = $1, recipient_id = $2, recipient_sub_account_id = $3,
			updated_at = $4, completed_at = $5
		 WHERE id = $6`,
		transaction.Status, transaction.RecipientID, transaction.RecipientSubAccountID,
		transaction.UpdatedAt, transaction.CompletedAt, transaction.ID)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", transaction.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return wallet.NewNotFoundError("transaction", "unknown transaction")
	}

	return nil
}

func (t *pgTx) ListTransactions(ctx context.Context, filter wallet.TransactionFilter) ([]*wallet.Transaction, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`)

	var args []any

	appendClause := func(clause string, value any) {
		args = append(args, value)
		query.WriteString(fmt.Sprintf(" AND "+clause, len(args)))
	}

	if filter.AccountID != 0 {
		appendClause("(sender_id = $%[1]d OR recipient_id = $%[1]d)", filter.AccountID)
	}

	if filter.From != nil {
		appendClause("created_at >= $%d", *filter.From)
	}

	if filter.To != nil {
		appendClause("created_at <= $%d", *filter.To)
	}

	if filter.Type != nil {
		appendClause("type = $%d", *filter.Type)
	}

	if filter.Status != nil {
		appendClause("status = $%d", *filter.Status)
	}

	query.WriteString(" ORDER BY created_at DESC, id DESC")

	rows, err := t.tx.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (t *pgTx) PendingTransactionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]*wallet.Transaction, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE type = $1 AND status = $2 AND created_at < $3
		 ORDER BY created_at
		 LIMIT $4
		 FOR UPDATE SKIP LOCKED`,
		wallet.TypeTransfer, wallet.StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]*wallet.Transaction, error) {
	var out []*wallet.Transaction

	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, transaction)
	}

	return out, rows.Err()
}

func (t *pgTx) InsertPaymentRequest(ctx context.Context, request *wallet.PaymentRequest) (int64, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO payment_requests (
			transaction_id, requester_id, payer_identifier, payer_id,
			amount, status, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		request.TransactionID, request.RequesterID, request.PayerIdentifier, request.PayerID,
		request.Amount.String(), request.Status, request.CreatedAt, request.CompletedAt).
		Scan(&request.ID)
	if err != nil {
		return 0, fmt.Errorf("insert payment request: %w", err)
	}

	return request.ID, nil
}

func (t *pgTx) PaymentRequestsByTransaction(ctx context.Context, transactionID int64) ([]*wallet.PaymentRequest, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, transaction_id, requester_id, payer_identifier, payer_id,
		        amount::text, status, created_at, completed_at
		 FROM payment_requests WHERE transaction_id = $1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list payment requests: %w", err)
	}
	defer rows.Close()

	var out []*wallet.PaymentRequest

	for rows.Next() {
		var (
			request wallet.PaymentRequest
			amount  string
		)

		err := rows.Scan(&request.ID, &request.TransactionID, &request.RequesterID,
			&request.PayerIdentifier, &request.PayerID, &amount, &request.Status,
			&request.CreatedAt, &request.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}

		if request.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}

		out = append(out, &request)
	}

	return out, rows.Err()
}

func (t *pgTx) UpdatePaymentRequest(ctx context.Context, request *wallet.PaymentRequest) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE payment_requests SET status = $1, payer_id = $2, completed_at = $3 WHERE id = $4`,
		request.Status, request.PayerID, request.CompletedAt, request.ID)
	if err != nil {
		return fmt.Errorf("update payment request %d: %w", request.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return wallet.NewNotFoundError("payment_request", "unknown payment request")
	}

	return nil
}
