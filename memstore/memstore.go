// Package memstore provides an in-memory wallet.Store. It backs the unit
// tests and is embeddable wherever a real database is unwanted.
//
// Units of work are serialized through a single gate acquired with a bounded
// wait; exhaustion surfaces as a KindConflict domain error, matching the
// contract callers retry on. Serializing the whole store is strictly stronger
// than the per-sub-account exclusivity the contract requires. Rollback is
// snapshot-based: state is cloned when a unit of work starts and restored if
// it fails.
package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	wallet "github.com/CSWHenry/wallet"
)

const defaultLockWait = 3 * time.Second

var (
	_ wallet.Store = (*Store)(nil)
	_ wallet.Tx    = (*memTx)(nil)
)

type contact struct {
	accountID int64
	verified  bool
}

type data struct {
	accounts        map[int64]wallet.Account
	subAccounts     map[int64]wallet.SubAccount
	emails          map[string]contact
	phones          map[string]contact
	transactions    map[int64]wallet.Transaction
	paymentRequests map[int64]wallet.PaymentRequest

	nextAccountID        int64
	nextSubAccountID     int64
	nextTransactionID    int64
	nextPaymentRequestID int64
}

// Store is an in-memory wallet.Store.
type Store struct {
	gate     chan struct{}
	lockWait time.Duration
	state    *data
}

// Option customizes a Store.
type Option func(*Store)

// WithLockWait bounds how long WithinTx waits for exclusive access before
// giving up with a conflict error.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		s.lockWait = d
	}
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		gate:     make(chan struct{}, 1),
		lockWait: defaultLockWait,
		state: &data{
			accounts:        make(map[int64]wallet.Account),
			subAccounts:     make(map[int64]wallet.SubAccount),
			emails:          make(map[string]contact),
			phones:          make(map[string]contact),
			transactions:    make(map[int64]wallet.Transaction),
			paymentRequests: make(map[int64]wallet.PaymentRequest),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithinTx runs fn with exclusive access to the store. If fn returns an
// error, every change it made is rolled back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx wallet.Tx) error) error {
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()

	select {
	case s.gate <- struct{}{}:
	case <-timer.C:
		return wallet.NewConflictError("timed out waiting for store access")
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.gate }()

	snapshot := s.state.clone()

	if err := fn(&memTx{state: s.state}); err != nil {
		s.state = snapshot
		return err
	}

	return nil
}

func (d *data) clone() *data {
	out := &data{
		accounts:             make(map[int64]wallet.Account, len(d.accounts)),
		subAccounts:          make(map[int64]wallet.SubAccount, len(d.subAccounts)),
		emails:               make(map[string]contact, len(d.emails)),
		phones:               make(map[string]contact, len(d.phones)),
		transactions:         make(map[int64]wallet.Transaction, len(d.transactions)),
		paymentRequests:      make(map[int64]wallet.PaymentRequest, len(d.paymentRequests)),
		nextAccountID:        d.nextAccountID,
		nextSubAccountID:     d.nextSubAccountID,
		nextTransactionID:    d.nextTransactionID,
		nextPaymentRequestID: d.nextPaymentRequestID,
	}

	for id, account := range d.accounts {
		out.accounts[id] = account
	}

	for id, sub := range d.subAccounts {
		sub.HolderIDs = append([]int64(nil), sub.HolderIDs...)
		out.subAccounts[id] = sub
	}

	for key, c := range d.emails {
		out.emails[key] = c
	}

	for key, c := range d.phones {
		out.phones[key] = c
	}

	for id, transaction := range d.transactions {
		out.transactions[id] = cloneTransaction(transaction)
	}

	for id, request := range d.paymentRequests {
		out.paymentRequests[id] = cloneRequest(request)
	}

	return out
}

func cloneTransaction(t wallet.Transaction) wallet.Transaction {
	if t.RecipientID != nil {
		id := *t.RecipientID
		t.RecipientID = &id
	}

	if t.RecipientSubAccountID != nil {
		id := *t.RecipientSubAccountID
		t.RecipientSubAccountID = &id
	}

	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}

	return t
}

func cloneRequest(r wallet.PaymentRequest) wallet.PaymentRequest {
	if r.PayerID != nil {
		id := *r.PayerID
		r.PayerID = &id
	}

	if r.CompletedAt != nil {
		at := *r.CompletedAt
		r.CompletedAt = &at
	}

	return r
}

// --- seeding -------------------------------------------------------------

// AddAccount seeds an account holder and returns it.
func (s *Store) AddAccount(holderName string) wallet.Account {
	s.gate <- struct{}{}
	defer func() { <-s.gate }()

	s.state.nextAccountID++
	account := wallet.Account{
		ID:         s.state.nextAccountID,
		HolderName: holderName,
		CreatedAt:  time.Now().UTC(),
	}
	s.state.accounts[account.ID] = account

	return account
}

// AddSubAccount seeds a sub-account held by the given holders. Marking it
// primary demotes any existing primary of those holders, keeping exactly one
// primary per holder.
func (s *Store) AddSubAccount(number, bankName string, balance decimal.Decimal, primary, verified bool, holderIDs ...int64) wallet.SubAccount {
	s.gate <- struct{}{}
	defer func() { <-s.gate }()

	if primary {
		for id, existing := range s.state.subAccounts {
			if !existing.Primary {
				continue
			}

			for _, holderID := range holderIDs {
				if existing.HeldBy(holderID) {
					existing.Primary = false
					s.state.subAccounts[id] = existing

					break
				}
			}
		}
	}

	s.state.nextSubAccountID++
	sub := wallet.SubAccount{
		ID:        s.state.nextSubAccountID,
		Number:    number,
		BankName:  bankName,
		Balance:   balance,
		Primary:   primary,
		Verified:  verified,
		HolderIDs: append([]int64(nil), holderIDs...),
		CreatedAt: time.Now().UTC(),
	}
	s.state.subAccounts[sub.ID] = sub

	return sub
}

// AddEmail seeds an email contact for an account.
func (s *Store) AddEmail(address string, accountID int64, verified bool) {
	s.gate <- struct{}{}
	defer func() { <-s.gate }()

	s.state.emails[address] = contact{accountID: accountID, verified: verified}
}

// AddPhone seeds a phone contact for an account.
func (s *Store) AddPhone(number string, accountID int64, verified bool) {
	s.gate <- struct{}{}
	defer func() { <-s.gate }()

	s.state.phones[number] = contact{accountID: accountID, verified: verified}
}

// --- unit of work --------------------------------------------------------

type memTx struct {
	state *data
}

func (t *memTx) AccountByID(_ context.Context, id int64) (*wallet.Account, error) {
	account, ok := t.state.accounts[id]
	if !ok {
		return nil, wallet.NewNotFoundError("account", "unknown account")
	}

	return &account, nil
}

func (t *memTx) SubAccountByNumber(_ context.Context, number string) (*wallet.SubAccount, error) {
	for _, sub := range t.state.subAccounts {
		if sub.Number == number {
			out := cloneSubAccount(sub)
			return &out, nil
		}
	}

	return nil, wallet.NewNotFoundError("sub_account", "unknown sub-account number "+number)
}

func (t *memTx) SubAccountByID(_ context.Context, id int64) (*wallet.SubAccount, error) {
	sub, ok := t.state.subAccounts[id]
	if !ok {
		return nil, wallet.NewNotFoundError("sub_account", "unknown sub-account")
	}

	out := cloneSubAccount(sub)

	return &out, nil
}

func (t *memTx) PrimarySubAccount(_ context.Context, holderID int64) (*wallet.SubAccount, error) {
	for _, sub := range t.state.subAccounts {
		if sub.Primary && sub.HeldBy(holderID) {
			out := cloneSubAccount(sub)
			return &out, nil
		}
	}

	return nil, wallet.NewNotFoundError("sub_account", "holder has no primary sub-account")
}

// LockSubAccounts validates existence of every id. The store-wide gate already
// grants exclusivity, so ordering is only preserved for parity with locking
// stores.
func (t *memTx) LockSubAccounts(_ context.Context, ids ...int64) (map[int64]*wallet.SubAccount, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make(map[int64]*wallet.SubAccount, len(sorted))

	for _, id := range sorted {
		sub, ok := t.state.subAccounts[id]
		if !ok {
			return nil, wallet.NewNotFoundError("sub_account", "unknown sub-account")
		}

		cloned := cloneSubAccount(sub)
		out[id] = &cloned
	}

	return out, nil
}

func (t *memTx) SetBalance(_ context.Context, subAccountID int64, balance decimal.Decimal) error {
	sub, ok := t.state.subAccounts[subAccountID]
	if !ok {
		return wallet.NewNotFoundError("sub_account", "unknown sub-account")
	}

	sub.Balance = balance
	t.state.subAccounts[subAccountID] = sub

	return nil
}

func (t *memTx) ResolveVerifiedEmail(_ context.Context, address string) (*wallet.Account, error) {
	c, ok := t.state.emails[address]
	if !ok || !c.verified {
		return nil, nil
	}

	account, ok := t.state.accounts[c.accountID]
	if !ok {
		return nil, nil
	}

	return &account, nil
}

func (t *memTx) ResolveVerifiedPhone(_ context.Context, number string) (*wallet.Account, error) {
	c, ok := t.state.phones[number]
	if !ok || !c.verified {
		return nil, nil
	}

	account, ok := t.state.accounts[c.accountID]
	if !ok {
		return nil, nil
	}

	return &account, nil
}

func (t *memTx) InsertTransaction(_ context.Context, transaction *wallet.Transaction) (int64, error) {
	t.state.nextTransactionID++
	transaction.ID = t.state.nextTransactionID
	t.state.transactions[transaction.ID] = cloneTransaction(*transaction)

	return transaction.ID, nil
}

func (t *memTx) TransactionByID(_ context.Context, id int64) (*wallet.Transaction, error) {
	transaction, ok := t.state.transactions[id]
	if !ok {
		return nil, wallet.NewNotFoundError("transaction", "unknown transaction")
	}

	out := cloneTransaction(transaction)

	return &out, nil
}

func (t *memTx) UpdateTransaction(_ context.Context, transaction *wallet.Transaction) error {
	if _, ok := t.state.transactions[transaction.ID]; !ok {
		return wallet.NewNotFoundError("transaction", "unknown transaction")
	}

	t.state.transactions[transaction.ID] = cloneTransaction(*transaction)

	return nil
}

func (t *memTx) ListTransactions(_ context.Context, filter wallet.TransactionFilter) ([]*wallet.Transaction, error) {
	var out []*wallet.Transaction

	for _, transaction := range t.state.transactions {
		if !matches(transaction, filter) {
			continue
		}

		cloned := cloneTransaction(transaction)
		out = append(out, &cloned)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}

		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func matches(t wallet.Transaction, filter wallet.TransactionFilter) bool {
	if filter.AccountID != 0 {
		involved := t.SenderID == filter.AccountID ||
			(t.RecipientID != nil && *t.RecipientID == filter.AccountID)
		if !involved {
			return false
		}
	}

	if filter.From != nil && t.CreatedAt.Before(*filter.From) {
		return false
	}

	if filter.To != nil && t.CreatedAt.After(*filter.To) {
		return false
	}

	if filter.Type != nil && t.Type != *filter.Type {
		return false
	}

	if filter.Status != nil && t.Status != *filter.Status {
		return false
	}

	return true
}

func (t *memTx) PendingTransactionsBefore(_ context.Context, cutoff time.Time, limit int) ([]*wallet.Transaction, error) {
	var out []*wallet.Transaction

	for _, transaction := range t.state.transactions {
		if transaction.Type != wallet.TypeTransfer || transaction.Status != wallet.StatusPending {
			continue
		}

		if !transaction.CreatedAt.Before(cutoff) {
			continue
		}

		cloned := cloneTransaction(transaction)
		out = append(out, &cloned)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (t *memTx) InsertPaymentRequest(_ context.Context, request *wallet.PaymentRequest) (int64, error) {
	t.state.nextPaymentRequestID++
	request.ID = t.state.nextPaymentRequestID
	t.state.paymentRequests[request.ID] = cloneRequest(*request)

	return request.ID, nil
}

func (t *memTx) PaymentRequestsByTransaction(_ context.Context, transactionID int64) ([]*wallet.PaymentRequest, error) {
	var out []*wallet.PaymentRequest

	for _, request := range t.state.paymentRequests {
		if request.TransactionID == transactionID {
			cloned := cloneRequest(request)
			out = append(out, &cloned)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (t *memTx) UpdatePaymentRequest(_ context.Context, request *wallet.PaymentRequest) error {
	if _, ok := t.state.paymentRequests[request.ID]; !ok {
		return wallet.NewNotFoundError("payment_request", "unknown payment request")
	}

	t.state.paymentRequests[request.ID] = cloneRequest(*request)

	return nil
}

func cloneSubAccount(sub wallet.SubAccount) wallet.SubAccount {
	sub.HolderIDs = append([]int64(nil), sub.HolderIDs...)
	return sub
}
