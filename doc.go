// Package wallet defines the domain model for peer-to-peer money movement:
// accounts, bank sub-accounts, transactions, payment requests, the
// transaction status machine, the error taxonomy, and the unit-of-work
// contract every engine operates through.
//
// Money is always represented with shopspring/decimal; amounts are unsigned
// (strictly positive) with direction carried by explicit sender and recipient
// references, never by sign.
//
// Subpackages build on this model:
//   - identity: resolves a human-entered identifier to a verified account.
//   - ledger: atomic balance adjustments with ordered locking.
//   - transfer: transfer creation and reversal.
//   - request: payment request fan-out.
//   - service: the operation facade the surrounding application consumes.
//   - memstore, postgres: Store implementations.
//   - sweeper: background PENDING -> EXPIRED transitioning.
package wallet
