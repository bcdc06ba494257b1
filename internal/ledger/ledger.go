// Package ledger moves money between wallets and keeps the audit trail of every
// attempt.
package ledger

import (
	"errors"

	"github.com/congo-pay/wallet_ledger/internal/transaction"
)

var (
	// ErrWalletNotFound is returned when a wallet is absent or soft-deleted.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAmount rejects non-positive amounts before any storage access.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrSameWallet rejects transfers whose source and destination are the same wallet.
	ErrSameWallet = errors.New("source and destination wallets must differ")

	// ErrInsufficientBalance occurs when the source wallet cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBalanceLimitExceeded occurs when a credit would push a wallet above its ceiling.
	ErrBalanceLimitExceeded = errors.New("balance limit exceeded")

	// ErrConcurrencyConflict is the transient failure surfaced once lock or
	// version-check retries are exhausted.
	ErrConcurrencyConflict = errors.New("wallet is busy, retry later")

	// ErrRecordFailed means balances were committed but the audit record could
	// not be written.
	ErrRecordFailed = errors.New("transaction record could not be written")
)

const (
	opAdd      = "add"
	opWithdraw = "withdraw"
	opTransfer = "transfer"

	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

// TransferResult captures the outcome of a transfer: the appended record and,
// when money moved, the committed balances of both wallets.
type TransferResult struct {
	Transaction transaction.Transaction
	FromBalance int64
	ToBalance   int64
}

// Committed reports whether the transfer moved money.
func (r TransferResult) Committed() bool {
	return r.Transaction.Status == transaction.StatusCompleted
}
