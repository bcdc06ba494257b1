package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/lock"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/transaction"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

const (
	defaultMaxRetries  = 5
	defaultLockTimeout = 2 * time.Second
	notifyTimeout      = 2 * time.Second
)

// Deps bundles the collaborators of the ledger service.
type Deps struct {
	Wallets    wallet.Repository
	Records    transaction.Repository
	Locks      lock.Locker
	Notifier   notification.Notifier
	Metrics    *metrics.Collector
	Logger     *slog.Logger
	MaxRetries int
}

// Service executes deposits, withdrawals and transfers. Every balance change
// runs under the wallet locks and commits through a version check, retried on
// conflict up to maxRetries times.
type Service struct {
	wallets    wallet.Repository
	records    transaction.Repository
	locks      lock.Locker
	notifier   notification.Notifier
	metrics    *metrics.Collector
	logger     *slog.Logger
	maxRetries int
}

// NewService wires a ledger service. A nil locker falls back to an in-process one.
func NewService(d Deps) *Service {
	s := &Service{
		wallets:    d.Wallets,
		records:    d.Records,
		locks:      d.Locks,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		logger:     d.Logger,
		maxRetries: d.MaxRetries,
	}
	if s.locks == nil {
		s.locks = lock.NewLocal(defaultLockTimeout)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.maxRetries < 1 {
		s.maxRetries = defaultMaxRetries
	}
	return s
}

// AddMoney credits amount to the wallet and returns the new balance.
func (s *Service) AddMoney(ctx context.Context, walletID string, amount int64) (int64, error) {
	if amount <= 0 {
		s.metrics.Operation(opAdd, outcomeRejected)
		return 0, ErrInvalidAmount
	}
	walletID = canonicalID(walletID)

	w, err := s.adjust(ctx, opAdd, walletID, amount)
	if err != nil {
		s.metrics.Operation(opAdd, outcomeFailed)
		s.logFailure(opAdd, err, slog.String("wallet_id", walletID), slog.Int64("amount", amount))
		return 0, err
	}

	_, err = s.record(ctx, transaction.Transaction{
		ToWalletID: walletID,
		Amount:     amount,
		Type:       transaction.TypeDeposit,
		Status:     transaction.StatusCompleted,
	})
	s.metrics.Operation(opAdd, outcomeCompleted)
	s.logger.Info("ledger.add completed",
		slog.String("wallet_id", walletID),
		slog.Int64("amount", amount),
		slog.Int64("balance", w.CurBalance),
	)
	return w.CurBalance, err
}

// WithdrawMoney debits amount from the wallet and returns the new balance.
func (s *Service) WithdrawMoney(ctx context.Context, walletID string, amount int64) (int64, error) {
	if amount <= 0 {
		s.metrics.Operation(opWithdraw, outcomeRejected)
		return 0, ErrInvalidAmount
	}
	walletID = canonicalID(walletID)

	w, err := s.adjust(ctx, opWithdraw, walletID, -amount)
	if err != nil {
		s.metrics.Operation(opWithdraw, outcomeFailed)
		s.logFailure(opWithdraw, err, slog.String("wallet_id", walletID), slog.Int64("amount", amount))
		return 0, err
	}

	_, err = s.record(ctx, transaction.Transaction{
		FromWalletID: walletID,
		Amount:       amount,
		Type:         transaction.TypeWithdrawal,
		Status:       transaction.StatusCompleted,
	})
	s.metrics.Operation(opWithdraw, outcomeCompleted)
	s.logger.Info("ledger.withdraw completed",
		slog.String("wallet_id", walletID),
		slog.Int64("amount", amount),
		slog.Int64("balance", w.CurBalance),
	)
	return w.CurBalance, err
}

// TransferMoney moves amount from one wallet to another. Malformed input is
// rejected without a record; every other outcome appends exactly one record,
// FAILED or COMPLETED, and the returned error tells the caller whether money
// moved.
func (s *Service) TransferMoney(ctx context.Context, fromID, toID string, amount int64) (TransferResult, error) {
	if amount <= 0 {
		s.metrics.Operation(opTransfer, outcomeRejected)
		return TransferResult{}, ErrInvalidAmount
	}
	fromID, toID = canonicalID(fromID), canonicalID(toID)
	if fromID == toID {
		s.metrics.Operation(opTransfer, outcomeRejected)
		return TransferResult{}, ErrSameWallet
	}

	attempt := transaction.Transaction{
		FromWalletID: fromID,
		ToWalletID:   toID,
		Amount:       amount,
		Type:         transaction.TypeTransfer,
	}

	from, to, err := s.transfer(ctx, fromID, toID, amount)
	if err != nil {
		attempt.Status = transaction.StatusFailed
		attempt.FailureReason = err.Error()
		rec, _ := s.record(ctx, attempt)
		s.metrics.Operation(opTransfer, outcomeFailed)
		s.logFailure(opTransfer, err,
			slog.String("from_wallet_id", fromID),
			slog.String("to_wallet_id", toID),
			slog.Int64("amount", amount),
		)
		return TransferResult{Transaction: rec}, err
	}

	attempt.Status = transaction.StatusCompleted
	rec, recErr := s.record(ctx, attempt)
	result := TransferResult{Transaction: rec, FromBalance: from.CurBalance, ToBalance: to.CurBalance}

	s.metrics.Operation(opTransfer, outcomeCompleted)
	s.metrics.Transferred(amount)
	s.logger.Info("ledger.transfer completed",
		slog.String("transaction_id", rec.ID),
		slog.String("from_wallet_id", fromID),
		slog.String("to_wallet_id", toID),
		slog.Int64("amount", amount),
	)
	return result, recErr
}

// GetWalletBalance returns the committed balance of a live wallet.
func (s *Service) GetWalletBalance(ctx context.Context, walletID string) (int64, error) {
	w, err := s.load(ctx, canonicalID(walletID))
	if err != nil {
		return 0, err
	}
	return w.CurBalance, nil
}

// GetWallet returns a live wallet.
func (s *Service) GetWallet(ctx context.Context, walletID string) (wallet.Wallet, error) {
	return s.load(ctx, canonicalID(walletID))
}

// ListTransactions returns the records where the wallet is source or
// destination, in creation order, narrowed by filter.
func (s *Service) ListTransactions(ctx context.Context, walletID string, filter transaction.Filter) ([]transaction.Transaction, error) {
	walletID = canonicalID(walletID)
	if _, err := s.load(ctx, walletID); err != nil {
		return nil, err
	}
	txs, err := s.records.ListByWallet(ctx, walletID, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// adjust applies delta to one wallet under its lock.
func (s *Service) adjust(ctx context.Context, op, walletID string, delta int64) (wallet.Wallet, error) {
	release, err := s.acquire(ctx, walletID)
	if err != nil {
		return wallet.Wallet{}, err
	}
	defer release()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		w, err := s.load(ctx, walletID)
		if err != nil {
			return wallet.Wallet{}, err
		}
		if err := checkDelta(w, delta); err != nil {
			return wallet.Wallet{}, err
		}

		updated, err := s.wallets.ConditionalUpdate(ctx, walletID, w.Version, w.CurBalance+delta)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, wallet.ErrConflict), errors.Is(err, wallet.ErrOutOfBounds):
			s.metrics.Retry(op)
		default:
			return wallet.Wallet{}, fmt.Errorf("update wallet: %w", err)
		}
	}
	return wallet.Wallet{}, ErrConcurrencyConflict
}

// transfer commits the debit and the credit as one unit.
func (s *Service) transfer(ctx context.Context, fromID, toID string, amount int64) (wallet.Wallet, wallet.Wallet, error) {
	release, err := s.acquire(ctx, fromID, toID)
	if err != nil {
		return wallet.Wallet{}, wallet.Wallet{}, err
	}
	defer release()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		from, err := s.load(ctx, fromID)
		if err != nil {
			return wallet.Wallet{}, wallet.Wallet{}, err
		}
		to, err := s.load(ctx, toID)
		if err != nil {
			return wallet.Wallet{}, wallet.Wallet{}, err
		}
		if err := checkDelta(from, -amount); err != nil {
			return wallet.Wallet{}, wallet.Wallet{}, err
		}
		if err := checkDelta(to, amount); err != nil {
			return wallet.Wallet{}, wallet.Wallet{}, err
		}

		updated, err := s.wallets.ApplyBalances(ctx,
			wallet.BalanceUpdate{WalletID: fromID, ExpectedVersion: from.Version, NewBalance: from.CurBalance - amount},
			wallet.BalanceUpdate{WalletID: toID, ExpectedVersion: to.Version, NewBalance: to.CurBalance + amount},
		)
		switch {
		case err == nil:
			return updated[0], updated[1], nil
		case errors.Is(err, wallet.ErrConflict), errors.Is(err, wallet.ErrOutOfBounds):
			s.metrics.Retry(opTransfer)
		default:
			return wallet.Wallet{}, wallet.Wallet{}, fmt.Errorf("apply transfer: %w", err)
		}
	}
	return wallet.Wallet{}, wallet.Wallet{}, ErrConcurrencyConflict
}

func (s *Service) acquire(ctx context.Context, walletIDs ...string) (lock.Release, error) {
	release, err := s.locks.Acquire(ctx, walletIDs...)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("acquire wallet lock: %w", err)
	}
	return release, nil
}

func (s *Service) load(ctx context.Context, walletID string) (wallet.Wallet, error) {
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return wallet.Wallet{}, ErrWalletNotFound
		}
		return wallet.Wallet{}, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

// record appends the audit record and publishes it. The append outlives a
// cancelled request so a failure is never left untraced; publishing is bounded
// by notifyTimeout.
func (s *Service) record(ctx context.Context, tx transaction.Transaction) (transaction.Transaction, error) {
	ctx = context.WithoutCancel(ctx)

	tx.CreatedAt = time.Now().UTC()
	id, err := s.records.Append(ctx, tx)
	if err != nil {
		s.metrics.Operation("record", "lost")
		s.logger.Error("ledger.record lost",
			slog.String("type", string(tx.Type)),
			slog.String("status", string(tx.Status)),
			slog.String("from_wallet_id", tx.FromWalletID),
			slog.String("to_wallet_id", tx.ToWalletID),
			slog.Int64("amount", tx.Amount),
			slog.Any("error", err),
		)
		return tx, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	tx.ID = id
	tx.UpdatedAt = tx.CreatedAt

	if s.notifier != nil {
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := s.notifier.Send(sendCtx, eventFor(tx))
		cancel()
		if err != nil {
			s.logger.Warn("ledger.notify failed",
				slog.String("transaction_id", tx.ID),
				slog.Any("error", err),
			)
		}
	}
	return tx, nil
}

func (s *Service) logFailure(op string, err error, attrs ...any) {
	attrs = append(attrs, slog.Any("error", err))
	msg := "ledger." + op + " failed"
	if isClientError(err) || errors.Is(err, ErrConcurrencyConflict) {
		s.logger.Warn(msg, attrs...)
		return
	}
	s.logger.Error(msg, attrs...)
}

// canonicalID folds the spellings of one uuid into a single form so equality,
// lock keys and stored records agree with stores that parse ids. Other ids
// are kept verbatim.
func canonicalID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}

func checkDelta(w wallet.Wallet, delta int64) error {
	if delta < 0 && w.CurBalance < -delta {
		return ErrInsufficientBalance
	}
	if delta > 0 && delta > w.MaxBalance-w.CurBalance {
		return ErrBalanceLimitExceeded
	}
	return nil
}

func isClientError(err error) bool {
	return errors.Is(err, ErrWalletNotFound) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSameWallet) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrBalanceLimitExceeded)
}

func eventFor(tx transaction.Transaction) notification.Event {
	kind := notification.KindTransactionCompleted
	if tx.Status == transaction.StatusFailed {
		kind = notification.KindTransactionFailed
	}
	return notification.Event{
		Kind:          kind,
		TransactionID: tx.ID,
		Type:          string(tx.Type),
		Status:        string(tx.Status),
		FromWalletID:  tx.FromWalletID,
		ToWalletID:    tx.ToWalletID,
		Amount:        tx.Amount,
		Reason:        tx.FailureReason,
		Timestamp:     tx.CreatedAt,
	}
}
