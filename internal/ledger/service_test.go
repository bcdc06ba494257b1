package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/lock"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/transaction"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Send(_ context.Context, e notification.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

type fixture struct {
	svc      *Service
	wallets  wallet.Repository
	records  transaction.Repository
	locks    *lock.LocalLocker
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		wallets:  wallet.NewMemoryRepository(),
		records:  transaction.NewMemoryRepository(),
		locks:    lock.NewLocal(5 * time.Second),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(Deps{
		Wallets:    f.wallets,
		Records:    f.records,
		Locks:      f.locks,
		Notifier:   f.notifier,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		MaxRetries: 3,
	})
	return f
}

func (f *fixture) seed(t *testing.T, balance, max int64) string {
	t.Helper()
	now := time.Now().UTC()
	id, err := f.wallets.Save(context.Background(), wallet.Wallet{
		ID:         uuid.NewString(),
		UserID:     uuid.NewString(),
		MaxBalance: max,
		CurBalance: balance,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	b, err := f.svc.GetWalletBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) history(t *testing.T, id string) []transaction.Transaction {
	t.Helper()
	txs, err := f.records.ListByWallet(context.Background(), id, transaction.Filter{})
	require.NoError(t, err)
	return txs
}

func TestTransferMovesMoneyAndRecordsCompletion(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 20, 200)

	res, err := f.svc.TransferMoney(context.Background(), a, b, 50)
	require.NoError(t, err)
	assert.True(t, res.Committed())
	assert.Equal(t, int64(50), res.FromBalance)
	assert.Equal(t, int64(70), res.ToBalance)

	assert.Equal(t, int64(50), f.balance(t, a))
	assert.Equal(t, int64(70), f.balance(t, b))

	txs := f.history(t, a)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusCompleted, txs[0].Status)
	assert.Equal(t, transaction.TypeTransfer, txs[0].Type)
	assert.Equal(t, a, txs[0].FromWalletID)
	assert.Equal(t, b, txs[0].ToWalletID)
	assert.Equal(t, int64(50), txs[0].Amount)
	assert.Equal(t, res.Transaction.ID, txs[0].ID)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notification.KindTransactionCompleted, f.notifier.events[0].Kind)
}

func TestTransferInsufficientBalanceRecordsFailure(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)

	res, err := f.svc.TransferMoney(context.Background(), a, b, 150)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, res.Committed())

	assert.Equal(t, int64(100), f.balance(t, a))
	assert.Equal(t, int64(0), f.balance(t, b))

	txs := f.history(t, a)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusFailed, txs[0].Status)
	assert.Equal(t, a, txs[0].FromWalletID)
	assert.Equal(t, b, txs[0].ToWalletID)
	assert.Equal(t, int64(150), txs[0].Amount)
	assert.Equal(t, ErrInsufficientBalance.Error(), txs[0].FailureReason)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notification.KindTransactionFailed, f.notifier.events[0].Kind)
}

func TestTransferBalanceLimitRecordsFailure(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 180, 200)

	_, err := f.svc.TransferMoney(context.Background(), a, b, 50)
	require.ErrorIs(t, err, ErrBalanceLimitExceeded)
	assert.Equal(t, int64(100), f.balance(t, a))
	assert.Equal(t, int64(180), f.balance(t, b))

	txs := f.history(t, b)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusFailed, txs[0].Status)
}

func TestTransferUnknownWalletRecordsFailure(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	missing := uuid.NewString()

	_, err := f.svc.TransferMoney(context.Background(), a, missing, 10)
	require.ErrorIs(t, err, ErrWalletNotFound)
	assert.Equal(t, int64(100), f.balance(t, a))

	txs := f.history(t, a)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusFailed, txs[0].Status)
	assert.Equal(t, missing, txs[0].ToWalletID)
}

func TestTransferRejectsMalformedInputWithoutRecord(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)

	_, err := f.svc.TransferMoney(context.Background(), a, b, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.TransferMoney(context.Background(), a, b, -10)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.TransferMoney(context.Background(), a, a, 10)
	assert.ErrorIs(t, err, ErrSameWallet)

	assert.Empty(t, f.history(t, a))
	assert.Equal(t, int64(100), f.balance(t, a))
	assert.Empty(t, f.notifier.events)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	const (
		start  = int64(100)
		amount = int64(30)
		n      = 10
	)
	a := f.seed(t, start, 1000)
	dests := make([]string, n)
	for i := range dests {
		dests[i] = f.seed(t, 0, 1000)
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for _, dest := range dests {
		wg.Add(1)
		go func(dest string) {
			defer wg.Done()
			_, err := f.svc.TransferMoney(context.Background(), a, dest, amount)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientBalance):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(dest)
	}
	wg.Wait()

	assert.Equal(t, int(start/amount), succeeded)
	assert.Equal(t, n-succeeded, insufficient)
	assert.Equal(t, start-int64(succeeded)*amount, f.balance(t, a))

	var credited int64
	for _, dest := range dests {
		credited += f.balance(t, dest)
	}
	assert.Equal(t, int64(succeeded)*amount, credited)

	completed, err := f.records.ListByWallet(context.Background(), a, transaction.Filter{Status: transaction.StatusCompleted})
	require.NoError(t, err)
	failed, err := f.records.ListByWallet(context.Background(), a, transaction.Filter{Status: transaction.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, completed, succeeded)
	assert.Len(t, failed, insufficient)
}

func TestConcurrentOppositeTransfersConserveMoney(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 500, 1000)
	b := f.seed(t, 500, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.TransferMoney(context.Background(), a, b, 7)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.TransferMoney(context.Background(), b, a, 5)
		}()
	}
	wg.Wait()

	balA, balB := f.balance(t, a), f.balance(t, b)
	assert.Equal(t, int64(1000), balA+balB)
	assert.Equal(t, int64(500-20*7+20*5), balA)
}

func TestAddWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	w := f.seed(t, 40, 1000)

	bal, err := f.svc.AddMoney(context.Background(), w, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(65), bal)

	bal, err = f.svc.WithdrawMoney(context.Background(), w, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)

	txs := f.history(t, w)
	require.Len(t, txs, 2)
	assert.Equal(t, transaction.TypeDeposit, txs[0].Type)
	assert.Empty(t, txs[0].FromWalletID)
	assert.Equal(t, transaction.TypeWithdrawal, txs[1].Type)
	assert.Empty(t, txs[1].ToWalletID)
}

func TestAddAndWithdrawFailuresWriteNothing(t *testing.T) {
	f := newFixture(t)
	w := f.seed(t, 10, 100)

	_, err := f.svc.WithdrawMoney(context.Background(), w, -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.WithdrawMoney(context.Background(), w, 11)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = f.svc.AddMoney(context.Background(), w, 91)
	assert.ErrorIs(t, err, ErrBalanceLimitExceeded)
	_, err = f.svc.AddMoney(context.Background(), uuid.NewString(), 1)
	assert.ErrorIs(t, err, ErrWalletNotFound)

	assert.Equal(t, int64(10), f.balance(t, w))
	assert.Empty(t, f.history(t, w))
}

func TestAddAllowsFillingToCeiling(t *testing.T) {
	f := newFixture(t)
	w := f.seed(t, 10, 100)

	bal, err := f.svc.AddMoney(context.Background(), w, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
}

// flakyWallets fails the first conflicts version checks.
type flakyWallets struct {
	wallet.Repository
	mu        sync.Mutex
	conflicts int
}

func (r *flakyWallets) takeConflict() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return true
	}
	return false
}

func (r *flakyWallets) ConditionalUpdate(ctx context.Context, id string, expected, balance int64) (wallet.Wallet, error) {
	if r.takeConflict() {
		return wallet.Wallet{}, wallet.ErrConflict
	}
	return r.Repository.ConditionalUpdate(ctx, id, expected, balance)
}

func (r *flakyWallets) ApplyBalances(ctx context.Context, updates ...wallet.BalanceUpdate) ([]wallet.Wallet, error) {
	if r.takeConflict() {
		return nil, wallet.ErrConflict
	}
	return r.Repository.ApplyBalances(ctx, updates...)
}

func TestConflictsAreRetried(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)
	flaky := &flakyWallets{Repository: f.wallets, conflicts: 2}
	f.svc = NewService(Deps{Wallets: flaky, Records: f.records, Locks: f.locks, MaxRetries: 3})

	_, err := f.svc.TransferMoney(context.Background(), a, b, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(90), f.balance(t, a))

	flaky.conflicts = 2
	bal, err := f.svc.AddMoney(context.Background(), b, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal)
}

func TestExhaustedRetriesSurfaceConflict(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)
	flaky := &flakyWallets{Repository: f.wallets, conflicts: 100}
	f.svc = NewService(Deps{Wallets: flaky, Records: f.records, Locks: f.locks, MaxRetries: 3})

	_, err := f.svc.TransferMoney(context.Background(), a, b, 10)
	require.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 100-3, flaky.conflicts)

	_, err = f.svc.WithdrawMoney(context.Background(), a, 10)
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	assert.Equal(t, int64(100), f.balance(t, a))
	txs := f.history(t, a)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusFailed, txs[0].Status)
	assert.Equal(t, ErrConcurrencyConflict.Error(), txs[0].FailureReason)
}

func TestLockTimeoutSurfacesConflict(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)
	locks := lock.NewLocal(20 * time.Millisecond)
	f.svc = NewService(Deps{Wallets: f.wallets, Records: f.records, Locks: locks})

	release, err := locks.Acquire(context.Background(), a)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.AddMoney(context.Background(), a, 5)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	_, err = f.svc.TransferMoney(context.Background(), b, a, 5)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	assert.Equal(t, int64(100), f.balance(t, a))
	txs := f.history(t, b)
	require.Len(t, txs, 1)
	assert.Equal(t, transaction.StatusFailed, txs[0].Status)
}

type failingRecords struct {
	transaction.Repository
}

func (failingRecords) Append(context.Context, transaction.Transaction) (string, error) {
	return "", errors.New("disk full")
}

func TestRecordFailureAfterCommitIsReported(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)
	f.svc = NewService(Deps{Wallets: f.wallets, Records: failingRecords{f.records}, Locks: f.locks})

	res, err := f.svc.TransferMoney(context.Background(), a, b, 40)
	require.ErrorIs(t, err, ErrRecordFailed)
	assert.True(t, res.Committed())
	assert.Equal(t, int64(60), res.FromBalance)
	assert.Equal(t, int64(40), res.ToBalance)
	assert.Equal(t, int64(60), f.balance(t, a))

	bal, err := f.svc.AddMoney(context.Background(), b, 5)
	require.ErrorIs(t, err, ErrRecordFailed)
	assert.Equal(t, int64(45), bal)
}

func TestTransferToSameWalletSpelledDifferentlyIsRejected(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)

	_, err := f.svc.TransferMoney(context.Background(), a, strings.ToUpper(a), 10)
	require.ErrorIs(t, err, ErrSameWallet)
	_, err = f.svc.TransferMoney(context.Background(), "{"+a+"}", a, 10)
	require.ErrorIs(t, err, ErrSameWallet)

	assert.Equal(t, int64(100), f.balance(t, a))
	assert.Empty(t, f.history(t, a))
}

func TestRecordsUseCanonicalWalletIDs(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)
	upperA, upperB := strings.ToUpper(a), strings.ToUpper(b)

	_, err := f.svc.AddMoney(context.Background(), upperA, 5)
	require.NoError(t, err)
	_, err = f.svc.TransferMoney(context.Background(), upperA, upperB, 10)
	require.NoError(t, err)
	_, err = f.svc.TransferMoney(context.Background(), upperA, upperB, 1000)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	txs, err := f.svc.ListTransactions(context.Background(), a, transaction.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, a, txs[0].ToWalletID)
	assert.Equal(t, a, txs[1].FromWalletID)
	assert.Equal(t, b, txs[1].ToWalletID)
	assert.Equal(t, transaction.StatusFailed, txs[2].Status)
	assert.Equal(t, b, txs[2].ToWalletID)

	bal, err := f.svc.GetWalletBalance(context.Background(), upperB)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

type deadlineNotifier struct {
	bounded bool
}

func (n *deadlineNotifier) Send(ctx context.Context, _ notification.Event) error {
	_, n.bounded = ctx.Deadline()
	return nil
}

func TestNotifierSendIsBounded(t *testing.T) {
	f := newFixture(t)
	w := f.seed(t, 0, 100)
	notifier := &deadlineNotifier{}
	f.svc = NewService(Deps{Wallets: f.wallets, Records: f.records, Locks: f.locks, Notifier: notifier})

	_, err := f.svc.AddMoney(context.Background(), w, 5)
	require.NoError(t, err)
	assert.True(t, notifier.bounded)
}

func TestListTransactionsFilters(t *testing.T) {
	f := newFixture(t)
	a := f.seed(t, 100, 1000)
	b := f.seed(t, 0, 1000)
	ctx := context.Background()

	_, err := f.svc.AddMoney(ctx, a, 10)
	require.NoError(t, err)
	_, err = f.svc.TransferMoney(ctx, a, b, 20)
	require.NoError(t, err)
	_, err = f.svc.TransferMoney(ctx, a, b, 500)
	require.Error(t, err)

	all, err := f.svc.ListTransactions(ctx, a, transaction.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	transfers, err := f.svc.ListTransactions(ctx, a, transaction.Filter{Type: transaction.TypeTransfer})
	require.NoError(t, err)
	assert.Len(t, transfers, 2)

	forB, err := f.svc.ListTransactions(ctx, b, transaction.Filter{Status: transaction.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, int64(20), forB[0].Amount)

	future, err := f.svc.ListTransactions(ctx, a, transaction.Filter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)

	_, err = f.svc.ListTransactions(ctx, uuid.NewString(), transaction.Filter{})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestDeletedWalletIsNotFound(t *testing.T) {
	f := newFixture(t)
	w := f.seed(t, 10, 100)
	require.NoError(t, f.wallets.SoftDelete(context.Background(), w))

	_, err := f.svc.GetWalletBalance(context.Background(), w)
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = f.svc.AddMoney(context.Background(), w, 1)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}
