package transaction

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/wallet_ledger/internal/infra"
)

func TestPostgresRepositoryListByWallet(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url, "")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, infra.Migrate(ctx, pool))

	repo := NewPostgresRepository(pool)
	walletA, walletB := uuid.NewString(), uuid.NewString()

	first, err := repo.Append(ctx, Transaction{FromWalletID: walletA, ToWalletID: walletB, Amount: 50, Type: TypeTransfer, Status: StatusCompleted})
	require.NoError(t, err)
	_, err = repo.Append(ctx, Transaction{FromWalletID: walletA, ToWalletID: walletB, Amount: 150, Type: TypeTransfer, Status: StatusFailed, FailureReason: "insufficient balance"})
	require.NoError(t, err)

	_, err = repo.Append(ctx, Transaction{ID: first, Amount: 1})
	assert.ErrorIs(t, err, ErrExists)

	all, err := repo.ListByWallet(ctx, walletB, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)

	failed, err := repo.ListByWallet(ctx, walletA, Filter{Status: StatusFailed, Type: TypeTransfer})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "insufficient balance", failed[0].FailureReason)
}
