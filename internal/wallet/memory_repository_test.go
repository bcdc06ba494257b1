package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedWallet(t *testing.T, repo Repository, id string, balance, max int64) Wallet {
	t.Helper()
	w := Wallet{ID: id, UserID: "u", MaxBalance: max, CurBalance: balance, Version: 1, CreatedAt: time.Now().UTC()}
	if _, err := repo.Save(context.Background(), w); err != nil {
		t.Fatalf("save %s: %v", id, err)
	}
	return w
}

func TestConditionalUpdateDetectsStaleVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	w := seedWallet(t, repo, "a", 100, 1_000)

	updated, err := repo.ConditionalUpdate(ctx, w.ID, w.Version, 150)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if updated.CurBalance != 150 || updated.Version != w.Version+1 {
		t.Fatalf("unexpected wallet after update: %+v", updated)
	}

	if _, err := repo.ConditionalUpdate(ctx, w.ID, w.Version, 10); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestApplyBalancesIsAllOrNothing(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := seedWallet(t, repo, "a", 100, 1_000)
	b := seedWallet(t, repo, "b", 20, 200)

	_, err := repo.ApplyBalances(ctx,
		BalanceUpdate{WalletID: a.ID, ExpectedVersion: a.Version, NewBalance: 50},
		BalanceUpdate{WalletID: b.ID, ExpectedVersion: b.Version + 7, NewBalance: 70},
	)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := repo.Get(ctx, a.ID)
	if got.CurBalance != 100 || got.Version != a.Version {
		t.Fatalf("first wallet partially applied: %+v", got)
	}

	_, err = repo.ApplyBalances(ctx,
		BalanceUpdate{WalletID: a.ID, ExpectedVersion: a.Version, NewBalance: 50},
		BalanceUpdate{WalletID: b.ID, ExpectedVersion: b.Version, NewBalance: 250},
	)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}

	out, err := repo.ApplyBalances(ctx,
		BalanceUpdate{WalletID: a.ID, ExpectedVersion: a.Version, NewBalance: 50},
		BalanceUpdate{WalletID: b.ID, ExpectedVersion: b.Version, NewBalance: 70},
	)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out[0].CurBalance != 50 || out[1].CurBalance != 70 {
		t.Fatalf("unexpected balances: %+v", out)
	}
}

func TestApplyBalancesRejectsDuplicates(t *testing.T) {
	repo := NewMemoryRepository()
	a := seedWallet(t, repo, "a", 100, 1_000)

	_, err := repo.ApplyBalances(context.Background(),
		BalanceUpdate{WalletID: a.ID, ExpectedVersion: a.Version, NewBalance: 50},
		BalanceUpdate{WalletID: a.ID, ExpectedVersion: a.Version, NewBalance: 60},
	)
	if err == nil {
		t.Fatal("expected duplicate update error")
	}
}

func TestOrderUpdatesRejectsUUIDSpellings(t *testing.T) {
	id := uuid.NewString()
	_, err := orderUpdates([]BalanceUpdate{
		{WalletID: id, ExpectedVersion: 1, NewBalance: 50},
		{WalletID: strings.ToUpper(id), ExpectedVersion: 1, NewBalance: 60},
	})
	if err == nil {
		t.Fatal("expected two spellings of one wallet to be rejected")
	}
}

func TestSoftDeleteInvalidatesVersion(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := seedWallet(t, repo, "a", 100, 1_000)

	if err := repo.SoftDelete(ctx, a.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := repo.ConditionalUpdate(ctx, a.ID, a.Version, 0); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on deleted wallet, got %v", err)
	}
}
