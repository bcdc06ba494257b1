package wallet

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
}

// NewMemoryRepository constructs an in-memory repository for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet)}
}

func (r *memoryRepository) Save(_ context.Context, wallet Wallet) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[wallet.ID]; exists {
		return "", ErrExists
	}
	if wallet.CurBalance < 0 || wallet.CurBalance > wallet.MaxBalance {
		return "", ErrOutOfBounds
	}
	r.storage[wallet.ID] = wallet
	return wallet.ID, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.storage[id]
	if !ok || wallet.IsDeleted {
		return Wallet{}, ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallets := []Wallet{}
	for _, w := range r.storage {
		if w.UserID == userID && !w.IsDeleted {
			wallets = append(wallets, w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].CreatedAt.Equal(wallets[j].CreatedAt) {
			return wallets[i].ID < wallets[j].ID
		}
		return wallets[i].CreatedAt.Before(wallets[j].CreatedAt)
	})
	return wallets, nil
}

func (r *memoryRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion, newBalance int64) (Wallet, error) {
	updated, err := r.ApplyBalances(ctx, BalanceUpdate{WalletID: id, ExpectedVersion: expectedVersion, NewBalance: newBalance})
	if err != nil {
		return Wallet{}, err
	}
	return updated[0], nil
}

// ApplyBalances validates every update before mutating anything; readers take
// the same lock, so they see either none or all of the changes.
func (r *memoryRepository) ApplyBalances(_ context.Context, updates ...BalanceUpdate) ([]Wallet, error) {
	if _, err := orderUpdates(updates); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		w, ok := r.storage[u.WalletID]
		if !ok || w.IsDeleted || w.Version != u.ExpectedVersion {
			return nil, ErrConflict
		}
		if u.NewBalance < 0 || u.NewBalance > w.MaxBalance {
			return nil, ErrOutOfBounds
		}
	}

	now := time.Now().UTC()
	result := make([]Wallet, 0, len(updates))
	for _, u := range updates {
		w := r.storage[u.WalletID]
		w.CurBalance = u.NewBalance
		w.Version++
		w.UpdatedAt = now
		r.storage[u.WalletID] = w
		result = append(result, w)
	}
	return result, nil
}

func (r *memoryRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.storage[id]
	if !ok || w.IsDeleted {
		return ErrNotFound
	}
	w.IsDeleted = true
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	r.storage[id] = w
	return nil
}
