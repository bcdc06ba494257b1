package transaction

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]Transaction
	order []string
}

// NewMemoryRepository builds an in-memory transaction store.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]Transaction)}
}

func (r *memoryRepository) Append(_ context.Context, tx Transaction) (string, error) {
	tx = prepare(tx)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[tx.ID]; exists {
		return "", ErrExists
	}
	r.byID[tx.ID] = tx
	r.order = append(r.order, tx.ID)
	return tx.ID, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.byID[id]
	if !ok || tx.IsDeleted {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepository) ListByWallet(_ context.Context, walletID string, filter Filter) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	txs := []Transaction{}
	for _, id := range r.order {
		tx := r.byID[id]
		if tx.IsDeleted || !tx.Involves(walletID) || !filter.Matches(tx) {
			continue
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
	return txs, nil
}
