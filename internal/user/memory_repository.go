package user

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.ID]; exists {
		return ErrExists
	}
	user.WalletIDs = append([]string{}, user.WalletIDs...)
	r.users[user.ID] = user
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted {
		return User{}, ErrNotFound
	}
	return clone(user), nil
}

func (r *memoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		if user.IsDeleted {
			continue
		}
		users = append(users, clone(user))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *memoryRepository) AttachWallet(_ context.Context, userID, walletID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok || user.IsDeleted {
		return ErrNotFound
	}
	user.WalletIDs = append(append([]string{}, user.WalletIDs...), walletID)
	user.UpdatedAt = time.Now().UTC()
	r.users[userID] = user
	return nil
}

func (r *memoryRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted {
		return ErrNotFound
	}
	user.IsDeleted = true
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

// clone detaches the wallet id slice so callers never share it with the store.
func clone(user User) User {
	user.WalletIDs = append([]string{}, user.WalletIDs...)
	return user
}
