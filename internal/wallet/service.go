package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/user"
)

// Owners resolves and updates the users that wallets belong to.
type Owners interface {
	Get(ctx context.Context, id string) (user.User, error)
	AttachWallet(ctx context.Context, userID, walletID string) error
}

// Service provisions wallets for existing users.
type Service struct {
	repo       Repository
	owners     Owners
	maxBalance int64
	logger     *slog.Logger
}

// NewService builds a wallet service. Every wallet it creates gets maxBalance as
// its immutable ceiling.
func NewService(repo Repository, owners Owners, maxBalance int64, logger *slog.Logger) *Service {
	return &Service{repo: repo, owners: owners, maxBalance: maxBalance, logger: logger}
}

// Create provisions an empty wallet for userID and records it on the user. A
// missing user yields user.ErrNotFound and nothing is stored.
func (s *Service) Create(ctx context.Context, userID string) (Wallet, error) {
	if _, err := s.owners.Get(ctx, userID); err != nil {
		return Wallet{}, err
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:         uuid.New().String(),
		UserID:     userID,
		MaxBalance: s.maxBalance,
		CurBalance: 0,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if _, err := s.repo.Save(ctx, w); err != nil {
		return Wallet{}, fmt.Errorf("save wallet: %w", err)
	}

	if err := s.owners.AttachWallet(ctx, userID, w.ID); err != nil {
		// The user vanished between the lookup and the attach; hide the orphan.
		if delErr := s.repo.SoftDelete(ctx, w.ID); delErr != nil && s.logger != nil {
			s.logger.Error("wallet.create orphan cleanup failed",
				slog.String("wallet_id", w.ID), slog.Any("error", delErr))
		}
		return Wallet{}, err
	}

	if s.logger != nil {
		s.logger.Info("wallet.create completed",
			slog.String("wallet_id", w.ID),
			slog.String("user_id", userID),
			slog.Int64("max_balance", w.MaxBalance),
		)
	}
	return w, nil
}

// Get retrieves a live wallet.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// ListByUser returns the live wallets of a live user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Wallet, error) {
	if _, err := s.owners.Get(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

// Delete soft-deletes the wallet.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("wallet.delete completed", slog.String("wallet_id", id))
	}
	return nil
}

// IsNotFound reports whether err means the wallet or its owner does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, user.ErrNotFound)
}
