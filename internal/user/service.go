package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

	// ErrInvalidInput wraps signup validation failures.
	ErrInvalidInput = errors.New("invalid user input")
)

// Service manages user lifecycle.
type Service struct {
	repo Repository
}

// NewService creates a new user service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates the signup fields and stores a user without wallets.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)

	switch {
	case input.Name == "":
		return User{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !emailRegex.MatchString(input.Email):
		return User{}, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	case !phoneRegex.MatchString(input.Phone):
		return User{}, fmt.Errorf("%w: phone is malformed", ErrInvalidInput)
	}

	now := time.Now().UTC()
	user := User{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		WalletIDs: []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Get returns a live user.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns all users that are not soft-deleted.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// AttachWallet records walletID in the user's wallet list.
func (s *Service) AttachWallet(ctx context.Context, userID, walletID string) error {
	return s.repo.AttachWallet(ctx, userID, walletID)
}

// Delete soft-deletes the user. Wallets are left untouched.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}
