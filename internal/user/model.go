package user

import "time"

// User represents a wallet owner. Wallets are referenced by id only.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	WalletIDs []string  `json:"wallet_ids"`
	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput carries the signup fields.
type CreateInput struct {
	Name  string
	Email string
	Phone string
}
