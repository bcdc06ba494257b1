package wallet

import "time"

// Wallet is a balance-holding account bound to one user. CurBalance stays within
// [0, MaxBalance] in every committed state; Version increases on every write.
type Wallet struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	MaxBalance int64     `json:"max_balance"`
	CurBalance int64     `json:"cur_balance"`
	Version    int64     `json:"version"`
	IsDeleted  bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BalanceUpdate is one compare-and-swap instruction: set CurBalance to NewBalance
// if the stored wallet is still at ExpectedVersion.
type BalanceUpdate struct {
	WalletID        string
	ExpectedVersion int64
	NewBalance      int64
}
