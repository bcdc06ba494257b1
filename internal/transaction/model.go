package transaction

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of one fund-movement attempt.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Type classifies a fund movement.
type Type string

const (
	TypeTransfer   Type = "TRANSFER"
	TypeDeposit    Type = "DEPOSIT"
	TypeWithdrawal Type = "WITHDRAWAL"
)

// Transaction is the immutable audit record of one attempt. Deposits leave
// FromWalletID empty, withdrawals leave ToWalletID empty.
type Transaction struct {
	ID            string    `json:"id"`
	FromWalletID  string    `json:"from_wallet_id"`
	ToWalletID    string    `json:"to_wallet_id"`
	Amount        int64     `json:"amount"`
	Type          Type      `json:"type"`
	Status        Status    `json:"transaction_status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	IsDeleted     bool      `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Involves reports whether walletID is the source or destination.
func (t Transaction) Involves(walletID string) bool {
	return walletID != "" && (t.FromWalletID == walletID || t.ToWalletID == walletID)
}

// Filter narrows a history listing. Zero fields match everything; Since is
// inclusive and Until exclusive.
type Filter struct {
	Since  time.Time
	Until  time.Time
	Type   Type
	Status Status
}

// Matches applies the filter to one record.
func (f Filter) Matches(t Transaction) bool {
	if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !t.CreatedAt.Before(f.Until) {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// ParseType accepts a type name in any case.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return "", nil
	case TypeTransfer, TypeDeposit, TypeWithdrawal:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transaction type %q", s)
	}
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case "":
		return "", nil
	case StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", s)
	}
}
