package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned for absent or soft-deleted wallets.
	ErrNotFound = errors.New("wallet not found")
	// ErrConflict signals that a wallet changed since it was read.
	ErrConflict = errors.New("wallet modified concurrently")
	// ErrOutOfBounds is returned when an update would leave a balance outside [0, max].
	ErrOutOfBounds = errors.New("balance out of bounds")
	// ErrExists is returned when a wallet id is reused.
	ErrExists = errors.New("wallet exists")
)

const checkViolation = "23514"

// Repository persists wallets and guards balance changes with a version check.
type Repository interface {
	Save(ctx context.Context, wallet Wallet) (string, error)
	Get(ctx context.Context, id string) (Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]Wallet, error)
	ConditionalUpdate(ctx context.Context, id string, expectedVersion, newBalance int64) (Wallet, error)
	// ApplyBalances commits every update or none of them.
	ApplyBalances(ctx context.Context, updates ...BalanceUpdate) ([]Wallet, error)
	SoftDelete(ctx context.Context, id string) error
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, user_id, max_balance, cur_balance, version, created_at, updated_at`

// Save inserts a wallet record.
func (r *PostgresRepository) Save(ctx context.Context, wallet Wallet) (string, error) {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return "", err
	}
	userID, err := uuid.Parse(wallet.UserID)
	if err != nil {
		return "", err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, max_balance, cur_balance, version, is_deleted, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`,
		walletID, userID, wallet.MaxBalance, wallet.CurBalance, wallet.Version, wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	if err != nil {
		return "", err
	}
	return walletID.String(), nil
}

// Get fetches a live wallet by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 AND NOT is_deleted`, walletID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

// ListByUser returns the live wallets owned by userID.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Wallet, error) {
	ownerID, err := uuid.Parse(userID)
	if err != nil {
		return []Wallet{}, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE user_id = $1 AND NOT is_deleted ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ConditionalUpdate sets the balance of a single wallet if its version still matches.
func (r *PostgresRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion, newBalance int64) (Wallet, error) {
	updated, err := r.ApplyBalances(ctx, BalanceUpdate{WalletID: id, ExpectedVersion: expectedVersion, NewBalance: newBalance})
	if err != nil {
		return Wallet{}, err
	}
	return updated[0], nil
}

// ApplyBalances runs every update inside one transaction, touching rows in id
// order so concurrent multi-wallet updates cannot deadlock.
func (r *PostgresRepository) ApplyBalances(ctx context.Context, updates ...BalanceUpdate) ([]Wallet, error) {
	ordered, err := orderUpdates(updates)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := time.Now().UTC()
	byID := make(map[string]Wallet, len(ordered))
	for _, u := range ordered {
		walletID, err := uuid.Parse(u.WalletID)
		if err != nil {
			return nil, ErrNotFound
		}
		row := tx.QueryRow(ctx, `UPDATE wallets SET cur_balance = $1, version = version + 1, updated_at = $2
            WHERE id = $3 AND version = $4 AND NOT is_deleted
            RETURNING `+walletColumns, u.NewBalance, now, walletID, u.ExpectedVersion)
		w, err := scanWallet(row)
		if err != nil {
			var pgErr *pgconn.PgError
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return nil, ErrConflict
			case errors.As(err, &pgErr) && pgErr.Code == checkViolation:
				return nil, ErrOutOfBounds
			default:
				return nil, fmt.Errorf("update wallet %s: %w", u.WalletID, err)
			}
		}
		byID[w.ID] = w
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	result := make([]Wallet, 0, len(updates))
	for _, u := range updates {
		result = append(result, byID[normalizeID(u.WalletID)])
	}
	return result, nil
}

// SoftDelete hides the wallet from every read and bumps its version so in-flight
// updates fail their version check.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET is_deleted = TRUE, version = version + 1, updated_at = $1
        WHERE id = $2 AND NOT is_deleted`, time.Now().UTC(), walletID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w         Wallet
		idVal     uuid.UUID
		ownerID   uuid.UUID
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&idVal, &ownerID, &w.MaxBalance, &w.CurBalance, &w.Version, &createdAt, &updatedAt); err != nil {
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.UserID = ownerID.String()
	w.CreatedAt = createdAt.UTC()
	w.UpdatedAt = updatedAt.UTC()
	return w, nil
}

// orderUpdates sorts a copy of updates by canonical wallet id and rejects
// duplicates, including two spellings of the same uuid.
func orderUpdates(updates []BalanceUpdate) ([]BalanceUpdate, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no balance updates")
	}
	ordered := append([]BalanceUpdate(nil), updates...)
	sort.Slice(ordered, func(i, j int) bool {
		return normalizeID(ordered[i].WalletID) < normalizeID(ordered[j].WalletID)
	})
	for i := 1; i < len(ordered); i++ {
		if normalizeID(ordered[i].WalletID) == normalizeID(ordered[i-1].WalletID) {
			return nil, fmt.Errorf("duplicate balance update for wallet %s", ordered[i].WalletID)
		}
	}
	return ordered, nil
}

func normalizeID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
