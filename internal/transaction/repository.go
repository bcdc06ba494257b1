package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned for absent or soft-deleted records.
	ErrNotFound = errors.New("transaction not found")
	// ErrExists is returned when a record id is reused; records are write-once.
	ErrExists = errors.New("transaction exists")
)

// Repository is the append-only store of transaction records.
type Repository interface {
	Append(ctx context.Context, tx Transaction) (string, error)
	Get(ctx context.Context, id string) (Transaction, error)
	ListByWallet(ctx context.Context, walletID string, filter Filter) ([]Transaction, error)
}

// NewID returns a lexically sortable, time-ordered record id.
func NewID() string {
	return ulid.Make().String()
}

// prepare fills the id and timestamps of a record about to be appended.
func prepare(tx Transaction) Transaction {
	if tx.ID == "" {
		tx.ID = NewID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.UpdatedAt = tx.CreatedAt
	return tx
}

// PostgresRepository stores transaction records in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed transaction repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, from_wallet_id, to_wallet_id, amount, type, transaction_status, failure_reason, created_at, updated_at`

// Append inserts a new record.
func (r *PostgresRepository) Append(ctx context.Context, tx Transaction) (string, error) {
	tx = prepare(tx)
	cmd, err := r.db.Exec(ctx, `INSERT INTO transactions (`+txColumns+`, is_deleted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE) ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.FromWalletID, tx.ToWalletID, tx.Amount, string(tx.Type), string(tx.Status),
		tx.FailureReason, tx.CreatedAt.UTC(), tx.UpdatedAt.UTC())
	if err != nil {
		return "", err
	}
	if cmd.RowsAffected() == 0 {
		return "", ErrExists
	}
	return tx.ID, nil
}

// Get fetches one live record.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1 AND NOT is_deleted`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return tx, err
}

// ListByWallet returns live records where walletID is source or destination, in
// creation order.
func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string, filter Filter) ([]Transaction, error) {
	var (
		conds = []string{"NOT is_deleted", "(from_wallet_id = $1 OR to_wallet_id = $1)"}
		args  = []any{walletID}
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.Since.IsZero() {
		add("created_at >= $%d", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		add("created_at < $%d", filter.Until.UTC())
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("transaction_status = $%d", string(filter.Status))
	}

	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx        Transaction
		kind      string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&tx.ID, &tx.FromWalletID, &tx.ToWalletID, &tx.Amount, &kind, &status,
		&tx.FailureReason, &createdAt, &updatedAt); err != nil {
		return Transaction{}, err
	}
	tx.Type = Type(kind)
	tx.Status = Status(status)
	tx.CreatedAt = createdAt.UTC()
	tx.UpdatedAt = updatedAt.UTC()
	return tx, nil
}
