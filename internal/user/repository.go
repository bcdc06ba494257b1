package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned for absent or soft-deleted users.
	ErrNotFound = errors.New("user not found")
	// ErrExists is returned when a user id is reused.
	ErrExists = errors.New("user exists")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	List(ctx context.Context) ([]User, error)
	AttachWallet(ctx context.Context, userID, walletID string) error
	SoftDelete(ctx context.Context, id string) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	walletIDs := user.WalletIDs
	if walletIDs == nil {
		walletIDs = []string{}
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, name, email, phone, wallet_ids, is_deleted, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)`,
		userID, user.Name, user.Email, user.Phone, walletIDs, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return err
}

// Get fetches a live user by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, name, email, phone, wallet_ids, created_at, updated_at
        FROM users WHERE id = $1 AND NOT is_deleted`, userID)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// List returns every user that has not been soft-deleted, oldest first.
func (r *PostgresRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, email, phone, wallet_ids, created_at, updated_at
        FROM users WHERE NOT is_deleted ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// AttachWallet appends a wallet id to the user's wallet list.
func (r *PostgresRepository) AttachWallet(ctx context.Context, userID, walletID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET wallet_ids = array_append(wallet_ids, $1), updated_at = $2
        WHERE id = $3 AND NOT is_deleted`, walletID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete flags the user as deleted.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET is_deleted = TRUE, updated_at = $1
        WHERE id = $2 AND NOT is_deleted`, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		updatedAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Name, &user.Email, &user.Phone, &user.WalletIDs, &createdAt, &updatedAt); err != nil {
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()
	return user, nil
}
