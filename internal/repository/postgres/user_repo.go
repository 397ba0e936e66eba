package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
	"github.com/and161185/tim-admin/internal/repository"
)

// UserRepo implements repository.UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

var _ repository.UserRepository = (*UserRepo)(nil)

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO users (username, role, pwd_hash, salt)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q, a.Username, a.Role, a.PwdHash, a.Salt).Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", a.Username, errs.ErrAlreadyExists)
	}
	return err
}

const selectUser = `SELECT id, username, role, pwd_hash, salt, created_at FROM users`

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	return scanAccount(r.db.Pool.QueryRow(ctx, selectUser+` WHERE id=$1`, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return scanAccount(r.db.Pool.QueryRow(ctx, selectUser+` WHERE username=$1`, username))
}

// UpdatePassword stores a new hash and salt.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash, salt []byte) error {
	const q = `UPDATE users SET pwd_hash=$2, salt=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Username, &a.Role, &a.PwdHash, &a.Salt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// TokenRepo implements repository.TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

var _ repository.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo constructs a refresh token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

func (r *TokenRepo) Save(ctx context.Context, userID int64, hash []byte, expiresAt time.Time) error {
	const q = `INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, hash, userID, expiresAt)
	return err
}

// Lookup returns errs.ErrNotFound for unknown or expired hashes.
func (r *TokenRepo) Lookup(ctx context.Context, hash []byte) (int64, error) {
	const q = `SELECT user_id FROM refresh_tokens WHERE token_hash=$1 AND expires_at > now()`
	var userID int64
	err := r.db.Pool.QueryRow(ctx, q, hash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errs.ErrNotFound
	}
	return userID, err
}

func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
