// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/tim-admin/internal/model"
)

// UserRepository stores back-office accounts.
type UserRepository interface {
	// Create inserts a new account and fills its ID and CreatedAt.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// GetByUsername loads an account by username.
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	// UpdatePassword replaces the password hash and salt.
	UpdatePassword(ctx context.Context, id int64, hash, salt []byte) error
}

// TokenRepository stores hashes of issued refresh tokens.
type TokenRepository interface {
	// Save records a refresh token hash for userID.
	Save(ctx context.Context, userID int64, hash []byte, expiresAt time.Time) error
	// Lookup returns the owner of an unexpired token hash.
	Lookup(ctx context.Context, hash []byte) (int64, error)
	// DeleteExpired removes expired rows and reports how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// ContentRepository is CRUD over one site section. Values are keyed by column name.
type ContentRepository[T any] interface {
	// List returns one page of records, newest first, and the total match count.
	List(ctx context.Context, q model.ListQuery) ([]T, int, error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, values map[string]any) (T, error)
	// Update changes only the given columns.
	Update(ctx context.Context, id int64, values map[string]any) (T, error)
	Delete(ctx context.Context, id int64) error
}
