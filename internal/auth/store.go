package auth

import (
	"context"
	"errors"
	"time"
)

// UserDirectory is the read-only view of the account system this subsystem
// consumes. Implementations must return ErrUserNotFound for unknown users.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}

// RefreshTokenStore persists refresh token records. The refresh_tokens table
// is the only shared mutable state of the protocol, and DeleteByID reporting
// the affected-row count is the only synchronization primitive it needs.
type RefreshTokenStore interface {
	// Create inserts a new record and returns it with its store-assigned id.
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (RefreshTokenRecord, error)

	// FindByHash returns the live record for tokenHash, or ErrRecordNotFound.
	FindByHash(ctx context.Context, tokenHash string) (RefreshTokenRecord, error)

	// DeleteByID removes a record and reports how many rows were actually
	// removed. Deleting an absent id is not an error, it removes 0 rows.
	DeleteByID(ctx context.Context, id string) (int64, error)

	// DeleteByHash removes a record by its token hash. Absent hashes are a no-op.
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteExpired removes every record whose expiry has passed and returns
	// the count. Repeat calls on a clean store delete 0.
	DeleteExpired(ctx context.Context) (int64, error)
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("refresh token record not found")
)
