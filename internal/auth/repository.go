package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Repository is the Postgres adapter for both the user directory and the
// refresh token store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, active, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&user.ID, &user.Email, &user.Active, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}

	return user, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, active, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.Active, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (RefreshTokenRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("generate refresh token id: %w", err)
	}

	now := time.Now().UTC()
	record := RefreshTokenRecord{
		ID:        id.String(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, record.ID, record.UserID, record.TokenHash, record.ExpiresAt, now)
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("insert refresh token: %w", err)
	}

	return record, nil
}

func (r *Repository) FindByHash(ctx context.Context, tokenHash string) (RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at, updated_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(&record.ID, &record.UserID, &record.TokenHash, &record.ExpiresAt, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshTokenRecord{}, ErrRecordNotFound
		}
		return RefreshTokenRecord{}, fmt.Errorf("query refresh token by hash: %w", err)
	}

	return record, nil
}

// DeleteByID reports the affected-row count so the service can use it as a
// compare-and-delete: exactly one caller observes 1 for a given row.
func (r *Repository) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE id = $1
	`, id)
	if err != nil {
		return 0, fmt.Errorf("delete refresh token by id: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("refresh token delete rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) DeleteByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete refresh token by hash: %w", err)
	}

	return nil
}

func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at <= NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

// SeedUser inserts an active user with the given credentials if the email is
// not taken yet. First-run convenience for fresh deployments.
func (r *Repository) SeedUser(ctx context.Context, email, plainPassword string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	plainPassword = strings.TrimSpace(plainPassword)
	if email == "" && plainPassword == "" {
		return nil
	}
	if email == "" || plainPassword == "" {
		return fmt.Errorf("SEED_USER_EMAIL and SEED_USER_PASSWORD are required together")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate user id: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, TRUE, $3, $4, $4)
		ON CONFLICT (email) DO NOTHING
	`, id.String(), email, string(hash), now)
	if err != nil {
		return fmt.Errorf("insert seed user: %w", err)
	}

	return nil
}
