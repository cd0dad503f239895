package auth

import "time"

// User is the credential view of an account as the user directory exposes it.
// This subsystem reads users, it never mutates them.
type User struct {
	ID           string
	Email        string
	Active       bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshTokenRecord is the persisted shadow of an issued refresh token.
// TokenHash is the SHA-256 hex of the raw token; the raw value is never stored.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
