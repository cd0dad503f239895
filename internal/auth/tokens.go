package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// refreshEntropyBytes is the size of the random jti carried by every
	// refresh token. 32 bytes keeps child tokens unguessable even if the
	// signing key leaks.
	refreshEntropyBytes = 32
)

// TokenCodec signs and verifies access and refresh tokens. It holds no
// storage; liveness of refresh tokens is decided by the store, not here.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess signs a short-lived access token for userID. The token is
// stateless and never persisted.
func (c *TokenCodec) IssueAccess(userID string) (string, int64, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": tokenTypeAccess,
		"iat": now.Unix(),
		"exp": now.Add(c.accessTTL).Unix(),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign access token: %w", err)
	}

	return encoded, int64(c.accessTTL.Seconds()), nil
}

// IssueRefresh signs a refresh token for userID. The token embeds a fresh
// 256-bit random jti, so two tokens for the same user never collide and the
// raw value cannot be reconstructed from anything the store holds.
func (c *TokenCodec) IssueRefresh(userID string) (string, time.Time, error) {
	entropy := make([]byte, refreshEntropyBytes)
	if _, err := rand.Read(entropy); err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh entropy: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(c.refreshTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": tokenTypeRefresh,
		"jti": hex.EncodeToString(entropy),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return encoded, expiresAt, nil
}

// VerifyRefresh checks the signature and claims of a raw refresh token and
// returns the owning user id. A passing verification says nothing about
// liveness: the store row is authoritative for that.
func (c *TokenCodec) VerifyRefresh(raw string) (string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse refresh token: %w", err)
	}
	if !token.Valid {
		return "", errBadRefreshClaims
	}
	if tokenType, _ := claims["typ"].(string); tokenType != tokenTypeRefresh {
		return "", errBadRefreshClaims
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", errBadRefreshClaims
	}

	return userID, nil
}

// HashToken derives the storage key for a raw token. One-way by construction;
// the raw token never touches the store or the logs.
func (c *TokenCodec) HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

var errBadRefreshClaims = errors.New("refresh token claims are invalid")
