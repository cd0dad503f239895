package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const reapTimeout = 10 * time.Second

// Service orchestrates login, refresh rotation and logout over the injected
// collaborators. It keeps no mutable state of its own; the refresh token
// store is the only thing concurrent requests contend on.
type Service struct {
	users  UserDirectory
	tokens RefreshTokenStore
	codec  *TokenCodec
	audit  AuditLogger
}

func NewService(users UserDirectory, tokens RefreshTokenStore, codec *TokenCodec, audit AuditLogger) *Service {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Service{
		users:  users,
		tokens: tokens,
		codec:  codec,
		audit:  audit,
	}
}

// Login verifies the password and issues a fresh token pair. Every failure
// mode before issuance collapses into ErrInvalidCredentials so the response
// never reveals whether the account exists, is inactive, or had a typo'd
// password.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}
	if !user.Active {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, User{}, ErrInvalidCredentials
	}

	pair, _, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return TokenPair{}, User{}, err
	}

	s.reapAsync()

	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a new pair, rotating the stored
// record. Concurrent calls with the same token are resolved after the fact:
// the delete of the parent record reports how many rows it removed, and a
// caller that removed none lost the race and tears down its own child record.
func (s *Service) Refresh(ctx context.Context, rawToken string) (TokenPair, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return TokenPair{}, ErrExpiredOrInvalidToken
	}

	tokenHash := s.codec.HashToken(rawToken)
	parent, err := s.tokens.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return TokenPair{}, ErrExpiredOrInvalidToken
		}
		return TokenPair{}, fmt.Errorf("find refresh token: %w", err)
	}

	if !parent.ExpiresAt.After(time.Now().UTC()) {
		_, _ = s.tokens.DeleteByID(ctx, parent.ID)
		return TokenPair{}, ErrExpiredOrInvalidToken
	}

	// The store row proves liveness; the signature proves the token was
	// legitimately issued. Both checks stay independent so a forged input
	// that collides into a stored hash still fails here.
	userID, err := s.codec.VerifyRefresh(rawToken)
	if err != nil {
		_, _ = s.tokens.DeleteByID(ctx, parent.ID)
		return TokenPair{}, ErrExpiredOrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil || !user.Active {
		_, _ = s.tokens.DeleteByID(ctx, parent.ID)
		return TokenPair{}, ErrExpiredOrInvalidToken
	}

	pair, child, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	removed, err := s.tokens.DeleteByID(ctx, parent.ID)
	if err != nil {
		_, _ = s.tokens.DeleteByID(ctx, child.ID)
		return TokenPair{}, fmt.Errorf("delete rotated refresh token: %w", err)
	}
	if removed == 0 {
		// A concurrent refresh already consumed the parent. Tear down the
		// child created above so one parent never leaves two live
		// descendants. Even if this delete cannot be confirmed, the child
		// token was never returned to anyone and its 256-bit jti makes it
		// unguessable.
		_, _ = s.tokens.DeleteByID(ctx, child.ID)
		s.audit.Audit(AuditAlert, "refresh", "token_reuse", map[string]any{
			"record_id":  parent.ID,
			"token_hash": tokenHash,
		}, user.ID)
		return TokenPair{}, ErrExpiredOrInvalidToken
	}

	s.reapAsync()

	return pair, nil
}

// Logout revokes a refresh token and returns its owner. Unknown tokens are
// reported distinctly and audit-logged: double logout is harmless, but a
// stream of unknown-token logouts is worth an anomaly alert.
func (s *Service) Logout(ctx context.Context, rawToken string) (string, error) {
	rawToken = strings.TrimSpace(rawToken)
	tokenHash := s.codec.HashToken(rawToken)

	record, err := s.tokens.FindByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			s.audit.Audit(AuditAlert, "logout", "unknown_token", map[string]any{
				"token_hash": tokenHash,
			}, "")
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("find refresh token: %w", err)
	}

	// No expiry check: deleting an already-expired record is harmless.
	if err := s.tokens.DeleteByHash(ctx, tokenHash); err != nil {
		return "", fmt.Errorf("delete refresh token: %w", err)
	}

	s.audit.Audit(AuditInfo, "logout", "session_revoked", map[string]any{
		"record_id": record.ID,
	}, record.UserID)

	return record.UserID, nil
}

// CurrentUser resolves the subject of a verified access token. Deactivated
// accounts are reported as unknown so a stale access token stops working the
// moment the account is disabled.
func (s *Service) CurrentUser(ctx context.Context, userID string) (User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return User{}, ErrUserNotFound
	}

	return user, nil
}

// DeleteExpiredTokens bulk-removes expired refresh records. Housekeeping
// only: rotation correctness never depends on it having run.
func (s *Service) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	deleted, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	s.audit.Audit(AuditDebug, "reap", "expired_tokens", map[string]any{
		"deleted": deleted,
	}, "")

	return deleted, nil
}

// issueTokens produces an access token plus a persisted refresh record. The
// pair is only handed out when the record write succeeded; an access token
// computed before a failed write is discarded with the error.
func (s *Service) issueTokens(ctx context.Context, userID string) (TokenPair, RefreshTokenRecord, error) {
	access, expiresIn, err := s.codec.IssueAccess(userID)
	if err != nil {
		return TokenPair{}, RefreshTokenRecord{}, fmt.Errorf("issue access token: %w", err)
	}

	rawRefresh, expiresAt, err := s.codec.IssueRefresh(userID)
	if err != nil {
		return TokenPair{}, RefreshTokenRecord{}, fmt.Errorf("issue refresh token: %w", err)
	}

	record, err := s.tokens.Create(ctx, userID, s.codec.HashToken(rawRefresh), expiresAt)
	if err != nil {
		return TokenPair{}, RefreshTokenRecord{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: rawRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}, record, nil
}

// reapAsync triggers expired-record cleanup without blocking or failing the
// calling operation.
func (s *Service) reapAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
		defer cancel()
		_, _ = s.DeleteExpiredTokens(ctx)
	}()
}

var (
	// ErrInvalidCredentials covers every login failure: unknown email,
	// inactive account, wrong password. Deliberately undifferentiated.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredOrInvalidToken covers every refresh failure: unknown hash,
	// expired record, bad signature, inactive user, lost rotation race.
	ErrExpiredOrInvalidToken = errors.New("expired or invalid refresh token")

	// ErrTokenNotFound is logout on a token the store does not know.
	ErrTokenNotFound = errors.New("refresh token not found")
)
