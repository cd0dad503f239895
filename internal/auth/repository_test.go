package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewRepository(database), mock
}

func userRows(user User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "active", "password_hash", "created_at", "updated_at"}).
		AddRow(user.ID, user.Email, user.Active, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
}

func TestRepositoryGetByEmail(t *testing.T) {
	repo, mock := newMockRepository(t)
	want := User{ID: "u1", Email: "user@example.com", Active: true, PasswordHash: "hash"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("user@example.com").
		WillReturnRows(userRows(want))

	got, err := repo.GetByEmail(context.Background(), "USER@example.com")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, got.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByEmailNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateAssignsID(t *testing.T) {
	repo, mock := newMockRepository(t)
	expiresAt := time.Now().UTC().Add(30 * 24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs(sqlmock.AnyArg(), "u1", "hash-1", expiresAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record, err := repo.Create(context.Background(), "u1", "hash-1", expiresAt)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "u1", record.UserID)
	assert.Equal(t, expiresAt, record.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFindByHashNotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens")).
		WithArgs("missing-hash").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByHash(context.Background(), "missing-hash")
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteByIDReportsAffectedRows(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.DeleteByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = repo.DeleteByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteExpiredReturnsCount(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteExpiredWrapsErrors(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.DeleteExpired(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete expired refresh tokens")
	require.NoError(t, mock.ExpectationsWereMet())
}
