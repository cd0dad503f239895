package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process RefreshTokenStore. Every method takes the
// mutex for its whole body, which gives it the same atomic delete-by-id
// semantics the SQL adapter gets from the database.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]RefreshTokenRecord
	idByHsh map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]RefreshTokenRecord),
		idByHsh: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, userID, tokenHash string, expiresAt time.Time) (RefreshTokenRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return RefreshTokenRecord{}, err
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

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[record.ID] = record
	m.idByHsh[record.TokenHash] = record.ID

	return record, nil
}

func (m *MemoryStore) FindByHash(_ context.Context, tokenHash string) (RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.idByHsh[tokenHash]
	if !ok {
		return RefreshTokenRecord{}, ErrRecordNotFound
	}

	return m.byID[id], nil
}

func (m *MemoryStore) DeleteByID(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byID[id]
	if !ok {
		return 0, nil
	}

	delete(m.byID, id)
	delete(m.idByHsh, record.TokenHash)

	return 1, nil
}

func (m *MemoryStore) DeleteByHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.idByHsh[tokenHash]; ok {
		delete(m.byID, id)
		delete(m.idByHsh, tokenHash)
	}

	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, record := range m.byID {
		if !record.ExpiresAt.After(now) {
			delete(m.byID, id)
			delete(m.idByHsh, record.TokenHash)
			deleted++
		}
	}

	return deleted, nil
}

// Len reports the number of live records. Test and debugging helper.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
