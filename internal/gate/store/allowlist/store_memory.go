package allowlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"allowgate/internal/gate/models"
	derrors "allowgate/pkg/domain-errors"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// MemoryStore is an in-memory allowlist store for unit tests and local
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[models.WalletAddress]models.AllowlistEntry
	nextID  int64
	clock   Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for created_at timestamps.
func WithClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemory constructs an empty in-memory allowlist store.
func NewMemory(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[models.WalletAddress]models.AllowlistEntry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) InsertAddress(_ context.Context, address models.WalletAddress) (models.AllowlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[address]; exists {
		return models.AllowlistEntry{}, derrors.New(derrors.CodeConflict, "address already allowlisted")
	}
	s.nextID++
	entry := models.AllowlistEntry{
		ID:        s.nextID,
		Address:   address,
		CreatedAt: s.clock(),
	}
	s.entries[address] = entry
	return entry, nil
}

func (s *MemoryStore) RemoveAddress(_ context.Context, address models.WalletAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[address]; !exists {
		return derrors.New(derrors.CodeNotFound, "address not allowlisted")
	}
	delete(s.entries, address)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, address models.WalletAddress) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.entries[address]
	return exists, nil
}

func (s *MemoryStore) ScanSince(_ context.Context, cursor models.Cursor, limit int) ([]models.AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.AllowlistEntry
	for _, entry := range s.entries {
		if cursor.Before(models.CursorFor(entry)) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return models.CursorFor(entries[i]).Before(models.CursorFor(entries[j]))
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.entries)), nil
}
