package allowlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"allowgate/internal/gate/models"
	derrors "allowgate/pkg/domain-errors"
)

func TestMemoryStoreInsertAndExists(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	entry, err := store.InsertAddress(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, models.WalletAddress("0xabc"), entry.Address)
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	exists, err := store.Exists(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "0xdef")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStoreDuplicateInsert(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.InsertAddress(ctx, "0xabc")
	require.NoError(t, err)

	_, err = store.InsertAddress(ctx, "0xabc")
	require.Error(t, err)
	assert.Equal(t, derrors.CodeConflict, derrors.CodeOf(err))
}

func TestMemoryStoreRemove(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_, err := store.InsertAddress(ctx, "0xabc")
	require.NoError(t, err)
	require.NoError(t, store.RemoveAddress(ctx, "0xabc"))

	exists, err := store.Exists(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, exists)

	err = store.RemoveAddress(ctx, "0xabc")
	require.Error(t, err)
	assert.Equal(t, derrors.CodeNotFound, derrors.CodeOf(err))
}

func TestMemoryStoreScanSince(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store := NewMemory(WithClock(func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Second)
	}))
	ctx := context.Background()

	for _, addr := range []models.WalletAddress{"0xaaa", "0xbbb", "0xccc", "0xddd"} {
		_, err := store.InsertAddress(ctx, addr)
		require.NoError(t, err)
	}

	t.Run("zero cursor scans from the beginning", func(t *testing.T) {
		entries, err := store.ScanSince(ctx, models.Cursor{}, 10)
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, models.WalletAddress("0xaaa"), entries[0].Address)
		assert.Equal(t, models.WalletAddress("0xddd"), entries[3].Address)
	})

	t.Run("limit paginates", func(t *testing.T) {
		page, err := store.ScanSince(ctx, models.Cursor{}, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)

		rest, err := store.ScanSince(ctx, models.CursorFor(page[1]), 10)
		require.NoError(t, err)
		require.Len(t, rest, 2)
		assert.Equal(t, models.WalletAddress("0xccc"), rest[0].Address)
	})

	t.Run("cursor past the end returns empty page", func(t *testing.T) {
		all, err := store.ScanSince(ctx, models.Cursor{}, 10)
		require.NoError(t, err)

		entries, err := store.ScanSince(ctx, models.CursorFor(all[len(all)-1]), 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestMemoryStoreCount(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = store.InsertAddress(ctx, "0xabc")
	require.NoError(t, err)
	_, err = store.InsertAddress(ctx, "0xdef")
	require.NoError(t, err)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
