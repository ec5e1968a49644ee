package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "allowgate/pkg/domain-errors"
)

func TestNormalizeAddress(t *testing.T) {
	t.Run("folds case and trims whitespace", func(t *testing.T) {
		for raw, want := range map[string]WalletAddress{
			"0xABC":        "0xabc",
			"  0xdef \t":   "0xdef",
			"0xDeAdBeEf42": "0xdeadbeef42",
			"plainwallet":  "plainwallet",
		} {
			got, err := NormalizeAddress(raw)
			require.NoError(t, err, "input %q", raw)
			assert.Equal(t, want, got)
		}
	})

	t.Run("rejects empty and invalid charset", func(t *testing.T) {
		for _, raw := range []string{"", "   ", "0x abc", "0xabc!", "0xabc\n0xdef", "wallet-with-dash"} {
			_, err := NormalizeAddress(raw)
			require.Error(t, err, "input %q", raw)
			assert.Equal(t, derrors.CodeInvalidInput, derrors.CodeOf(err))
		}
	})
}

func TestCursorOrdering(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	earlier := Cursor{CreatedAt: base, ID: 1}
	sameTimeLaterID := Cursor{CreatedAt: base, ID: 2}
	laterTime := Cursor{CreatedAt: base.Add(time.Second), ID: 1}

	assert.True(t, earlier.Before(sameTimeLaterID), "id breaks created_at ties")
	assert.True(t, earlier.Before(laterTime))
	assert.True(t, sameTimeLaterID.Before(laterTime), "created_at dominates id")
	assert.False(t, sameTimeLaterID.Before(earlier))
	assert.False(t, earlier.Before(earlier), "ordering is strict")
}

func TestCursorFor(t *testing.T) {
	entry := AllowlistEntry{
		ID:        7,
		Address:   "0xabc",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	cursor := CursorFor(entry)
	assert.Equal(t, entry.ID, cursor.ID)
	assert.Equal(t, entry.CreatedAt, cursor.CreatedAt)
}
