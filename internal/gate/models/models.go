// Package models holds the gate's shared domain types: normalized wallet
// addresses, allowlist entries, and the sync cursor watermark.
package models

import (
	"strings"
	"time"

	derrors "allowgate/pkg/domain-errors"
)

// WalletAddress is the unit of membership: trimmed, case-folded, and
// charset-checked. Construct via NormalizeAddress.
type WalletAddress string

// NormalizeAddress canonicalizes raw caller input. Two inputs that differ
// only in case or surrounding whitespace map to the same membership key.
// Returns CodeInvalidInput for empty input or characters outside [a-z0-9].
func NormalizeAddress(raw string) (WalletAddress, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", derrors.New(derrors.CodeInvalidInput, "wallet address is empty")
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "", derrors.New(derrors.CodeInvalidInput, "wallet address contains invalid characters")
		}
	}
	return WalletAddress(s), nil
}

func (a WalletAddress) String() string { return string(a) }

// AllowlistEntry is one durable allowlist row. ID and CreatedAt are assigned
// by the store; together they form the scan order.
type AllowlistEntry struct {
	ID        int64
	Address   WalletAddress
	CreatedAt time.Time
}

// Cursor marks sync progress through the store as a strictly monotonic
// (created_at, id) watermark. The zero Cursor scans from the beginning.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// Before reports whether c precedes other in scan order.
func (c Cursor) Before(other Cursor) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID < other.ID
	}
	return c.CreatedAt.Before(other.CreatedAt)
}

// CursorFor returns the watermark an entry advances the cursor to.
func CursorFor(entry AllowlistEntry) Cursor {
	return Cursor{CreatedAt: entry.CreatedAt, ID: entry.ID}
}

// Verdict is the gate's final answer for one check.
type Verdict string

const (
	VerdictAllowed Verdict = "allowed"
	VerdictDenied  Verdict = "denied"
)

// ChangeKind classifies an allowlist mutation for sync notifications.
type ChangeKind string

const (
	// ChangeAdded means a new address was inserted; the sync manager can
	// fold it in incrementally.
	ChangeAdded ChangeKind = "added"
	// ChangeRemoved means an address was deleted; insert-only filters
	// cannot reflect it, so the sync manager schedules a rebuild.
	ChangeRemoved ChangeKind = "removed"
)

// Change is one allowlist mutation event.
type Change struct {
	Kind    ChangeKind    `json:"kind"`
	Address WalletAddress `json:"address"`
}
