// Package ports defines shared interfaces for the gate module. Interfaces
// live here when consumed by more than one package to avoid duplication.
package ports

import (
	"context"

	"allowgate/internal/gate/models"
)

// AllowlistStore is the durable, authoritative record of eligible addresses.
type AllowlistStore interface {
	// InsertAddress creates an entry for a normalized address. Returns
	// CodeConflict if the address already exists.
	InsertAddress(ctx context.Context, address models.WalletAddress) (models.AllowlistEntry, error)

	// RemoveAddress deletes an entry. Returns CodeNotFound if absent.
	RemoveAddress(ctx context.Context, address models.WalletAddress) error

	// Exists performs the exact point lookup the gate escalates to.
	Exists(ctx context.Context, address models.WalletAddress) (bool, error)

	// ScanSince returns up to limit entries strictly after cursor, ordered
	// by (created_at, id). Restartable from any cursor; an empty page means
	// the scan caught up.
	ScanSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.AllowlistEntry, error)

	// Count returns the current number of entries, used to size rebuilds.
	Count(ctx context.Context) (int64, error)
}

// ChangeNotifier propagates allowlist mutations to sync loops so they can
// wake before the next poll tick. Delivery is best effort; the polling
// baseline guarantees eventual pickup either way.
type ChangeNotifier interface {
	// Publish announces a mutation.
	Publish(ctx context.Context, change models.Change) error

	// Subscribe returns a channel of mutations. The channel closes when ctx
	// is cancelled.
	Subscribe(ctx context.Context) (<-chan models.Change, error)
}
