// Package allowlist persists the authoritative set of eligible wallet
// addresses.
package allowlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"allowgate/internal/gate/models"
	derrors "allowgate/pkg/domain-errors"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint hits.
const pgUniqueViolation = "23505"

// PostgresStore persists allowlist entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed allowlist store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertAddress(ctx context.Context, address models.WalletAddress) (models.AllowlistEntry, error) {
	entry := models.AllowlistEntry{Address: address}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO bloom_allowlist (wallet_address) VALUES ($1) RETURNING id, created_at`,
		address.String(),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.AllowlistEntry{}, derrors.New(derrors.CodeConflict, "address already allowlisted")
		}
		return models.AllowlistEntry{}, fmt.Errorf("insert allowlist entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) RemoveAddress(ctx context.Context, address models.WalletAddress) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bloom_allowlist WHERE wallet_address = $1`, address.String())
	if err != nil {
		return fmt.Errorf("remove allowlist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove allowlist entry: %w", err)
	}
	if affected == 0 {
		return derrors.New(derrors.CodeNotFound, "address not allowlisted")
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, address models.WalletAddress) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bloom_allowlist WHERE wallet_address = $1)`,
		address.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check allowlist entry: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ScanSince(ctx context.Context, cursor models.Cursor, limit int) ([]models.AllowlistEntry, error) {
	// Row-value comparison keeps the scan strictly after the watermark even
	// when several entries share one created_at.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, wallet_address, created_at
		   FROM bloom_allowlist
		  WHERE (created_at, id) > ($1, $2)
		  ORDER BY created_at, id
		  LIMIT $3`,
		cursor.CreatedAt, cursor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("scan allowlist entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AllowlistEntry
	for rows.Next() {
		var entry models.AllowlistEntry
		var addr string
		if err := rows.Scan(&entry.ID, &addr, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan allowlist row: %w", err)
		}
		entry.Address = models.WalletAddress(addr)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan allowlist entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM bloom_allowlist`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count allowlist entries: %w", err)
	}
	return count, nil
}
