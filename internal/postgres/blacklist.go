package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/store"
)

// BlacklistStore implements store.BlacklistStore on a pgx pool.
// Read-only: records are managed outside the lifecycle engine.
type BlacklistStore struct {
	pool *pgxpool.Pool
}

var _ store.BlacklistStore = (*BlacklistStore)(nil)

// NewBlacklistStore creates a new PostgreSQL-backed blacklist store.
func NewBlacklistStore(pool *pgxpool.Pool) *BlacklistStore {
	return &BlacklistStore{pool: pool}
}

// FindMatch returns the first record matching the customer email or name
// (exact, case-insensitive). Returns nil, nil when nothing matches.
func (s *BlacklistStore) FindMatch(ctx context.Context, email, name string) (*domain.BlacklistRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, customer_email, customer_name, reason, created_at
		FROM blacklist
		WHERE ($1 <> '' AND lower(customer_email) = lower($1))
		   OR ($2 <> '' AND lower(customer_name) = lower($2))
		LIMIT 1`, email, name)

	var rec domain.BlacklistRecord
	err := row.Scan(&rec.ID, &rec.CustomerEmail, &rec.CustomerName, &rec.Reason, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Internal(err, "postgres.blacklist_match", "failed to check blacklist")
	}
	return &rec, nil
}
