package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dirgate/dirgate/internal/domain"
)

// KeyRepo reads gateway keys. Minting and revocation belong to the external
// setup flow; the gateway only looks keys up and stamps last use.
type KeyRepo struct {
	pool *pgxpool.Pool
}

func NewKeyRepo(pool *pgxpool.Pool) *KeyRepo {
	return &KeyRepo{pool: pool}
}

func (r *KeyRepo) GetByPrefix(ctx context.Context, prefix string) (*domain.GatewayKey, error) {
	var k domain.GatewayKey
	var vendor *string

	err := r.pool.QueryRow(ctx,
		`SELECT id, org_id, class, name, vendor, key_hash, prefix, expires_at, created_at, last_used_at
		 FROM gateway_keys WHERE prefix = $1`,
		prefix,
	).Scan(&k.ID, &k.OrgID, &k.Class, &k.Name, &vendor, &k.KeyHash, &k.Prefix,
		&k.ExpiresAt, &k.CreatedAt, &k.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("keyRepo.GetByPrefix: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("keyRepo.GetByPrefix: %w", err)
	}

	k.Vendor = derefStr(vendor)

	return &k, nil
}

func (r *KeyRepo) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE gateway_keys SET last_used_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("keyRepo.UpdateLastUsed: %w", err)
	}

	return nil
}
