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

// CredentialRepo reads delegated credentials. Rows are written and rotated
// by the external setup flow; this core never mutates them.
type CredentialRepo struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

func (r *CredentialRepo) GetByOrg(ctx context.Context, orgID uuid.UUID) (*domain.DelegatedCredential, error) {
	var c domain.DelegatedCredential

	err := r.pool.QueryRow(ctx,
		`SELECT org_id, principal, subject, private_key_enc, scopes, created_at, updated_at
		 FROM delegated_credentials WHERE org_id = $1`,
		orgID,
	).Scan(&c.OrgID, &c.Principal, &c.Subject, &c.PrivateKey, &c.Scopes, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credentialRepo.GetByOrg: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.GetByOrg: %w", err)
	}

	return &c, nil
}
