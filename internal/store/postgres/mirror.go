package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dirgate/dirgate/internal/domain"
)

type MirrorRepo struct {
	pool *pgxpool.Pool
}

func NewMirrorRepo(pool *pgxpool.Pool) *MirrorRepo {
	return &MirrorRepo{pool: pool}
}

// Upsert writes one mirrored entity, last write wins. Each upsert is its own
// atomic unit; concurrent writers need no coordination beyond the unique key
// (org_id, entity_type, upstream_id).
func (r *MirrorRepo) Upsert(ctx context.Context, e *domain.MirroredEntity) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("mirrorRepo.Upsert: marshal attributes: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO mirrored_entities (org_id, entity_type, upstream_id, attributes, last_synced_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (org_id, entity_type, upstream_id)
		 DO UPDATE SET attributes = EXCLUDED.attributes, last_synced_at = EXCLUDED.last_synced_at`,
		e.OrgID, e.Type, e.UpstreamID, attrs, e.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("mirrorRepo.Upsert: %w", err)
	}

	return nil
}

func (r *MirrorRepo) GetByUpstreamID(ctx context.Context, orgID uuid.UUID, typ domain.EntityType, upstreamID string) (*domain.MirroredEntity, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT org_id, entity_type, upstream_id, attributes, last_synced_at
		 FROM mirrored_entities
		 WHERE org_id = $1 AND entity_type = $2 AND upstream_id = $3`,
		orgID, typ, upstreamID,
	)

	e, err := scanMirroredEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mirrorRepo.GetByUpstreamID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mirrorRepo.GetByUpstreamID: %w", err)
	}

	return e, nil
}

func (r *MirrorRepo) ListByType(ctx context.Context, orgID uuid.UUID, typ domain.EntityType, limit, offset int) ([]*domain.MirroredEntity, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT org_id, entity_type, upstream_id, attributes, last_synced_at
		 FROM mirrored_entities
		 WHERE org_id = $1 AND entity_type = $2
		 ORDER BY last_synced_at DESC
		 LIMIT $3 OFFSET $4`,
		orgID, typ, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("mirrorRepo.ListByType: %w", err)
	}
	defer rows.Close()

	var entities []*domain.MirroredEntity
	for rows.Next() {
		e, scanErr := scanMirroredEntity(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("mirrorRepo.ListByType: scan: %w", scanErr)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mirrorRepo.ListByType: rows: %w", err)
	}

	return entities, nil
}

func scanMirroredEntity(row pgx.Row) (*domain.MirroredEntity, error) {
	var e domain.MirroredEntity
	var attrs []byte

	if err := row.Scan(&e.OrgID, &e.Type, &e.UpstreamID, &attrs, &e.LastSyncedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}

	return &e, nil
}
