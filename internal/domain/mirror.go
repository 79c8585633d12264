package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the kind of directory object held in the mirror.
type EntityType string

const (
	EntityUser       EntityType = "user"
	EntityGroup      EntityType = "group"
	EntityOrgUnit    EntityType = "org_unit"
	EntityMembership EntityType = "membership"
)

// MirroredEntity is a best-effort local copy of an upstream directory object,
// captured opportunistically from proxied responses. (OrgID, Type, UpstreamID)
// is unique; writes are last-write-wins upserts. Readers must tolerate
// staleness or absence.
type MirroredEntity struct {
	OrgID        uuid.UUID
	Type         EntityType
	UpstreamID   string
	Attributes   map[string]any
	LastSyncedAt time.Time
}

type MirrorRepository interface {
	Upsert(ctx context.Context, e *MirroredEntity) error
	GetByUpstreamID(ctx context.Context, orgID uuid.UUID, typ EntityType, upstreamID string) (*MirroredEntity, error)
	ListByType(ctx context.Context, orgID uuid.UUID, typ EntityType, limit, offset int) ([]*MirroredEntity, error)
}
