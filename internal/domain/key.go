package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KeyClass separates service-held keys from vendor-held keys. Vendor keys may
// only be used with explicit human attribution headers.
type KeyClass string

const (
	KeyClassService KeyClass = "service"
	KeyClassVendor  KeyClass = "vendor"
)

// GatewayKey is an API key accepted by the gateway. Only the SHA-256 hash is
// stored; the first eight characters of the raw key serve as the lookup
// prefix. Keys are minted by the external setup flow.
type GatewayKey struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	Class      KeyClass
	Name       string
	Vendor     string // set only for KeyClassVendor
	KeyHash    string
	Prefix     string
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

type KeyRepository interface {
	GetByPrefix(ctx context.Context, prefix string) (*GatewayKey, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
}
