package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DelegatedCredential is the per-organization service credential used to act
// against the upstream directory provider. Rows are written by the external
// setup flow; this core only reads them. PrivateKey holds the PEM key
// material encrypted with the vault (never plaintext at rest).
type DelegatedCredential struct {
	OrgID      uuid.UUID
	Principal  string // upstream service-account identity
	Subject    string // directory admin the credential impersonates
	PrivateKey string // vault-encrypted PEM
	Scopes     []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CredentialRepository interface {
	GetByOrg(ctx context.Context, orgID uuid.UUID) (*DelegatedCredential, error)
}
