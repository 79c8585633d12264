package v1

import "github.com/dirgate/dirgate/internal/domain"

// DataStore is the narrow store surface the read-only API needs.
type DataStore interface {
	Audit() domain.AuditRepository
	Mirror() domain.MirrorRepository
}
