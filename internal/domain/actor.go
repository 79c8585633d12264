package domain

import "github.com/google/uuid"

// ActorType classifies who is responsible for a gateway call.
type ActorType string

const (
	// ActorHuman is a person authenticated through the session subsystem.
	ActorHuman ActorType = "human"
	// ActorService is a machine caller holding a service-class gateway key.
	ActorService ActorType = "service"
	// ActorVendorAttributed is a vendor-held key acting on behalf of a named
	// human; the acting human's name and email are mandatory.
	ActorVendorAttributed ActorType = "vendor_attributed"
)

// Actor is the resolved identity behind an inbound gateway call.
type Actor struct {
	Type  ActorType
	OrgID uuid.UUID

	// ID is the human's email for ActorHuman, otherwise the gateway key id.
	ID string

	// Vendor, ActorName and ActorEmail are set only for ActorVendorAttributed.
	Vendor     string
	ActorName  string
	ActorEmail string
}
