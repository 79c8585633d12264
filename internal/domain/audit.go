package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Call outcomes recorded when an audit entry is completed.
const (
	AuditOutcomeOK       = "ok"       // a response was received from upstream
	AuditOutcomeTimeout  = "timeout"  // dispatch deadline exceeded
	AuditOutcomeNetError = "network"  // transport failure before any response
	AuditOutcomeRejected = "rejected" // refused by the gateway, never dispatched
	AuditOutcomeInternal = "internal" // gateway-local failure after the entry opened
)

// Sync outcomes recorded after the interpreter has inspected the response.
const (
	SyncPending       = "pending"        // entry completed, interpreter not yet run
	SyncApplied       = "synced"         // at least one entity upserted
	SyncNotApplicable = "not_applicable" // no recognizable entity shape
	SyncSkipped       = "skipped"        // non-2xx or non-JSON response
	SyncFailed        = "failed"         // recognition or upsert error
)

// AuditEntry records one gateway call. An entry is opened before dispatch and
// completed exactly once after the call resolves; completed entries are
// immutable except for the one-shot SyncOutcome written by the interpreter.
type AuditEntry struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	ActorType ActorType
	ActorID   string
	Vendor    string

	// ActorName and ActorEmail identify the acting human behind a
	// vendor_attributed call; empty for the other actor classes.
	ActorName  string
	ActorEmail string

	Method      string
	Path        string
	Status      int // 0 until completed, or for calls never dispatched
	Duration    time.Duration
	Outcome     string
	SyncOutcome string
	OpenedAt    time.Time
	CompletedAt *time.Time
}

// AuditFilter selects entries for the paginated viewer query.
type AuditFilter struct {
	OrgID     uuid.UUID
	ActorType ActorType // empty = any
	ActorID   string    // empty = any
	Status    int       // 0 = any
	Since     time.Time // zero = unbounded
	Until     time.Time // zero = unbounded
	Limit     int
	Offset    int
}

type AuditRepository interface {
	Open(ctx context.Context, e *AuditEntry) error
	Complete(ctx context.Context, e *AuditEntry) error
	// SetSyncOutcome transitions sync_outcome from pending to a terminal
	// value. It is a no-op on entries already carrying a terminal outcome.
	SetSyncOutcome(ctx context.Context, id uuid.UUID, outcome string) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*AuditEntry, error)
	ListByFilter(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)
}
