// Package auditlog writes the two-phase audit trail for gateway calls.
//
// An entry is opened synchronously before dispatch and completed exactly
// once after the call resolves, whatever happened to it. Completion writes
// run on a detached context so a dropped client connection cannot abandon
// them, and Drain blocks shutdown until every opened entry is completed.
package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/domain"
)

const writeTimeout = 5 * time.Second

// EventPublisher receives completed entries for the live audit feed.
// Delivery is best-effort; publish failures never affect the call.
type EventPublisher interface {
	PublishAudit(ctx context.Context, e *domain.AuditEntry) error
}

type Recorder struct {
	repo   domain.AuditRepository
	events EventPublisher // may be nil
	wg     sync.WaitGroup
}

func New(repo domain.AuditRepository, events EventPublisher) *Recorder {
	return &Recorder{repo: repo, events: events}
}

// Handle is an opened, not-yet-completed audit entry.
type Handle struct {
	rec   *Recorder
	entry *domain.AuditEntry
	once  sync.Once
}

// Open creates the pending entry. It must succeed before the call is
// dispatched: no audit row, no forwarding.
func (r *Recorder) Open(ctx context.Context, a *domain.Actor, method, path string) (*Handle, error) {
	entry := &domain.AuditEntry{
		ID:          uuid.New(),
		OrgID:       a.OrgID,
		ActorType:   a.Type,
		ActorID:     a.ID,
		Vendor:      a.Vendor,
		ActorName:   a.ActorName,
		ActorEmail:  a.ActorEmail,
		Method:      method,
		Path:        path,
		SyncOutcome: domain.SyncPending,
		OpenedAt:    time.Now().UTC(),
	}

	if err := r.repo.Open(ctx, entry); err != nil {
		return nil, fmt.Errorf("auditlog.Open: %w", err)
	}

	r.wg.Add(1)
	return &Handle{rec: r, entry: entry}, nil
}

// ID returns the entry identifier exposed to the caller via X-Audit-Id.
func (h *Handle) ID() uuid.UUID {
	return h.entry.ID
}

// Complete closes the entry. Safe to call more than once; only the first
// call takes effect, so callers can defer it as a guarantee and still
// complete eagerly on the happy path. Reports whether this call was the one
// that completed the entry.
func (h *Handle) Complete(status int, outcome, syncOutcome string) bool {
	ran := false
	h.once.Do(func() {
		ran = true
		defer h.rec.wg.Done()

		now := time.Now().UTC()
		h.entry.Status = status
		h.entry.Outcome = outcome
		h.entry.SyncOutcome = syncOutcome
		h.entry.Duration = now.Sub(h.entry.OpenedAt)
		h.entry.CompletedAt = &now

		// Detached from the request context: the client may be gone.
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := h.rec.repo.Complete(ctx, h.entry); err != nil {
			log.Error().Err(err).Str("audit_id", h.entry.ID.String()).Msg("auditlog: complete failed")
			return
		}

		if h.rec.events != nil {
			if err := h.rec.events.PublishAudit(ctx, h.entry); err != nil {
				log.Warn().Err(err).Str("audit_id", h.entry.ID.String()).Msg("auditlog: publish failed")
			}
		}
	})
	return ran
}

// SetSyncOutcome records the interpreter's verdict on an already-completed
// entry. The repository only moves pending to a terminal value.
func (r *Recorder) SetSyncOutcome(ctx context.Context, id uuid.UUID, outcome string) {
	if err := r.repo.SetSyncOutcome(ctx, id, outcome); err != nil {
		log.Warn().Err(err).Str("audit_id", id.String()).Str("outcome", outcome).Msg("auditlog: set sync outcome failed")
	}
}

// Drain blocks until all opened entries are completed or ctx expires.
func (r *Recorder) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("auditlog.Drain: %w", ctx.Err())
	}
}
