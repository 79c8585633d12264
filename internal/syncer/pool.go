package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/domain"
	"github.com/dirgate/dirgate/internal/obs"
)

const jobTimeout = 10 * time.Second

// Job is one captured 2xx response body awaiting interpretation.
type Job struct {
	OrgID   uuid.UUID
	AuditID uuid.UUID
	Body    []byte
}

// OutcomeSetter records the interpreter's verdict on the audit entry.
type OutcomeSetter interface {
	SetSyncOutcome(ctx context.Context, id uuid.UUID, outcome string)
}

// Pool runs entity recognition and mirror upserts on a bounded set of
// background workers. Delivery is best-effort: when the queue is full the
// job is dropped and the audit entry marked failed, never blocking or
// failing the gateway call that produced it.
type Pool struct {
	mirror   domain.MirrorRepository
	outcomes OutcomeSetter
	jobs     chan Job
	workers  int

	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewPool(mirror domain.MirrorRepository, outcomes OutcomeSetter, workers, queueSize int) *Pool {
	return &Pool{
		mirror:   mirror,
		outcomes: outcomes,
		jobs:     make(chan Job, queueSize),
		workers:  workers,
	}
}

// Start launches the workers. Idempotent.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for range p.workers {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				for job := range p.jobs {
					p.process(job)
				}
			}()
		}
	})
}

// Enqueue hands a job to the pool without blocking. Returns false when the
// queue is full; the caller records the drop on the audit entry.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		log.Warn().Str("audit_id", job.AuditID.String()).Msg("syncer: queue full, dropping job")
		return false
	}
}

// Close stops accepting jobs and waits for queued work to finish or ctx to
// expire.
func (p *Pool) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.jobs) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("syncer.Close: %w", ctx.Err())
	}
}

// process interprets one body. Every failure path, panics included, ends in
// a sync outcome on the audit entry and nothing else.
func (p *Pool) process(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	outcome := p.run(ctx, job)

	obs.ObserveSyncOutcome(outcome)
	p.outcomes.SetSyncOutcome(ctx, job.AuditID, outcome)
}

func (p *Pool) run(ctx context.Context, job Job) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("audit_id", job.AuditID.String()).Msg("syncer: worker panic")
			outcome = domain.SyncFailed
		}
	}()

	entities, err := Recognize(job.Body)
	if err != nil {
		log.Warn().Err(err).Str("audit_id", job.AuditID.String()).Msg("syncer: recognition failed")
		return domain.SyncFailed
	}
	if len(entities) == 0 {
		return domain.SyncNotApplicable
	}

	now := time.Now().UTC()
	for _, ent := range entities {
		err := p.mirror.Upsert(ctx, &domain.MirroredEntity{
			OrgID:        job.OrgID,
			Type:         ent.Type,
			UpstreamID:   ent.UpstreamID,
			Attributes:   ent.Attributes,
			LastSyncedAt: now,
		})
		if err != nil {
			log.Warn().Err(err).
				Str("audit_id", job.AuditID.String()).
				Str("entity_type", string(ent.Type)).
				Str("upstream_id", ent.UpstreamID).
				Msg("syncer: upsert failed")
			return domain.SyncFailed
		}
	}

	return domain.SyncApplied
}
