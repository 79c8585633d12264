package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dirgate/dirgate/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Open(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries
		 (id, org_id, actor_type, actor_id, vendor, actor_name, actor_email, method, path, sync_outcome, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.OrgID, e.ActorType, e.ActorID, nilIfEmpty(e.Vendor),
		nilIfEmpty(e.ActorName), nilIfEmpty(e.ActorEmail),
		e.Method, e.Path, e.SyncOutcome, e.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Open: %w", err)
	}

	return nil
}

// Complete closes a pending entry. Completed entries are immutable: a second
// completion matches no row and reports domain.ErrConflict.
func (r *AuditRepo) Complete(ctx context.Context, e *domain.AuditEntry) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE audit_entries
		 SET status = $1, outcome = $2, sync_outcome = $3, duration_ms = $4, completed_at = $5
		 WHERE id = $6 AND completed_at IS NULL`,
		e.Status, e.Outcome, e.SyncOutcome, e.Duration.Milliseconds(), e.CompletedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.Complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("auditRepo.Complete: entry %s already completed: %w", e.ID, domain.ErrConflict)
	}

	return nil
}

// SetSyncOutcome moves sync_outcome from pending to a terminal value. An
// entry already carrying a terminal outcome is left untouched.
func (r *AuditRepo) SetSyncOutcome(ctx context.Context, id uuid.UUID, outcome string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE audit_entries SET sync_outcome = $1
		 WHERE id = $2 AND sync_outcome = $3`,
		outcome, id, domain.SyncPending,
	)
	if err != nil {
		return fmt.Errorf("auditRepo.SetSyncOutcome: %w", err)
	}

	return nil
}

func (r *AuditRepo) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.AuditEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, org_id, actor_type, actor_id, vendor, actor_name, actor_email, method, path,
		        status, outcome, sync_outcome, duration_ms, opened_at, completed_at
		 FROM audit_entries WHERE org_id = $1 AND id = $2`,
		orgID, id,
	)

	e, err := scanAuditEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auditRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("auditRepo.GetByID: %w", err)
	}

	return e, nil
}

// ListByFilter serves the paginated viewer query. Filter clauses are
// appended only for fields the caller actually set.
func (r *AuditRepo) ListByFilter(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error) {
	var (
		where = []string{"org_id = $1"}
		args  = []any{f.OrgID}
	)

	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, clause+"$"+strconv.Itoa(len(args)))
	}

	if f.ActorType != "" {
		add("actor_type = ", f.ActorType)
	}
	if f.ActorID != "" {
		add("actor_id = ", f.ActorID)
	}
	if f.Status != 0 {
		add("status = ", f.Status)
	}
	if !f.Since.IsZero() {
		add("opened_at >= ", f.Since)
	}
	if !f.Until.IsZero() {
		add("opened_at < ", f.Until)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	query := `SELECT id, org_id, actor_type, actor_id, vendor, actor_name, actor_email, method, path,
	                 status, outcome, sync_outcome, duration_ms, opened_at, completed_at
	          FROM audit_entries WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY opened_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.ListByFilter: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		e, scanErr := scanAuditEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("auditRepo.ListByFilter: scan: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditRepo.ListByFilter: rows: %w", err)
	}

	return entries, nil
}

func scanAuditEntry(row pgx.Row) (*domain.AuditEntry, error) {
	var (
		e          domain.AuditEntry
		vendor     *string
		actorName  *string
		actorEmail *string
		status     *int
		outcome    *string
		durationMS *int64
	)

	err := row.Scan(
		&e.ID, &e.OrgID, &e.ActorType, &e.ActorID, &vendor, &actorName, &actorEmail,
		&e.Method, &e.Path,
		&status, &outcome, &e.SyncOutcome, &durationMS, &e.OpenedAt, &e.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Vendor = derefStr(vendor)
	e.ActorName = derefStr(actorName)
	e.ActorEmail = derefStr(actorEmail)
	e.Outcome = derefStr(outcome)
	if status != nil {
		e.Status = *status
	}
	if durationMS != nil {
		e.Duration = durationFromMillis(*durationMS)
	}

	return &e, nil
}
