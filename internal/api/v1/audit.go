package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/dirgate/dirgate/internal/domain"
	"github.com/dirgate/dirgate/internal/server/middleware"
)

type ListAuditInput struct {
	ActorType string    `query:"actor_type" enum:"human,service,vendor_attributed" required:"false" doc:"Filter by actor class"`
	ActorID   string    `query:"actor_id" required:"false" doc:"Filter by actor identifier"`
	Status    int       `query:"status" required:"false" doc:"Filter by upstream response status"`
	Since     time.Time `query:"since" required:"false" doc:"Entries opened at or after this instant"`
	Until     time.Time `query:"until" required:"false" doc:"Entries opened before this instant"`
	Limit     int       `query:"limit" default:"100" maximum:"500" doc:"Page size"`
	Offset    int       `query:"offset" required:"false" doc:"Page offset"`
}

type ListAuditOutput struct {
	Body []*domain.AuditEntry
}

type GetAuditInput struct {
	ID uuid.UUID `path:"id" doc:"Audit entry ID"`
}

type GetAuditOutput struct {
	Body *domain.AuditEntry
}

// RegisterAuditRoutes exposes the read-only audit trail for the viewer UI.
// Every query is scoped to the caller's organization.
func RegisterAuditRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-entries",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit entries",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ListAuditInput) (*ListAuditOutput, error) {
		a, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing actor context")
		}

		entries, err := store.Audit().ListByFilter(ctx, domain.AuditFilter{
			OrgID:     a.OrgID,
			ActorType: domain.ActorType(input.ActorType),
			ActorID:   input.ActorID,
			Status:    input.Status,
			Since:     input.Since,
			Until:     input.Until,
			Limit:     input.Limit,
			Offset:    input.Offset,
		})
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list audit entries", err)
		}

		return &ListAuditOutput{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-audit-entry",
		Method:      http.MethodGet,
		Path:        "/audit/{id}",
		Summary:     "Get an audit entry by ID",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *GetAuditInput) (*GetAuditOutput, error) {
		a, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing actor context")
		}

		entry, err := store.Audit().GetByID(ctx, a.OrgID, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("audit entry not found")
			}
			return nil, huma.Error500InternalServerError("failed to get audit entry", err)
		}

		return &GetAuditOutput{Body: entry}, nil
	})
}
