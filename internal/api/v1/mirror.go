package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dirgate/dirgate/internal/domain"
	"github.com/dirgate/dirgate/internal/server/middleware"
)

type ListMirrorInput struct {
	Type   string `path:"type" enum:"user,group,org_unit,membership" doc:"Entity type"`
	Limit  int    `query:"limit" default:"100" maximum:"500" doc:"Page size"`
	Offset int    `query:"offset" required:"false" doc:"Page offset"`
}

type ListMirrorOutput struct {
	Body []*domain.MirroredEntity
}

type GetMirrorInput struct {
	Type       string `path:"type" enum:"user,group,org_unit,membership" doc:"Entity type"`
	UpstreamID string `path:"upstreamID" doc:"Upstream entity identifier"`
}

type GetMirrorOutput struct {
	Body *domain.MirroredEntity
}

// RegisterMirrorRoutes exposes the mirror cache to the directory pages.
// Readers must tolerate staleness or absence; the mirror is refreshed only
// as a side effect of proxied traffic.
func RegisterMirrorRoutes(api huma.API, store DataStore) {
	huma.Register(api, huma.Operation{
		OperationID: "list-mirrored-entities",
		Method:      http.MethodGet,
		Path:        "/mirror/{type}",
		Summary:     "List mirrored entities of one type",
		Tags:        []string{"Mirror"},
	}, func(ctx context.Context, input *ListMirrorInput) (*ListMirrorOutput, error) {
		a, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing actor context")
		}

		entities, err := store.Mirror().ListByType(ctx, a.OrgID, domain.EntityType(input.Type), input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list mirrored entities", err)
		}

		return &ListMirrorOutput{Body: entities}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mirrored-entity",
		Method:      http.MethodGet,
		Path:        "/mirror/{type}/{upstreamID}",
		Summary:     "Get one mirrored entity",
		Tags:        []string{"Mirror"},
	}, func(ctx context.Context, input *GetMirrorInput) (*GetMirrorOutput, error) {
		a, ok := middleware.ActorFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing actor context")
		}

		entity, err := store.Mirror().GetByUpstreamID(ctx, a.OrgID, domain.EntityType(input.Type), input.UpstreamID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("entity not mirrored")
			}
			return nil, huma.Error500InternalServerError("failed to get mirrored entity", err)
		}

		return &GetMirrorOutput{Body: entity}, nil
	})
}
