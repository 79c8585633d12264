package middleware

import (
	"context"

	"github.com/dirgate/dirgate/internal/domain"
)

type contextKey string

const ContextKeyActor contextKey = "actor"

// WithActor returns a context carrying the resolved actor.
func WithActor(ctx context.Context, a *domain.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, a)
}

// ActorFromContext extracts the resolved actor, if any.
func ActorFromContext(ctx context.Context) (*domain.Actor, bool) {
	a, ok := ctx.Value(ContextKeyActor).(*domain.Actor)
	return a, ok
}
