package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirgate/dirgate/internal/actor"
	"github.com/dirgate/dirgate/internal/domain"
)

func TestActorContextRoundtrip(t *testing.T) {
	a := &domain.Actor{Type: domain.ActorService, OrgID: uuid.New(), ID: "svc-1"}

	ctx := WithActor(context.Background(), a)
	got, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = ActorFromContext(context.Background())
	assert.False(t, ok)
}

func TestRateLimitPerOrg(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(ctx, 1, 1)(next)

	serve := func(orgID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/proxy/admin/directory/v1/users", nil)
		a := &domain.Actor{Type: domain.ActorService, OrgID: orgID, ID: "svc"}
		req = req.WithContext(WithActor(req.Context(), a))
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec
	}

	orgA, orgB := uuid.New(), uuid.New()
	assert.Equal(t, http.StatusOK, serve(orgA).Code)

	limitedResp := serve(orgA)
	assert.Equal(t, http.StatusTooManyRequests, limitedResp.Code, "burst of one exhausted")
	assert.Equal(t, "application/json", limitedResp.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(limitedResp.Body.Bytes(), &body))
	assert.Equal(t, float64(http.StatusTooManyRequests), body["status"])

	assert.Equal(t, http.StatusOK, serve(orgB).Code, "organizations are limited independently")
}

type noKeys struct{}

func (noKeys) GetByPrefix(context.Context, string) (*domain.GatewayKey, error) {
	return nil, domain.ErrNotFound
}

func (noKeys) UpdateLastUsed(context.Context, uuid.UUID) error { return nil }

func TestResolveRejectsWithJSON(t *testing.T) {
	resolver := actor.NewResolver("0123456789abcdef0123456789abcdef", noKeys{})
	h := Resolve(resolver)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler must not run for an unattributed call")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/proxy/admin/directory/v1/users", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.Equal(t, "Unauthorized", body["title"])
}

func TestRateLimitSkipsWithoutActor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	limited := RateLimit(ctx, 1, 1)(next)

	for range 3 {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
