package actor_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirgate/dirgate/internal/actor"
	"github.com/dirgate/dirgate/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- configurable mock KeyRepository ---

type mockKeyRepo struct {
	key          *domain.GatewayKey
	getErr       error
	lastUsedIDs  []uuid.UUID
	updateCalled int
}

func (m *mockKeyRepo) GetByPrefix(context.Context, string) (*domain.GatewayKey, error) {
	return m.key, m.getErr
}

func (m *mockKeyRepo) UpdateLastUsed(_ context.Context, id uuid.UUID) error {
	m.updateCalled++
	m.lastUsedIDs = append(m.lastUsedIDs, id)
	return nil
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

func serviceKey(orgID uuid.UUID, raw string) *domain.GatewayKey {
	return &domain.GatewayKey{
		ID:      uuid.New(),
		OrgID:   orgID,
		Class:   domain.KeyClassService,
		Name:    "ci-bot",
		KeyHash: hashKey(raw),
		Prefix:  raw[:8],
	}
}

func vendorKey(orgID uuid.UUID, raw, vendor string) *domain.GatewayKey {
	k := serviceKey(orgID, raw)
	k.Class = domain.KeyClassVendor
	k.Vendor = vendor
	return k
}

func signSession(t *testing.T, orgID, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"oid": orgID,
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// --- tests ---

func TestResolveNoCredentials(t *testing.T) {
	rs := actor.NewResolver(testSecret, &mockKeyRepo{getErr: domain.ErrNotFound})

	r := httptest.NewRequest("GET", "/proxy/directory/v1/users", nil)
	_, err := rs.Resolve(context.Background(), r)

	assert.ErrorIs(t, err, domain.ErrAttribution)
}

func TestResolveHuman(t *testing.T) {
	orgID := uuid.New()
	rs := actor.NewResolver(testSecret, &mockKeyRepo{})

	t.Run("valid session token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/proxy/directory/v1/users", nil)
		r.Header.Set("Authorization", "Bearer "+signSession(t, orgID.String(), "admin@example.com"))

		a, err := rs.Resolve(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, domain.ActorHuman, a.Type)
		assert.Equal(t, orgID, a.OrgID)
		assert.Equal(t, "admin@example.com", a.ID)
	})

	t.Run("garbage token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/proxy/x", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")

		_, err := rs.Resolve(context.Background(), r)
		assert.ErrorIs(t, err, domain.ErrAttribution)
	})

	t.Run("wrong signing secret", func(t *testing.T) {
		other := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"oid": orgID.String(), "sub": "x@example.com", "exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := other.SignedString([]byte(strings.Repeat("x", 32)))
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/proxy/x", nil)
		r.Header.Set("Authorization", "Bearer "+signed)

		_, resolveErr := rs.Resolve(context.Background(), r)
		assert.ErrorIs(t, resolveErr, domain.ErrAttribution)
	})

	t.Run("missing org claim", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "x@example.com", "exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := tok.SignedString([]byte(testSecret))
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/proxy/x", nil)
		r.Header.Set("Authorization", "Bearer "+signed)

		_, resolveErr := rs.Resolve(context.Background(), r)
		assert.ErrorIs(t, resolveErr, domain.ErrAttribution)
	})
}

func TestResolveServiceKey(t *testing.T) {
	orgID := uuid.New()
	raw := "dg_1234567890abcdef1234567890abcdef"
	repo := &mockKeyRepo{key: serviceKey(orgID, raw)}
	rs := actor.NewResolver(testSecret, repo)

	r := httptest.NewRequest("GET", "/proxy/directory/v1/users", nil)
	r.Header.Set(actor.HeaderAPIKey, raw)

	a, err := rs.Resolve(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, domain.ActorService, a.Type)
	assert.Equal(t, orgID, a.OrgID)
	assert.Equal(t, repo.key.ID.String(), a.ID)
	assert.Equal(t, 1, repo.updateCalled, "last_used_at should be stamped")
}

func TestResolveServiceKeyRejections(t *testing.T) {
	orgID := uuid.New()
	raw := "dg_1234567890abcdef1234567890abcdef"

	t.Run("hash mismatch", func(t *testing.T) {
		repo := &mockKeyRepo{key: serviceKey(orgID, "dg_completely_different_key_material")}
		repo.key.Prefix = raw[:8]
		rs := actor.NewResolver(testSecret, repo)

		r := httptest.NewRequest("GET", "/proxy/x", nil)
		r.Header.Set(actor.HeaderAPIKey, raw)

		_, err := rs.Resolve(context.Background(), r)
		assert.ErrorIs(t, err, domain.ErrAttribution)
	})

	t.Run("expired key", func(t *testing.T) {
		k := serviceKey(orgID, raw)
		past := time.Now().Add(-time.Hour)
		k.ExpiresAt = &past
		rs := actor.NewResolver(testSecret, &mockKeyRepo{key: k})

		r := httptest.NewRequest("GET", "/proxy/x", nil)
		r.Header.Set(actor.HeaderAPIKey, raw)

		_, err := rs.Resolve(context.Background(), r)
		assert.ErrorIs(t, err, domain.ErrAttribution)
	})

	t.Run("too short", func(t *testing.T) {
		rs := actor.NewResolver(testSecret, &mockKeyRepo{})

		r := httptest.NewRequest("GET", "/proxy/x", nil)
		r.Header.Set(actor.HeaderAPIKey, "abc")

		_, err := rs.Resolve(context.Background(), r)
		assert.ErrorIs(t, err, domain.ErrAttribution)
	})
}

func TestResolveVendorKey(t *testing.T) {
	orgID := uuid.New()
	raw := "dg_feedfacefeedfacefeedfacefeedface"

	t.Run("with attribution headers", func(t *testing.T) {
		repo := &mockKeyRepo{key: vendorKey(orgID, raw, "acme-msp")}
		rs := actor.NewResolver(testSecret, repo)

		r := httptest.NewRequest("POST", "/proxy/directory/v1/users", nil)
		r.Header.Set(actor.HeaderAPIKey, raw)
		r.Header.Set(actor.HeaderActorName, "Jo Admin")
		r.Header.Set(actor.HeaderActorEmail, "jo@customer.example")

		a, err := rs.Resolve(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, domain.ActorVendorAttributed, a.Type)
		assert.Equal(t, "acme-msp", a.Vendor)
		assert.Equal(t, "Jo Admin", a.ActorName)
		assert.Equal(t, "jo@customer.example", a.ActorEmail)
	})

	missingHeaderCases := []struct {
		name  string
		name_ string
		email string
	}{
		{name: "missing both", name_: "", email: ""},
		{name: "missing name", name_: "", email: "jo@customer.example"},
		{name: "missing email", name_: "Jo Admin", email: ""},
		{name: "whitespace only", name_: "   ", email: "jo@customer.example"},
	}

	for _, tc := range missingHeaderCases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockKeyRepo{key: vendorKey(orgID, raw, "acme-msp")}
			rs := actor.NewResolver(testSecret, repo)

			r := httptest.NewRequest("POST", "/proxy/directory/v1/users", nil)
			r.Header.Set(actor.HeaderAPIKey, raw)
			if tc.name_ != "" {
				r.Header.Set(actor.HeaderActorName, tc.name_)
			}
			if tc.email != "" {
				r.Header.Set(actor.HeaderActorEmail, tc.email)
			}

			_, err := rs.Resolve(context.Background(), r)
			assert.ErrorIs(t, err, domain.ErrAttribution)
		})
	}
}
