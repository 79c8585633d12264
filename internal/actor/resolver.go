// Package actor classifies the caller behind an inbound gateway request.
//
// Three credential classes are accepted: human session tokens (Bearer JWT
// minted by the session subsystem), service-class gateway keys, and
// vendor-class gateway keys. Vendor keys additionally require the acting
// human's name and email in headers; without both the call is refused before
// anything is dispatched upstream.
package actor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/domain"
)

// Headers carrying vendor attribution. Stripped before forwarding upstream.
const (
	HeaderActorName  = "X-Actor-Name"
	HeaderActorEmail = "X-Actor-Email"
	HeaderAPIKey     = "X-API-Key"
)

const keyPrefixLen = 8 // first 8 chars of the raw key used for lookup

type sessionClaims struct {
	jwt.RegisteredClaims
	OrgID string `json:"oid"`
}

// Resolver turns inbound authentication material into a domain.Actor.
type Resolver struct {
	jwtSecret string
	keys      domain.KeyRepository
}

func NewResolver(jwtSecret string, keys domain.KeyRepository) *Resolver {
	return &Resolver{jwtSecret: jwtSecret, keys: keys}
}

// Resolve classifies the caller. It must succeed before any upstream
// credential is fetched or any call is dispatched.
func (rs *Resolver) Resolve(ctx context.Context, r *http.Request) (*domain.Actor, error) {
	if tok := extractBearer(r); tok != "" {
		actor, err := rs.resolveHuman(tok)
		if err != nil {
			return nil, err
		}
		return actor, nil
	}

	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return rs.resolveKey(ctx, r, key)
	}

	return nil, fmt.Errorf("actor.Resolve: no credentials presented: %w", domain.ErrAttribution)
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}

func (rs *Resolver) resolveHuman(tokenStr string) (*domain.Actor, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
		return []byte(rs.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("actor.Resolve: invalid session token: %w", domain.ErrAttribution)
	}

	orgID, err := uuid.Parse(claims.OrgID)
	if err != nil {
		return nil, fmt.Errorf("actor.Resolve: session token missing organization: %w", domain.ErrAttribution)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("actor.Resolve: session token missing subject: %w", domain.ErrAttribution)
	}

	return &domain.Actor{
		Type:  domain.ActorHuman,
		OrgID: orgID,
		ID:    claims.Subject,
	}, nil
}

func (rs *Resolver) resolveKey(ctx context.Context, r *http.Request, rawKey string) (*domain.Actor, error) {
	if len(rawKey) < keyPrefixLen {
		return nil, fmt.Errorf("actor.Resolve: malformed key: %w", domain.ErrAttribution)
	}

	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	key, err := rs.keys.GetByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return nil, fmt.Errorf("actor.Resolve: unknown key: %w", domain.ErrAttribution)
	}
	if key.KeyHash != keyHash {
		return nil, fmt.Errorf("actor.Resolve: key hash mismatch: %w", domain.ErrAttribution)
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("actor.Resolve: key expired: %w", domain.ErrAttribution)
	}

	actor := &domain.Actor{
		OrgID: key.OrgID,
		ID:    key.ID.String(),
	}

	switch key.Class {
	case domain.KeyClassService:
		actor.Type = domain.ActorService
	case domain.KeyClassVendor:
		// Vendor keys must carry the acting human. Hard failure without both.
		name := strings.TrimSpace(r.Header.Get(HeaderActorName))
		email := strings.TrimSpace(r.Header.Get(HeaderActorEmail))
		if name == "" || email == "" {
			return nil, fmt.Errorf("actor.Resolve: vendor key %s requires %s and %s: %w",
				key.ID, HeaderActorName, HeaderActorEmail, domain.ErrAttribution)
		}
		actor.Type = domain.ActorVendorAttributed
		actor.Vendor = key.Vendor
		actor.ActorName = name
		actor.ActorEmail = email
	default:
		return nil, fmt.Errorf("actor.Resolve: key %s has unknown class %q: %w",
			key.ID, key.Class, domain.ErrAttribution)
	}

	// Update last used timestamp (fire and forget).
	if updateErr := rs.keys.UpdateLastUsed(ctx, key.ID); updateErr != nil {
		log.Warn().Err(updateErr).Str("key_id", key.ID.String()).Msg("actor: failed to update key last_used_at")
	}

	return actor, nil
}
