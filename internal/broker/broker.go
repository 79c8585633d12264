// Package broker manages delegated upstream credentials per organization.
//
// Each organization holds one delegated credential written by the external
// setup flow. The broker exchanges it for short-lived bearer tokens via the
// OAuth2 JWT grant and caches the result. Per organization the token moves
// through Unissued -> Valid -> Expiring -> Refreshing -> {Valid | Failed};
// concurrent callers hitting Refreshing share a single in-flight exchange.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	ojwt "golang.org/x/oauth2/jwt"

	"github.com/dirgate/dirgate/internal/domain"
	"github.com/dirgate/dirgate/internal/obs"
	"github.com/dirgate/dirgate/internal/secrets"
)

// ExchangeFunc performs the upstream token exchange for one credential whose
// key material has already been decrypted. Injectable for tests.
type ExchangeFunc func(ctx context.Context, cred *domain.DelegatedCredential, pemKey string) (token string, expiry time.Time, err error)

// cachedToken is the per-organization broker state.
type cachedToken struct {
	token  string
	expiry time.Time
}

// refreshCall is one in-flight token exchange shared by concurrent callers.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Broker issues upstream bearer tokens for organizations.
type Broker struct {
	creds    domain.CredentialRepository
	vault    *secrets.Vault
	exchange ExchangeFunc
	margin   time.Duration // refresh this long before expiry

	mu       sync.Mutex
	cache    map[uuid.UUID]cachedToken
	inFlight map[uuid.UUID]*refreshCall
}

// New creates a Broker using the OAuth2 JWT grant against tokenURL.
func New(creds domain.CredentialRepository, vault *secrets.Vault, tokenURL string, margin time.Duration) *Broker {
	return NewWithExchange(creds, vault, jwtGrantExchange(tokenURL), margin)
}

// NewWithExchange creates a Broker with a custom exchange function.
func NewWithExchange(creds domain.CredentialRepository, vault *secrets.Vault, exchange ExchangeFunc, margin time.Duration) *Broker {
	return &Broker{
		creds:    creds,
		vault:    vault,
		exchange: exchange,
		margin:   margin,
		cache:    make(map[uuid.UUID]cachedToken),
		inFlight: make(map[uuid.UUID]*refreshCall),
	}
}

// GetToken returns a valid bearer token for the organization, refreshing
// transparently when the cached token is absent, expired, or inside the
// expiry margin. Exactly one exchange runs per organization at a time;
// concurrent callers await its result. A failed exchange surfaces as
// domain.ErrCredentialUnavailable to every waiter and is not retried within
// this call; the next call starts a fresh exchange (credential rotation by
// the setup flow would otherwise require a restart).
func (b *Broker) GetToken(ctx context.Context, orgID uuid.UUID) (string, error) {
	b.mu.Lock()

	if ct, ok := b.cache[orgID]; ok && time.Until(ct.expiry) > b.margin {
		b.mu.Unlock()
		return ct.token, nil
	}

	if call, ok := b.inFlight[orgID]; ok {
		b.mu.Unlock()
		return b.await(ctx, call)
	}

	call := &refreshCall{done: make(chan struct{})}
	b.inFlight[orgID] = call
	b.mu.Unlock()

	go b.refresh(orgID, call)

	return b.await(ctx, call)
}

// Invalidate drops the cached token for an organization. Used when upstream
// rejects a token the broker still considered valid.
func (b *Broker) Invalidate(orgID uuid.UUID) {
	b.mu.Lock()
	delete(b.cache, orgID)
	b.mu.Unlock()
}

func (b *Broker) await(ctx context.Context, call *refreshCall) (string, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", fmt.Errorf("broker.GetToken: %w", ctx.Err())
	}
}

// refresh runs the token exchange. It is detached from any single caller's
// context: one caller disconnecting must not fail the exchange for the
// others awaiting it.
func (b *Broker) refresh(orgID uuid.UUID, call *refreshCall) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, expiry, err := b.doExchange(ctx, orgID)

	b.mu.Lock()
	if err == nil {
		b.cache[orgID] = cachedToken{token: token, expiry: expiry}
	}
	delete(b.inFlight, orgID)
	b.mu.Unlock()

	call.token = token
	call.err = err
	close(call.done)

	if err != nil {
		obs.ObserveTokenRefresh("failed")
		log.Warn().Err(err).Str("org_id", orgID.String()).Msg("broker: token refresh failed")
		return
	}
	obs.ObserveTokenRefresh("ok")
	log.Debug().Str("org_id", orgID.String()).Time("expiry", expiry).Msg("broker: token refreshed")
}

func (b *Broker) doExchange(ctx context.Context, orgID uuid.UUID) (string, time.Time, error) {
	cred, err := b.creds.GetByOrg(ctx, orgID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("broker: load credential: %w", domain.ErrCredentialUnavailable)
	}

	pemKey, err := b.vault.Decrypt(cred.PrivateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("broker: decrypt key material: %w", domain.ErrCredentialUnavailable)
	}

	token, expiry, err := b.exchange(ctx, cred, pemKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("broker: exchange for %s: %v: %w", cred.Principal, err, domain.ErrCredentialUnavailable)
	}

	return token, expiry, nil
}

// jwtGrantExchange builds the default ExchangeFunc: a two-legged OAuth2 JWT
// grant impersonating the credential's directory admin subject.
func jwtGrantExchange(tokenURL string) ExchangeFunc {
	return func(ctx context.Context, cred *domain.DelegatedCredential, pemKey string) (string, time.Time, error) {
		conf := &ojwt.Config{
			Email:      cred.Principal,
			PrivateKey: []byte(pemKey),
			Subject:    cred.Subject,
			Scopes:     cred.Scopes,
			TokenURL:   tokenURL,
		}

		tok, err := conf.TokenSource(ctx).Token()
		if err != nil {
			return "", time.Time{}, err
		}

		return tok.AccessToken, tok.Expiry, nil
	}
}
