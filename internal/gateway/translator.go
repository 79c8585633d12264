package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dirgate/dirgate/internal/actor"
)

// PathPrefix is the inbound mount point. Everything after it is forwarded
// verbatim; the translator carries no knowledge of individual endpoints.
const PathPrefix = "/proxy"

// Hop-by-hop headers per RFC 9110 §7.6.1; never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Headers the gateway consumes itself and must not leak upstream.
var gatewayHeaders = []string{
	"Authorization", // replaced with the delegated bearer token
	actor.HeaderAPIKey,
	actor.HeaderActorName,
	actor.HeaderActorEmail,
}

// Translator maps inbound /proxy/{path...} requests onto the upstream host.
type Translator struct {
	base *url.URL
}

func NewTranslator(baseURL string) (*Translator, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway.NewTranslator: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway.NewTranslator: base URL %q is not absolute", baseURL)
	}
	return &Translator{base: base}, nil
}

// Translate builds the outbound request: same method, the path after
// /proxy mapped 1:1 onto the upstream host, query string and body passed
// through, headers copied minus hop-by-hop and gateway-internal ones. The
// caller's Authorization is dropped here; the orchestrator substitutes the
// delegated bearer token once the broker has produced one.
func (t *Translator) Translate(ctx context.Context, r *http.Request) (*http.Request, error) {
	upstreamPath := strings.TrimPrefix(r.URL.Path, PathPrefix)
	if upstreamPath == "" || !strings.HasPrefix(upstreamPath, "/") {
		return nil, fmt.Errorf("gateway.Translate: no upstream path in %q", r.URL.Path)
	}

	target := *t.base
	target.Path = upstreamPath
	target.RawQuery = r.URL.RawQuery

	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway.Translate: %w", err)
	}
	out.ContentLength = r.ContentLength

	out.Header = r.Header.Clone()
	for _, h := range hopByHopHeaders {
		out.Header.Del(h)
	}
	for _, h := range gatewayHeaders {
		out.Header.Del(h)
	}

	return out, nil
}
