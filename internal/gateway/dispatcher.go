package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/config"
	"github.com/dirgate/dirgate/internal/domain"
)

// Dispatcher executes translated requests against the upstream provider.
//
// The whole call, including reading the response body, is bounded by the
// configured timeout. GET and HEAD are retried a bounded number of times,
// but only on transient network failures where no response was received;
// any status upstream actually returned (5xx included) is passed through,
// never retried. Which failure classes count as transient is configurable
// (refused, reset, eof, dns) since upstream semantics do not pin this down.
type Dispatcher struct {
	client   *http.Client
	retryMax int
	backoff  time.Duration
	retryOn  map[string]bool
}

func NewDispatcher(cfg config.UpstreamConfig) *Dispatcher {
	return NewDispatcherWithClient(&http.Client{Timeout: cfg.Timeout}, cfg)
}

// NewDispatcherWithClient allows injecting the HTTP client (tests).
func NewDispatcherWithClient(client *http.Client, cfg config.UpstreamConfig) *Dispatcher {
	retryOn := make(map[string]bool, len(cfg.RetryOn))
	for _, class := range cfg.RetryOn {
		retryOn[class] = true
	}
	return &Dispatcher{
		client:   client,
		retryMax: cfg.RetryMax,
		backoff:  cfg.RetryBackoff,
		retryOn:  retryOn,
	}
}

// Do forwards the request. The returned response's body must be closed by
// the caller. Errors are domain.ErrUpstreamTimeout for deadline overruns or
// a wrapped transport error after retries are exhausted.
func (d *Dispatcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempts := 1
	if idempotent(req.Method) {
		attempts += d.retryMax
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			select {
			case <-time.After(d.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, fmt.Errorf("gateway.Do: %w", ctx.Err())
			}
			log.Debug().Str("method", req.Method).Str("url", req.URL.String()).
				Int("attempt", attempt+1).Msg("gateway: retrying upstream call")
		}

		resp, err := d.client.Do(cloneForAttempt(ctx, req, attempt))
		if err == nil {
			// A received response is final, whatever the status.
			return resp, nil
		}

		if isTimeout(err) {
			return nil, fmt.Errorf("gateway.Do: %v: %w", err, domain.ErrUpstreamTimeout)
		}

		lastErr = err
		if !d.transient(err) {
			break
		}
	}

	return nil, fmt.Errorf("gateway.Do: upstream unreachable: %w", lastErr)
}

func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// cloneForAttempt rebuilds the request for a retry. Idempotent methods carry
// no body here, so a shallow clone is sufficient.
func cloneForAttempt(ctx context.Context, req *http.Request, attempt int) *http.Request {
	if attempt == 0 {
		return req.WithContext(ctx)
	}
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// transient reports whether the failure belongs to a configured retry class.
// Only failures where no response arrived can land here.
func (d *Dispatcher) transient(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return d.retryOn["refused"]
	case errors.Is(err, syscall.ECONNRESET):
		return d.retryOn["reset"]
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return d.retryOn["eof"]
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return d.retryOn["dns"]
	}
	return false
}
