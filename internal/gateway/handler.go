// Package gateway implements the transparent audit-proxy: any call under
// /proxy/ is forwarded to the upstream directory provider with delegated
// credentials substituted, a two-phase audit entry recorded, and the
// response handed back verbatim. Recognized entities in the response are
// mirrored afterwards, off the request path.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dirgate/dirgate/internal/auditlog"
	"github.com/dirgate/dirgate/internal/broker"
	"github.com/dirgate/dirgate/internal/domain"
	"github.com/dirgate/dirgate/internal/obs"
	"github.com/dirgate/dirgate/internal/server/middleware"
	"github.com/dirgate/dirgate/internal/syncer"
)

// HeaderAuditID carries the audit entry identifier on every gateway
// response that opened one.
const HeaderAuditID = "X-Audit-Id"

// SyncQueue accepts captured response bodies for background mirroring.
type SyncQueue interface {
	Enqueue(job syncer.Job) bool
}

// Handler sequences one proxied call: resolved actor (from middleware) ->
// route translation -> delegated token -> audit open -> dispatch -> audit
// close -> verbatim response -> async sync.
type Handler struct {
	broker     *broker.Broker
	translator *Translator
	dispatcher *Dispatcher
	recorder   *auditlog.Recorder
	sync       SyncQueue
	maxCapture int64
}

func NewHandler(b *broker.Broker, t *Translator, d *Dispatcher, rec *auditlog.Recorder, sq SyncQueue, maxCapture int64) *Handler {
	return &Handler{
		broker:     b,
		translator: t,
		dispatcher: d,
		recorder:   rec,
		sync:       sq,
		maxCapture: maxCapture,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		// The resolve middleware runs in front of this handler; reaching
		// here without an actor is a wiring bug, not a caller error.
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "caller attribution missing")
		return
	}

	// Once the caller has asked for an upstream side effect, a dropped
	// client connection must not abandon it: dispatch, audit completion
	// and mirroring all run on a detached context.
	ctx := context.WithoutCancel(r.Context())

	outReq, err := h.translator.Translate(ctx, r)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Not Found", "no upstream path")
		return
	}

	token, err := h.broker.GetToken(ctx, a.OrgID)
	if err != nil {
		h.rejectCredential(ctx, w, a, r, err)
		return
	}
	outReq.Header.Set("Authorization", "Bearer "+token)

	handle, err := h.recorder.Open(ctx, a, r.Method, upstreamPath(r))
	if err != nil {
		// No audit row, no forwarding.
		log.Error().Err(err).Str("org_id", a.OrgID.String()).Msg("gateway: audit open failed")
		writeJSONError(w, http.StatusInternalServerError, "Internal Server Error", "audit trail unavailable")
		return
	}

	status := 0
	outcome := domain.AuditOutcomeInternal
	syncOutcome := domain.SyncSkipped
	defer func() {
		// The observation rides the exactly-once completion so a call is
		// counted exactly once whichever path closed the entry.
		if handle.Complete(status, outcome, syncOutcome) {
			obs.ObserveProxyCall(string(a.Type), r.Method, outcome)
		}
	}()

	resp, err := h.dispatcher.Do(ctx, outReq)
	if err != nil {
		w.Header().Set(HeaderAuditID, handle.ID().String())
		if errors.Is(err, domain.ErrUpstreamTimeout) {
			outcome = domain.AuditOutcomeTimeout
			writeJSONError(w, http.StatusGatewayTimeout, "Gateway Timeout", "upstream call timed out")
			return
		}
		outcome = domain.AuditOutcomeNetError
		log.Warn().Err(err).Str("method", r.Method).Str("path", upstreamPath(r)).Msg("gateway: upstream unreachable")
		writeJSONError(w, http.StatusBadGateway, "Bad Gateway", "upstream unreachable")
		return
	}
	defer resp.Body.Close()

	// Relay status, headers and body verbatim, plus the audit id.
	copyHeaders(w.Header(), resp.Header)
	w.Header().Set(HeaderAuditID, handle.ID().String())
	w.WriteHeader(resp.StatusCode)

	capture := h.shouldCapture(r.Method, resp)
	buf := &captureBuffer{limit: h.maxCapture}
	var reader io.Reader = resp.Body
	if capture {
		reader = io.TeeReader(resp.Body, buf)
	}

	if _, copyErr := io.Copy(w, reader); copyErr != nil {
		// Client went away mid-body. The upstream call still runs to
		// completion, and the capture with it.
		_, _ = io.Copy(io.Discard, reader)
	}

	status = resp.StatusCode
	outcome = domain.AuditOutcomeOK
	if capture && !buf.overflowed {
		syncOutcome = domain.SyncPending
	}

	// Close the entry before handing the body to the interpreter: sync runs
	// strictly after the call is fully recorded and answered.
	if handle.Complete(status, outcome, syncOutcome) {
		obs.ObserveProxyCall(string(a.Type), r.Method, outcome)
	}

	if syncOutcome == domain.SyncPending {
		enqueued := h.sync.Enqueue(syncer.Job{
			OrgID:   a.OrgID,
			AuditID: handle.ID(),
			Body:    buf.Bytes(),
		})
		if !enqueued {
			h.recorder.SetSyncOutcome(ctx, handle.ID(), domain.SyncFailed)
		}
	}
}

// rejectCredential answers 424 for an organization without a usable
// delegated credential. The attempt is still audited (opened and completed
// in one stroke, never dispatched) so refused calls show up in the viewer.
func (h *Handler) rejectCredential(ctx context.Context, w http.ResponseWriter, a *domain.Actor, r *http.Request, cause error) {
	log.Warn().Err(cause).Str("org_id", a.OrgID.String()).Msg("gateway: credential unavailable")

	handle, err := h.recorder.Open(ctx, a, r.Method, upstreamPath(r))
	if err != nil {
		log.Error().Err(err).Str("org_id", a.OrgID.String()).Msg("gateway: audit open failed for rejection")
	} else {
		handle.Complete(0, domain.AuditOutcomeRejected, domain.SyncSkipped)
		w.Header().Set(HeaderAuditID, handle.ID().String())
	}

	obs.ObserveProxyCall(string(a.Type), r.Method, domain.AuditOutcomeRejected)
	writeJSONError(w, http.StatusFailedDependency, "Failed Dependency", "no usable delegated credential for organization")
}

// shouldCapture limits mirroring to JSON bodies of successful calls.
func (h *Handler) shouldCapture(method string, resp *http.Response) bool {
	if method == http.MethodHead {
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "json")
}

func upstreamPath(r *http.Request) string {
	return strings.TrimPrefix(r.URL.Path, PathPrefix)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHop(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if http.CanonicalHeaderKey(h) == http.CanonicalHeaderKey(key) {
			return true
		}
	}
	return false
}

func writeJSONError(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"title":%q,"status":%d,"detail":%q}`, title, status, detail)
}

// captureBuffer retains up to limit bytes and silently discards the rest;
// it never errors, so the tee cannot disturb the passthrough copy.
type captureBuffer struct {
	buf        bytes.Buffer
	limit      int64
	overflowed bool
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	if b.overflowed {
		return len(p), nil
	}
	room := b.limit - int64(b.buf.Len())
	if int64(len(p)) > room {
		b.buf.Write(p[:room])
		b.overflowed = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *captureBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
