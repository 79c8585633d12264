package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound = errors.New("domain: not found")
	ErrConflict = errors.New("domain: conflict")

	// ErrAttribution means the caller's identity could not be resolved or,
	// for vendor keys, the acting human was not identified. Calls that fail
	// attribution are never dispatched upstream.
	ErrAttribution = errors.New("domain: attribution failed")

	// ErrCredentialUnavailable means no usable delegated credential exists
	// for the organization (missing, revoked, or refresh failed).
	ErrCredentialUnavailable = errors.New("domain: delegated credential unavailable")

	// ErrUpstreamTimeout means the upstream call exceeded the dispatch deadline.
	ErrUpstreamTimeout = errors.New("domain: upstream timeout")
)
