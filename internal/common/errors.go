// Package common defines shared constants and sentinel errors used across
// the client and server layers of indexcp. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateChunk = errors.New("duplicate chunk")

	// Transport-level errors. ErrTransientTransport marks failures that are
	// safe to retry (network, timeout, 5xx); ErrUnauthorized marks an API-key
	// rejection and is never retried.
	ErrTransientTransport = errors.New("transient transport failure")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRejected           = errors.New("request rejected")

	// Crypto errors. Both are fatal for the packet they occur on: they
	// indicate corruption or tampering, not a transient condition.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrKeyUnwrap            = errors.New("key unwrap failed")

	// Transfer lifecycle errors.
	ErrIncompleteTransfer = errors.New("incomplete transfer")
)
