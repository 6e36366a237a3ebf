// File: pool/errors.go
// Package pool: sentinel errors for the buffer pool, mirroring the plain
// errors.New convention used across this codebase's other packages
// (core/concurrency previously followed the same shape for executor errors).

package pool

import "errors"

var (
	// ErrExhausted is returned by Acquire when no buffer is available, the
	// wait budget has elapsed, and the caller disallowed fresh allocation.
	ErrExhausted = errors.New("pool: exhausted, no buffer available")
)
