// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a caller-contract violation (missing owner,
// empty query or content). This is the only error class surfaced to
// callers as a hard failure.
var ErrValidation = errors.New("validation failed")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: record was modified by another request")
