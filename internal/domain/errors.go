// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates rejected caller input.
var ErrValidation = errors.New("validation")

// ErrStoreUnavailable indicates the key-value store could not be reached.
// Callers must not assume store operations always succeed.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrCollaborator indicates a failure talking to the external bug-tracking
// product (provisioning or cleanup).
var ErrCollaborator = errors.New("collaborator integration")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
