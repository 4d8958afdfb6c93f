// Package common defines shared constants and sentinel errors used across
// the sync server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal      = errors.New("internal error")
	ErrorUnauthorized  = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrVersionConflict = errors.New("version conflict")

	// Request / payload errors.
	ErrBadRequest     = errors.New("bad request")
	ErrValidation     = errors.New("validation error")
	ErrResyncRequired = errors.New("full resync required")

	// Duplicate client mutation or temp id detected while applying.
	ErrDuplicate = errors.New("already applied")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
