// Package common contains shared constants and sentinel errors used across
// Fieldlink client components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Login / session lifecycle errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// Transport errors.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("request timed out")

	// Request-level errors.
	ErrUnauthorized = errors.New("unauthorized")

	// Secure-store errors.
	ErrStorageFailure         = errors.New("storage failure")
	ErrNotFound               = errors.New("not found")
	ErrAuthenticationRequired = errors.New("authentication required")

	// Fallback for failures no other sentinel describes.
	ErrUnknown = errors.New("unknown error")
)
