// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client, service and repository layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a rejected or missing access token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials indicates a wrong username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExpired indicates the session could not be renewed and was ended.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken indicates a refresh was required but no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., translation key taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrLoginRequired indicates a gated location was requested without a session.
	ErrLoginRequired = errors.New("login required")
)
