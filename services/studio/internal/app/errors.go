package app

import "errors"

var (
	// ErrGeneratorUnavailable is returned by generation use cases when no
	// provider is configured. Storage and auth keep working.
	ErrGeneratorUnavailable = errors.New("text generation is not configured")

	// ErrUnauthorized covers missing, expired, revoked and dangling session tokens.
	ErrUnauthorized = errors.New("unauthorized")

	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrChapterNotFound  = errors.New("chapter not found")
	ErrContentRequired  = errors.New("Please upload or paste some chapter content.")

	// ErrInvalidOption wraps a rejected generation parameter.
	ErrInvalidOption = errors.New("invalid generation option")
)
