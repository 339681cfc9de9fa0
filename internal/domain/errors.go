package domain

import "errors"

// Sentinel errors for every failure class the generation pipeline can surface.
// Each stage wraps exactly one of these; the HTTP layer maps them to status codes.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limited")
	ErrContentRejected = errors.New("content rejected")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrProviderFailure = errors.New("provider failure")
	ErrTimeout         = errors.New("generation timed out")
	ErrPersistence     = errors.New("persistence failure")
)
