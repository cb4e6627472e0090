package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidSpec       = errors.New("invalid job spec")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrUnsupported       = errors.New("capability not supported")
	ErrProviderFailure   = errors.New("provider failure")
)
