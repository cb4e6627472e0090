package providers

import (
	"context"

	"mediaqueue/internal/domain"
)

// VideoRequest describes a normalized video generation request passed to any
// provider variant.
type VideoRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	Locale      string
	RequestID   string
	Image       *domain.ImagePayload
}

// ImageRequest describes a normalized image generation request.
type ImageRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	Locale      string
	RequestID   string
	Quantity    int
}

// Dispatcher is the capability contract implemented by every provider variant.
// Either operation may fail with domain.ErrUnsupported when the provider does
// not implement that capability; quota exhaustion surfaces as
// domain.ErrQuotaExceeded and every other failure wraps
// domain.ErrProviderFailure.
type Dispatcher interface {
	Name() string
	GenerateVideo(ctx context.Context, req VideoRequest, apiKey string) (*domain.Asset, error)
	GenerateImages(ctx context.Context, req ImageRequest, apiKey string) ([]domain.Asset, error)
}
