package scheduler

import (
	"context"
	"fmt"
	"strings"

	"mediaqueue/internal/domain"
)

// persistAssets writes inline artifact bytes to the sink and rewrites each
// asset to reference its stored key. Assets without bytes (provider-hosted
// URLs) pass through untouched; a failed write keeps the provider URL if one
// exists.
func (s *Scheduler) persistAssets(ctx context.Context, jobID string, assets []domain.Asset) []domain.Asset {
	out := make([]domain.Asset, len(assets))
	for i, asset := range assets {
		out[i] = asset
		if len(asset.Data) == 0 {
			continue
		}
		key := storageKey(jobID, asset.Format, i)
		saved, err := s.sink.Write(ctx, key, asset.Data)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("scheduler: persist asset failed")
			continue
		}
		out[i].URL = saved
		out[i].Data = nil
	}
	return out
}

func storageKey(jobID, mime string, index int) string {
	category, prefix := "images", "image"
	if strings.HasPrefix(mime, "video/") {
		category, prefix = "videos", "video"
	}
	return fmt.Sprintf("generated/%s/%s/%s-%02d%s", category, jobID, prefix, index+1, extensionForMIME(mime))
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
