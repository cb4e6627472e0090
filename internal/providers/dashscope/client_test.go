package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/providers"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Options{BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func imageResponse(url string) map[string]any {
	return map[string]any{
		"output": map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": []any{
					map[string]any{"image": url},
				}}},
			},
		},
		"request_id": "req-1",
	}
}

func TestGenerateImagesSingle(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(imageResponse("https://cdn.example.com/out.png"))
	}))

	assets, err := client.GenerateImages(context.Background(), providers.ImageRequest{
		Prompt:   "a product photo",
		Model:    "qwen-image-plus",
		Quantity: 1,
	}, "sk-test")
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(assets) != 1 || assets[0].URL != "https://cdn.example.com/out.png" {
		t.Fatalf("unexpected assets %+v", assets)
	}
}

func TestGenerateImagesQuantity(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(imageResponse("https://cdn.example.com/out.png"))
	}))

	assets, err := client.GenerateImages(context.Background(), providers.ImageRequest{
		Prompt:   "a product photo",
		Model:    "wan2.2-t2i-flash",
		Quantity: 3,
	}, "sk-test")
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(assets) != 3 {
		t.Fatalf("expected 3 assets, got %d", len(assets))
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 API calls, got %d", calls.Load())
	}
}

func TestGenerateImagesThrottlingMapsToQuota(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "Throttling.AllocationQuota",
			"message": "free allocated quota exceeded",
		})
	}))

	_, err := client.GenerateImages(context.Background(), providers.ImageRequest{
		Prompt: "a product photo",
		Model:  "qwen-image-plus",
	}, "sk-test")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestGenerateImagesAPIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "InvalidParameter",
			"message": "size not supported",
		})
	}))

	_, err := client.GenerateImages(context.Background(), providers.ImageRequest{
		Prompt: "a product photo",
		Model:  "qwen-image-plus",
	}, "sk-test")
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	if errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("generic failure must not map to quota: %v", err)
	}
}

func TestGenerateVideoUnsupported(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("video generation must not reach the API")
	}))

	_, err := client.GenerateVideo(context.Background(), providers.VideoRequest{
		Prompt: "a clip",
		Model:  "qwen-image-plus",
	}, "sk-test")
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
