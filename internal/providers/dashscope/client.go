package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/infra"
	"mediaqueue/internal/providers"
)

// Options configures the DashScope client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs HTTP calls to the DashScope multimodal generation API.
// DashScope has no video capability here, so GenerateVideo reports
// domain.ErrUnsupported. The API returns one image per call; multi-output
// requests are satisfied with sequential calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text string `json:"text,omitempty"`
}

type generationParams struct {
	Size string `json:"size,omitempty"`
	Seed *int   `json:"seed,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return providers.ProviderDashScope
}

// GenerateVideo is not implemented by DashScope in this deployment.
func (c *Client) GenerateVideo(ctx context.Context, req providers.VideoRequest, apiKey string) (*domain.Asset, error) {
	return nil, fmt.Errorf("dashscope: video generation: %w", domain.ErrUnsupported)
}

// GenerateImages invokes the generation endpoint once per requested output.
func (c *Client) GenerateImages(ctx context.Context, req providers.ImageRequest, apiKey string) ([]domain.Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("dashscope: prompt is required: %w", domain.ErrProviderFailure)
	}
	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	assets := make([]domain.Asset, 0, quantity)
	for i := 0; i < quantity; i++ {
		asset, err := c.generateOne(ctx, req, apiKey, i)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, nil
}

func (c *Client) generateOne(ctx context.Context, req providers.ImageRequest, apiKey string, seq int) (*domain.Asset, error) {
	payload := generationRequest{
		Model: req.Model,
		Input: generationInput{
			Messages: []generationMessage{{
				Role:    "user",
				Content: []generationContent{{Text: req.Prompt}},
			}},
		},
		Parameters: generationParams{Size: sizeForAspect(req.AspectRatio)},
	}
	if seq > 0 {
		seed := seq
		payload.Parameters.Seed = &seed
	}

	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dashscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dashscope: %v: %w", err, domain.ErrProviderFailure)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dashscope: read response: %w", err)
	}

	var decoded generationResponse
	if resp.StatusCode >= 300 {
		if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Code != "" {
			return nil, c.apiError(resp.StatusCode, decoded.Code, decoded.Message)
		}
		return nil, c.apiError(resp.StatusCode, "", strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("dashscope: decode response: %w", err)
	}
	if decoded.Code != "" {
		return nil, c.apiError(resp.StatusCode, decoded.Code, decoded.Message)
	}

	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return nil, fmt.Errorf("dashscope: empty image url: %w", domain.ErrProviderFailure)
	}

	c.logger.Debug().
		Str("model", req.Model).
		Str("request_id", decoded.RequestID).
		Str("url", imageURL).
		Msg("dashscope: generated image asset")

	return &domain.Asset{URL: imageURL, Format: "image/png"}, nil
}

func (c *Client) apiError(status int, code, message string) error {
	if status == http.StatusTooManyRequests || strings.HasPrefix(code, "Throttling") {
		return fmt.Errorf("dashscope: %s (%s): %w", message, code, domain.ErrQuotaExceeded)
	}
	if code != "" {
		return fmt.Errorf("dashscope: %s (%s): %w", message, code, domain.ErrProviderFailure)
	}
	return fmt.Errorf("dashscope: status %d: %s: %w", status, message, domain.ErrProviderFailure)
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				if parsed, err := url.Parse(u); err == nil && parsed.Scheme != "" {
					return u
				}
			}
		}
	}
	return ""
}

// sizeForAspect translates the normalized aspect ratio into the fixed sizes
// DashScope accepts.
func sizeForAspect(aspect string) string {
	switch aspect {
	case "16:9":
		return "1664*928"
	case "9:16":
		return "928*1664"
	case "4:3":
		return "1472*1140"
	case "3:4":
		return "1140*1472"
	default:
		return "1328*1328"
	}
}

var _ providers.Dispatcher = (*Client)(nil)
