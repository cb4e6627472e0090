package google

import (
	"bytes"
	"context"
	"encoding/base64"
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

// Options controls how the Google client is configured.
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	// PollBudget bounds how long a long-running video operation is polled
	// before it is reported failed. Zero selects the default.
	PollBudget time.Duration
}

// Client talks to the Generative Language API. Image generation is a single
// generateContent call; video generation submits a long-running Veo operation
// and polls it at a fixed interval until the server reports done. API keys are
// supplied per call by the scheduler, not held by the client.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	pollBudget   time.Duration
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type generationConfig struct {
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type veoGenerateRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters,omitempty"`
}

type veoInstance struct {
	Prompt string      `json:"prompt"`
	Image  *inlineData `json:"image,omitempty"`
}

type veoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	SampleCount int    `json:"sampleCount,omitempty"`
}

type veoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// The Veo API reports quota exhaustion with this gRPC status.
const statusResourceExhausted = "RESOURCE_EXHAUSTED"

// NewClient constructs a Google client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	pollBudget := opts.PollBudget
	if pollBudget <= 0 {
		pollBudget = 15 * time.Minute
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
		baseURL:      baseURL,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		pollBudget:   pollBudget,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return providers.ProviderGoogle
}

// GenerateImages invokes generateContent once and extracts inline image parts.
func (c *Client) GenerateImages(ctx context.Context, req providers.ImageRequest, apiKey string) ([]domain.Asset, error) {
	quantity := clampQuantity(req.Quantity)
	payload := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildImagePrompt(req)}},
		}},
		GenerationConfig: &generationConfig{
			CandidateCount:     quantity,
			ResponseModalities: []string{"IMAGE"},
		},
	}

	var response generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(req.Model))
	if err := c.invoke(ctx, http.MethodPost, path, apiKey, payload, &response); err != nil {
		return nil, err
	}

	var assets []domain.Asset
	for _, candidate := range response.Candidates {
		for _, p := range candidate.Content.Parts {
			asset, ok := decodeAssetPart(p)
			if !ok {
				continue
			}
			assets = append(assets, asset)
			if len(assets) >= quantity {
				break
			}
		}
		if len(assets) >= quantity {
			break
		}
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("google: no image content returned: %w", domain.ErrProviderFailure)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", req.Model).
		Int("quantity", len(assets)).
		Msg("google: generated image assets")

	return assets, nil
}

// GenerateVideo submits a predictLongRunning operation and polls it at the
// configured interval until done, up to the poll budget. An operation that
// never completes fails rather than polling forever.
func (c *Client) GenerateVideo(ctx context.Context, req providers.VideoRequest, apiKey string) (*domain.Asset, error) {
	payload := veoGenerateRequest{
		Instances:  []veoInstance{{Prompt: req.Prompt}},
		Parameters: veoParameters{AspectRatio: req.AspectRatio, SampleCount: 1},
	}
	if req.Image != nil {
		payload.Instances[0].Image = &inlineData{
			MimeType: req.Image.MIME,
			Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
		}
	}

	var op veoOperation
	submitPath := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(req.Model))
	if err := c.invoke(ctx, http.MethodPost, submitPath, apiKey, payload, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, fmt.Errorf("google: missing operation name: %w", domain.ErrProviderFailure)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("operation", op.Name).
		Msg("google: video operation submitted")

	opName := op.Name
	pollPath := "/" + strings.TrimLeft(opName, "/")
	deadline := time.Now().Add(c.pollBudget)
	for !op.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("google: operation %s did not complete within %s: %w", opName, c.pollBudget, domain.ErrProviderFailure)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
		op = veoOperation{}
		if err := c.invoke(ctx, http.MethodGet, pollPath, apiKey, nil, &op); err != nil {
			return nil, err
		}
	}

	if op.Error != nil {
		return nil, c.operationError(op.Error.Code, op.Error.Status, op.Error.Message)
	}
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		return nil, fmt.Errorf("google: operation completed without video: %w", domain.ErrProviderFailure)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("operation", opName).
		Msg("google: video operation done")

	return &domain.Asset{URL: samples[0].Video.URI, Format: "video/mp4"}, nil
}

func (c *Client) invoke(ctx context.Context, method, path, apiKey string, payload, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("google: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("google: create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", apiKey)
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: %v: %w", err, domain.ErrProviderFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == statusResourceExhausted {
				return fmt.Errorf("google: %s: %w", apiErr.Error.Message, domain.ErrQuotaExceeded)
			}
			return fmt.Errorf("google: status %d: %s: %w", resp.StatusCode, apiErr.Error.Message, domain.ErrProviderFailure)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("google: status %d: %w", resp.StatusCode, domain.ErrQuotaExceeded)
		}
		return fmt.Errorf("google: status %d: %w", resp.StatusCode, domain.ErrProviderFailure)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("google: decode response: %w", err)
	}
	return nil
}

func (c *Client) operationError(code int, status, message string) error {
	// gRPC code 8 is RESOURCE_EXHAUSTED.
	if code == 8 || status == statusResourceExhausted {
		return fmt.Errorf("google: %s: %w", message, domain.ErrQuotaExceeded)
	}
	return fmt.Errorf("google: operation failed: %s: %w", message, domain.ErrProviderFailure)
}

func decodeAssetPart(p part) (domain.Asset, bool) {
	if p.InlineData != nil && p.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil || len(data) == 0 {
			return domain.Asset{}, false
		}
		format := p.InlineData.MimeType
		if format == "" {
			format = "image/png"
		}
		return domain.Asset{Format: format, Data: data}, true
	}
	if p.FileData != nil && p.FileData.FileURI != "" {
		return domain.Asset{URL: p.FileData.FileURI, Format: p.FileData.MimeType}, true
	}
	return domain.Asset{}, false
}

func buildImagePrompt(req providers.ImageRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(req.Prompt))
	if req.AspectRatio != "" {
		fmt.Fprintf(&b, "\nAspect ratio: %s.", req.AspectRatio)
	}
	if req.Locale != "" {
		fmt.Fprintf(&b, "\nAudience locale: %s.", req.Locale)
	}
	return b.String()
}

func clampQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	if quantity > 4 {
		return 4
	}
	return quantity
}

var _ providers.Dispatcher = (*Client)(nil)
