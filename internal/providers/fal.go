package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// FAL.ai provider
// Uses FAL's queue API: submit a request, receive a request_id plus status
// and response URLs, poll the status URL until COMPLETED, then fetch the
// response payload.
// ---------------------------------------------------------------------------

const (
	falQueueURL      = "https://queue.fal.run"
	falTransformPath = "fal-ai/flux/dev/image-to-image"
	falUpscalePath   = "fal-ai/clarity-upscaler"
	falVideoPath     = "fal-ai/kling-video/v1.6/standard/image-to-video"

	falMinVideoSeconds = 5
	falMaxVideoSeconds = 10
)

var (
	falTransformPrice = decimal.NewFromFloat(0.03)
	falUpscalePrice   = decimal.NewFromFloat(0.02)
	falAnimatePrice   = decimal.NewFromFloat(0.075)
)

type FalProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewFalProvider(apiKey string, logger zerolog.Logger) *FalProvider {
	return &FalProvider{
		apiKey:  apiKey,
		baseURL: falQueueURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second, // per HTTP call, not the full poll cycle
		},
		log: logger.With().Str("provider", "fal").Logger(),
	}
}

func (p *FalProvider) Name() string { return "fal" }

func (p *FalProvider) EstimateCost(op Operation) decimal.Decimal {
	switch op {
	case OpTransform:
		return falTransformPrice
	case OpUpscale:
		return falUpscalePrice
	case OpAnimate:
		return falAnimatePrice
	}
	return decimal.Zero
}

// falQueueResponse is returned when a request is accepted into the queue.
type falQueueResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

// falStatusResponse is the poll payload. Status is IN_QUEUE, IN_PROGRESS,
// or COMPLETED; anything else is treated as a failure.
type falStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type falImageResult struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Image *struct {
		URL string `json:"url"`
	} `json:"image"`
}

type falVideoResult struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
}

func (p *FalProvider) TransformImage(ctx context.Context, sourceURL, prompt string) (string, error) {
	payload := map[string]interface{}{
		"image_url": sourceURL,
		"prompt":    prompt,
		"strength":  0.85,
	}

	raw, err := p.runQueued(ctx, falTransformPath, payload)
	if err != nil {
		return "", err
	}

	var result falImageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", genErr("fal", "failed to parse image result", err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return "", genErr("fal", "no image in response", nil)
	}

	return result.Images[0].URL, nil
}

func (p *FalProvider) UpscaleImage(ctx context.Context, imageURL string) (string, error) {
	payload := map[string]interface{}{
		"image_url": imageURL,
	}

	raw, err := p.runQueued(ctx, falUpscalePath, payload)
	if err != nil {
		return "", err
	}

	var result falImageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", genErr("fal", "failed to parse upscale result", err)
	}
	if result.Image == nil || result.Image.URL == "" {
		return "", genErr("fal", "no image in upscale response", nil)
	}

	return result.Image.URL, nil
}

func (p *FalProvider) GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec int) (string, error) {
	if durationSec < falMinVideoSeconds {
		durationSec = falMinVideoSeconds
	}
	if durationSec > falMaxVideoSeconds {
		durationSec = falMaxVideoSeconds
	}

	payload := map[string]interface{}{
		"image_url":    imageURL,
		"prompt":       prompt,
		"duration":     fmt.Sprintf("%d", durationSec),
		"aspect_ratio": "9:16",
	}

	raw, err := p.runQueued(ctx, falVideoPath, payload)
	if err != nil {
		return "", err
	}

	var result falVideoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", genErr("fal", "failed to parse video result", err)
	}
	if result.Video.URL == "" {
		return "", genErr("fal", "no video in response", nil)
	}

	return result.Video.URL, nil
}

// runQueued submits to the queue API and polls until the request completes,
// then fetches and returns the raw response payload.
func (p *FalProvider) runQueued(ctx context.Context, modelPath string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, genErr("fal", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/"+modelPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, genErr("fal", "failed to create request", err)
	}
	p.setHeaders(req)

	body, status, err := p.do(req)
	if err != nil {
		return nil, genErr("fal", "submit failed", err)
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusAccepted {
		return nil, genErr("fal", fmt.Sprintf("submit returned status %d: %s", status, truncate(body, 300)), nil)
	}

	var queued falQueueResponse
	if err := json.Unmarshal(body, &queued); err != nil {
		return nil, genErr("fal", "failed to parse queue response", err)
	}
	if queued.RequestID == "" || queued.ResponseURL == "" {
		return nil, genErr("fal", "queue response missing request_id", nil)
	}

	p.log.Debug().Str("model", modelPath).Str("request_id", queued.RequestID).Msg("request queued")

	if err := p.pollStatus(ctx, queued); err != nil {
		return nil, err
	}

	// Fetch the final response payload
	resultReq, err := http.NewRequestWithContext(ctx, "GET", queued.ResponseURL, nil)
	if err != nil {
		return nil, genErr("fal", "failed to create result request", err)
	}
	p.setHeaders(resultReq)

	body, status, err = p.do(resultReq)
	if err != nil {
		return nil, genErr("fal", "result fetch failed", err)
	}
	if status != http.StatusOK {
		return nil, genErr("fal", fmt.Sprintf("result fetch returned status %d: %s", status, truncate(body, 300)), nil)
	}

	return body, nil
}

func (p *FalProvider) pollStatus(ctx context.Context, queued falQueueResponse) error {
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return genErr("fal", "generation cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, "GET", queued.StatusURL, nil)
		if err != nil {
			return genErr("fal", "failed to create status request", err)
		}
		p.setHeaders(req)

		body, status, err := p.do(req)
		if err != nil {
			return genErr("fal", fmt.Sprintf("status poll %d failed", attempt), err)
		}
		if status != http.StatusOK && status != http.StatusAccepted {
			return genErr("fal", fmt.Sprintf("status poll returned status %d: %s", status, truncate(body, 300)), nil)
		}

		var st falStatusResponse
		if err := json.Unmarshal(body, &st); err != nil {
			return genErr("fal", "failed to parse status response", err)
		}

		switch st.Status {
		case "COMPLETED":
			return nil
		case "IN_QUEUE", "IN_PROGRESS":
			// keep polling
		default:
			msg := st.Error
			if msg == "" {
				msg = st.Status
			}
			return genErr("fal", fmt.Sprintf("request failed: %s (request_id=%s)", msg, queued.RequestID), nil)
		}
	}

	return genErr("fal", fmt.Sprintf("timed out after %d polls (request_id=%s)", maxPollAttempts, queued.RequestID), nil)
}

func (p *FalProvider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Key "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (p *FalProvider) do(req *http.Request) ([]byte, int, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, maxLen int) string {
	s := string(b)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
