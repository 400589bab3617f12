package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Google provider
// Image transformation via Gemini's image model and video via Veo, both
// through the Gen AI SDK. Unlike the REST vendors, the SDK hands back raw
// bytes instead of hosted URLs, so results are persisted to our own object
// storage to keep the URL-in/URL-out contract.
// ---------------------------------------------------------------------------

const (
	googleImageModel = "gemini-2.5-flash-image"
	googleVideoModel = "veo-3.1-generate-preview"

	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute
)

var (
	googleTransformPrice = decimal.NewFromFloat(0.04)
	googleAnimatePrice   = decimal.NewFromFloat(0.30)
)

// BlobStore is the slice of object storage the provider needs to host
// generated artifacts.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GetPublicURL(key string) string
}

type GoogleProvider struct {
	apiKey     string
	store      BlobStore
	httpClient *http.Client
	log        zerolog.Logger
}

func NewGoogleProvider(apiKey string, store BlobStore, logger zerolog.Logger) *GoogleProvider {
	return &GoogleProvider{
		apiKey: apiKey,
		store:  store,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		log: logger.With().Str("provider", "google").Logger(),
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) EstimateCost(op Operation) decimal.Decimal {
	switch op {
	case OpTransform:
		return googleTransformPrice
	case OpAnimate:
		return googleAnimatePrice
	}
	return decimal.Zero
}

func (p *GoogleProvider) TransformImage(ctx context.Context, sourceURL, prompt string) (string, error) {
	imageData, mimeType, err := p.fetch(ctx, sourceURL)
	if err != nil {
		return "", genErr("google", "failed to fetch source image", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", genErr("google", "failed to create genai client", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildTransformPrompt(prompt)},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageData}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := client.Models.GenerateContent(ctx, googleImageModel, contents, config)
	if err != nil {
		return "", genErr("google", "image generation failed", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", genErr("google", "no candidates in response", nil)
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			key := fmt.Sprintf("generated/%s.png", uuid.NewString())
			if err := p.store.Upload(ctx, key, part.InlineData.Data, "image/png"); err != nil {
				return "", genErr("google", "failed to store transformed image", err)
			}
			return p.store.GetPublicURL(key), nil
		}
	}

	return "", genErr("google", "no image data in response", nil)
}

func (p *GoogleProvider) GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec int) (string, error) {
	imageData, mimeType, err := p.fetch(ctx, imageURL)
	if err != nil {
		return "", genErr("google", "failed to fetch source image", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", genErr("google", "failed to create genai client", err)
	}

	firstFrame := &genai.Image{
		ImageBytes: imageData,
		MIMEType:   mimeType,
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      "9:16",
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	operation, err := client.Models.GenerateVideos(ctx, googleVideoModel, buildAnimatePrompt(prompt), firstFrame, config)
	if err != nil {
		return "", genErr("google", "failed to start video generation", err)
	}

	p.log.Debug().Str("operation", operation.Name).Msg("video operation started")

	// Poll until done, cancelled, or timed out
	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return "", genErr("google", fmt.Sprintf("video generation timed out after %v (%d polls)", veoMaxPollDuration, pollCount), nil)
		}

		select {
		case <-ctx.Done():
			return "", genErr("google", "generation cancelled", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return "", genErr("google", fmt.Sprintf("failed to poll operation (attempt %d)", pollCount), err)
		}
	}

	if len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return "", genErr("google", fmt.Sprintf("video operation failed: %s", string(errJSON)), nil)
	}

	if operation.Response == nil || len(operation.Response.GeneratedVideos) == 0 {
		return "", genErr("google", "no videos in completed operation", nil)
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return "", genErr("google", "generated video object is nil", nil)
	}

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return "", genErr("google", "failed to download generated video", err)
	}
	if len(videoBytes) == 0 {
		return "", genErr("google", "downloaded video is empty", nil)
	}

	key := fmt.Sprintf("generated/%s.mp4", uuid.NewString())
	if err := p.store.Upload(ctx, key, videoBytes, "video/mp4"); err != nil {
		return "", genErr("google", "failed to store generated video", err)
	}

	return p.store.GetPublicURL(key), nil
}

func (p *GoogleProvider) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return data, mimeType, nil
}

func buildTransformPrompt(prompt string) string {
	return fmt.Sprintf(`Transform the attached photo as described below. Keep the subject recognizable and preserve the composition; change only what the description asks for. Output a single 9:16 portrait image at the highest quality.

%s`, prompt)
}

func buildAnimatePrompt(prompt string) string {
	return fmt.Sprintf(`%s

Use the attached image as the first frame. Generate subtle, natural motion that keeps the style, lighting, and color palette of the source frame. Silent video only, no generated audio.`, prompt)
}
