package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"reelsmith/internal/providers"
	"reelsmith/internal/storage"
)

// signedURLExpirySec keeps source-image links valid across the longest
// provider poll cycle with room to spare.
const signedURLExpirySec = 3600

// MediaGenerator sits between the worker and the generation vendor. It
// resolves storage keys into URLs the vendor can fetch, optionally enhances
// prompts, and applies the optional upscale pass after the transform.
type MediaGenerator struct {
	provider       providers.Provider
	store          *storage.Storage
	enhancer       *Enhancer // nil when prompt enhancement is disabled
	upscaleEnabled bool
	httpClient     *http.Client
	log            zerolog.Logger
}

func NewMediaGenerator(provider providers.Provider, store *storage.Storage, enhancer *Enhancer, upscaleEnabled bool, logger zerolog.Logger) *MediaGenerator {
	return &MediaGenerator{
		provider:       provider,
		store:          store,
		enhancer:       enhancer,
		upscaleEnabled: upscaleEnabled,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: logger.With().Str("service", "mediagen").Logger(),
	}
}

func (m *MediaGenerator) ProviderName() string { return m.provider.Name() }

// EstimateCost returns the provider's flat price for an operation.
func (m *MediaGenerator) EstimateCost(op providers.Operation) decimal.Decimal {
	return m.provider.EstimateCost(op)
}

// PipelineCost is the flat charge for one full transform-and-animate run,
// including the upscale pass when it is enabled and the vendor supports it.
func (m *MediaGenerator) PipelineCost() decimal.Decimal {
	cost := m.provider.EstimateCost(providers.OpTransform).Add(m.provider.EstimateCost(providers.OpAnimate))
	if m.upscaleEnabled {
		if _, ok := m.provider.(providers.Upscaler); ok {
			cost = cost.Add(m.provider.EstimateCost(providers.OpUpscale))
		}
	}
	return cost
}

// ResolveSourceURL turns a stored object key into a URL the vendor can fetch.
// Buckets are private, so a time-limited signed URL is issued; if signing
// fails the public URL is returned as a fallback.
func (m *MediaGenerator) ResolveSourceURL(ctx context.Context, key string) string {
	signed, err := m.store.GetSignedURL(ctx, key, signedURLExpirySec)
	if err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("signing failed, falling back to public URL")
		return m.store.GetPublicURL(key)
	}
	return signed
}

// Transform applies the style prompt to the source image and returns the
// resulting image URL. When upscaling is enabled and the vendor supports it,
// the transformed image is upscaled before being returned.
func (m *MediaGenerator) Transform(ctx context.Context, sourceURL, prompt string) (string, error) {
	if m.enhancer != nil {
		prompt = m.enhancer.Enhance(ctx, PromptKindImage, prompt)
	}

	imageURL, err := m.provider.TransformImage(ctx, sourceURL, prompt)
	if err != nil {
		return "", err
	}

	if m.upscaleEnabled {
		if upscaler, ok := m.provider.(providers.Upscaler); ok {
			upscaled, err := upscaler.UpscaleImage(ctx, imageURL)
			if err != nil {
				// The transformed image is already good output; don't fail
				// the whole stage over a cosmetic pass.
				m.log.Warn().Err(err).Msg("upscale failed, keeping transformed image")
			} else {
				imageURL = upscaled
			}
		}
	}

	return imageURL, nil
}

// Animate turns the transformed image into a short vertical video.
func (m *MediaGenerator) Animate(ctx context.Context, imageURL, prompt string, durationSec int) (string, error) {
	if m.enhancer != nil {
		prompt = m.enhancer.Enhance(ctx, PromptKindVideo, prompt)
	}
	return m.provider.GenerateVideo(ctx, imageURL, prompt, durationSec)
}

// Format validates the generated video and returns the final URL. No
// re-encoding happens here; vendors already deliver vertical MP4s, so the
// stage just confirms the asset is reachable.
func (m *MediaGenerator) Format(ctx context.Context, videoURL string) (string, error) {
	if strings.TrimSpace(videoURL) == "" {
		return "", fmt.Errorf("format: empty video URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, videoURL, nil)
	if err != nil {
		return "", fmt.Errorf("format: invalid video URL: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		// Some CDNs reject HEAD; reachability is advisory, not load-bearing.
		m.log.Warn().Err(err).Msg("video reachability check failed, passing URL through")
		return videoURL, nil
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusForbidden {
		return "", fmt.Errorf("format: video URL returned status %d", resp.StatusCode)
	}

	return videoURL, nil
}
