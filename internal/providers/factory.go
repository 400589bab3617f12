package providers

import (
	"fmt"

	"github.com/rs/zerolog"

	"reelsmith/internal/config"
)

// FromConfig builds the provider selected by GENERATION_PROVIDER. Config
// validation already checked the matching API key is present.
func FromConfig(cfg *config.Config, store BlobStore, logger zerolog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "fal":
		return NewFalProvider(cfg.FalKey, logger), nil
	case "runware":
		return NewRunwareProvider(cfg.RunwareKey, logger), nil
	case "runway":
		return NewRunwayProvider(cfg.RunwayKey, logger), nil
	case "google":
		return NewGoogleProvider(cfg.GeminiKey, store, logger), nil
	}
	return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
}
