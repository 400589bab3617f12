package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Operation identifies a billable provider call.
type Operation string

const (
	OpTransform Operation = "transform"
	OpAnimate   Operation = "animate"
	OpUpscale   Operation = "upscale"
)

// Shared poll-loop bounds for task-based vendor APIs. Individual providers
// may start later or back off, but none polls faster or longer than this.
// Vars rather than consts so tests can tighten them.
var (
	pollInterval    = 5 * time.Second
	maxPollAttempts = 60
)

// Provider is the uniform contract over the interchangeable generation
// vendors. Implementations wrap very different HTTP surfaces (queue-and-poll
// task APIs, synchronous inference endpoints, SDK operations) but all
// converge on URL-in, URL-out.
//
// None of the methods retry: a failed or timed-out call surfaces as a
// *GenerationError and the caller decides what to do with the job.
type Provider interface {
	Name() string

	// TransformImage applies the prompt to the source image and returns the
	// URL of the transformed image.
	TransformImage(ctx context.Context, sourceURL, prompt string) (string, error)

	// GenerateVideo animates the image into a short vertical video and
	// returns the video URL. durationSec is clamped to the vendor's range.
	GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec int) (string, error)

	// EstimateCost returns the flat per-call price for an operation.
	// Placeholder pricing — vendor-reported costs are intentionally ignored.
	EstimateCost(op Operation) decimal.Decimal
}

// Upscaler is an optional capability; only vendors with a dedicated
// upscaling endpoint implement it.
type Upscaler interface {
	UpscaleImage(ctx context.Context, imageURL string) (string, error)
}

// GenerationError wraps any non-success outcome from a vendor call so the
// orchestrator can record one consistent failure shape on the job row.
type GenerationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s generation failed: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s generation failed: %s", e.Provider, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func genErr(provider, message string, err error) *GenerationError {
	return &GenerationError{Provider: provider, Message: message, Err: err}
}

// IsGenerationError reports whether err came from a provider call.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
