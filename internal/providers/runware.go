package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Runware provider
// Runware speaks a single batched endpoint: POST an array of tasks, each
// tagged with a client-generated taskUUID. Image inference responds
// synchronously; video inference is deferred and is polled with getResponse
// tasks until the result carries a videoURL.
// ---------------------------------------------------------------------------

const (
	runwareAPIURL     = "https://api.runware.ai/v1"
	runwareImageModel = "runware:101@1"  // FLUX.1 Schnell
	runwareVideoModel = "klingai:kling-v1-6@1"

	runwareMinVideoSeconds = 5
	runwareMaxVideoSeconds = 10
)

var (
	runwareTransformPrice = decimal.NewFromFloat(0.01)
	runwareAnimatePrice   = decimal.NewFromFloat(0.065)
)

type RunwareProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewRunwareProvider(apiKey string, logger zerolog.Logger) *RunwareProvider {
	return &RunwareProvider{
		apiKey:  apiKey,
		baseURL: runwareAPIURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // image inference responds in-band
		},
		log: logger.With().Str("provider", "runware").Logger(),
	}
}

func (p *RunwareProvider) Name() string { return "runware" }

func (p *RunwareProvider) EstimateCost(op Operation) decimal.Decimal {
	switch op {
	case OpTransform:
		return runwareTransformPrice
	case OpAnimate:
		return runwareAnimatePrice
	}
	return decimal.Zero
}

// runwareTaskResult is one entry of the response data array. Fields are a
// union across task types; unused ones stay empty.
type runwareTaskResult struct {
	TaskType string `json:"taskType"`
	TaskUUID string `json:"taskUUID"`
	ImageURL string `json:"imageURL,omitempty"`
	VideoURL string `json:"videoURL,omitempty"`
	Status   string `json:"status,omitempty"`
}

type runwareResponse struct {
	Data   []runwareTaskResult `json:"data"`
	Errors []struct {
		Message  string `json:"message"`
		TaskUUID string `json:"taskUUID,omitempty"`
	} `json:"errors,omitempty"`
}

func (p *RunwareProvider) TransformImage(ctx context.Context, sourceURL, prompt string) (string, error) {
	taskUUID := uuid.NewString()
	task := map[string]interface{}{
		"taskType":       "imageInference",
		"taskUUID":       taskUUID,
		"positivePrompt": prompt,
		"seedImage":      sourceURL,
		"model":          runwareImageModel,
		"strength":       0.85,
		"width":          1088,
		"height":         1920,
		"numberResults":  1,
		"outputType":     "URL",
	}

	resp, err := p.submit(ctx, []interface{}{task})
	if err != nil {
		return "", err
	}

	result := findTask(resp, taskUUID)
	if result == nil || result.ImageURL == "" {
		return "", genErr("runware", "no image in response", nil)
	}

	return result.ImageURL, nil
}

func (p *RunwareProvider) GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec int) (string, error) {
	if durationSec < runwareMinVideoSeconds {
		durationSec = runwareMinVideoSeconds
	}
	if durationSec > runwareMaxVideoSeconds {
		durationSec = runwareMaxVideoSeconds
	}

	taskUUID := uuid.NewString()
	task := map[string]interface{}{
		"taskType":       "videoInference",
		"taskUUID":       taskUUID,
		"positivePrompt": prompt,
		"model":          runwareVideoModel,
		"duration":       durationSec,
		"width":          1080,
		"height":         1920,
		"frameImages": []map[string]string{
			{"inputImage": imageURL, "frame": "first"},
		},
		"deliveryMethod": "async",
		"outputType":     "URL",
	}

	resp, err := p.submit(ctx, []interface{}{task})
	if err != nil {
		return "", err
	}

	// Async delivery may already include the URL on fast completions.
	if result := findTask(resp, taskUUID); result != nil && result.VideoURL != "" {
		return result.VideoURL, nil
	}

	return p.pollVideo(ctx, taskUUID)
}

// pollVideo issues getResponse tasks until the video result arrives.
func (p *RunwareProvider) pollVideo(ctx context.Context, taskUUID string) (string, error) {
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", genErr("runware", "generation cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}

		resp, err := p.submit(ctx, []interface{}{
			map[string]interface{}{
				"taskType": "getResponse",
				"taskUUID": taskUUID,
			},
		})
		if err != nil {
			return "", fmt.Errorf("poll %d: %w", attempt, err)
		}

		result := findTask(resp, taskUUID)
		if result == nil {
			continue
		}

		switch result.Status {
		case "error":
			return "", genErr("runware", fmt.Sprintf("video task failed (taskUUID=%s)", taskUUID), nil)
		default:
			if result.VideoURL != "" {
				p.log.Debug().Int("polls", attempt).Str("task_uuid", taskUUID).Msg("video ready")
				return result.VideoURL, nil
			}
		}
	}

	return "", genErr("runware", fmt.Sprintf("timed out after %d polls (taskUUID=%s)", maxPollAttempts, taskUUID), nil)
}

func (p *RunwareProvider) submit(ctx context.Context, tasks []interface{}) (*runwareResponse, error) {
	jsonData, err := json.Marshal(tasks)
	if err != nil {
		return nil, genErr("runware", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, genErr("runware", "failed to create request", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, genErr("runware", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, genErr("runware", "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, genErr("runware", fmt.Sprintf("returned status %d: %s", resp.StatusCode, truncate(body, 300)), nil)
	}

	var parsed runwareResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, genErr("runware", "failed to parse response", err)
	}

	if len(parsed.Errors) > 0 {
		return nil, genErr("runware", parsed.Errors[0].Message, nil)
	}

	return &parsed, nil
}

func findTask(resp *runwareResponse, taskUUID string) *runwareTaskResult {
	for i := range resp.Data {
		if resp.Data[i].TaskUUID == taskUUID {
			return &resp.Data[i]
		}
	}
	return nil
}
