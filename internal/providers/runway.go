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
// Runway provider
// Every Runway generation is a task: POST the request, get a task id back,
// poll GET /v1/tasks/{id} until SUCCEEDED or FAILED, read output URLs.
// ---------------------------------------------------------------------------

const (
	runwayAPIURL     = "https://api.dev.runwayml.com/v1"
	runwayAPIVersion = "2024-11-06"
	runwayImageModel = "gen4_image"
	runwayVideoModel = "gen3a_turbo"

	// Runway only accepts 5 or 10 second clips.
	runwayShortVideoSeconds = 5
	runwayLongVideoSeconds  = 10
)

var (
	runwayTransformPrice = decimal.NewFromFloat(0.08)
	runwayAnimatePrice   = decimal.NewFromFloat(0.25)
)

type RunwayProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewRunwayProvider(apiKey string, logger zerolog.Logger) *RunwayProvider {
	return &RunwayProvider{
		apiKey:  apiKey,
		baseURL: runwayAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.With().Str("provider", "runway").Logger(),
	}
}

func (p *RunwayProvider) Name() string { return "runway" }

func (p *RunwayProvider) EstimateCost(op Operation) decimal.Decimal {
	switch op {
	case OpTransform:
		return runwayTransformPrice
	case OpAnimate:
		return runwayAnimatePrice
	}
	return decimal.Zero
}

type runwayTaskCreated struct {
	ID string `json:"id"`
}

// runwayTask is the poll payload. Status moves through PENDING/RUNNING to
// SUCCEEDED, FAILED, or CANCELLED.
type runwayTask struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Output  []string `json:"output,omitempty"`
	Failure string   `json:"failure,omitempty"`
}

func (p *RunwayProvider) TransformImage(ctx context.Context, sourceURL, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":      runwayImageModel,
		"promptText": prompt,
		"ratio":      "1080:1920",
		"referenceImages": []map[string]string{
			{"uri": sourceURL},
		},
	}

	taskID, err := p.createTask(ctx, "/text_to_image", payload)
	if err != nil {
		return "", err
	}

	return p.awaitTask(ctx, taskID)
}

func (p *RunwayProvider) GenerateVideo(ctx context.Context, imageURL, prompt string, durationSec int) (string, error) {
	duration := runwayShortVideoSeconds
	if durationSec > runwayShortVideoSeconds {
		duration = runwayLongVideoSeconds
	}

	payload := map[string]interface{}{
		"model":       runwayVideoModel,
		"promptImage": imageURL,
		"promptText":  prompt,
		"duration":    duration,
		"ratio":       "768:1280",
	}

	taskID, err := p.createTask(ctx, "/image_to_video", payload)
	if err != nil {
		return "", err
	}

	return p.awaitTask(ctx, taskID)
}

func (p *RunwayProvider) createTask(ctx context.Context, path string, payload interface{}) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", genErr("runway", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return "", genErr("runway", "failed to create request", err)
	}
	p.setHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", genErr("runway", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", genErr("runway", "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", genErr("runway", fmt.Sprintf("returned status %d: %s", resp.StatusCode, truncate(body, 300)), nil)
	}

	var created runwayTaskCreated
	if err := json.Unmarshal(body, &created); err != nil {
		return "", genErr("runway", "failed to parse task response", err)
	}
	if created.ID == "" {
		return "", genErr("runway", "no task id in response", nil)
	}

	p.log.Debug().Str("task_id", created.ID).Str("path", path).Msg("task created")
	return created.ID, nil
}

// awaitTask polls the task until it reaches a terminal state and returns the
// first output URL.
func (p *RunwayProvider) awaitTask(ctx context.Context, taskID string) (string, error) {
	for attempt := 1; attempt <= maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", genErr("runway", "generation cancelled", ctx.Err())
		case <-time.After(pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/tasks/"+taskID, nil)
		if err != nil {
			return "", genErr("runway", "failed to create poll request", err)
		}
		p.setHeaders(req)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return "", genErr("runway", fmt.Sprintf("poll %d failed", attempt), err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", genErr("runway", "failed to read poll response", err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", genErr("runway", fmt.Sprintf("poll returned status %d: %s", resp.StatusCode, truncate(body, 300)), nil)
		}

		var task runwayTask
		if err := json.Unmarshal(body, &task); err != nil {
			return "", genErr("runway", "failed to parse poll response", err)
		}

		switch task.Status {
		case "SUCCEEDED":
			if len(task.Output) == 0 || task.Output[0] == "" {
				return "", genErr("runway", "succeeded task has no output", nil)
			}
			return task.Output[0], nil
		case "FAILED", "CANCELLED":
			msg := task.Failure
			if msg == "" {
				msg = task.Status
			}
			return "", genErr("runway", fmt.Sprintf("task failed: %s (task_id=%s)", msg, taskID), nil)
		}
		// PENDING / RUNNING / THROTTLED — keep polling
	}

	return "", genErr("runway", fmt.Sprintf("timed out after %d polls (task_id=%s)", maxPollAttempts, taskID), nil)
}

func (p *RunwayProvider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Runway-Version", runwayAPIVersion)
}
