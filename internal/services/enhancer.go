package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// PromptKind selects which system instructions the enhancer applies.
type PromptKind string

const (
	PromptKindImage PromptKind = "image"
	PromptKindVideo PromptKind = "video"
)

// Enhancer rewrites terse user prompts into detailed generation prompts.
// Enhancement is best-effort: any failure falls back to the original prompt
// so a flaky OpenAI call never blocks a job.
type Enhancer struct {
	client *openai.Client
	log    zerolog.Logger
}

func NewEnhancer(apiKey string, logger zerolog.Logger) *Enhancer {
	return &Enhancer{
		client: openai.NewClient(apiKey),
		log:    logger.With().Str("service", "enhancer").Logger(),
	}
}

type enhancedPrompt struct {
	Prompt string `json:"prompt"`
}

// Enhance expands a user prompt for the given generation kind. The returned
// string is always usable; on any error the input prompt comes back unchanged.
func (e *Enhancer) Enhance(ctx context.Context, kind PromptKind, prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return prompt
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: enhancerSystemPrompt(kind),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: trimmed,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("kind", string(kind)).Msg("prompt enhancement failed, using original")
		return prompt
	}

	if len(resp.Choices) == 0 {
		e.log.Warn().Str("kind", string(kind)).Msg("prompt enhancement returned no choices, using original")
		return prompt
	}

	var parsed enhancedPrompt
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		e.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to parse enhanced prompt, using original")
		return prompt
	}

	enhanced := strings.TrimSpace(parsed.Prompt)
	if enhanced == "" {
		return prompt
	}

	e.log.Debug().
		Str("kind", string(kind)).
		Int("original_len", len(trimmed)).
		Int("enhanced_len", len(enhanced)).
		Msg("prompt enhanced")

	return enhanced
}

func enhancerSystemPrompt(kind PromptKind) string {
	switch kind {
	case PromptKindVideo:
		return fmt.Sprintf(`You are an expert prompt writer for AI image-to-video generation. The user gives a short description of the motion they want; you rewrite it as a film director's shot description for a vertical 9:16 clip.

Guidelines:
- Write in present tense as continuous action ("The camera slowly pushes in as...")
- Include subject motion, environmental motion (wind, light, particles), and camera direction
- Motion should feel cinematic and natural, never frantic
- Do NOT include audio cues or dialogue; the clip is silent
- Keep it under 100 words

%s`, enhancerResponseShape)
	default:
		return fmt.Sprintf(`You are an expert prompt writer for AI image transformation. The user gives a short description of the style or change they want applied to a photo; you rewrite it as a complete, detailed prompt.

Guidelines:
- Describe the target style precisely: medium, palette, lighting, texture
- State that the subject and composition of the source photo must be preserved
- Compose for a vertical 9:16 portrait frame
- Keep it under 100 words

%s`, enhancerResponseShape)
	}
}

const enhancerResponseShape = `Respond with JSON: {"prompt": "<the rewritten prompt>"}`
