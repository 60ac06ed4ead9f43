package services

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/videomaker/pipeline/internal/logging"
)

// OpenAILLM extracts structured music-search criteria from script text
// using an OpenAI chat completion in JSON mode.
type OpenAILLM struct {
	client *openai.Client
	model  string
	log    *logging.Logger
}

var _ LLMProvider = (*OpenAILLM)(nil)

// NewOpenAILLM creates an OpenAI-backed LLM provider.
func NewOpenAILLM(apiKey string) *OpenAILLM {
	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  "gpt-5-mini",
		log:    logging.New("OpenAILLM"),
	}
}

const musicCriteriaSystemPrompt = `You analyze narration scripts for a short-form video and extract music search criteria.
Respond with a strict JSON object matching this schema exactly:
{"theme": string, "mood": string, "pace": "slow"|"medium"|"fast", "genrePreferences": [string], "keywords": [string]}
Do not include any other fields or commentary.`

// ExtractMusicCriteria asks the model for {theme, mood, pace, genrePreferences, keywords}.
// Per spec.md §4.5 step 2a, a parse failure here is recoverable — the caller
// falls back to a defaults map rather than failing the pipeline.
func (s *OpenAILLM) ExtractMusicCriteria(ctx context.Context, scriptText string) (*MusicCriteria, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: musicCriteriaSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: scriptText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai music criteria request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	var criteria MusicCriteria
	raw := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &criteria); err != nil {
		s.log.Warnf("failed to parse music criteria JSON: %v (raw=%q)", err, truncateString(raw, 300))
		return nil, fmt.Errorf("parse music criteria: %w", err)
	}

	return &criteria, nil
}

// truncateString truncates s to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
