package services

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/videomaker/pipeline/internal/logging"
)

const geminiLLMModel = "gemini-2.5-flash"

// GeminiLLM extracts music-search criteria using Google's Gemini API,
// selectable as an alternative to OpenAILLM via configuration. It shares
// the same strict-JSON contract as OpenAILLM.
type GeminiLLM struct {
	client *genai.Client
	model  string
	log    *logging.Logger
}

var _ LLMProvider = (*GeminiLLM)(nil)

// NewGeminiLLM creates a Gemini-backed LLM provider.
func NewGeminiLLM(ctx context.Context, apiKey string) (*GeminiLLM, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiLLM{
		client: client,
		model:  geminiLLMModel,
		log:    logging.New("GeminiLLM"),
	}, nil
}

// ExtractMusicCriteria asks Gemini for {theme, mood, pace, genrePreferences, keywords}.
func (s *GeminiLLM) ExtractMusicCriteria(ctx context.Context, scriptText string) (*MusicCriteria, error) {
	prompt := musicCriteriaSystemPrompt + "\n\nScript:\n" + scriptText

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini music criteria request failed: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("no response from gemini")
	}

	var criteria MusicCriteria
	if err := json.Unmarshal([]byte(raw), &criteria); err != nil {
		s.log.Warnf("failed to parse music criteria JSON: %v (raw=%q)", err, truncateString(raw, 300))
		return nil, fmt.Errorf("parse music criteria: %w", err)
	}

	return &criteria, nil
}
