package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/videomaker/pipeline/internal/logging"
)

const (
	cartesiaAPIVersion = "2024-06-10"
	cartesiaDefaultVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

// CartesiaTTS handles text-to-speech via the Cartesia API, used as a
// fallback provider when ElevenLabs is unavailable or over quota.
type CartesiaTTS struct {
	apiKey  string
	apiURL  string
	voiceID string
	client  *http.Client
	log     *logging.Logger
}

var _ TTSProvider = (*CartesiaTTS)(nil)

// NewCartesiaTTS creates a Cartesia TTS provider. An empty voiceID falls
// back to the package default.
func NewCartesiaTTS(apiKey, apiURL, voiceID string) *CartesiaTTS {
	if voiceID == "" {
		voiceID = cartesiaDefaultVoice
	}
	return &CartesiaTTS{
		apiKey:  apiKey,
		apiURL:  apiURL,
		voiceID: voiceID,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     logging.New("Cartesia"),
	}
}

type cartesiaRequest struct {
	ModelID      string                    `json:"model_id"`
	Transcript   string                    `json:"transcript"`
	Voice        cartesiaVoiceSpecifier    `json:"voice"`
	Language     *string                   `json:"language,omitempty"`
	OutputFormat cartesiaOutputFormat      `json:"output_format"`
	Config       *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Volume  *float64 `json:"volume,omitempty"`
	Speed   *float64 `json:"speed,omitempty"`
	Emotion *string  `json:"emotion,omitempty"`
}

// Synthesize converts text to speech using Cartesia. voiceStyle is mapped
// to a Cartesia emotion tag via a simple keyword heuristic.
func (s *CartesiaTTS) Synthesize(ctx context.Context, text, voiceStyle string) (*TTSResult, error) {
	emotion := parseEmotionFromStyle(voiceStyle)
	speed := 0.85
	volume := 1.4

	reqBody := cartesiaRequest{
		ModelID:    "sonic-english",
		Transcript: text,
		Voice: cartesiaVoiceSpecifier{
			Mode: "id",
			ID:   s.voiceID,
		},
		OutputFormat: cartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
		Config: &cartesiaGenerationConfig{
			Speed:   &speed,
			Volume:  &volume,
			Emotion: &emotion,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal Cartesia request: %w", err)
	}

	url := fmt.Sprintf("%s/tts/bytes", s.apiURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create Cartesia request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", cartesiaAPIVersion)

	s.log.Infof("generating speech (voiceID=%s, emotion=%s, textLen=%d)", s.voiceID, emotion, len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Cartesia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Cartesia returned status %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read Cartesia audio response: %w", err)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("Cartesia returned empty audio")
	}

	return &TTSResult{AudioData: audioData, Format: "mp3"}, nil
}

// parseEmotionFromStyle maps a free-text delivery-style description to one
// of Cartesia's supported emotion tags.
func parseEmotionFromStyle(style string) string {
	emotionMap := map[string]string{
		"energetic":     "excited",
		"engaging":      "enthusiastic",
		"mysterious":    "mysterious",
		"serious":       "calm",
		"authoritative": "confident",
		"dramatic":      "intense",
		"calm":          "calm",
		"peaceful":      "peaceful",
		"excited":       "excited",
		"happy":         "happy",
		"sad":           "sad",
		"angry":         "angry",
		"scared":        "scared",
		"confident":     "confident",
	}

	styleLower := bytes.ToLower([]byte(style))
	for keyword, emotion := range emotionMap {
		if bytes.Contains(styleLower, []byte(keyword)) {
			return emotion
		}
	}
	return "neutral"
}
