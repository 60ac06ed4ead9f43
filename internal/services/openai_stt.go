package services

import (
	"bytes"
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
)

// OpenAISTT transcribes audio via OpenAI Whisper, synthesizing a per-segment
// confidence score since Whisper's verbose_json output has no confidence
// field of its own.
type OpenAISTT struct {
	client *openai.Client
	log    *logging.Logger
}

var _ STTProvider = (*OpenAISTT)(nil)

// NewOpenAISTT creates an OpenAI Whisper-backed STT provider.
func NewOpenAISTT(apiKey string) *OpenAISTT {
	return &OpenAISTT{
		client: openai.NewClient(apiKey),
		log:    logging.New("Whisper"),
	}
}

// Transcribe sends audio to Whisper in verbose_json mode and returns
// segment-level transcripts with a synthesized confidence score.
func (s *OpenAISTT) Transcribe(ctx context.Context, audioData []byte, language string) ([]models.TranscriptSegment, error) {
	if language == "" {
		language = "en"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: "audio.mp3",
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	if len(resp.Segments) == 0 {
		return nil, fmt.Errorf("whisper returned no segments (text: %q)", resp.Text)
	}

	segments := make([]models.TranscriptSegment, len(resp.Segments))
	for i, seg := range resp.Segments {
		segments[i] = models.TranscriptSegment{
			Text:       seg.Text,
			Start:      seg.Start,
			End:        seg.End,
			Confidence: segmentConfidence(seg.AvgLogprob, seg.NoSpeechProb),
		}
	}

	s.log.Infof("transcribed %d segments (duration=%.1fs)", len(segments), resp.Duration)

	return segments, nil
}

// segmentConfidence maps Whisper's avg_logprob (typically in [-1, 0], more
// negative is worse) and no_speech_prob (probability the segment is silence)
// onto a single [0,1] confidence score. avg_logprob dominates; no_speech_prob
// is applied as a penalty multiplier so a likely-silent segment is never
// reported as confident regardless of its logprob.
func segmentConfidence(avgLogprob, noSpeechProb float64) float64 {
	logConf := math.Exp(avgLogprob) // exp(0) = 1, exp(-1) ≈ 0.37
	if logConf > 1 {
		logConf = 1
	}
	if logConf < 0 {
		logConf = 0
	}
	confidence := logConf * (1 - noSpeechProb)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
