package services

import (
	"context"

	"github.com/videomaker/pipeline/internal/models"
)

// STTProvider is the interface any speech-to-text collaborator implements.
// It feeds the alternative audio-input path (§4.1 generateFromAudio), which
// needs per-segment confidence to filter out misheard or silent stretches
// before the segments become subtitles.
type STTProvider interface {
	Transcribe(ctx context.Context, audioData []byte, language string) ([]models.TranscriptSegment, error)
}
