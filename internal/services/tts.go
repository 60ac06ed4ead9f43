// Package services defines the external collaborator interfaces (TTS, STT,
// LLM, music search) the orchestrator consumes, plus concrete HTTP-backed
// adapters. Per spec.md §1, these collaborators are explicitly out of
// scope for behavioral specification — the core only depends on their
// narrow interface.
package services

import "context"

// TTSResult is the common response type from any TTS provider. Duration is
// deliberately absent: the orchestrator always measures the produced audio
// file's duration itself (via the render package's ffprobe wrapper), never
// trusting a provider-reported or estimated duration, per spec.md §4.1 S3.
type TTSResult struct {
	AudioData []byte
	Format    string // "mp3", "wav", etc.
}

// TTSProvider is the interface any text-to-speech collaborator implements.
type TTSProvider interface {
	// Synthesize converts text to audio. voiceStyle is a human-readable
	// description of the desired delivery style; the provider may ignore it.
	Synthesize(ctx context.Context, text, voiceStyle string) (*TTSResult, error)
}
