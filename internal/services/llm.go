package services

import "context"

// MusicCriteria is the strict JSON contract an LLMProvider must return when
// asked to derive music-search criteria from script content (§4.5 step 2a).
// On parse failure the caller falls back to a defaults map rather than
// treating it as a hard error.
type MusicCriteria struct {
	Theme            string   `json:"theme"`
	Mood             string   `json:"mood"`
	Pace             string   `json:"pace"`
	GenrePreferences []string `json:"genrePreferences"`
	Keywords         []string `json:"keywords"`
}

// LLMProvider is the interface any large-language-model collaborator used
// for structured-JSON extraction implements. The pipeline currently has one
// caller of this interface: deriving MusicCriteria from script text.
type LLMProvider interface {
	ExtractMusicCriteria(ctx context.Context, scriptText string) (*MusicCriteria, error)
}
