package services

import (
	"context"

	"github.com/videomaker/pipeline/internal/models"
)

// MusicSearchProvider is one remote music source queried during the
// Music Recommender's fallback fan-out (§4.5 step 2b). Each enabled
// source is queried concurrently; a source's own failures are not fatal
// to the overall recommendation.
type MusicSearchProvider interface {
	// Name is the source identifier used in MusicSearchCriteria.Sources
	// and recorded on the returned recommendations.
	Name() string
	Search(ctx context.Context, criteria *MusicCriteria, duration float64) ([]models.MusicRecommendation, error)
}
