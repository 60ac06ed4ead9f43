package music

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/videomaker/pipeline/internal/mediacache"
	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/services"
)

type fakeSource struct {
	name string
	recs []models.MusicRecommendation
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Search(ctx context.Context, criteria *services.MusicCriteria, duration float64) ([]models.MusicRecommendation, error) {
	return f.recs, nil
}

func newTestRecommender(t *testing.T, sources []services.MusicSearchProvider) (*Recommender, *mediacache.Cache) {
	t.Helper()
	dir := t.TempDir()
	cache, err := mediacache.New(mediacache.Options{
		LibraryPath:   filepath.Join(dir, "library.json"),
		DownloadDir:   filepath.Join(dir, "music"),
		MaxSizeBytes:  1024 * 1024,
		TimeoutSec:    5,
		MaxCacheAge:   30 * 24 * time.Hour,
		MaxCacheFiles: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewRecommender(cache, nil, sources), cache
}

func TestRankCandidatesOrdersByCombinedScore(t *testing.T) {
	criteria := &services.MusicCriteria{Mood: "calm", GenrePreferences: []string{"ambient"}}
	recs := []models.MusicRecommendation{
		{Title: "low", ConfidenceScore: 0.5, Genre: "rock", Mood: "energetic"},
		{Title: "high", ConfidenceScore: 0.9, Genre: "ambient", Mood: "calm"},
	}

	ranked := rankCandidates(recs, criteria)
	if ranked[0].Title != "high" {
		t.Errorf("expected 'high' to rank first, got %q", ranked[0].Title)
	}
}

func TestGetMusicForContentFallsBackToRemoteWhenCacheEmpty(t *testing.T) {
	source := &fakeSource{name: "test", recs: []models.MusicRecommendation{
		{Title: "Remote Track", URL: "file-does-not-exist://remote", DurationSec: 120, ConfidenceScore: 0.8, Genre: "ambient", Mood: "calm"},
	}}
	r, _ := newTestRecommender(t, []services.MusicSearchProvider{source})

	// DownloadAndCache will fail against a non-HTTP URL scheme; confirm the
	// lookup still reaches that stage rather than short-circuiting.
	_, err := r.GetMusicForContent(context.Background(), "a calm ambient story", 120, models.MusicSearchCriteria{})
	if err == nil {
		t.Fatal("expected download error for unreachable remote URL")
	}
}

func TestGetMusicForContentNoSourcesReturnsNil(t *testing.T) {
	r, _ := newTestRecommender(t, nil)
	entry, err := r.GetMusicForContent(context.Background(), "some content", 60, models.MusicSearchCriteria{})
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Errorf("expected nil entry with no sources, got %+v", entry)
	}
}
