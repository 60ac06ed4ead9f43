package mediacache

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/videomaker/pipeline/internal/models"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := New(Options{
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
	return c
}

func wavBytes() []byte {
	b := make([]byte, 64)
	copy(b[0:4], "RIFF")
	copy(b[8:12], "WAVE")
	return b
}

func TestDownloadAndCacheValidatesSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wavBytes())
	}))
	defer srv.Close()

	c := newTestCache(t)
	rec := models.MusicRecommendation{
		Title: "Calm Waters", URL: srv.URL + "/track.wav", DurationSec: 60,
		ConfidenceScore: 0.9, Source: "testsource",
	}

	entry, err := c.DownloadAndCache(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if entry.UseCount != 1 {
		t.Errorf("expected useCount 1 on first download (the caller that triggered it is already a use), got %d", entry.UseCount)
	}
	if entry.FileHash == "" {
		t.Error("expected file hash to be computed")
	}
}

func TestDownloadAndCacheRejectsOversized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "9999999")
		w.Write(wavBytes())
	}))
	defer srv.Close()

	c := newTestCache(t)
	c.opts.MaxSizeBytes = 100 // tiny bound to trigger rejection

	rec := models.MusicRecommendation{
		Title: "Huge Track", URL: srv.URL + "/huge.wav", DurationSec: 60,
		ConfidenceScore: 0.9, Source: "testsource",
	}

	_, err := c.DownloadAndCache(context.Background(), rec)
	if !models.Is(err, models.KindDownloadRejected) {
		t.Fatalf("expected download rejected error, got %v", err)
	}
}

func TestFindLocalScoringThreshold(t *testing.T) {
	c := newTestCache(t)

	now := time.Now()
	c.entries["u1"] = &models.MediaCacheEntry{
		Recommendation: models.MusicRecommendation{
			Title: "Epic Journey", URL: "u1", Genre: "orchestral", Mood: "epic", DurationSec: 120, ConfidenceScore: 0.9,
		},
		DownloadedAt: now,
		LocalPath:    "", // not checked by FindLocal
	}

	criteria := models.MusicSearchCriteria{PreferredGenres: []string{"orchestral"}, PreferredMoods: []string{"epic"}}
	match := c.FindLocal([]string{"journey"}, criteria)
	if match == nil {
		t.Fatal("expected a match above threshold")
	}
	if match.UseCount != 1 {
		t.Errorf("expected useCount incremented to 1, got %d", match.UseCount)
	}

	// Second call: useCount should increment again (cache hit, no network).
	match2 := c.FindLocal([]string{"journey"}, criteria)
	if match2.UseCount != 2 {
		t.Errorf("expected useCount incremented to 2, got %d", match2.UseCount)
	}
}

func TestFindLocalBelowThresholdReturnsNil(t *testing.T) {
	c := newTestCache(t)
	c.entries["u1"] = &models.MediaCacheEntry{
		Recommendation: models.MusicRecommendation{
			Title: "Something Else", URL: "u1", Genre: "jazz", Mood: "calm", DurationSec: 60,
		},
		DownloadedAt: time.Now(),
	}

	criteria := models.MusicSearchCriteria{PreferredGenres: []string{"orchestral"}}
	if got := c.FindLocal([]string{"nomatch"}, criteria); got != nil {
		t.Errorf("expected nil for below-threshold match, got %+v", got)
	}
}

func TestDownloadAndCacheEnforcesMaxCacheFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(wavBytes())
	}))
	defer srv.Close()

	c := newTestCache(t)
	c.opts.MaxCacheFiles = 2

	for i := 0; i < 3; i++ {
		rec := models.MusicRecommendation{
			Title: fmt.Sprintf("Track %d", i), URL: fmt.Sprintf("%s/t%d.wav", srv.URL, i), DurationSec: 60,
			ConfidenceScore: 0.9, Source: "testsource",
		}
		if _, err := c.DownloadAndCache(context.Background(), rec); err != nil {
			t.Fatalf("download %d: %v", i, err)
		}
	}

	if len(c.entries) != 2 {
		t.Errorf("expected trimLRU to cap the cache at MaxCacheFiles=2, got %d entries", len(c.entries))
	}
}

func TestEvictDropsExpired(t *testing.T) {
	c := newTestCache(t)
	c.opts.MaxCacheAge = 1 * time.Hour

	old := time.Now().Add(-2 * time.Hour)
	c.entries["old"] = &models.MediaCacheEntry{
		Recommendation: models.MusicRecommendation{URL: "old", Title: "Old"},
		DownloadedAt:   old,
		LocalPath:      filepath.Join(t.TempDir(), "missing.mp3"),
	}
	c.entries["fresh"] = &models.MediaCacheEntry{
		Recommendation: models.MusicRecommendation{URL: "fresh", Title: "Fresh"},
		DownloadedAt:   time.Now(),
		LocalPath:      filepath.Join(t.TempDir(), "missing2.mp3"),
	}

	n := c.Evict()
	if n != 1 {
		t.Errorf("expected 1 evicted, got %d", n)
	}
	if _, ok := c.entries["fresh"]; !ok {
		t.Error("expected fresh entry to survive eviction")
	}
}

func TestIsKnownAudioSignature(t *testing.T) {
	cases := map[string]bool{
		"RIFF____WAVE": true,
	}
	for s, want := range cases {
		if got := isKnownAudioSignature([]byte(s)); got != want {
			t.Errorf("isKnownAudioSignature(%q) = %v, want %v", s, got, want)
		}
	}
	if !isKnownAudioSignature([]byte("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00\x00")) {
		t.Error("expected ID3 header to be recognized")
	}
	if !isKnownAudioSignature([]byte("fLaC\x00\x00\x00\x00\x00\x00\x00\x00")) {
		t.Error("expected fLaC header to be recognized")
	}
	if isKnownAudioSignature([]byte("xxxxxxxxxxxx")) {
		t.Error("expected unknown header to return false")
	}
}
