// Package music implements the Music Recommender (C7): the local-first,
// remote-fallback lookup that backs smart-music mode in S4 (§4.5).
package music

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/mediacache"
	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/services"
)

// defaultMusicCriteria is the fallback used when the LLM call fails or
// returns unparseable JSON, per spec.md §4.5 step 2a.
var defaultMusicCriteria = &services.MusicCriteria{
	Theme:            "general",
	Mood:             "neutral",
	Pace:             "medium",
	GenrePreferences: []string{"ambient", "electronic"},
}

// Recommender resolves background music for a piece of script content,
// preferring a cache hit and falling back to a ranked remote search.
type Recommender struct {
	cache   *mediacache.Cache
	llm     services.LLMProvider
	sources []services.MusicSearchProvider
	log     *logging.Logger
}

// NewRecommender builds a Recommender. llm may be nil, in which case remote
// fallback always uses defaultMusicCriteria rather than failing.
func NewRecommender(cache *mediacache.Cache, llm services.LLMProvider, sources []services.MusicSearchProvider) *Recommender {
	return &Recommender{
		cache:   cache,
		llm:     llm,
		sources: sources,
		log:     logging.New("MusicRecommender"),
	}
}

// GetMusicForContent implements the getMusicForContent(text, targetDuration,
// criteria?) contract from §4.5: local-first match, then remote fallback,
// preloading the top-ranked remote candidates and returning the best one
// that actually downloaded.
func (r *Recommender) GetMusicForContent(ctx context.Context, text string, targetDuration float64, criteria models.MusicSearchCriteria) (*models.MediaCacheEntry, error) {
	keywords := extractKeywords(text)

	if hit := r.cache.FindLocal(keywords, criteria); hit != nil {
		r.log.Infof("local cache hit: %q (score-qualified)", hit.Recommendation.Title)
		return hit, nil
	}

	candidates, err := r.searchRemote(ctx, text, targetDuration, criteria)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		r.log.Infof("no remote recommendation found for content")
		return nil, nil
	}

	// Preload the top-ranked candidates concurrently rather than gambling the
	// whole lookup on rank 0's URL being reachable: a dead CDN link on the
	// best-ranked track shouldn't sink the job when rank 1 or 2 would do.
	const preloadTop = 3
	if len(candidates) > preloadTop {
		candidates = candidates[:preloadTop]
	}
	results := r.cache.Preload(ctx, candidates, preloadTop)
	for _, cand := range candidates {
		if entry := results[cand.URL]; entry != nil {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("all %d ranked music candidates failed to download", len(candidates))
}

// searchRemote asks the LLM for criteria, fans the query out to every
// configured source in parallel, then ranks the merged results, best first.
func (r *Recommender) searchRemote(ctx context.Context, text string, targetDuration float64, criteria models.MusicSearchCriteria) ([]models.MusicRecommendation, error) {
	parsed := defaultMusicCriteria
	if r.llm != nil {
		if got, err := r.llm.ExtractMusicCriteria(ctx, text); err == nil {
			parsed = got
		} else {
			r.log.Warnf("music criteria extraction failed, using defaults: %v", err)
		}
	}

	if len(r.sources) == 0 {
		return nil, nil
	}

	results := make([][]models.MusicRecommendation, len(r.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range r.sources {
		if len(criteria.Sources) > 0 && !containsSource(criteria.Sources, source.Name()) {
			continue
		}
		i, source := i, source
		g.Go(func() error {
			recs, err := source.Search(gctx, parsed, targetDuration)
			if err != nil {
				r.log.Warnf("music source %q search failed: %v", source.Name(), err)
				return nil // a single source's failure is not fatal
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []models.MusicRecommendation
	for _, recs := range results {
		merged = append(merged, recs...)
	}
	if criteria.CopyrightOnly {
		merged = filterSafe(merged)
	}
	if len(merged) == 0 {
		return nil, nil
	}

	return rankCandidates(merged, parsed), nil
}

// rankCandidates orders candidates by 0.6·confidence + 0.25·genreMatch +
// 0.15·moodMatch, highest first.
func rankCandidates(recs []models.MusicRecommendation, criteria *services.MusicCriteria) []models.MusicRecommendation {
	scores := make([]float64, len(recs))
	for i, rec := range recs {
		genreMatch := 0.5
		for _, g := range criteria.GenrePreferences {
			if strings.EqualFold(g, rec.Genre) {
				genreMatch = 1.0
				break
			}
		}
		moodMatch := 0.7
		if strings.EqualFold(criteria.Mood, rec.Mood) {
			moodMatch = 1.0
		}
		scores[i] = rec.ConfidenceScore*0.6 + genreMatch*0.25 + moodMatch*0.15
	}

	ranked := make([]models.MusicRecommendation, len(recs))
	copy(ranked, recs)
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && scores[j] > scores[j-1]; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
			scores[j], scores[j-1] = scores[j-1], scores[j]
		}
	}
	return ranked
}

func filterSafe(recs []models.MusicRecommendation) []models.MusicRecommendation {
	out := recs[:0]
	for _, r := range recs {
		if r.CopyrightStatus.SafeToUse() {
			out = append(out, r)
		}
	}
	return out
}

func containsSource(sources []string, name string) bool {
	for _, s := range sources {
		if s == name {
			return true
		}
	}
	return false
}

// extractKeywords derives a crude keyword set from script text for the
// local-cache title-match term. It lower-cases and splits on whitespace,
// dropping very short tokens.
func extractKeywords(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 4 {
			keywords = append(keywords, f)
		}
	}
	return keywords
}
