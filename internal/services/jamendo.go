package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
)

const jamendoAPIURL = "https://api.jamendo.com/v3.0/tracks/"

// jamendoMoodSearchTerm maps a content mood to the query term that gets the best
// results out of Jamendo's free-text track search.
var jamendoMoodSearchTerm = map[string]string{
	"calm":       "calm",
	"peaceful":   "peaceful",
	"inspiring":  "uplifting",
	"energetic":  "energetic",
	"happy":      "happy",
	"sad":        "melancholic",
	"serious":    "dramatic",
}

var jamendoSupportedGenres = map[string]bool{
	"ambient": true, "classical": true, "electronic": true,
	"jazz": true, "rock": true, "pop": true,
}

// JamendoSource queries the Jamendo API, a royalty-free music catalog that
// requires no authenticated API key beyond a public client ID.
type JamendoSource struct {
	clientID string
	client   *http.Client
	log      *logging.Logger
}

var _ MusicSearchProvider = (*JamendoSource)(nil)

// NewJamendoSource creates a Jamendo music source. clientID is the public
// application ID issued by Jamendo's developer portal.
func NewJamendoSource(clientID string) *JamendoSource {
	return &JamendoSource{
		clientID: clientID,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      logging.New("Jamendo"),
	}
}

func (s *JamendoSource) Name() string { return "jamendo" }

type jamendoResponse struct {
	Headers jamendoHeaders `json:"headers"`
	Results []jamendoTrack `json:"results"`
}

type jamendoHeaders struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type jamendoTrack struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Artist   string `json:"artist_name"`
	Duration string `json:"duration"`
	Genre    string `json:"genre"`
}

// Search queries Jamendo with a single search term derived from the mood
// (falling back to a supported genre, then "instrumental").
func (s *JamendoSource) Search(ctx context.Context, criteria *MusicCriteria, duration float64) ([]models.MusicRecommendation, error) {
	query := "instrumental"
	if criteria != nil {
		if term, ok := jamendoMoodSearchTerm[criteria.Mood]; ok {
			query = term
		} else {
			for _, genre := range criteria.GenrePreferences {
				if jamendoSupportedGenres[genre] {
					query = genre
					break
				}
			}
		}
	}

	params := url.Values{
		"client_id": {s.clientID},
		"format":    {"json"},
		"limit":     {"20"},
		"imagesize": {"50"},
		"search":    {query},
	}

	reqURL := jamendoAPIURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create jamendo request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jamendo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jamendo returned status %d", resp.StatusCode)
	}

	var parsed jamendoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode jamendo response: %w", err)
	}
	if parsed.Headers.Status == "failed" {
		return nil, fmt.Errorf("jamendo API error: %s", parsed.Headers.ErrorMessage)
	}

	mood := "neutral"
	if criteria != nil && criteria.Mood != "" {
		mood = criteria.Mood
	}

	recs := make([]models.MusicRecommendation, 0, len(parsed.Results))
	for _, t := range parsed.Results {
		trackDuration, _ := strconv.ParseFloat(t.Duration, 64)
		if trackDuration <= 0 {
			trackDuration = 180
		}
		recs = append(recs, models.MusicRecommendation{
			Title:           t.Name,
			Artist:          t.Artist,
			URL:             fmt.Sprintf("https://storage.jamendo.com/download/track/%s/mp32/", t.ID),
			DurationSec:     trackDuration,
			Genre:           mapJamendoGenre(t.Genre),
			Mood:            mood,
			CopyrightStatus: models.CopyrightCreativeCommons,
			ConfidenceScore: 0.85,
			Source:          "jamendo",
			LicenseURL:      fmt.Sprintf("https://www.jamendo.com/track/%s", t.ID),
		})
	}

	s.log.Infof("jamendo returned %d tracks for query %q", len(recs), query)
	return recs, nil
}

func mapJamendoGenre(genre string) string {
	switch genre {
	case "ambient", "classical", "electronic", "jazz":
		return genre
	case "rock", "pop", "hiphop":
		return "electronic"
	default:
		return "electronic"
	}
}
