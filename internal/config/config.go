// Package config loads the typed configuration tree from a YAML file plus
// environment-variable secret overrides.
//
// The teacher (internal/config/config.go in the retrieval pack) loads a flat
// set of env vars via godotenv + getEnv* helpers with field-level required
// validation. We keep that entry-point shape (one Load, explicit validation
// errors) but generalize from flat keys to the nested typed tree spec.md §6
// calls for, backed by gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Threading controls the batch processor's worker pool (§4.3).
type Threading struct {
	MaxWorkers         string `yaml:"max_workers"` // int-as-string or "auto"
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks"`
	WorkerMemoryLimit  int    `yaml:"worker_memory_limit"` // MB
	TaskTimeoutSec     int    `yaml:"task_timeout"`
	RetryTimes         int    `yaml:"retry_times"`
}

type Performance struct {
	Threading Threading `yaml:"threading"`
}

// Subtitle controls sentence-splitting and font selection (§4.1 S1, §4.6).
type Subtitle struct {
	MaxCharsPerLine int      `yaml:"max_chars_per_line"`
	FontPath        string   `yaml:"font_path"`
	FontFallback    []string `yaml:"font_fallback"`
}

// STT controls the alternative audio-input path (§4.1).
type STT struct {
	Enabled              bool    `yaml:"enabled"`
	MinConfidenceThreshold float64 `yaml:"min_confidence_threshold"`
	SegmentMergeThreshold  float64 `yaml:"stt_segment_merge_threshold"`
	MinSegmentLength       float64 `yaml:"stt_min_segment_length"`
}

// MusicDownload controls media-cache download bounds (§4.5).
type MusicDownload struct {
	MaxSizeBytes int64 `yaml:"max_size"`
	TimeoutSec   int   `yaml:"timeout"`
	ChunkSize    int   `yaml:"chunk_size"`
}

// Music controls the recommender + library (§4.5).
type Music struct {
	Enabled       bool          `yaml:"enabled"`
	SmartMode     bool          `yaml:"smart_mode"`
	TrackPath     string        `yaml:"track_path"`
	Gain          float64       `yaml:"gain"`
	FadeInSec     float64       `yaml:"fade_in"`
	FadeOutSec    float64       `yaml:"fade_out"`
	LibraryPath   string        `yaml:"library_path"`
	Download      MusicDownload `yaml:"download"`
	MaxCacheAgeDays int         `yaml:"max_cache_age"`
	MaxCacheFiles   int         `yaml:"max_cache_files"`
	Sources         []string    `yaml:"sources"`
}

// Export controls the encoder preset mapping (§4.1 S7).
type Export struct {
	Quality string `yaml:"quality"` // ultra|high|medium|low
}

// SimpleTemplate controls slideshow defaults (§4.4).
type SimpleTemplate struct {
	ImageDurationSec   float64 `yaml:"image_duration"`
	Transition         string  `yaml:"transition"`
	TransitionDuration float64 `yaml:"transition_duration"`
}

type Templates struct {
	Simple SimpleTemplate `yaml:"simple"`
}

// Config is the full typed configuration tree loaded from YAML, with
// secrets overridden from the environment (via .env, matching the teacher's
// godotenv usage).
type Config struct {
	Performance Performance `yaml:"performance"`
	Subtitle    Subtitle    `yaml:"subtitle"`
	STT         STT         `yaml:"stt"`
	Music       Music       `yaml:"music"`
	Export      Export      `yaml:"export"`
	Templates   Templates   `yaml:"templates"`

	// TTSEngine selects which TTS provider cmd/videomaker constructs:
	// "elevenlabs" (default) or "cartesia" as a fallback when ElevenLabs is
	// unavailable or over quota.
	TTSEngine string `yaml:"tts_engine"`

	// Secrets — never read from YAML, always from the environment.
	OpenAIKey  string `yaml:"-"`
	GeminiKey  string `yaml:"-"`
	ElevenLabsKey string `yaml:"-"`
	ElevenLabsVoiceID string `yaml:"-"`
	CartesiaKey   string `yaml:"-"`
	CartesiaAPIURL string `yaml:"-"`
	CartesiaVoiceID string `yaml:"-"`
	JamendoClientID string `yaml:"-"`

	// API server (optional status surface)
	APIPort            string `yaml:"-"`
	BackendAPIKey      string `yaml:"-"`
	CorsAllowedOrigins string `yaml:"-"`

	// Batch-run history store (optional)
	DatabaseURL string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Performance: Performance{
			Threading: Threading{
				MaxWorkers:         "auto",
				MaxConcurrentTasks: 4,
				WorkerMemoryLimit:  4096,
				TaskTimeoutSec:     3600,
				RetryTimes:         3,
			},
		},
		Subtitle: Subtitle{
			MaxCharsPerLine: 20,
		},
		STT: STT{
			Enabled:                false,
			MinConfidenceThreshold: 0.3,
			SegmentMergeThreshold:  0.5,
			MinSegmentLength:       0.2,
		},
		Music: Music{
			Enabled:     false,
			SmartMode:   false,
			Gain:        0.12,
			FadeInSec:   1.0,
			FadeOutSec:  1.0,
			LibraryPath: "data/music_library.json",
			Download: MusicDownload{
				MaxSizeBytes: 50 * 1024 * 1024,
				TimeoutSec:   30,
				ChunkSize:    8192,
			},
			MaxCacheAgeDays: 30,
			MaxCacheFiles:   100,
		},
		Export:    Export{Quality: "medium"},
		TTSEngine: "elevenlabs",
		Templates: Templates{
			Simple: SimpleTemplate{
				ImageDurationSec:   3.0,
				Transition:         "crossfade",
				TransitionDuration: 0.5,
			},
		},
		APIPort: "8080",
	}
}

// Load reads defaults, overlays the YAML file at path (if non-empty and
// present), then applies environment-variable secret overrides. Unknown
// YAML keys are rejected (KnownFields), per §9's "unknown keys are
// rejected, not silently ignored" design note.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("open config %s: %w", path, err)
			}
		} else {
			defer f.Close()
			dec := yaml.NewDecoder(f)
			dec.KnownFields(true)
			if err := dec.Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIKey)
	cfg.GeminiKey = getEnv("GEMINI_API_KEY", cfg.GeminiKey)
	cfg.ElevenLabsKey = getEnv("ELEVENLABS_API_KEY", cfg.ElevenLabsKey)
	cfg.ElevenLabsVoiceID = getEnv("ELEVENLABS_VOICE_ID", cfg.ElevenLabsVoiceID)
	cfg.CartesiaKey = getEnv("CARTESIA_API_KEY", cfg.CartesiaKey)
	cfg.CartesiaAPIURL = getEnv("CARTESIA_API_URL", "https://api.cartesia.ai")
	cfg.CartesiaVoiceID = getEnv("CARTESIA_VOICE_ID", cfg.CartesiaVoiceID)
	cfg.JamendoClientID = getEnv("JAMENDO_CLIENT_ID", cfg.JamendoClientID)
	cfg.APIPort = getEnv("API_PORT", cfg.APIPort)
	cfg.BackendAPIKey = getEnv("BACKEND_API_KEY", cfg.BackendAPIKey)
	cfg.CorsAllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", cfg.CorsAllowedOrigins)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Performance.Threading.RetryTimes < 0 {
		return fmt.Errorf("performance.threading.retry_times must be >= 0")
	}
	if c.Performance.Threading.TaskTimeoutSec <= 0 {
		return fmt.Errorf("performance.threading.task_timeout must be > 0")
	}
	if c.Subtitle.MaxCharsPerLine <= 0 {
		return fmt.Errorf("subtitle.max_chars_per_line must be > 0")
	}
	if c.Music.Download.MaxSizeBytes <= 0 {
		return fmt.Errorf("music.download.max_size must be > 0")
	}
	switch c.Export.Quality {
	case "ultra", "high", "medium", "low":
	default:
		return fmt.Errorf("export.quality must be one of ultra|high|medium|low, got %q", c.Export.Quality)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// MaxWorkersConfigured reports the configured integer worker count and
// whether "auto" sizing (§4.3) should be used instead.
func (t Threading) MaxWorkersConfigured() (n int, auto bool) {
	if t.MaxWorkers == "" || t.MaxWorkers == "auto" {
		return 0, true
	}
	v, err := strconv.Atoi(t.MaxWorkers)
	if err != nil || v <= 0 {
		return 0, true
	}
	return v, false
}
