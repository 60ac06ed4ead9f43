package models

import (
	"time"
)

// TaskStatus is the closed set of states a VideoTask can occupy.
// Transitions are monotone: Pending -> Processing -> {Completed|Failed|Cancelled}.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status is one of the terminal states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// TaskResult is the success payload recorded on a completed VideoTask.
type TaskResult struct {
	OutputPath      string  `json:"output_path"`
	DurationSec     float64 `json:"duration_sec"`
	SubtitleCount   int     `json:"subtitle_count"`
}

// VideoTask is one end-to-end script-to-video job.
//
// Exactly one of ScriptPath, ScriptText, AudioPath should be set; it selects
// the text-input path (S1 ingest) or the STT-driven path (generateFromAudio).
type VideoTask struct {
	ID             string                 `json:"task_id"`
	ScriptPath     string                 `json:"script_path,omitempty"`
	ScriptText     string                 `json:"script_text,omitempty"`
	AudioPath      string                 `json:"audio_path,omitempty"`
	MaterialsDir   string                 `json:"materials_dir,omitempty"`
	OutputPath     string                 `json:"output_path,omitempty"`
	ConfigOverride map[string]interface{} `json:"config_override,omitempty"`

	Status      TaskStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ErrorMessage string      `json:"error_message,omitempty"`
	Result       *TaskResult `json:"result,omitempty"`
}

// Sentence is one unit produced by splitting a script.
type Sentence struct {
	Index int
	Text  string
}

// AudioSegment pairs a produced audio file with its measured duration.
type AudioSegment struct {
	LocalPath   string
	DurationSec float64
}

// SubtitleSegment is one strictly-packed subtitle span.
type SubtitleSegment struct {
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Duration returns EndTime - StartTime.
func (s SubtitleSegment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// CopyrightStatus is the closed set of copyright classifications for a
// music recommendation. Only the first three are SafeToUse.
type CopyrightStatus string

const (
	CopyrightPublicDomain   CopyrightStatus = "public_domain"
	CopyrightCreativeCommons CopyrightStatus = "creative_commons"
	CopyrightRoyaltyFree    CopyrightStatus = "royalty_free"
	CopyrightUnknown        CopyrightStatus = "unknown"
	CopyrightCopyrighted    CopyrightStatus = "copyrighted"
)

// SafeToUse reports whether content under this status may be used without
// further clearance.
func (c CopyrightStatus) SafeToUse() bool {
	switch c {
	case CopyrightPublicDomain, CopyrightCreativeCommons, CopyrightRoyaltyFree:
		return true
	default:
		return false
	}
}

// ParseCopyrightStatus performs an explicit match against the closed set,
// returning CopyrightUnknown for anything unrecognized (forward-compatible
// sentinel, per the "reflection-based enum parsing -> explicit match" design
// note).
func ParseCopyrightStatus(s string) CopyrightStatus {
	switch CopyrightStatus(s) {
	case CopyrightPublicDomain, CopyrightCreativeCommons, CopyrightRoyaltyFree, CopyrightCopyrighted:
		return CopyrightStatus(s)
	default:
		return CopyrightUnknown
	}
}

// MusicRecommendation describes one candidate background track.
type MusicRecommendation struct {
	Title           string          `json:"title"`
	Artist          string          `json:"artist"`
	URL             string          `json:"url"`
	DurationSec     float64         `json:"duration_sec"`
	Genre           string          `json:"genre"`
	Mood            string          `json:"mood"`
	CopyrightStatus CopyrightStatus `json:"copyright_status"`
	ConfidenceScore float64         `json:"confidence_score"`
	Source          string          `json:"source"`
	LicenseURL      string          `json:"license_url,omitempty"`
	LocalPath       string          `json:"local_path,omitempty"`
	FileSize        int64           `json:"file_size,omitempty"`
	FileHash        string          `json:"file_hash,omitempty"`
}

// Valid checks the invariants spec.md pins on a MusicRecommendation.
func (m MusicRecommendation) Valid() bool {
	if m.Title == "" || m.URL == "" {
		return false
	}
	if m.DurationSec <= 0 {
		return false
	}
	if m.ConfidenceScore < 0 || m.ConfidenceScore > 1 {
		return false
	}
	return true
}

// MediaCacheEntry is one entry in the content-addressed local media cache.
type MediaCacheEntry struct {
	Recommendation MusicRecommendation `json:"recommendation"`
	LocalPath      string              `json:"local_path"`
	DownloadedAt   time.Time           `json:"downloaded_at"`
	LastUsedAt     *time.Time          `json:"last_used_at,omitempty"`
	UseCount       int                 `json:"use_count"`
	FileHash       string              `json:"file_hash,omitempty"`
}

// ResourceLedger is the in-memory admission-control state owned by the
// Resource Manager. It is re-initialized to zero on process start.
type ResourceLedger struct {
	ActiveTasks      int
	ReservedMemoryMB int
}

// MusicSearchCriteria narrows a music lookup.
type MusicSearchCriteria struct {
	CopyrightOnly bool
	MinDuration   float64
	MaxDuration   float64
	PreferredGenres []string
	PreferredMoods  []string
	Sources         []string
}

// TranscriptSegment is one STT segment with a confidence score, prior to
// filtering and merging (§4.1 alternative audio-input path).
type TranscriptSegment struct {
	Text       string
	Start      float64
	End        float64
	Confidence float64
}
