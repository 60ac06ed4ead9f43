// Package timing implements the Timing Reconciler (C4, spec.md §4.4):
// aligning per-sentence audio durations with subtitle segments, and
// computing slideshow image dwell time so audio, transitions, and video
// co-terminate.
//
// No teacher file covers this directly; the formulas are grounded in
// spec.md §4.4 itself and in the timestamp-math style of
// internal/services/subtitles.go (formatASSTime-style seconds bookkeeping).
package timing

import (
	"fmt"

	"github.com/videomaker/pipeline/internal/models"
)

// BuildSubtitleSegments packs sentences end-to-end using their measured
// durations: start[0]=0, end[i]=start[i]+d[i], start[i+1]=end[i]. Sentences
// and durations must be the same length and every duration must be > 0
// (durations of zero are skipped upstream, per spec.md §4.1).
func BuildSubtitleSegments(sentences []models.Sentence, durations []float64) ([]models.SubtitleSegment, error) {
	if len(sentences) != len(durations) {
		return nil, fmt.Errorf("sentence count %d does not match duration count %d", len(sentences), len(durations))
	}

	segments := make([]models.SubtitleSegment, 0, len(sentences))
	cursor := 0.0
	for i, s := range sentences {
		d := durations[i]
		if d <= 0 {
			return nil, fmt.Errorf("sentence %d has non-positive duration %v", i, d)
		}
		start := cursor
		end := start + d
		segments = append(segments, models.SubtitleSegment{
			Index:     i + 1,
			Text:      s.Text,
			StartTime: start,
			EndTime:   end,
		})
		cursor = end
	}
	return segments, nil
}

// TotalDuration sums durations, == the sum of subtitle segment spans.
func TotalDuration(durations []float64) float64 {
	total := 0.0
	for _, d := range durations {
		total += d
	}
	return total
}

// ImageDwell computes the per-image on-screen duration for k images given
// total audio duration T and cross-fade length f, per spec.md §4.4:
//
//	k == 1 or f == 0: dwell = T / k
//	otherwise:        dwell = (T + (k-1)*f) / k
//
// Returns BadConfig if the resulting dwell would be <= 0.
func ImageDwell(totalDuration float64, k int, crossFade float64) (float64, error) {
	if k <= 0 {
		return 0, models.ErrBadConfig("image count must be > 0 to compute dwell")
	}

	var dwell float64
	if k == 1 || crossFade == 0 {
		dwell = totalDuration / float64(k)
	} else {
		dwell = (totalDuration + float64(k-1)*crossFade) / float64(k)
	}

	if dwell <= 0 {
		return 0, models.ErrBadConfig(fmt.Sprintf("computed dwell %.3f <= 0 for k=%d f=%.3f T=%.3f", dwell, k, crossFade, totalDuration))
	}
	return dwell, nil
}

// DriftCorrection returns the signed drift T − V between the target total
// duration T and the composed video duration V, and whether its magnitude
// exceeds toleranceSec (spec.md's 0.1s); in that case the caller should trim
// or append a background-color clip of |drift| to close the gap.
func DriftCorrection(targetDuration, composedDuration, toleranceSec float64) (needsCorrection bool, drift float64) {
	drift = targetDuration - composedDuration
	abs := drift
	if abs < 0 {
		abs = -abs
	}
	return abs > toleranceSec, drift
}

// EstimateDuration is the character-count-based duration estimate, used
// only as an explicit fallback for pure-text subtitle generation when no
// audio exists at all (never when TTS produced a measured duration — see
// DESIGN.md's resolution of spec.md §9's estimate-vs-measured open
// question). wordsPerMinute follows the 140 WPM heuristic used by the
// teacher's TTS adapters (elevenlabs.go, cartesia.go) for consistency.
func EstimateDuration(text string, wordsPerMinute float64) float64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 140
	}
	words := float64(len([]rune(text))) / 5.0 // rough chars-per-word heuristic for mixed scripts
	if words < 1 {
		words = 1
	}
	return words / wordsPerMinute * 60.0
}
