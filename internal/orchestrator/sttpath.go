package orchestrator

import (
	"strings"

	"github.com/videomaker/pipeline/internal/models"
)

// cjkPunctuation normalizes the common ASCII punctuation STT engines emit
// into their CJK full-width equivalents, per §4.1's alternative audio-input
// path ("normalize punctuation to CJK forms").
var cjkPunctuation = strings.NewReplacer(
	",", "，",
	".", "。",
	"!", "！",
	"?", "？",
	":", "：",
	";", "；",
)

// buildSubtitlesFromTranscript implements the generateFromAudio filtering
// pipeline: drop low-confidence segments, drop segments shorter than
// minSegmentLength, normalize punctuation, then merge adjacent segments
// whose inter-gap and combined duration both stay within the configured
// thresholds. The result bypasses S3/S5 and is used directly as the final
// subtitle segment list.
func buildSubtitlesFromTranscript(segments []models.TranscriptSegment, minConfidence, minSegmentLength, mergeThreshold float64) []models.SubtitleSegment {
	var kept []models.TranscriptSegment
	for _, seg := range segments {
		if seg.Confidence < minConfidence {
			continue
		}
		if seg.End-seg.Start < minSegmentLength {
			continue
		}
		seg.Text = cjkPunctuation.Replace(strings.TrimSpace(seg.Text))
		if seg.Text == "" {
			continue
		}
		kept = append(kept, seg)
	}

	merged := mergeAdjacent(kept, mergeThreshold)

	out := make([]models.SubtitleSegment, 0, len(merged))
	for i, seg := range merged {
		out = append(out, models.SubtitleSegment{
			Index:     i + 1,
			Text:      seg.Text,
			StartTime: seg.Start,
			EndTime:   seg.End,
		})
	}
	return out
}

// mergeAdjacent merges consecutive segments whose inter-gap is at most
// mergeThreshold and whose combined duration stays within 2*mergeThreshold.
func mergeAdjacent(segments []models.TranscriptSegment, mergeThreshold float64) []models.TranscriptSegment {
	if len(segments) == 0 {
		return nil
	}

	merged := []models.TranscriptSegment{segments[0]}
	for _, seg := range segments[1:] {
		last := &merged[len(merged)-1]
		gap := seg.Start - last.End
		combined := seg.End - last.Start
		if gap <= mergeThreshold && combined <= 2*mergeThreshold {
			last.Text = strings.TrimSpace(last.Text + seg.Text)
			last.End = seg.End
			if seg.Confidence < last.Confidence {
				last.Confidence = seg.Confidence
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}
