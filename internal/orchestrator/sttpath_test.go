package orchestrator

import (
	"testing"

	"github.com/videomaker/pipeline/internal/models"
)

func TestBuildSubtitlesFromTranscriptDropsLowConfidence(t *testing.T) {
	segs := []models.TranscriptSegment{
		{Text: "kept", Start: 0, End: 1, Confidence: 0.9},
		{Text: "dropped", Start: 5, End: 6, Confidence: 0.1},
	}
	out := buildSubtitlesFromTranscript(segs, 0.3, 0.1, 0.2)
	if len(out) != 1 || out[0].Text != "kept" {
		t.Fatalf("expected only the high-confidence segment, got %+v", out)
	}
}

func TestBuildSubtitlesFromTranscriptDropsShortSegments(t *testing.T) {
	segs := []models.TranscriptSegment{
		{Text: "too short", Start: 0, End: 0.05, Confidence: 0.9},
	}
	out := buildSubtitlesFromTranscript(segs, 0.3, 0.2, 0.2)
	if len(out) != 0 {
		t.Fatalf("expected short segment dropped, got %+v", out)
	}
}

func TestBuildSubtitlesFromTranscriptMergesAdjacent(t *testing.T) {
	segs := []models.TranscriptSegment{
		{Text: "hello", Start: 0, End: 1, Confidence: 0.9},
		{Text: "world", Start: 1.1, End: 1.8, Confidence: 0.8},
	}
	out := buildSubtitlesFromTranscript(segs, 0.3, 0.1, 1.0)
	if len(out) != 1 {
		t.Fatalf("expected merge into one segment, got %+v", out)
	}
	if out[0].Text != "helloworld" && out[0].Text != "hello world" {
		t.Errorf("unexpected merged text %q", out[0].Text)
	}
	if out[0].StartTime != 0 || out[0].EndTime != 1.8 {
		t.Errorf("unexpected merged span [%v,%v]", out[0].StartTime, out[0].EndTime)
	}
}

func TestBuildSubtitlesFromTranscriptDoesNotMergeAcrossLargeGap(t *testing.T) {
	segs := []models.TranscriptSegment{
		{Text: "hello", Start: 0, End: 1, Confidence: 0.9},
		{Text: "world", Start: 5, End: 6, Confidence: 0.9},
	}
	out := buildSubtitlesFromTranscript(segs, 0.3, 0.1, 0.5)
	if len(out) != 2 {
		t.Fatalf("expected no merge across a large gap, got %+v", out)
	}
}

func TestBuildSubtitlesFromTranscriptNormalizesPunctuation(t *testing.T) {
	segs := []models.TranscriptSegment{
		{Text: "hi, there.", Start: 0, End: 1, Confidence: 0.9},
	}
	out := buildSubtitlesFromTranscript(segs, 0.3, 0.1, 0.2)
	if len(out) != 1 {
		t.Fatalf("expected one segment, got %d", len(out))
	}
	if out[0].Text != "hi， there。" {
		t.Errorf("expected CJK punctuation normalization, got %q", out[0].Text)
	}
}
