package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/videomaker/pipeline/internal/models"
)

func TestSelectEncoderPrefersNVENC(t *testing.T) {
	got := SelectEncoder(HardwareAccel{NVENCAvailable: true, VideoToolboxAvailable: true})
	if got != EncoderNVENC {
		t.Errorf("expected NVENC preferred, got %s", got)
	}
}

func TestSelectEncoderFallsBackToLibx264(t *testing.T) {
	got := SelectEncoder(HardwareAccel{})
	if got != EncoderLibx264 {
		t.Errorf("expected libx264 fallback, got %s", got)
	}
}

func TestOverlayAndEncodeRejectsUnknownQuality(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRenderer(dir)
	if err != nil {
		t.Fatal(err)
	}
	err = r.OverlayAndEncode(context.Background(), "in.mp4", "", "", "out.mp4", EncoderLibx264, "bogus")
	if !models.Is(err, models.KindBadConfig) {
		t.Fatalf("expected BadConfig error, got %v", err)
	}
}

func TestEscapeFFmpegFilterPath(t *testing.T) {
	got := escapeFFmpegFilterPath(`C:\subs:file'.ass`)
	want := `C\:\\subs\:file'\''.ass`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatASSTime(t *testing.T) {
	cases := map[float64]string{
		0:       "0:00:00.00",
		61.5:    "0:01:01.50",
		3661.25: "1:01:01.25",
	}
	for in, want := range cases {
		if got := formatASSTime(in); got != want {
			t.Errorf("formatASSTime(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateASSSubtitlesWritesDialogueLines(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "subs.ass")

	segments := []models.SubtitleSegment{
		{Text: "hello", StartTime: 0, EndTime: 1, Index: 0},
		{Text: "world", StartTime: 1, EndTime: 2, Index: 1},
	}

	if err := GenerateASSSubtitles(segments, out, "Noto Sans"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !contains(content, "HELLO") || !contains(content, "WORLD") {
		t.Errorf("expected uppercase dialogue text in output, got:\n%s", content)
	}
}

func TestGenerateASSSubtitlesRejectsEmpty(t *testing.T) {
	err := GenerateASSSubtitles(nil, filepath.Join(t.TempDir(), "x.ass"), "Noto Sans")
	if err == nil {
		t.Fatal("expected error for empty segment list")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
