package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/videomaker/pipeline/internal/models"
)

// ---------------------------------------------------------------------------
// ASS Subtitle Generator
//
// Renders the Timing Reconciler's subtitle segments (§4.4/S5) as an ASS
// (Advanced SubStation Alpha) file: bold uppercase text, centered at the
// bottom of the frame, with a dark outline for readability against any
// background.
// ---------------------------------------------------------------------------

const (
	subtitleFontSize = 62 // scaled for a 1920-height canvas, matching the encoder's output resolution

	// ASS colors are in &HAABBGGRR format (hex, note: BGR not RGB).
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorSemiBlack = "&H80000000"

	outlineNormal   = 3
	subtitleMarginV = 220

	playResX = outputWidth
	playResY = outputHeight
)

// GenerateASSSubtitles writes an ASS subtitle file from the subtitle
// segments produced by the Timing Reconciler. fontName must already have
// passed font resolution (§4.6) — this function does not fall back.
func GenerateASSSubtitles(segments []models.SubtitleSegment, outputPath, fontName string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no subtitle segments to render")
	}

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString(fmt.Sprintf("PlayResX: %d\n", playResX))
	sb.WriteString(fmt.Sprintf("PlayResY: %d\n", playResY))
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	sb.WriteString(fmt.Sprintf(
		"Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,2,0,1,%d,0,2,40,40,%d,1\n\n",
		fontName, subtitleFontSize,
		assColorWhite, assColorWhite, assColorBlack, assColorSemiBlack,
		outlineNormal, subtitleMarginV,
	))

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, seg := range segments {
		text := strings.ToUpper(strings.TrimSpace(seg.Text))
		if text == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf(
			"Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(seg.StartTime), formatASSTime(seg.EndTime), text,
		))
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write ASS subtitle file: %w", err)
	}

	return nil
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds).
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}

// escapeFFmpegFilterPath escapes special characters in file paths for
// FFmpeg filter syntax (colons, backslashes, and single quotes).
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}
