// Package render drives ffmpeg/ffprobe subprocesses for audio concatenation,
// slideshow composition, subtitle burn-in, and final encoding (C8, §4.1
// S4/S6/S7, §4.6).
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
)

const (
	outputWidth  = 1080
	outputHeight = 1920
	videoFPS     = 30
)

// EncoderMode is the closed set of video encoders the renderer can target.
type EncoderMode string

const (
	EncoderNVENC        EncoderMode = "h264_nvenc"
	EncoderVideoToolbox EncoderMode = "h264_videotoolbox"
	EncoderLibx264      EncoderMode = "libx264"
)

// qualityPresets maps the configured export quality to an libx264 preset,
// per spec.md §4.1 S7: ultra→slow, high→medium, medium→fast, low→ultrafast.
var qualityPresets = map[string]string{
	"ultra":  "slow",
	"high":   "medium",
	"medium": "fast",
	"low":    "ultrafast",
}

// HardwareAccel describes what hardware encoding capability, if any, the
// host advertises. cmd/videomaker constructs this once at startup from
// ffmpeg's advertised hwaccels and encoders and hands it to the
// orchestrator; render itself never probes hardware.
type HardwareAccel struct {
	NVENCAvailable        bool // ffmpeg lists the cuda hwaccel and h264_nvenc
	VideoToolboxAvailable bool // ffmpeg lists the videotoolbox hwaccel and h264_videotoolbox
}

// SelectEncoder implements §4.6's codec preference: a hardware encoder if
// advertised, else libx264.
func SelectEncoder(hw HardwareAccel) EncoderMode {
	switch {
	case hw.NVENCAvailable:
		return EncoderNVENC
	case hw.VideoToolboxAvailable:
		return EncoderVideoToolbox
	default:
		return EncoderLibx264
	}
}

func encoderArgs(mode EncoderMode, preset string) []string {
	switch mode {
	case EncoderNVENC:
		return []string{"-c:v", string(mode), "-preset", "medium", "-cq", "23"}
	case EncoderVideoToolbox:
		return []string{"-c:v", string(mode), "-q:v", "55"}
	default:
		return []string{"-c:v", string(EncoderLibx264), "-preset", preset, "-crf", "23"}
	}
}

// Renderer owns a per-job temp directory and runs the ffmpeg/ffprobe steps
// of the orchestrator's S4/S6/S7 stages.
type Renderer struct {
	tempDir string
	log     *logging.Logger
}

// NewRenderer creates a Renderer rooted at tempDir, creating it if needed.
func NewRenderer(tempDir string) (*Renderer, error) {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create render temp dir: %w", err)
	}
	return &Renderer{tempDir: tempDir, log: logging.New("Render")}, nil
}

// TempFile returns a path under the renderer's temp directory.
func (r *Renderer) TempFile(name string) string {
	return filepath.Join(r.tempDir, name)
}

// Cleanup best-effort removes the given paths.
func (r *Renderer) Cleanup(paths ...string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

func run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ConcatenateAudio joins per-sentence audio files (S4) into a single track
// using ffmpeg's concat demuxer.
func (r *Renderer) ConcatenateAudio(ctx context.Context, audioPaths []string, outputPath string) error {
	return r.concatFiles(ctx, audioPaths, outputPath)
}

func (r *Renderer) concatFiles(ctx context.Context, paths []string, outputPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no files to concatenate")
	}

	listPath := r.TempFile(fmt.Sprintf("concat_%d.txt", len(paths)))
	f, err := os.Create(listPath)
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	for _, p := range paths {
		fmt.Fprintf(f, "file '%s'\n", escapeFFmpegFilterPath(p))
	}
	f.Close()
	defer os.Remove(listPath)

	args := []string{"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-y", outputPath}
	if err := run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

// MixBackgroundMusic mixes a looping background track underneath the
// existing narration audio at the configured gain, with no-op behavior
// when musicPath is empty or missing.
func (r *Renderer) MixBackgroundMusic(ctx context.Context, audioPath, musicPath, outputPath string, gain, fadeInSec, fadeOutSec float64) error {
	if musicPath == "" {
		return nil
	}
	if _, err := os.Stat(musicPath); os.IsNotExist(err) {
		r.log.Warnf("background music file not found at %s, skipping", musicPath)
		return nil
	}

	musicFilter := fmt.Sprintf("volume=%.3f", gain)
	if fadeInSec > 0 {
		musicFilter += fmt.Sprintf(",afade=t=in:st=0:d=%.2f", fadeInSec)
	}

	filterComplex := fmt.Sprintf(
		"[0:a]volume=1.0[narration];[1:a]%s[music];[narration][music]amix=inputs=2:duration=first:dropout_transition=%.2f[aout]",
		musicFilter, fadeOutSec,
	)

	args := []string{
		"-i", audioPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", filterComplex,
		"-map", "[aout]",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest", "-y", outputPath,
	}

	if err := run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg mix background music failed: %w", err)
	}
	return nil
}

// BuildSlideshow composes a sequence of still images into a single video of
// exact duration equal to the audio (§4.4's dwell/cross-fade formula). Each
// image is shown for dwellSec with crossFadeSec-long transitions between
// adjacent images (each overlapping its neighbour by crossFadeSec, for a
// total of k·dwellSec − (k−1)·crossFadeSec); the first/last images have no
// transition on their outer edge.
func (r *Renderer) BuildSlideshow(ctx context.Context, images []string, dwellSec, crossFadeSec float64, outputPath string) error {
	if len(images) == 0 {
		return fmt.Errorf("no images to compose")
	}
	if len(images) == 1 {
		return r.singleImageClip(ctx, images[0], dwellSec, outputPath)
	}

	args := []string{}
	for _, img := range images {
		args = append(args, "-loop", "1", "-t", fmt.Sprintf("%.3f", dwellSec), "-i", img)
	}

	var filters []string
	prevLabel := "0:v"
	step := dwellSec - crossFadeSec
	offset := step
	for i := 1; i < len(images); i++ {
		outLabel := fmt.Sprintf("xf%d", i)
		filters = append(filters, fmt.Sprintf(
			"[%s][%d:v]xfade=transition=fade:duration=%.3f:offset=%.3f[%s]",
			prevLabel, i, crossFadeSec, offset, outLabel,
		))
		prevLabel = outLabel
		offset += step
	}

	filterComplex := strings.Join(filters, ";")
	scaleFilter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1", outputWidth, outputHeight, outputWidth, outputHeight)

	args = append(args,
		"-filter_complex", filterComplex,
		"-vf", scaleFilter,
		"-r", fmt.Sprintf("%d", videoFPS),
		"-pix_fmt", "yuv420p",
		"-y", outputPath,
	)

	if err := run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg slideshow compose failed: %w", err)
	}
	return nil
}

func (r *Renderer) singleImageClip(ctx context.Context, image string, durationSec float64, outputPath string) error {
	scaleFilter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1", outputWidth, outputHeight, outputWidth, outputHeight)
	args := []string{
		"-loop", "1", "-t", fmt.Sprintf("%.3f", durationSec), "-i", image,
		"-vf", scaleFilter,
		"-r", fmt.Sprintf("%d", videoFPS),
		"-pix_fmt", "yuv420p",
		"-y", outputPath,
	}
	if err := run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg single-image clip failed: %w", err)
	}
	return nil
}

// BuildColorClip builds a solid-color video clip of the given duration, used
// when no images are available (§4.1 S6 edge case).
func (r *Renderer) BuildColorClip(ctx context.Context, durationSec float64, outputPath string) error {
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%.3f", outputWidth, outputHeight, videoFPS, durationSec),
		"-pix_fmt", "yuv420p",
		"-y", outputPath,
	}
	if err := run(ctx, "ffmpeg", args); err != nil {
		return fmt.Errorf("ffmpeg color clip failed: %w", err)
	}
	return nil
}

// TrimOrPad corrects residual drift (§4.4) by trimming the video to
// targetSec or appending a black clip of the shortfall, depending on sign.
func (r *Renderer) TrimOrPad(ctx context.Context, videoPath string, currentSec, targetSec float64, outputPath string) error {
	if currentSec > targetSec {
		args := []string{"-i", videoPath, "-t", fmt.Sprintf("%.3f", targetSec), "-c", "copy", "-y", outputPath}
		if err := run(ctx, "ffmpeg", args); err != nil {
			return fmt.Errorf("ffmpeg trim failed: %w", err)
		}
		return nil
	}

	padPath := r.TempFile("drift_pad.mp4")
	if err := r.BuildColorClip(ctx, targetSec-currentSec, padPath); err != nil {
		return err
	}
	defer os.Remove(padPath)
	return r.concatFiles(ctx, []string{videoPath, padPath}, outputPath)
}

// OverlayAndEncode burns in subtitles (if subtitlePath is non-empty) and
// encodes the final output with the preset derived from quality. On a
// codec-specific encoder failure it retries once with libx264, per §4.6.
func (r *Renderer) OverlayAndEncode(ctx context.Context, videoPath, audioPath, subtitlePath, outputPath string, encoder EncoderMode, quality string) error {
	preset, ok := qualityPresets[quality]
	if !ok {
		return models.ErrBadConfig(fmt.Sprintf("unknown export quality %q", quality))
	}

	if err := r.encodeOnce(ctx, videoPath, audioPath, subtitlePath, outputPath, encoder, preset); err != nil {
		if encoder == EncoderLibx264 {
			return fmt.Errorf("ffmpeg encode failed: %w", err)
		}
		r.log.Warnf("hardware encoder %s failed, retrying with libx264: %v", encoder, err)
		return r.encodeOnce(ctx, videoPath, audioPath, subtitlePath, outputPath, EncoderLibx264, preset)
	}
	return nil
}

func (r *Renderer) encodeOnce(ctx context.Context, videoPath, audioPath, subtitlePath, outputPath string, encoder EncoderMode, preset string) error {
	vf := ""
	if subtitlePath != "" {
		vf = fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(subtitlePath))
	}

	args := []string{"-i", videoPath}
	if audioPath != "" {
		args = append(args, "-i", audioPath, "-map", "0:v", "-map", "1:a")
	}
	if vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, encoderArgs(encoder, preset)...)
	args = append(args, "-c:a", "aac", "-b:a", "192k", "-pix_fmt", "yuv420p", "-shortest", "-y", outputPath)

	return run(ctx, "ffmpeg", args)
}

// GetAudioDuration returns the duration of an audio file in seconds via
// ffprobe. Per spec.md §4.1 S3, this is the only source of truth for a
// produced audio file's duration — never an estimate.
func GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	return probeDuration(ctx, audioPath)
}

// GetVideoDuration returns the duration of a video file in seconds via ffprobe.
func GetVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	return probeDuration(ctx, videoPath)
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return durationSec, nil
}
