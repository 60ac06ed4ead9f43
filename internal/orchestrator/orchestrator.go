// Package orchestrator implements the Pipeline Orchestrator (C5, spec.md
// §4.1): it drives one VideoTask through the fixed stage sequence S1..S7 (or
// the alternative STT-driven generateFromAudio path), wiring together every
// other component as an injected collaborator.
//
// Grounded on internal/worker/worker.go's stage-handler shape — a struct
// holding collaborator handles plus per-operation semaphores, one exported
// entry point per job, errgroup-based internal fan-out where the stages
// allow it (S3's per-sentence TTS calls).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/videomaker/pipeline/internal/config"
	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/music"
	"github.com/videomaker/pipeline/internal/render"
	"github.com/videomaker/pipeline/internal/services"
	"github.com/videomaker/pipeline/internal/timing"
)

// defaultVoiceStyle is used when a job carries no style hint, matching the
// teacher worker's own default instruction string.
const defaultVoiceStyle = "natural and engaging"

// driftTolerance is the residual-drift tolerance (§4.4) before the
// orchestrator trims or pads the composed video.
const driftTolerance = 0.1

// Collaborators bundles every external engine and sub-component the
// orchestrator wires into a single run. MusicRecommender and STT may be
// nil. With no STT, the generateFromAudio path fails with BadConfig. With
// no MusicRecommender, smart-mode lookup is skipped: a configured
// track_path is still mixed, otherwise the narration is used without music.
type Collaborators struct {
	TTS              services.TTSProvider
	STT              services.STTProvider
	MusicRecommender *music.Recommender
	HardwareAccel    render.HardwareAccel

	// TTSConcurrency bounds the number of in-flight TTS calls per job
	// (spec.md §5: "TTS: configurable, default 1 for the current engines").
	TTSConcurrency int
}

// Orchestrator drives VideoTasks stage-by-stage.
type Orchestrator struct {
	cfg      *config.Config
	collab   Collaborators
	tempRoot string
	log      *logging.Logger
}

// New builds an Orchestrator. tempRoot is the base directory under which a
// per-job subdirectory is created and removed on every exit path.
func New(cfg *config.Config, collab Collaborators, tempRoot string) *Orchestrator {
	if collab.TTSConcurrency <= 0 {
		collab.TTSConcurrency = 1
	}
	return &Orchestrator{
		cfg:      cfg,
		collab:   collab,
		tempRoot: tempRoot,
		log:      logging.New("Orchestrator"),
	}
}

// Run drives job through S1..S7 (or generateFromAudio), per the contract in
// §4.1: `run(job) -> {success, outputPath, durationSec, subtitleCount} |
// {success:false, error}`. All temporary files live under a per-job
// subdirectory of tempRoot, removed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, job *models.VideoTask) (*models.TaskResult, error) {
	jobDir := filepath.Join(o.tempRoot, job.ID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, fmt.Errorf("create job temp dir: %w", err)
	}
	defer os.RemoveAll(jobDir)

	renderer, err := render.NewRenderer(jobDir)
	if err != nil {
		return nil, err
	}

	if job.AudioPath != "" {
		return o.runAudioPath(ctx, job, renderer, jobDir)
	}
	return o.runTextPath(ctx, job, renderer, jobDir)
}

// runTextPath implements S1..S7 for the script-text-input mode.
func (o *Orchestrator) runTextPath(ctx context.Context, job *models.VideoTask, renderer *render.Renderer, jobDir string) (*models.TaskResult, error) {
	// S1: script ingest.
	scriptText := job.ScriptText
	if job.ScriptPath != "" {
		data, err := os.ReadFile(job.ScriptPath)
		if err != nil {
			return nil, models.ErrNotFound(fmt.Sprintf("script file %s: %v", job.ScriptPath, err))
		}
		scriptText = string(data)
	}

	sentences := SplitSentences(scriptText, o.cfg.Subtitle.MaxCharsPerLine)
	if len(sentences) == 0 {
		return nil, models.ErrBadInput("script produced no sentences after splitting")
	}

	// S2: materials resolve.
	images, err := resolveMaterials(job.MaterialsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve materials: %w", err)
	}

	// S3: TTS segment generation.
	usedSentences, audioSegments, err := o.synthesizeSentences(ctx, sentences, jobDir)
	if err != nil {
		return nil, err
	}

	audioPaths := make([]string, len(audioSegments))
	durations := make([]float64, len(audioSegments))
	for i, seg := range audioSegments {
		audioPaths[i] = seg.LocalPath
		durations[i] = seg.DurationSec
	}

	// S4: audio concatenation and optional music mixing.
	concatPath := filepath.Join(jobDir, "narration.mp3")
	if err := renderer.ConcatenateAudio(ctx, audioPaths, concatPath); err != nil {
		return nil, models.ErrCollaboratorFailure("encoder", "concatenate narration audio", err)
	}

	totalDuration, err := render.GetAudioDuration(ctx, concatPath)
	if err != nil {
		return nil, models.ErrCollaboratorFailure("encoder", "measure narration duration", err)
	}

	finalAudioPath, err := o.mixMusic(ctx, renderer, job, scriptText, totalDuration, concatPath, jobDir)
	if err != nil {
		return nil, err
	}

	// S5: subtitle construction.
	segments, err := timing.BuildSubtitleSegments(usedSentences, durations)
	if err != nil {
		return nil, fmt.Errorf("build subtitle segments: %w", err)
	}

	return o.composeAndEncode(ctx, renderer, job, images, segments, finalAudioPath, totalDuration, jobDir)
}

// runAudioPath implements the alternative STT-driven generateFromAudio
// path: S1/S3/S5 are replaced by a transcribe-filter-merge pipeline; S4
// uses the original audio file directly.
func (o *Orchestrator) runAudioPath(ctx context.Context, job *models.VideoTask, renderer *render.Renderer, jobDir string) (*models.TaskResult, error) {
	if o.collab.STT == nil {
		return nil, models.ErrBadConfig("audio-input path requested but no STT collaborator is configured")
	}

	audioData, err := os.ReadFile(job.AudioPath)
	if err != nil {
		return nil, models.ErrNotFound(fmt.Sprintf("audio file %s: %v", job.AudioPath, err))
	}

	transcript, err := o.collab.STT.Transcribe(ctx, audioData, "")
	if err != nil {
		return nil, models.ErrCollaboratorFailure("stt", "transcribe audio", err)
	}

	segments := buildSubtitlesFromTranscript(
		transcript,
		o.cfg.STT.MinConfidenceThreshold,
		o.cfg.STT.MinSegmentLength,
		o.cfg.STT.SegmentMergeThreshold,
	)
	if len(segments) == 0 {
		return nil, models.ErrBadInput("STT transcript produced no usable subtitle segments")
	}

	images, err := resolveMaterials(job.MaterialsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve materials: %w", err)
	}

	totalDuration, err := render.GetAudioDuration(ctx, job.AudioPath)
	if err != nil {
		return nil, models.ErrCollaboratorFailure("encoder", "measure source audio duration", err)
	}

	finalAudioPath, err := o.mixMusic(ctx, renderer, job, transcriptText(transcript), totalDuration, job.AudioPath, jobDir)
	if err != nil {
		return nil, err
	}

	return o.composeAndEncode(ctx, renderer, job, images, segments, finalAudioPath, totalDuration, jobDir)
}

// synthesizeSentences implements S3: one TTS call per non-empty sentence,
// bounded by collab.TTSConcurrency in-flight calls. A single sentence's
// failure is logged and skipped; zero successes is a stage-fatal
// CollaboratorFailure.
func (o *Orchestrator) synthesizeSentences(ctx context.Context, sentences []models.Sentence, jobDir string) ([]models.Sentence, []models.AudioSegment, error) {
	if o.collab.TTS == nil {
		return nil, nil, models.ErrBadConfig("text-input path requested but no TTS collaborator is configured")
	}

	type result struct {
		sentence models.Sentence
		segment  models.AudioSegment
		ok       bool
	}
	results := make([]result, len(sentences))

	sem := make(chan struct{}, o.collab.TTSConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sentences {
		i, s := i, s
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			resp, err := o.collab.TTS.Synthesize(gctx, s.Text, defaultVoiceStyle)
			if err != nil {
				o.log.Warnf("TTS failed for sentence %d, skipping: %v", s.Index, err)
				return nil
			}

			path := filepath.Join(jobDir, fmt.Sprintf("sentence_%04d.audio", s.Index))
			if err := os.WriteFile(path, resp.AudioData, 0644); err != nil {
				o.log.Warnf("write audio for sentence %d failed, skipping: %v", s.Index, err)
				return nil
			}

			duration, err := render.GetAudioDuration(gctx, path)
			if err != nil || duration <= 0 {
				o.log.Warnf("measuring audio for sentence %d failed, skipping: %v", s.Index, err)
				return nil
			}

			results[i] = result{sentence: s, segment: models.AudioSegment{LocalPath: path, DurationSec: duration}, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, models.ErrCollaboratorFailure("tts", "sentence synthesis cancelled", err)
	}

	var usedSentences []models.Sentence
	var segments []models.AudioSegment
	for _, r := range results {
		if r.ok {
			usedSentences = append(usedSentences, r.sentence)
			segments = append(segments, r.segment)
		}
	}
	if len(segments) == 0 {
		return nil, nil, models.ErrCollaboratorFailure("tts", "all sentences failed TTS synthesis", nil)
	}
	return usedSentences, segments, nil
}

// mixMusic implements the music half of S4: a configured fixed track, a
// smart-mode recommender lookup, or a no-op when music is disabled.
func (o *Orchestrator) mixMusic(ctx context.Context, renderer *render.Renderer, job *models.VideoTask, text string, totalDuration float64, narrationPath, jobDir string) (string, error) {
	if !o.cfg.Music.Enabled {
		return narrationPath, nil
	}

	musicPath := o.cfg.Music.TrackPath
	if musicPath == "" && o.cfg.Music.SmartMode && o.collab.MusicRecommender != nil {
		criteria := o.searchCriteria(job)
		entry, err := o.collab.MusicRecommender.GetMusicForContent(ctx, text, totalDuration, criteria)
		if err != nil {
			o.log.Warnf("music recommendation failed, proceeding without music: %v", err)
		} else if entry != nil {
			musicPath = entry.LocalPath
		}
	}
	if musicPath == "" {
		return narrationPath, nil
	}

	mixedPath := filepath.Join(jobDir, "mixed.mp3")
	if err := renderer.MixBackgroundMusic(ctx, narrationPath, musicPath, mixedPath, o.cfg.Music.Gain, o.cfg.Music.FadeInSec, o.cfg.Music.FadeOutSec); err != nil {
		return "", models.ErrCollaboratorFailure("encoder", "mix background music", err)
	}
	if _, err := os.Stat(mixedPath); err != nil {
		// MixBackgroundMusic no-ops (missing file) without producing mixedPath.
		return narrationPath, nil
	}
	return mixedPath, nil
}

// searchCriteria builds a MusicSearchCriteria from config and any
// per-job config overrides (the CLI's --music-genre/--music-mood hints).
func (o *Orchestrator) searchCriteria(job *models.VideoTask) models.MusicSearchCriteria {
	criteria := models.MusicSearchCriteria{
		CopyrightOnly: true,
		Sources:       o.cfg.Music.Sources,
	}
	if genre, ok := job.ConfigOverride["music_genre"].(string); ok && genre != "" {
		criteria.PreferredGenres = []string{genre}
	}
	if mood, ok := job.ConfigOverride["music_mood"].(string); ok && mood != "" {
		criteria.PreferredMoods = []string{mood}
	}
	return criteria
}

// composeAndEncode implements S6 and S7, shared by both input paths:
// build the visual track (slideshow or color clip), correct residual
// drift, resolve the subtitle font, burn in subtitles, and encode.
func (o *Orchestrator) composeAndEncode(ctx context.Context, renderer *render.Renderer, job *models.VideoTask, images []string, segments []models.SubtitleSegment, audioPath string, totalDuration float64, jobDir string) (*models.TaskResult, error) {
	// S6: visual composition.
	rawVideoPath := filepath.Join(jobDir, "raw_video.mp4")
	if len(images) == 0 {
		if err := renderer.BuildColorClip(ctx, totalDuration, rawVideoPath); err != nil {
			return nil, models.ErrCollaboratorFailure("encoder", "build color background clip", err)
		}
	} else {
		crossFade := o.cfg.Templates.Simple.TransitionDuration
		dwell, err := timing.ImageDwell(totalDuration, len(images), crossFade)
		if err != nil {
			return nil, err
		}
		if err := renderer.BuildSlideshow(ctx, images, dwell, crossFade, rawVideoPath); err != nil {
			return nil, models.ErrCollaboratorFailure("encoder", "build slideshow", err)
		}
	}

	videoPath := rawVideoPath
	videoDuration, err := render.GetVideoDuration(ctx, rawVideoPath)
	if err != nil {
		return nil, models.ErrCollaboratorFailure("encoder", "measure composed video duration", err)
	}
	if needsCorrection, _ := timing.DriftCorrection(totalDuration, videoDuration, driftTolerance); needsCorrection {
		correctedPath := filepath.Join(jobDir, "corrected_video.mp4")
		if err := renderer.TrimOrPad(ctx, rawVideoPath, videoDuration, totalDuration, correctedPath); err != nil {
			return nil, models.ErrCollaboratorFailure("encoder", "correct video drift", err)
		}
		videoPath = correctedPath
	}

	// S7: subtitle overlay and encode.
	fontName, err := render.ResolveFont(o.cfg.Subtitle.FontPath, o.cfg.Subtitle.FontFallback)
	if err != nil {
		return nil, err
	}

	subtitlePath := filepath.Join(jobDir, "subtitles.ass")
	if err := render.GenerateASSSubtitles(segments, subtitlePath, fontName); err != nil {
		return nil, fmt.Errorf("generate subtitles: %w", err)
	}

	outputPath := job.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(o.tempRoot, "..", "output", fmt.Sprintf("%s_%s.mp4", job.ID, time.Now().UTC().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	encoder := render.SelectEncoder(o.collab.HardwareAccel)
	if err := renderer.OverlayAndEncode(ctx, videoPath, audioPath, subtitlePath, outputPath, encoder, o.cfg.Export.Quality); err != nil {
		return nil, models.ErrCollaboratorFailure("encoder", "final overlay and encode", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return nil, models.ErrCollaboratorFailure("encoder", "output file missing or empty after encode", err)
	}

	return &models.TaskResult{
		OutputPath:    outputPath,
		DurationSec:   totalDuration,
		SubtitleCount: len(segments),
	}, nil
}

// transcriptText flattens transcript segments into a single string, used
// only as the text input to the music recommender's LLM criteria call.
func transcriptText(segments []models.TranscriptSegment) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(s.Text)
		sb.WriteString(" ")
	}
	return sb.String()
}
