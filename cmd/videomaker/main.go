// Command videomaker is the script-to-video CLI, spec.md §6's command
// surface: a single job (--script/--text/--audio) or a directory of jobs
// (--batch) driven through the Pipeline Orchestrator and, in batch mode,
// the Parallel Batch Processor.
//
// Composition root grounded on cmd/api/main.go's load-config ->
// construct-collaborators -> construct-router/worker -> signal-handling ->
// graceful-shutdown shape, adapted from an HTTP server to a CLI run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/videomaker/pipeline/internal/batch"
	"github.com/videomaker/pipeline/internal/config"
	"github.com/videomaker/pipeline/internal/mediacache"
	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/music"
	"github.com/videomaker/pipeline/internal/orchestrator"
	"github.com/videomaker/pipeline/internal/render"
	"github.com/videomaker/pipeline/internal/resource"
	"github.com/videomaker/pipeline/internal/services"
	"github.com/videomaker/pipeline/internal/store"
	"github.com/videomaker/pipeline/internal/taskqueue"
)

// shutdownDeadline bounds graceful shutdown once an interrupt is received;
// exceeding it is a shutdown-deadline-exceeded exit, per spec.md §6.
const shutdownDeadline = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		scriptPath    = flag.String("script", "", "path to a UTF-8 script file")
		scriptText    = flag.String("text", "", "script text given directly on the command line")
		audioPath     = flag.String("audio", "", "path to a pre-recorded narration audio file (alternative STT-driven path)")
		materials     = flag.String("materials", "", "directory of still images to use as the visual track")
		output        = flag.String("output", "", "output video file path")
		title         = flag.String("title", "", "human-readable job title, used only for logging")
		configPath    = flag.String("config", "config/default_config.yaml", "path to a YAML config file")
		batchDir      = flag.String("batch", "", "directory of .txt scripts to process as a batch")
		autoMusic     = flag.Bool("auto-music", false, "enable smart-mode background music recommendation")
		noMusic       = flag.Bool("no-music", false, "disable background music even if the config enables it")
		musicGenre    = flag.String("music-genre", "", "preferred music genre hint")
		musicMood     = flag.String("music-mood", "", "preferred music mood hint")
		optimizeCache = flag.Bool("optimize-cache", false, "run the media cache's expiry/sweep/LRU maintenance pass and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}

	if *optimizeCache {
		return runOptimizeCache(cfg)
	}

	if *autoMusic {
		cfg.Music.Enabled = true
		cfg.Music.SmartMode = true
	}
	if *noMusic {
		cfg.Music.Enabled = false
	}

	if *batchDir == "" {
		if countSet(*scriptPath, *scriptText, *audioPath) != 1 {
			log.Printf("exactly one of --script, --text, --audio is required")
			return 1
		}
	}

	collab, cleanup, err := buildCollaborators(cfg)
	if err != nil {
		log.Printf("build collaborators: %v", err)
		return 1
	}
	defer cleanup()

	tempRoot, err := os.MkdirTemp("", "videomaker-")
	if err != nil {
		log.Printf("create temp root: %v", err)
		return 1
	}
	defer os.RemoveAll(tempRoot)

	orch := orchestrator.New(cfg, collab, tempRoot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	if *batchDir != "" {
		return runBatch(ctx, cfg, orch, *batchDir, *musicGenre, *musicMood)
	}
	return runSingle(ctx, orch, *scriptPath, *scriptText, *audioPath, *materials, *output, *title, *musicGenre, *musicMood)
}

func countSet(vals ...string) int {
	n := 0
	for _, v := range vals {
		if v != "" {
			n++
		}
	}
	return n
}

func runSingle(ctx context.Context, orch *orchestrator.Orchestrator, scriptPath, scriptText, audioPath, materials, output, title, genre, mood string) int {
	job := &models.VideoTask{
		ID:           taskqueue.NewID(),
		ScriptPath:   scriptPath,
		ScriptText:   scriptText,
		AudioPath:    audioPath,
		MaterialsDir: materials,
		OutputPath:   output,
	}
	job.ConfigOverride = musicOverrides(genre, mood)

	log.Printf("starting job %s (%s)", job.ID, title)
	result, err := orch.Run(ctx, job)
	if err != nil {
		log.Printf("job %s failed: %v", job.ID, err)
		return 1
	}
	log.Printf("job %s complete: output=%s duration=%.2fs subtitles=%d", job.ID, result.OutputPath, result.DurationSec, result.SubtitleCount)
	return 0
}

func runBatch(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, dir, genre, mood string) int {
	startedAt := time.Now()

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("read batch directory %s: %v", dir, err)
		return 1
	}

	q, err := taskqueue.New(filepath.Join("output", "queue.json"))
	if err != nil {
		log.Printf("open task queue: %v", err)
		return 1
	}

	overrides := musicOverrides(genre, mood)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		scriptPath := filepath.Join(dir, e.Name())
		task := &models.VideoTask{
			ID:             taskqueue.NewID(),
			ScriptPath:     scriptPath,
			OutputPath:     filepath.Join("output", strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))+".mp4"),
			ConfigOverride: overrides,
		}
		if err := q.Add(task); err != nil {
			log.Printf("enqueue %s: %v", scriptPath, err)
			return 1
		}
	}

	maxWorkers, auto := cfg.Performance.Threading.MaxWorkersConfigured()
	workers := resource.DetectSizing(maxWorkers, auto, 0)

	proc := batch.New(q, orch.Run, batch.Options{
		MaxWorkers:          workers,
		MaxConcurrentTasks:  cfg.Performance.Threading.MaxConcurrentTasks,
		WorkerMemoryLimitMB: cfg.Performance.Threading.WorkerMemoryLimit,
		TaskTimeoutSec:      cfg.Performance.Threading.TaskTimeoutSec,
		RetryTimes:          cfg.Performance.Threading.RetryTimes,
		LogDir:              filepath.Join("output", "logs"),
	})

	done := make(chan batch.BatchResult, 1)
	go func() { done <- proc.Run(ctx, nil) }()

	select {
	case result := <-done:
		recordBatchRun(cfg, startedAt, result)
		log.Printf("batch complete: total=%d successful=%d failed=%d", result.Total, result.Successful, result.Failed)
		if result.Failed > 0 {
			return 1
		}
		return 0
	case <-ctx.Done():
		proc.Shutdown()
		select {
		case result := <-done:
			recordBatchRun(cfg, startedAt, result)
			log.Printf("batch stopped after shutdown: total=%d successful=%d failed=%d", result.Total, result.Successful, result.Failed)
			return 1
		case <-time.After(shutdownDeadline):
			log.Printf("shutdown deadline exceeded, abandoning in-flight tasks")
			return 124
		}
	}
}

// recordBatchRun persists result to Postgres when cfg.DatabaseURL is set, per
// spec.md's optional batch-run-history deployment. Persistence failure is
// logged, not fatal — the task queue's JSON file remains the run's source of
// truth regardless of whether history-keeping is wired up.
func recordBatchRun(cfg *config.Config, startedAt time.Time, result batch.BatchResult) {
	if cfg.DatabaseURL == "" {
		return
	}

	db, err := store.New(cfg.DatabaseURL)
	if err != nil {
		log.Printf("batch history: open database: %v", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Printf("batch history: %v", err)
		return
	}

	results, err := json.Marshal(result.PerTaskResults)
	if err != nil {
		log.Printf("batch history: marshal results: %v", err)
		return
	}

	finishedAt := startedAt.Add(time.Duration(result.TotalDuration * float64(time.Second)))
	record := store.RunRecord{
		StartedAt:             startedAt,
		FinishedAt:            finishedAt,
		TotalTasks:            result.Total,
		SuccessfulTasks:       result.Successful,
		FailedTasks:           result.Failed,
		TotalDurationSec:      result.TotalDuration,
		ThroughputTasksPerSec: result.ThroughputTasksPerSec,
		PeakMemoryMB:          result.PeakMemoryMB,
		Results:               results,
	}

	id, err := db.RecordRun(ctx, record)
	if err != nil {
		log.Printf("batch history: %v", err)
		return
	}
	log.Printf("batch history: recorded run %d", id)
}

func musicOverrides(genre, mood string) map[string]interface{} {
	overrides := map[string]interface{}{}
	if genre != "" {
		overrides["music_genre"] = genre
	}
	if mood != "" {
		overrides["music_mood"] = mood
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")
	cancel()
}

// buildCollaborators constructs every external engine from config, matching
// cmd/api/main.go's ElevenLabs-preferred/Cartesia-fallback TTS selection
// and the optional-provider nil-when-disabled pattern (Veo/xAI there, STT/
// music LLM here). cleanup releases the media cache's nothing (it owns no
// file handles) but is kept symmetric with the teacher's defer-close shape.
func buildCollaborators(cfg *config.Config) (orchestrator.Collaborators, func(), error) {
	collab := orchestrator.Collaborators{
		TTSConcurrency: 1, // spec.md §5: "TTS: configurable, default 1 for the current engines"
	}

	switch {
	case cfg.TTSEngine == "cartesia" && cfg.CartesiaKey != "":
		collab.TTS = services.NewCartesiaTTS(cfg.CartesiaKey, cfg.CartesiaAPIURL, cfg.CartesiaVoiceID)
		log.Printf("TTS provider: Cartesia (voice=%s)", cfg.CartesiaVoiceID)
	case cfg.ElevenLabsKey != "":
		collab.TTS = services.NewElevenLabsTTS(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Printf("TTS provider: ElevenLabs (voice=%s)", cfg.ElevenLabsVoiceID)
	case cfg.CartesiaKey != "":
		collab.TTS = services.NewCartesiaTTS(cfg.CartesiaKey, cfg.CartesiaAPIURL, cfg.CartesiaVoiceID)
		log.Printf("TTS provider: Cartesia (voice=%s)", cfg.CartesiaVoiceID)
	default:
		log.Printf("no TTS provider configured — the text-input path will fail with bad_config")
	}

	if cfg.STT.Enabled && cfg.OpenAIKey != "" {
		collab.STT = services.NewOpenAISTT(cfg.OpenAIKey)
		log.Printf("STT provider: OpenAI Whisper")
	}

	cache, err := buildMediaCache(cfg)
	if err != nil {
		return collab, func() {}, err
	}

	if cfg.Music.Enabled && cfg.Music.SmartMode {
		var llm services.LLMProvider
		if cfg.OpenAIKey != "" {
			llm = services.NewOpenAILLM(cfg.OpenAIKey)
			log.Printf("music-criteria LLM: OpenAI")
		} else if cfg.GeminiKey != "" {
			gllm, err := services.NewGeminiLLM(context.Background(), cfg.GeminiKey)
			if err != nil {
				return collab, func() {}, fmt.Errorf("create gemini LLM: %w", err)
			}
			llm = gllm
			log.Printf("music-criteria LLM: Gemini")
		}

		var sources []services.MusicSearchProvider
		if cfg.JamendoClientID != "" {
			sources = append(sources, services.NewJamendoSource(cfg.JamendoClientID))
		}
		if llm != nil {
			collab.MusicRecommender = music.NewRecommender(cache, llm, sources)
		} else {
			log.Printf("smart-mode music enabled but no LLM provider configured — falling back to fixed track_path only")
		}
	}

	collab.HardwareAccel = detectHardwareAccel(context.Background())

	return collab, func() {}, nil
}

// buildMediaCache constructs the media cache from config. Factored out of
// buildCollaborators so the --optimize-cache maintenance path can open the
// same cache without also constructing TTS/STT/LLM providers.
func buildMediaCache(cfg *config.Config) (*mediacache.Cache, error) {
	cache, err := mediacache.New(mediacache.Options{
		LibraryPath:   cfg.Music.LibraryPath,
		DownloadDir:   filepath.Join("assets", "music"),
		MaxSizeBytes:  cfg.Music.Download.MaxSizeBytes,
		TimeoutSec:    cfg.Music.Download.TimeoutSec,
		MaxCacheAge:   time.Duration(cfg.Music.MaxCacheAgeDays) * 24 * time.Hour,
		MaxCacheFiles: cfg.Music.MaxCacheFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("open media cache: %w", err)
	}
	return cache, nil
}

// runOptimizeCache runs the media cache's expiry/sweep/LRU maintenance pass
// standalone (no job is run). Intended for a periodic cron invocation
// alongside cmd/videomaker's normal job-processing runs.
func runOptimizeCache(cfg *config.Config) int {
	cache, err := buildMediaCache(cfg)
	if err != nil {
		log.Printf("build media cache: %v", err)
		return 1
	}
	expired, swept, trimmed := cache.Optimize()
	log.Printf("cache optimize: expired=%d swept=%d trimmed=%d", expired, swept, trimmed)
	return 0
}

// detectHardwareAccel probes ffmpeg's advertised hwaccels and encoders,
// grounded on the corpus's ffmpeg-hwaccel-probing idiom (enumerate `ffmpeg
// -hwaccels` and `-encoders`, intersect with the encoder names the renderer
// actually targets). Probe failure (ffmpeg missing, non-zero exit) degrades
// to no hardware acceleration rather than failing startup.
func detectHardwareAccel(ctx context.Context) render.HardwareAccel {
	hwaccels := probeFFmpegOutput(ctx, "-hwaccels")
	encoders := probeFFmpegOutput(ctx, "-encoders")

	return render.HardwareAccel{
		NVENCAvailable:        strings.Contains(hwaccels, "cuda") && strings.Contains(encoders, "h264_nvenc"),
		VideoToolboxAvailable: strings.Contains(hwaccels, "videotoolbox") && strings.Contains(encoders, "h264_videotoolbox"),
	}
}

func probeFFmpegOutput(ctx context.Context, arg string) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", arg).Output()
	if err != nil {
		return ""
	}
	return string(out)
}
