// Command apiserver runs the optional read-only status API over the
// pipeline: queue stats, the last batch run's progress, and media cache
// contents. It does not drive any jobs itself — job submission is
// cmd/videomaker's job; this process only reports on state that
// cmd/videomaker processes have persisted (the task queue's JSON file,
// the media cache's JSON index).
//
// Composition root grounded on cmd/api/main.go's load-config ->
// construct-collaborators -> construct-router -> signal-handling ->
// graceful-shutdown pattern.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/videomaker/pipeline/internal/api"
	"github.com/videomaker/pipeline/internal/batch"
	"github.com/videomaker/pipeline/internal/config"
	"github.com/videomaker/pipeline/internal/mediacache"
	"github.com/videomaker/pipeline/internal/taskqueue"
)

func main() {
	log.Println("Starting videomaker status API...")

	cfg, err := config.Load(os.Getenv("VIDEOMAKER_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	q, err := taskqueue.New(filepath.Join("output", "queue.json"))
	if err != nil {
		log.Fatalf("Failed to open task queue: %v", err)
	}

	cache, err := mediacache.New(mediacache.Options{
		LibraryPath:   cfg.Music.LibraryPath,
		DownloadDir:   filepath.Join("assets", "music"),
		MaxSizeBytes:  cfg.Music.Download.MaxSizeBytes,
		TimeoutSec:    cfg.Music.Download.TimeoutSec,
		MaxCacheAge:   time.Duration(cfg.Music.MaxCacheAgeDays) * 24 * time.Hour,
		MaxCacheFiles: cfg.Music.MaxCacheFiles,
	})
	if err != nil {
		log.Fatalf("Failed to open media cache: %v", err)
	}

	// lastBatchResult is nil here: this process never runs a batch itself.
	// A deployment that wants live batch progress runs apiserver in the same
	// process as the batch processor and wires a real closure instead.
	var lastBatchResult func() *batch.BatchResult

	handler := api.NewHandler(q, cache, lastBatchResult)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		log.Printf("status API listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
