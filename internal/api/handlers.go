// Package api exposes a read-only status surface over the pipeline: queue
// statistics, the most recent batch run's progress, and the media cache's
// contents. It carries none of the teacher's project/clip CRUD — the
// pipeline's only mutable surface is the CLI (cmd/videomaker), per spec.md
// §6.
//
// Kept+rewritten from internal/api/handlers.go's Handler/respondJSON/
// respondError/Health shape.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/videomaker/pipeline/internal/batch"
	"github.com/videomaker/pipeline/internal/mediacache"
	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/taskqueue"
)

// Handler serves status endpoints over the queue, the batch processor, and
// the media cache.
type Handler struct {
	queue     *taskqueue.Queue
	cache     *mediacache.Cache
	lastBatch func() *batch.BatchResult
}

// NewHandler builds a Handler. lastBatchResult, if non-nil, is called on
// each request to GetBatchStatus to fetch the most recently completed batch
// run — a live pointer owned by the batch processor's caller, not a copy
// taken at construction time.
func NewHandler(q *taskqueue.Queue, cache *mediacache.Cache, lastBatchResult func() *batch.BatchResult) *Handler {
	if lastBatchResult == nil {
		lastBatchResult = func() *batch.BatchResult { return nil }
	}
	return &Handler{queue: q, cache: cache, lastBatch: lastBatchResult}
}

// GetQueueStats handles GET /v1/queue/stats
func (h *Handler) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queue.Statistics())
}

// GetQueueTasks handles GET /v1/queue/tasks?status=pending
func (h *Handler) GetQueueTasks(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter == "" {
		respondJSON(w, http.StatusOK, h.queue.Pending())
		return
	}
	switch models.TaskStatus(statusFilter) {
	case models.TaskPending, models.TaskProcessing, models.TaskCompleted, models.TaskFailed, models.TaskCancelled:
		respondJSON(w, http.StatusOK, h.queue.ListByStatus(models.TaskStatus(statusFilter)))
	default:
		respondError(w, http.StatusBadRequest, "invalid status filter")
	}
}

// GetBatchStatus handles GET /v1/batch/status
func (h *Handler) GetBatchStatus(w http.ResponseWriter, r *http.Request) {
	result := h.lastBatch()
	if result == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "no batch run yet"})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GetCacheStats handles GET /v1/cache/stats
func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cache.Stats())
}

// SearchCache handles GET /v1/cache/search?q=...
func (h *Handler) SearchCache(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	respondJSON(w, http.StatusOK, h.cache.Search(query))
}

// ListCache handles GET /v1/cache/entries
func (h *Handler) ListCache(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cache.Export())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
