// Package taskqueue implements the persistent task queue (C1, spec.md §4.2):
// a mapping from job id to VideoTask record, backed by an atomically
// rewritten JSON file.
//
// Grounded on original_source/src/tasks/task_queue.py's TaskQueue class
// (add_task/get_task/update_task_status/get_pending_tasks/cancel_task/
// clear_completed_tasks/get_statistics), restructured around the teacher's
// Enqueue/typed-accessor API shape (internal/queue/queue.go). Persistence
// is strengthened from the original's plain overwrite to temp-file+rename,
// per spec.md's explicit atomic-rewrite contract.
package taskqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
)

// Queue is a single-process, file-persisted task queue. It does not
// enforce exclusive access across processes — spec.md §4.2 assumes a
// single batch processor per queue instance.
type Queue struct {
	mu             sync.Mutex
	tasks          map[string]*models.VideoTask
	persistenceFile string
	log            *logging.Logger
}

// New constructs a queue backed by persistenceFile. If persistenceFile is
// non-empty and exists, tasks are loaded from it immediately; entries whose
// referenced local paths no longer exist are logged and dropped.
func New(persistenceFile string) (*Queue, error) {
	q := &Queue{
		tasks:          make(map[string]*models.VideoTask),
		persistenceFile: persistenceFile,
		log:            logging.New("TaskQueue"),
	}

	if persistenceFile != "" {
		if _, err := os.Stat(persistenceFile); err == nil {
			if err := q.load(); err != nil {
				return nil, fmt.Errorf("load task queue: %w", err)
			}
		}
	}

	return q, nil
}

// NewID returns a fresh, unique task id.
func NewID() string {
	return uuid.NewString()
}

// Add inserts a new task. The id must not already exist.
func (q *Queue) Add(task *models.VideoTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.tasks[task.ID]; exists {
		return models.ErrQueue(models.QueueDuplicateID, "task id already exists: "+task.ID)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	q.tasks[task.ID] = task
	return q.save()
}

// Get returns the task with the given id, or nil if it does not exist.
func (q *Queue) Get(id string) *models.VideoTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// UpdateStatus transitions a task's status, setting timestamps per the
// rules in spec.md §3: startedAt is set only if unset, completedAt is set
// on any terminal transition, and once set neither is ever cleared.
func (q *Queue) UpdateStatus(id string, status models.TaskStatus, errMsg string, result *models.TaskResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return models.ErrQueue(models.QueueUnknownID, "unknown task id: "+id)
	}

	if err := validateTransition(t.Status, status); err != nil {
		return err
	}

	t.Status = status

	if status == models.TaskProcessing && t.StartedAt == nil {
		now := time.Now()
		t.StartedAt = &now
	}

	if status.IsTerminal() && t.CompletedAt == nil {
		now := time.Now()
		t.CompletedAt = &now
	}

	if errMsg != "" {
		t.ErrorMessage = errMsg
	}
	if result != nil {
		t.Result = result
	}

	return q.save()
}

// validateTransition enforces the monotone Pending -> Processing ->
// {Completed|Failed|Cancelled} state machine; Cancelled is reachable only
// from Pending.
func validateTransition(from, to models.TaskStatus) error {
	if from == to {
		return nil
	}
	switch to {
	case models.TaskProcessing:
		if from != models.TaskPending {
			return models.ErrQueue(models.QueueIllegalTransition, fmt.Sprintf("cannot move to processing from %s", from))
		}
	case models.TaskCancelled:
		if from != models.TaskPending {
			return models.ErrQueue(models.QueueIllegalTransition, fmt.Sprintf("cancel only valid from pending, got %s", from))
		}
	case models.TaskCompleted, models.TaskFailed:
		if from.IsTerminal() {
			return models.ErrQueue(models.QueueIllegalTransition, fmt.Sprintf("cannot move to %s from terminal state %s", to, from))
		}
	case models.TaskPending:
		return models.ErrQueue(models.QueueIllegalTransition, "cannot move back to pending")
	}
	return nil
}

// ListByStatus returns all tasks in the given status.
func (q *Queue) ListByStatus(status models.TaskStatus) []*models.VideoTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*models.VideoTask
	for _, t := range q.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// Pending is shorthand for ListByStatus(Pending).
func (q *Queue) Pending() []*models.VideoTask {
	return q.ListByStatus(models.TaskPending)
}

// Cancel transitions a Pending task to Cancelled. Returns false if the task
// does not exist or is not Pending.
func (q *Queue) Cancel(id string) (bool, error) {
	q.mu.Lock()
	t, ok := q.tasks[id]
	q.mu.Unlock()
	if !ok {
		return false, nil
	}
	if t.Status != models.TaskPending {
		return false, nil
	}
	if err := q.UpdateStatus(id, models.TaskCancelled, "", nil); err != nil {
		return false, err
	}
	return true, nil
}

// ClearTerminal drops all tasks in a terminal state and persists. Returns
// the number of tasks removed.
func (q *Queue) ClearTerminal() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for id, t := range q.tasks {
		if t.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(q.tasks, id)
	}
	if err := q.save(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Statistics returns counts per state.
func (q *Queue) Statistics() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := map[string]int{
		"total":      len(q.tasks),
		"pending":    0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
		"cancelled":  0,
	}
	for _, t := range q.tasks {
		stats[string(t.Status)]++
	}
	return stats
}

// Len returns the total number of tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// save performs an atomic rewrite of the backing file: write-to-temp then
// rename, per spec.md §4.2's persistence contract. Must be called with
// q.mu held.
func (q *Queue) save() error {
	if q.persistenceFile == "" {
		return nil
	}

	dir := filepath.Dir(q.persistenceFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	data, err := json.MarshalIndent(q.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".task_queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp queue file: %w", err)
	}

	if err := os.Rename(tmpName, q.persistenceFile); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp queue file: %w", err)
	}

	return nil
}

// load parses the persistence file. Entries whose referenced input files
// (ScriptPath, AudioPath, when set) no longer exist are logged and
// dropped; MaterialsDir and OutputPath are not checked.
func (q *Queue) load() error {
	data, err := os.ReadFile(q.persistenceFile)
	if err != nil {
		return fmt.Errorf("read queue file: %w", err)
	}

	var raw map[string]*models.VideoTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal queue file: %w", err)
	}

	tasks := make(map[string]*models.VideoTask, len(raw))
	for id, t := range raw {
		if t.ScriptPath != "" {
			if _, err := os.Stat(t.ScriptPath); err != nil {
				q.log.Warnf("dropping task %s: script path missing: %s", id, t.ScriptPath)
				continue
			}
		}
		if t.AudioPath != "" {
			if _, err := os.Stat(t.AudioPath); err != nil {
				q.log.Warnf("dropping task %s: audio path missing: %s", id, t.AudioPath)
				continue
			}
		}
		tasks[id] = t
	}

	q.tasks = tasks
	return nil
}
