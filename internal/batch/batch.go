// Package batch implements the Parallel Batch Processor (C6, spec.md
// §4.3): a bounded worker pool that drains the Persistent Task Queue with
// resource admission, per-task timeouts, bounded retries, and a graceful
// shutdown.
//
// Grounded on original_source/src/tasks/parallel_batch_processor.py's
// ParallelBatchProcessor (process_batch/_process_single_task progress and
// retry shape, the BatchResult/TaskResult aggregate fields) and the
// teacher's errgroup/semaphore concurrency idiom in internal/worker/worker.go.
package batch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/videomaker/pipeline/internal/logging"
	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/resource"
	"github.com/videomaker/pipeline/internal/taskqueue"
)

// admissionPollInterval is how often the dispatcher re-polls the Resource
// Manager when admission is denied, per spec.md §4.3.
const admissionPollInterval = 100 * time.Millisecond

// shutdownDeadline bounds how long Run waits for in-flight workers to
// finish after a shutdown signal before abandoning them.
const shutdownDeadline = 30 * time.Second

// estimatedTaskMemoryMB is the per-task memory estimate used for
// admission, matching the teacher's 512 MB default.
const estimatedTaskMemoryMB = 512

// Runner is the orchestrator-invocation hook the Processor drives per task.
// It returns the task's result on success, or an error (including context
// deadline/cancellation) on failure.
type Runner func(ctx context.Context, job *models.VideoTask) (*models.TaskResult, error)

// TaskResult is one task's outcome within a batch, mirroring the Python
// original's per-task TaskResult dataclass.
type TaskResult struct {
	TaskID       string
	Success      bool
	DurationSec  float64
	ErrorMessage string
	Result       *models.TaskResult
}

// BatchResult is the aggregate returned by Run, per spec.md §4.3.
type BatchResult struct {
	Total                 int
	Successful            int
	Failed                int
	TotalDuration         float64
	AverageTaskDuration   float64
	ThroughputTasksPerSec float64
	PeakMemoryMB          int
	PerTaskResults        []TaskResult
}

// Processor drains a queue's pending tasks through a bounded worker pool.
type Processor struct {
	queue       *taskqueue.Queue
	resources   *resource.Manager
	run         Runner
	maxWorkers  int
	taskTimeout time.Duration
	retryTimes  int
	logDir      string

	log        *logging.Logger
	shutdownMu sync.Mutex
	shutdown   bool
}

// Options configures a Processor.
type Options struct {
	MaxWorkers          int
	MaxConcurrentTasks  int
	WorkerMemoryLimitMB int
	TaskTimeoutSec      int
	RetryTimes          int
	LogDir              string // directory for output/logs/error_<id>_<utc>.log
}

// New constructs a Processor.
func New(q *taskqueue.Queue, run Runner, opts Options) *Processor {
	if opts.TaskTimeoutSec <= 0 {
		opts.TaskTimeoutSec = 3600
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.LogDir == "" {
		opts.LogDir = filepath.Join("output", "logs")
	}
	return &Processor{
		queue:       q,
		resources:   resource.NewManager(opts.MaxConcurrentTasks, opts.WorkerMemoryLimitMB),
		run:         run,
		maxWorkers:  opts.MaxWorkers,
		taskTimeout: time.Duration(opts.TaskTimeoutSec) * time.Second,
		retryTimes:  opts.RetryTimes,
		logDir:      opts.LogDir,
		log:         logging.New("BatchProcessor"),
	}
}

// Shutdown stops new dispatches; in-flight tasks still run to completion
// (or their own timeout), per spec.md §5's cancellation model.
func (p *Processor) Shutdown() {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()
	p.shutdown = true
}

func (p *Processor) isShutdown() bool {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()
	return p.shutdown
}

// waitForAdmission polls the Resource Manager every admissionPollInterval
// until the task is admitted, the shutdown flag is set, or ctx ends,
// per spec.md §4.3's "polls every 100 ms until admitted or the shutdown
// signal fires."
func (p *Processor) waitForAdmission(ctx context.Context, estimatedMemoryMB int) bool {
	for {
		if p.resources.CanStart(estimatedMemoryMB) {
			return true
		}
		if p.isShutdown() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(admissionPollInterval):
		}
	}
}

// Run drains queue.Pending() (or the given tasks, if non-nil) through the
// bounded worker pool, reporting progress every ⌈total/10⌉ completions.
func (p *Processor) Run(ctx context.Context, tasks []*models.VideoTask) BatchResult {
	if tasks == nil {
		tasks = p.queue.Pending()
	}
	if len(tasks) == 0 {
		p.log.Infof("no pending tasks")
		return BatchResult{}
	}

	p.log.Infof("starting batch of %d tasks (max_workers=%d)", len(tasks), p.maxWorkers)
	start := time.Now()

	sem := make(chan struct{}, p.maxWorkers)
	results := make([]TaskResult, len(tasks))
	var completed int64
	var peakMemoryMB int64
	progressEvery := int(math.Ceil(float64(len(tasks)) / 10.0))
	if progressEvery < 1 {
		progressEvery = 1
	}

	var wg sync.WaitGroup
	for i, task := range tasks {
		if p.isShutdown() || ctx.Err() != nil {
			break
		}

		if !p.waitForAdmission(ctx, estimatedTaskMemoryMB) {
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			p.resources.Done(estimatedTaskMemoryMB)
			continue
		}

		wg.Add(1)
		i, task := i, task
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer p.resources.Done(estimatedTaskMemoryMB)

			results[i] = p.runOne(ctx, task)

			if _, reserved := p.resources.Snapshot(); int64(reserved) > atomic.LoadInt64(&peakMemoryMB) {
				atomic.StoreInt64(&peakMemoryMB, int64(reserved))
			}

			n := atomic.AddInt64(&completed, 1)
			if int(n)%progressEvery == 0 {
				p.logProgress(int(n), len(tasks), time.Since(start))
			}
		}()
	}
	wg.Wait()

	totalDuration := time.Since(start).Seconds()
	successful, failed := 0, 0
	for _, r := range results {
		if r.Success {
			successful++
		} else {
			failed++
		}
	}

	batchResult := BatchResult{
		Total:               len(tasks),
		Successful:          successful,
		Failed:              failed,
		TotalDuration:       totalDuration,
		AverageTaskDuration: totalDuration / float64(len(tasks)),
		PeakMemoryMB:        int(atomic.LoadInt64(&peakMemoryMB)),
		PerTaskResults:      results,
	}
	if totalDuration > 0 {
		batchResult.ThroughputTasksPerSec = float64(len(tasks)) / totalDuration
	}

	p.log.Infof("batch complete: total=%d successful=%d failed=%d duration=%.2fs throughput=%.2f/s peak_mem=%dMB",
		batchResult.Total, batchResult.Successful, batchResult.Failed,
		batchResult.TotalDuration, batchResult.ThroughputTasksPerSec, batchResult.PeakMemoryMB)

	return batchResult
}

// runOne executes one task with the configured timeout and retry policy.
// Retries apply on exception (a failed orchestrator run); a timeout is
// terminal for that task and never retried, per spec.md §4.3/§9.
func (p *Processor) runOne(ctx context.Context, task *models.VideoTask) TaskResult {
	start := time.Now()
	_ = p.queue.UpdateStatus(task.ID, models.TaskProcessing, "", nil)

	maxAttempts := p.retryTimes
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		taskCtx, cancel := context.WithTimeout(ctx, p.taskTimeout)
		result, err := p.run(taskCtx, task)
		cancel()

		if taskCtx.Err() == context.DeadlineExceeded {
			errMsg := fmt.Sprintf("task execution timed out after %s", p.taskTimeout)
			p.log.Errorf("%s: %s", task.ID, errMsg)
			_ = p.queue.UpdateStatus(task.ID, models.TaskFailed, errMsg, nil)
			return TaskResult{TaskID: task.ID, Success: false, DurationSec: time.Since(start).Seconds(), ErrorMessage: errMsg}
		}

		if err == nil {
			_ = p.queue.UpdateStatus(task.ID, models.TaskCompleted, "", result)
			p.log.Infof("task completed: %s (%.2fs)", task.ID, time.Since(start).Seconds())
			return TaskResult{TaskID: task.ID, Success: true, DurationSec: time.Since(start).Seconds(), Result: result}
		}

		lastErr = err
		p.log.Warnf("task failed (%d/%d): %s - %v", attempt, maxAttempts, task.ID, err)
	}

	errMsg := lastErr.Error()
	_ = p.queue.UpdateStatus(task.ID, models.TaskFailed, errMsg, nil)
	p.saveErrorLog(task, errMsg)
	return TaskResult{TaskID: task.ID, Success: false, DurationSec: time.Since(start).Seconds(), ErrorMessage: errMsg}
}

func (p *Processor) logProgress(completed, total int, elapsed time.Duration) {
	pct := float64(completed) / float64(total) * 100
	avg := elapsed.Seconds() / float64(completed)
	remaining := float64(total-completed) * avg
	p.log.Infof("progress: %d/%d (%.1f%%) elapsed=%.1fs est_remaining=%.1fs", completed, total, pct, elapsed.Seconds(), remaining)
}

// saveErrorLog writes a plain-text failure record under
// output/logs/error_<id>_<utc>.log, per spec.md §6's persisted-state layout.
func (p *Processor) saveErrorLog(task *models.VideoTask, errMsg string) {
	if err := os.MkdirAll(p.logDir, 0755); err != nil {
		p.log.Warnf("could not create log dir %s: %v", p.logDir, err)
		return
	}
	name := fmt.Sprintf("error_%s_%s.log", task.ID, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(p.logDir, name)

	content := fmt.Sprintf(
		"task_id: %s\nscript_path: %s\naudio_path: %s\nmaterials_dir: %s\noutput_path: %s\nerror: %s\n",
		task.ID, task.ScriptPath, task.AudioPath, task.MaterialsDir, task.OutputPath, errMsg,
	)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.log.Warnf("could not write error log %s: %v", path, err)
	}
}
