package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/videomaker/pipeline/internal/models"
	"github.com/videomaker/pipeline/internal/taskqueue"
)

func newQueueWithTasks(t *testing.T, n int) *taskqueue.Queue {
	t.Helper()
	q, err := taskqueue.New("")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if err := q.Add(&models.VideoTask{ID: fmt.Sprintf("t%d", i), ScriptText: "hi"}); err != nil {
			t.Fatal(err)
		}
	}
	return q
}

func TestRunAllSucceed(t *testing.T) {
	q := newQueueWithTasks(t, 5)
	p := New(q, func(ctx context.Context, job *models.VideoTask) (*models.TaskResult, error) {
		return &models.TaskResult{OutputPath: "/tmp/" + job.ID + ".mp4"}, nil
	}, Options{MaxWorkers: 3, MaxConcurrentTasks: 3, WorkerMemoryLimitMB: 4096, TaskTimeoutSec: 5, RetryTimes: 1, LogDir: t.TempDir()})

	result := p.Run(context.Background(), nil)
	if result.Total != 5 || result.Successful != 5 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	for _, id := range []string{"t0", "t1", "t2", "t3", "t4"} {
		if got := q.Get(id).Status; got != models.TaskCompleted {
			t.Errorf("task %s status = %s, want completed", id, got)
		}
	}
}

func TestRunRetriesThenFails(t *testing.T) {
	q := newQueueWithTasks(t, 1)
	attempts := 0
	p := New(q, func(ctx context.Context, job *models.VideoTask) (*models.TaskResult, error) {
		attempts++
		return nil, fmt.Errorf("synthetic failure")
	}, Options{MaxWorkers: 1, MaxConcurrentTasks: 1, WorkerMemoryLimitMB: 4096, TaskTimeoutSec: 5, RetryTimes: 3, LogDir: t.TempDir()})

	result := p.Run(context.Background(), nil)
	if result.Failed != 1 || result.Successful != 0 {
		t.Fatalf("expected 1 failure, got %+v", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (retryTimes), got %d", attempts)
	}
	if got := q.Get("t0").Status; got != models.TaskFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestRunTimeoutIsNotRetried(t *testing.T) {
	q := newQueueWithTasks(t, 1)
	attempts := 0
	p := New(q, func(ctx context.Context, job *models.VideoTask) (*models.TaskResult, error) {
		attempts++
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return &models.TaskResult{}, nil
		}
	}, Options{MaxWorkers: 1, MaxConcurrentTasks: 1, WorkerMemoryLimitMB: 4096, TaskTimeoutSec: 0, RetryTimes: 3, LogDir: t.TempDir()})
	p.taskTimeout = 20 * time.Millisecond

	result := p.Run(context.Background(), nil)
	if result.Failed != 1 {
		t.Fatalf("expected timeout to count as failure, got %+v", result)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt (no retry on timeout), got %d", attempts)
	}
}

func TestRunEmptyQueueReturnsZeroResult(t *testing.T) {
	q := newQueueWithTasks(t, 0)
	p := New(q, func(ctx context.Context, job *models.VideoTask) (*models.TaskResult, error) {
		t.Fatal("runner should not be invoked for an empty queue")
		return nil, nil
	}, Options{MaxWorkers: 1, MaxConcurrentTasks: 1, WorkerMemoryLimitMB: 4096, LogDir: t.TempDir()})

	result := p.Run(context.Background(), nil)
	if result.Total != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestSaveErrorLogWritesFile(t *testing.T) {
	dir := t.TempDir()
	q := newQueueWithTasks(t, 1)
	p := New(q, nil, Options{LogDir: dir})

	task := &models.VideoTask{ID: "xyz"}
	p.saveErrorLog(task, "boom")

	matches, err := filepath.Glob(filepath.Join(dir, "error_xyz_*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one error log file, got %v", matches)
	}
}
