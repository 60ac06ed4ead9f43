package taskqueue

import (
	"path/filepath"
	"testing"

	"github.com/videomaker/pipeline/internal/models"
)

func newTask(id string) *models.VideoTask {
	return &models.VideoTask{ID: id, ScriptText: "hello world"}
}

func TestAddAndGet(t *testing.T) {
	q, err := New("")
	if err != nil {
		t.Fatal(err)
	}

	task := newTask("t1")
	if err := q.Add(task); err != nil {
		t.Fatal(err)
	}

	got := q.Get("t1")
	if got == nil {
		t.Fatal("expected task to exist")
	}
	if got.Status != models.TaskPending {
		t.Errorf("expected pending status, got %s", got.Status)
	}
}

func TestAddDuplicateID(t *testing.T) {
	q, _ := New("")
	q.Add(newTask("dup"))

	err := q.Add(newTask("dup"))
	if !models.Is(err, models.KindQueueError) {
		t.Fatalf("expected queue error, got %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	q, _ := New("")
	q.Add(newTask("t1"))

	if err := q.UpdateStatus("t1", models.TaskProcessing, "", nil); err != nil {
		t.Fatalf("pending->processing should succeed: %v", err)
	}
	got := q.Get("t1")
	if got.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}

	if err := q.UpdateStatus("t1", models.TaskCompleted, "", &models.TaskResult{OutputPath: "out.mp4"}); err != nil {
		t.Fatalf("processing->completed should succeed: %v", err)
	}
	got = q.Get("t1")
	if got.CompletedAt == nil {
		t.Error("expected completedAt to be set")
	}
	if got.Result == nil || got.Result.OutputPath != "out.mp4" {
		t.Error("expected result to be recorded")
	}

	// Further transition out of a terminal state is illegal.
	err := q.UpdateStatus("t1", models.TaskFailed, "boom", nil)
	if !models.Is(err, models.KindQueueError) {
		t.Fatalf("expected queue error for terminal re-transition, got %v", err)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	q, _ := New("")
	q.Add(newTask("t1"))
	q.UpdateStatus("t1", models.TaskProcessing, "", nil)

	ok, err := q.Cancel("t1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected cancel to fail for a processing task")
	}

	q.Add(newTask("t2"))
	ok, err = q.Cancel("t2")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected cancel to succeed for a pending task")
	}
	if q.Get("t2").Status != models.TaskCancelled {
		t.Error("expected t2 to be cancelled")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.json")

	q1, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	q1.Add(newTask("t1"))
	q1.Add(newTask("t2"))
	q1.UpdateStatus("t1", models.TaskProcessing, "", nil)
	q1.UpdateStatus("t1", models.TaskCompleted, "", &models.TaskResult{OutputPath: "x.mp4"})

	q2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}

	if q2.Len() != 2 {
		t.Fatalf("expected 2 tasks after reload, got %d", q2.Len())
	}
	t1 := q2.Get("t1")
	if t1 == nil || t1.Status != models.TaskCompleted {
		t.Error("expected t1 to be completed after reload")
	}
	if t1.CompletedAt == nil {
		t.Error("expected completedAt preserved after reload")
	}
}

func TestClearTerminal(t *testing.T) {
	q, _ := New("")
	q.Add(newTask("t1"))
	q.Add(newTask("t2"))
	q.UpdateStatus("t1", models.TaskProcessing, "", nil)
	q.UpdateStatus("t1", models.TaskFailed, "oops", nil)

	n, err := q.ClearTerminal()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 remaining task, got %d", q.Len())
	}
}

func TestStatistics(t *testing.T) {
	q, _ := New("")
	q.Add(newTask("t1"))
	q.Add(newTask("t2"))
	q.UpdateStatus("t1", models.TaskProcessing, "", nil)

	stats := q.Statistics()
	if stats["total"] != 2 || stats["pending"] != 1 || stats["processing"] != 1 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
}

func TestPendingReturnsOnlyPendingTasks(t *testing.T) {
	// Sanity check that Pending() only returns pending tasks.
	q, _ := New("")
	q.Add(newTask("t1"))
	q.Add(newTask("t2"))
	q.UpdateStatus("t2", models.TaskProcessing, "", nil)

	pending := q.Pending()
	if len(pending) != 1 || pending[0].ID != "t1" {
		t.Errorf("expected only t1 pending, got %+v", pending)
	}
}
