// Package resource implements the Resource Manager (C2, spec.md §4.3): the
// worker-pool-sizing formula and the lock-guarded admission ledger that
// gates task dispatch on concurrency and memory.
//
// Grounded on original_source/src/tasks/parallel_batch_processor.py's
// ResourceManager class (calculate_optimal_workers / can_start_task /
// task_completed) and the teacher's withSemaphore lock-guarded-counter
// idiom in internal/worker/worker.go.
package resource

import (
	"runtime"
	"sync"
)

// Sizing computes maxWorkers per spec.md §4.3:
//
//	configured positive int -> used directly
//	"auto"/absent           -> min(floor(cpu*2/3), floor(memGB/2), configuredMax), clamped >= 1
func Sizing(configuredMax int, auto bool, logicalCPUs int, totalMemoryGB float64) int {
	if !auto {
		if configuredMax > 0 {
			return configuredMax
		}
		return 1
	}

	cpuWorkers := int(float64(logicalCPUs) * 2.0 / 3.0)
	memWorkers := int(totalMemoryGB / 2.0)

	n := cpuWorkers
	if memWorkers < n {
		n = memWorkers
	}
	if configuredMax > 0 && configuredMax < n {
		n = configuredMax
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DetectSizing is Sizing using the runtime's logical CPU count. Total
// memory is not portably queryable from the stdlib alone, so callers that
// care about the memory term should pass it in explicitly (e.g. from
// config); DetectSizing assumes an unbounded memory budget (effectively
// disabling the memory term) when none is supplied.
func DetectSizing(configuredMax int, auto bool, totalMemoryGB float64) int {
	cpus := runtime.NumCPU()
	if totalMemoryGB <= 0 {
		// 2 GB per logical CPU makes the memory term at least the CPU count,
		// so it never undercuts the CPU term.
		totalMemoryGB = float64(cpus) * 2
	}
	return Sizing(configuredMax, auto, cpus, totalMemoryGB)
}

// Manager is the lock-guarded admission ledger (the "Resource Ledger" of
// spec.md §3). It is re-initialized to zero on process start — no
// persistence.
type Manager struct {
	mu sync.Mutex

	maxConcurrent       int
	workerMemoryLimitMB int

	activeTasks      int
	reservedMemoryMB int
}

// NewManager constructs a Manager with the given admission ceilings.
func NewManager(maxConcurrent, workerMemoryLimitMB int) *Manager {
	return &Manager{
		maxConcurrent:       maxConcurrent,
		workerMemoryLimitMB: workerMemoryLimitMB,
	}
}

// CanStart reports whether a task estimated to need estimatedMemoryMB may
// start now, and if so atomically reserves its slot and memory.
func (m *Manager) CanStart(estimatedMemoryMB int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeTasks >= m.maxConcurrent {
		return false
	}
	if m.reservedMemoryMB+estimatedMemoryMB > m.workerMemoryLimitMB {
		return false
	}

	m.activeTasks++
	m.reservedMemoryMB += estimatedMemoryMB
	return true
}

// Done releases a previously reserved slot and memory, symmetric with
// CanStart. reservedMemoryMB is floored at 0.
func (m *Manager) Done(estimatedMemoryMB int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activeTasks--
	if m.activeTasks < 0 {
		m.activeTasks = 0
	}
	m.reservedMemoryMB -= estimatedMemoryMB
	if m.reservedMemoryMB < 0 {
		m.reservedMemoryMB = 0
	}
}

// Snapshot returns the current ledger state for status reporting.
func (m *Manager) Snapshot() (activeTasks, reservedMemoryMB int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeTasks, m.reservedMemoryMB
}
