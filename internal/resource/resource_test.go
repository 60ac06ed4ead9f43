package resource

import "testing"

func TestSizingConfiguredFixed(t *testing.T) {
	if n := Sizing(6, false, 16, 64); n != 6 {
		t.Errorf("expected fixed 6, got %d", n)
	}
}

func TestSizingAutoClampedByCPU(t *testing.T) {
	// floor(12*2/3)=8, floor(64/2)=32, configuredMax=100 -> min is 8
	if n := Sizing(100, true, 12, 64); n != 8 {
		t.Errorf("expected 8, got %d", n)
	}
}

func TestSizingAutoClampedByMemory(t *testing.T) {
	// floor(12*2/3)=8, floor(4/2)=2 -> min is 2
	if n := Sizing(100, true, 12, 4); n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestSizingAutoClampedByConfiguredMax(t *testing.T) {
	// floor(12*2/3)=8, floor(64/2)=32, configuredMax=3 -> min is 3
	if n := Sizing(3, true, 12, 64); n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestSizingClampedToAtLeastOne(t *testing.T) {
	if n := Sizing(0, true, 1, 0.1); n < 1 {
		t.Errorf("expected at least 1, got %d", n)
	}
}

func TestManagerAdmissionGating(t *testing.T) {
	m := NewManager(2, 1024)

	if !m.CanStart(512) {
		t.Fatal("expected first task to be admitted")
	}
	if !m.CanStart(512) {
		t.Fatal("expected second task to be admitted")
	}
	if m.CanStart(1) {
		t.Fatal("expected third task to be rejected: concurrency ceiling")
	}

	m.Done(512)
	if !m.CanStart(1) {
		t.Fatal("expected admission after one task completed")
	}
}

func TestManagerMemoryGating(t *testing.T) {
	m := NewManager(10, 1000)

	if !m.CanStart(600) {
		t.Fatal("expected first task admitted")
	}
	if m.CanStart(500) {
		t.Fatal("expected rejection: would exceed memory limit")
	}
	m.Done(600)
	if !m.CanStart(500) {
		t.Fatal("expected admission after memory released")
	}
}

func TestManagerDoneFloorsAtZero(t *testing.T) {
	m := NewManager(5, 1000)
	m.Done(100)

	active, mem := m.Snapshot()
	if active != 0 || mem != 0 {
		t.Errorf("expected ledger floored at zero, got active=%d mem=%d", active, mem)
	}
}
