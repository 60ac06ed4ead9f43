package timing

import (
	"math"
	"testing"

	"github.com/videomaker/pipeline/internal/models"
)

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestBuildSubtitleSegmentsHappyPath(t *testing.T) {
	sentences := []models.Sentence{
		{Index: 0, Text: "你好"},
		{Index: 1, Text: "世界"},
		{Index: 2, Text: "再见"},
	}
	durations := []float64{1.0, 1.0, 1.0}

	segs, err := BuildSubtitleSegments(sentences, durations)
	if err != nil {
		t.Fatal(err)
	}

	want := []models.SubtitleSegment{
		{Index: 1, Text: "你好", StartTime: 0.0, EndTime: 1.0},
		{Index: 2, Text: "世界", StartTime: 1.0, EndTime: 2.0},
		{Index: 3, Text: "再见", StartTime: 2.0, EndTime: 3.0},
	}

	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d", len(want), len(segs))
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d: got %+v, want %+v", i, segs[i], want[i])
		}
	}

	// No gaps, no overlaps: strict end-to-end packing.
	for i := 1; i < len(segs); i++ {
		if segs[i].StartTime != segs[i-1].EndTime {
			t.Errorf("gap/overlap between segment %d and %d", i-1, i)
		}
	}
}

func TestBuildSubtitleSegmentsLengthMismatch(t *testing.T) {
	_, err := BuildSubtitleSegments([]models.Sentence{{Text: "a"}}, []float64{1, 2})
	if err == nil {
		t.Fatal("expected error on length mismatch")
	}
}

func TestBuildSubtitleSegmentsRejectsNonPositiveDuration(t *testing.T) {
	_, err := BuildSubtitleSegments([]models.Sentence{{Text: "a"}}, []float64{0})
	if err == nil {
		t.Fatal("expected error on zero duration")
	}
}

func TestImageDwellSingleImage(t *testing.T) {
	dwell, err := ImageDwell(10.0, 1, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(dwell, 10.0, 1e-9) {
		t.Errorf("expected dwell 10.0, got %v", dwell)
	}
}

func TestImageDwellNoCrossfade(t *testing.T) {
	dwell, err := ImageDwell(10.0, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(dwell, 2.0, 1e-9) {
		t.Errorf("expected dwell 2.0, got %v", dwell)
	}
}

func TestImageDwellWithCrossfadeScenario2(t *testing.T) {
	// spec.md scenario 2: 5 images, f=0.5, T=10 -> dwell = 2.4
	dwell, err := ImageDwell(10.0, 5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(dwell, 2.4, 1e-9) {
		t.Errorf("expected dwell 2.4, got %v", dwell)
	}
}

func TestImageDwellBadConfig(t *testing.T) {
	// Large crossfade making dwell computation go non-positive requires T to be
	// small/negative relative to (k-1)*f; use k=2, f so large that formula can't
	// go negative in this model (both terms positive) — force via k<=0 instead.
	if _, err := ImageDwell(10.0, 0, 0.5); !models.Is(err, models.KindBadConfig) {
		t.Errorf("expected BadConfig for k=0, got %v", err)
	}
}

func TestDriftCorrection(t *testing.T) {
	needsFix, drift := DriftCorrection(10.0, 9.85, 0.1)
	if !needsFix {
		t.Error("expected correction needed for 0.15s drift")
	}
	if !approxEqual(drift, 0.15, 1e-9) {
		t.Errorf("expected drift 0.15, got %v", drift)
	}

	needsFix, _ = DriftCorrection(10.0, 9.95, 0.1)
	if needsFix {
		t.Error("expected no correction needed for 0.05s drift")
	}
}

func TestEstimateDurationPositive(t *testing.T) {
	d := EstimateDuration("hello world this is a test", 140)
	if d <= 0 {
		t.Errorf("expected positive estimate, got %v", d)
	}
}
