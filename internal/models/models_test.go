package models

import "testing"

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskCompleted, TaskFailed, TaskCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	nonTerminal := []TaskStatus{TaskPending, TaskProcessing}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestParseCopyrightStatusKnown(t *testing.T) {
	cases := map[string]CopyrightStatus{
		"public_domain":     CopyrightPublicDomain,
		"creative_commons":  CopyrightCreativeCommons,
		"royalty_free":      CopyrightRoyaltyFree,
		"copyrighted":       CopyrightCopyrighted,
		"something_unknown": CopyrightUnknown,
		"":                  CopyrightUnknown,
	}

	for input, want := range cases {
		if got := ParseCopyrightStatus(input); got != want {
			t.Errorf("ParseCopyrightStatus(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSafeToUse(t *testing.T) {
	safe := []CopyrightStatus{CopyrightPublicDomain, CopyrightCreativeCommons, CopyrightRoyaltyFree}
	for _, s := range safe {
		if !s.SafeToUse() {
			t.Errorf("expected %s to be safe to use", s)
		}
	}

	unsafe := []CopyrightStatus{CopyrightUnknown, CopyrightCopyrighted}
	for _, s := range unsafe {
		if s.SafeToUse() {
			t.Errorf("expected %s to not be safe to use", s)
		}
	}
}

func TestMusicRecommendationValid(t *testing.T) {
	valid := MusicRecommendation{
		Title:           "Calm Waters",
		URL:             "https://example.com/calm.mp3",
		DurationSec:     120,
		ConfidenceScore: 0.8,
	}
	if !valid.Valid() {
		t.Error("expected valid recommendation to pass")
	}

	invalidCases := []MusicRecommendation{
		{Title: "", URL: "x", DurationSec: 1, ConfidenceScore: 0.5},
		{Title: "x", URL: "", DurationSec: 1, ConfidenceScore: 0.5},
		{Title: "x", URL: "y", DurationSec: 0, ConfidenceScore: 0.5},
		{Title: "x", URL: "y", DurationSec: 1, ConfidenceScore: 1.5},
		{Title: "x", URL: "y", DurationSec: 1, ConfidenceScore: -0.1},
	}
	for i, c := range invalidCases {
		if c.Valid() {
			t.Errorf("case %d: expected invalid recommendation to fail", i)
		}
	}
}

func TestSubtitleSegmentDuration(t *testing.T) {
	s := SubtitleSegment{StartTime: 1.0, EndTime: 2.5}
	if got := s.Duration(); got != 1.5 {
		t.Errorf("Duration() = %v, want 1.5", got)
	}
}
