package orchestrator

import (
	"strings"
	"testing"
)

func TestSplitSentencesBasic(t *testing.T) {
	got := SplitSentences("Hello world! How are you? Fine.", 100)
	want := []string{"Hello world", " How are you", " Fine"}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences, want %d: %+v", len(got), len(want), got)
	}
	for i, s := range got {
		if strings.TrimSpace(s.Text) != strings.TrimSpace(want[i]) {
			t.Errorf("sentence %d = %q, want %q", i, s.Text, want[i])
		}
	}
}

func TestSplitSentencesIndexesAreSequential(t *testing.T) {
	got := SplitSentences("一。二。三。", 100)
	for i, s := range got {
		if s.Index != i {
			t.Errorf("sentence %d has Index %d", i, s.Index)
		}
	}
}

func TestSplitSentencesOverlongSplitsOnClauses(t *testing.T) {
	got := SplitSentences("alpha，beta，gamma，delta，epsilon。", 10)
	for _, s := range got {
		if len([]rune(s.Text)) > 10 {
			t.Errorf("sentence %q exceeds max-chars-per-line", s.Text)
		}
	}
	if len(got) < 2 {
		t.Errorf("expected overlong sentence to split into multiple pieces, got %d", len(got))
	}
}

func TestSplitSentencesEmptyInputYieldsNoSentences(t *testing.T) {
	got := SplitSentences("   ", 20)
	if len(got) != 0 {
		t.Errorf("expected no sentences for blank input, got %d", len(got))
	}
}

func TestSplitSentencesConcatenationInvariant(t *testing.T) {
	original := "This is a test. It has sentences! Does it work?"
	got := SplitSentences(original, 1000)

	var rebuilt strings.Builder
	for _, s := range got {
		rebuilt.WriteString(s.Text)
	}

	stripPunct := func(s string) string {
		var out strings.Builder
		for _, r := range s {
			if strings.ContainsRune(sentenceTerminators+clauseSeparators, r) {
				continue
			}
			out.WriteRune(r)
		}
		return out.String()
	}

	gotNoWS := strings.Join(strings.Fields(rebuilt.String()), "")
	wantNoWS := strings.Join(strings.Fields(stripPunct(original)), "")
	if gotNoWS != wantNoWS {
		t.Errorf("concatenation invariant violated: got %q, want %q", gotNoWS, wantNoWS)
	}
}
