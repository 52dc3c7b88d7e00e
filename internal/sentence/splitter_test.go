package sentence

import (
	"slices"
	"testing"
)

// feed runs fragments through a Splitter and returns every released segment.
func feed(fragments []string) []string {
	var s Splitter
	var out []string
	for _, f := range fragments {
		out = append(out, s.Write(f)...)
	}
	if tail := s.Flush(); tail != "" {
		out = append(out, tail)
	}
	return out
}

func TestSplitter_MatchesSegment(t *testing.T) {
	texts := []string{
		"Hello world. How are you? Great!",
		"no punctuation here",
		"A.   B.",
		"Wait... what?! Really.",
		"Version 2.5 is out. See example.com now",
		"   Leading. And trailing.   ",
		"",
	}

	for _, text := range texts {
		want := Collect(text)

		// every split point, plus one rune at a time
		for cut := 0; cut <= len(text); cut++ {
			got := feed([]string{text[:cut], text[cut:]})
			if !slices.Equal(got, want) {
				t.Errorf("split %q at %d = %q, want %q", text, cut, got, want)
			}
		}

		var runes []string
		for _, r := range text {
			runes = append(runes, string(r))
		}
		if got := feed(runes); !slices.Equal(got, want) {
			t.Errorf("rune feed %q = %q, want %q", text, got, want)
		}
	}
}

func TestSplitter_ReleasesEarly(t *testing.T) {
	var s Splitter

	if got := s.Write("Hello there"); got != nil {
		t.Errorf("Write without boundary released %q", got)
	}
	if got := s.Write("."); got != nil {
		t.Errorf("terminator alone released %q", got)
	}
	if got := s.Write(" How"); !slices.Equal(got, []string{"Hello there."}) {
		t.Errorf("Write = %q, want [Hello there.]", got)
	}
	if got := s.Pending(); got != "How" {
		t.Errorf("Pending() = %q, want %q", got, "How")
	}
	if got := s.Flush(); got != "How" {
		t.Errorf("Flush() = %q, want %q", got, "How")
	}
	if got := s.Flush(); got != "" {
		t.Errorf("second Flush() = %q, want empty", got)
	}
}
