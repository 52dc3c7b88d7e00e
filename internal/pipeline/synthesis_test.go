package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/cache"
)

func TestSynthesisStream_SkipsFailedSegment(t *testing.T) {
	synth := &fakeSynth{fail: map[string]bool{"Two fails.": true}}
	s, err := NewSynthesisStream(synth, newPool(t, 2), WithStreamID("tts"))
	if err != nil {
		t.Fatal(err)
	}

	got := drain(t, s.Speak(context.Background(), "One works. Two fails. Three works."))

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Text != "One works." || got[0].Seq != 0 {
		t.Errorf("first = %q seq %d", got[0].Text, got[0].Seq)
	}
	if got[1].Text != "Three works." || got[1].Seq != 2 {
		t.Errorf("second = %q seq %d", got[1].Text, got[1].Seq)
	}
	for _, ev := range got {
		if ev.SampleRate != 100 || len(ev.Samples) != len(ev.Text) || ev.StreamID != "tts" {
			t.Errorf("event = %+v", ev)
		}
	}
	if n := synth.calls.Load(); n != 3 {
		t.Errorf("synthesize calls = %d, want 3", n)
	}
}

func TestSynthesisStream_OrderAcrossTexts(t *testing.T) {
	s, _ := NewSynthesisStream(&fakeSynth{}, newPool(t, 4))

	texts := make(chan string, 3)
	texts <- "A. B!"
	texts <- "   "
	texts <- "C? D"
	close(texts)

	var order []string
	for _, ev := range drain(t, s.Run(context.Background(), texts)) {
		order = append(order, ev.Text)
	}
	want := []string{"A.", "B!", "C?", "D"}
	if len(order) != len(want) {
		t.Fatalf("segments = %q, want %q", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("segments = %q, want %q", order, want)
			break
		}
	}
}

func TestSynthesisStream_EmptyAudioSkipped(t *testing.T) {
	s, _ := NewSynthesisStream(&fakeSynth{}, newPool(t, 1))
	got := drain(t, s.Speak(context.Background(), "silent. loud."))
	if len(got) != 1 || got[0].Text != "loud." {
		t.Errorf("events = %+v", got)
	}
}

func TestSynthesisStream_Cache(t *testing.T) {
	c, err := cache.NewManager(cache.Config{MemoryCapacity: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close() //nolint:errcheck

	synth := &fakeSynth{}
	s, _ := NewSynthesisStream(synth, newPool(t, 1), WithCache(c))

	first := drain(t, s.Speak(context.Background(), "Hello. World."))
	second := drain(t, s.Speak(context.Background(), "Hello. Again."))

	if n := synth.calls.Load(); n != 3 {
		t.Errorf("synthesize calls = %d, want 3", n)
	}
	if first[0].Cached || !second[0].Cached || second[1].Cached {
		t.Errorf("cached flags: first %v, second %v %v", first[0].Cached, second[0].Cached, second[1].Cached)
	}
	if len(second[0].Samples) != len("Hello.") || second[0].SampleRate != 100 {
		t.Errorf("cached audio = %d samples at %d Hz", len(second[0].Samples), second[0].SampleRate)
	}
}

func TestSynthesisStream_Cancel(t *testing.T) {
	s, _ := NewSynthesisStream(&fakeSynth{delay: 10 * time.Second}, newPool(t, 1))

	ctx, cancel := context.WithCancel(context.Background())
	out := s.Speak(ctx, "Never finishes.")
	cancel()

	if got := drain(t, out); len(got) != 0 {
		t.Errorf("events after cancel = %+v", got)
	}
}
