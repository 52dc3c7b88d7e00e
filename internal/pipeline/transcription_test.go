package pipeline

import (
	"context"
	"slices"
	"testing"
	"time"
)

func newTranscription(t *testing.T, tr *fakeTranscriber, workers int) *TranscriptionStream {
	t.Helper()
	// 10 Hz with a one second threshold: a flush every 10 samples
	s, err := NewTranscriptionStream(tr, newPool(t, workers), TranscriptionConfig{SampleRate: 10, MinChunkSeconds: 1}, WithStreamID("s1"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewTranscriptionStream_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  TranscriptionConfig
		wantErr bool
	}{
		{name: "defaults", config: TranscriptionConfig{}},
		{name: "negative rate", config: TranscriptionConfig{SampleRate: -1}, wantErr: true},
		{name: "negative threshold", config: TranscriptionConfig{MinChunkSeconds: -2}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTranscriptionStream(&fakeTranscriber{}, newPool(t, 1), tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewTranscriptionStream(nil, newPool(t, 1), TranscriptionConfig{}); err == nil {
		t.Error("nil transcriber accepted")
	}
}

func TestTranscriptionStream_FlushesAtThreshold(t *testing.T) {
	tr := &fakeTranscriber{}
	s := newTranscription(t, tr, 1)

	in := frames(ramp(0, 4), ramp(4, 4), ramp(8, 4), ramp(12, 4), ramp(16, 3))
	got := drain(t, s.Run(context.Background(), in))

	calls := tr.calls()
	if len(calls) != 2 {
		t.Fatalf("transcribe calls = %d, want 2", len(calls))
	}
	// The flush hands over exactly what was appended, in order
	if !slices.Equal(calls[0], ramp(0, 12)) || !slices.Equal(calls[1], ramp(12, 7)) {
		t.Errorf("chunks = %v", calls)
	}

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Seq != 0 || got[0].Final || got[0].Text != "12 samples" || got[0].Duration != 1200*time.Millisecond {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Seq != 1 || !got[1].Final || got[1].Samples != 7 || got[1].StreamID != "s1" {
		t.Errorf("final = %+v", got[1])
	}
}

func TestTranscriptionStream_ExactlyOneFinalFlush(t *testing.T) {
	tests := []struct {
		name      string
		in        [][]int16
		wantCalls []int
	}{
		{name: "empty input", in: nil, wantCalls: nil},
		{name: "below threshold", in: [][]int16{ramp(0, 3), ramp(3, 2)}, wantCalls: []int{5}},
		{name: "exact threshold leaves nothing", in: [][]int16{ramp(0, 10)}, wantCalls: []int{10}},
		{name: "threshold then remainder", in: [][]int16{ramp(0, 10), ramp(10, 1)}, wantCalls: []int{10, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranscriber{}
			s := newTranscription(t, tr, 1)
			drain(t, s.Run(context.Background(), frames(tt.in...)))

			var sizes []int
			for _, c := range tr.calls() {
				sizes = append(sizes, len(c))
			}
			if !slices.Equal(sizes, tt.wantCalls) {
				t.Errorf("chunk sizes = %v, want %v", sizes, tt.wantCalls)
			}
		})
	}
}

func TestTranscriptionStream_ErrorsAndEmptyText(t *testing.T) {
	tr := &fakeTranscriber{fn: func(call int, _ []int16) (string, error) {
		switch call {
		case 0:
			return "", errEngine
		case 1:
			return "   ", nil
		default:
			return "third", nil
		}
	}}
	s := newTranscription(t, tr, 1)

	got := drain(t, s.Run(context.Background(), frames(ramp(0, 10), ramp(0, 10), ramp(0, 10))))
	if len(got) != 1 {
		t.Fatalf("events = %+v, want only the third", got)
	}
	if got[0].Text != "third" || got[0].Seq != 2 {
		t.Errorf("event = %+v", got[0])
	}
}

func TestTranscriptionStream_OneCallInFlight(t *testing.T) {
	tr := &fakeTranscriber{fn: func(int, []int16) (string, error) {
		time.Sleep(2 * time.Millisecond)
		return "x", nil
	}}
	s := newTranscription(t, tr, 4)

	var in [][]int16
	for i := range 20 {
		in = append(in, ramp(i, 10))
	}
	got := drain(t, s.Run(context.Background(), frames(in...)))

	if len(got) != 20 {
		t.Errorf("events = %d, want 20", len(got))
	}
	for i, ev := range got {
		if ev.Seq != i {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
	}
	if m := tr.maxActive.Load(); m != 1 {
		t.Errorf("max concurrent calls = %d, want 1", m)
	}
}

func TestTranscriptionStream_Cancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	tr := &fakeTranscriber{fn: func(int, []int16) (string, error) {
		<-release
		return "late", nil
	}}
	s := newTranscription(t, tr, 1)

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan []int16, 1)
	in <- ramp(0, 10)
	out := s.Run(ctx, in)

	// Wait until the call is in flight, then cancel
	deadline := time.Now().Add(time.Second)
	for tr.active.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if got := drain(t, out); len(got) != 0 {
		t.Errorf("abandoned call emitted %+v", got)
	}
}

func TestTranscriptionStream_IndependentRuns(t *testing.T) {
	tr := &fakeTranscriber{}
	s := newTranscription(t, tr, 2)

	a := s.Run(context.Background(), frames(ramp(0, 3)))
	b := s.Run(context.Background(), frames(ramp(0, 5)))

	ga, gb := drain(t, a), drain(t, b)
	if len(ga) != 1 || ga[0].Samples != 3 || len(gb) != 1 || gb[0].Samples != 5 {
		t.Errorf("runs share a buffer: %+v %+v", ga, gb)
	}
}
