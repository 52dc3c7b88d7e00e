package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
	"github.com/dgnsrekt/voicepipe/internal/worker"
)

var errEngine = errors.New("engine exploded")

// fakeTranscriber reports the chunk length as text unless fn overrides it.
type fakeTranscriber struct {
	mu     sync.Mutex
	chunks [][]int16
	fn     func(call int, samples []int16) (string, error)

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []int16, _ int) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	call := len(f.chunks)
	f.chunks = append(f.chunks, append([]int16(nil), samples...))
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(call, samples)
	}
	return fmt.Sprintf(" %d samples ", len(samples)), nil
}

func (f *fakeTranscriber) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{Name: "fake", SampleRate: 10, Channels: 1}
}

func (f *fakeTranscriber) calls() [][]int16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]int16(nil), f.chunks...)
}

// fakeSynth returns one sample per byte of text and fails on texts listed
// in fail.
type fakeSynth struct {
	fail  map[string]bool
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]int16, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[text] {
		return nil, errEngine
	}
	if text == "silent." {
		return nil, nil
	}
	return make([]int16, len(text)), nil
}

func (f *fakeSynth) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{Name: "fake", SampleRate: 100, Channels: 1, Voice: "v1", Speed: 1}
}

// fakeGenerator streams reply in the given chunks. With fails set, only the
// first fails calls return err.
type fakeGenerator struct {
	chunks []string
	err    error
	fails  int

	mu   sync.Mutex
	seen [][]ttypes.Message
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []ttypes.Message, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, messages)
	call := len(f.seen)
	f.mu.Unlock()

	if f.err != nil && (f.fails == 0 || call <= f.fails) {
		return "", f.err
	}
	for _, c := range f.chunks {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		onDelta(c)
	}
	return strings.Join(f.chunks, ""), nil
}

func newPool(t *testing.T, workers int) *worker.Pool {
	t.Helper()
	p := worker.New(workers, 4)
	t.Cleanup(p.Close)
	return p
}

func frames(chunks ...[]int16) <-chan []int16 {
	ch := make(chan []int16, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func ramp(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

// drain collects a channel with a deadline so a hung stream fails the test.
func drain[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var out []T
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timeout:
			t.Fatal("stream did not finish")
			return nil
		}
	}
}
