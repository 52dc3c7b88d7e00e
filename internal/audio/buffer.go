package audio

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultSampleRate is the capture rate expected by the transcription engines.
	DefaultSampleRate = 16000

	// DefaultMinChunkSeconds is the minimum buffered duration before a flush.
	DefaultMinChunkSeconds = 3.0
)

// Buffer accumulates mono 16-bit samples until enough audio is available to
// be worth a transcription call. It decouples the arrival cadence of small
// frames from the invocation cadence of the transcriber.
//
// Buffer operations never fail. Flush reads and clears the buffer as one step,
// so a concurrent Close of the owning stream can never observe a torn flush.
type Buffer struct {
	samples    []int16
	sampleRate int
	minChunk   float64 // seconds

	mu sync.Mutex
}

// NewBuffer creates a buffer for audio at sampleRate that reports ShouldFlush
// once minChunkSeconds of audio has been appended.
func NewBuffer(sampleRate int, minChunkSeconds float64) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if minChunkSeconds <= 0 {
		return nil, fmt.Errorf("minimum chunk duration must be positive, got %.2f", minChunkSeconds)
	}

	return &Buffer{
		samples:    make([]int16, 0, int(float64(sampleRate)*minChunkSeconds)),
		sampleRate: sampleRate,
		minChunk:   minChunkSeconds,
	}, nil
}

// Append adds samples to the tail of the buffer.
func (b *Buffer) Append(samples []int16) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	b.samples = append(b.samples, samples...)
	b.mu.Unlock()
}

// ShouldFlush reports whether the buffered duration has reached the threshold.
func (b *Buffer) ShouldFlush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return float64(len(b.samples))/float64(b.sampleRate) >= b.minChunk
}

// Flush returns everything appended since the previous flush and resets the
// buffer to empty. It returns nil when the buffer is empty.
func (b *Buffer) Flush() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) == 0 {
		return nil
	}

	out := b.samples
	// Hand the backing array to the caller; start fresh with the same capacity
	b.samples = make([]int16, 0, cap(out))
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the buffered audio length.
func (b *Buffer) Duration() time.Duration {
	return SamplesDuration(b.Len(), b.sampleRate)
}

// SampleRate returns the buffer's sample rate in Hz.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// MinChunk returns the flush threshold.
func (b *Buffer) MinChunk() time.Duration {
	return time.Duration(b.minChunk * float64(time.Second))
}
