package engines

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// Mock produces a quiet sine tone whose length follows the word count at a
// speaking rate. It needs no binaries or network and is deterministic.
type Mock struct {
	sampleRate     int
	wordsPerMinute int
	toneHz         float64
	delay          time.Duration
}

// MockConfig holds configuration for the Mock engine.
type MockConfig struct {
	SampleRate     int     // defaults to 22050
	WordsPerMinute int     // defaults to 150
	ToneHz         float64 // 0 produces silence
	Delay          time.Duration
}

// NewMock creates a Mock engine.
func NewMock(config MockConfig) *Mock {
	if config.SampleRate <= 0 {
		config.SampleRate = 22050
	}
	if config.WordsPerMinute <= 0 {
		config.WordsPerMinute = 150
	}
	return &Mock{
		sampleRate:     config.SampleRate,
		wordsPerMinute: config.WordsPerMinute,
		toneHz:         config.ToneHz,
		delay:          config.Delay,
	}
}

// Synthesize returns a tone lasting as long as text would take to speak.
func (e *Mock) Synthesize(ctx context.Context, text string) ([]int16, error) {
	words := len(strings.Fields(text))
	if words == 0 {
		return nil, ttypes.ErrEmptyInput
	}

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ttypes.NewEngineError(ttypes.ErrorCodeCanceled, "mock", "synthesis canceled", ctx.Err())
		}
	}

	n := e.Samples(words)
	samples := make([]int16, n)
	if e.toneHz > 0 {
		const amplitude = 0.2 * math.MaxInt16
		step := 2 * math.Pi * e.toneHz / float64(e.sampleRate)
		for i := range samples {
			samples[i] = int16(amplitude * math.Sin(step*float64(i)))
		}
	}
	return samples, nil
}

// Samples returns how many samples Synthesize produces for a word count.
func (e *Mock) Samples(words int) int {
	seconds := float64(words) * 60 / float64(e.wordsPerMinute)
	return int(seconds * float64(e.sampleRate))
}

// GetInfo returns engine capabilities.
func (e *Mock) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:       string(ttypes.EngineMock),
		SampleRate: e.sampleRate,
		Channels:   1,
		Voice:      "tone",
		Speed:      1.0,
	}
}

var _ ttypes.Synthesizer = (*Mock)(nil)
