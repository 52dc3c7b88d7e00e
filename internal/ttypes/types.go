// Package ttypes contains shared types and interfaces for the voice pipeline.
// This package is used to break import cycles between pipeline, engines, audio, and server packages.
package ttypes

import (
	"context"
	"time"
)

// EngineType represents an inference backend selection.
type EngineType string

const (
	// EnginePiper represents the Piper offline TTS engine
	EnginePiper EngineType = "piper"

	// EngineGTTS represents the Google Translate TTS engine
	EngineGTTS EngineType = "gtts"

	// EngineMock represents the deterministic tone engine used for demos
	EngineMock EngineType = "mock"

	// EngineWhisper represents the whisper.cpp offline STT engine
	EngineWhisper EngineType = "whisper"

	// EngineGoogleSpeech represents the Google Cloud Speech STT engine
	EngineGoogleSpeech EngineType = "google"

	// EngineNone represents no engine selected
	EngineNone EngineType = ""
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat history.
type Message struct {
	Role    Role
	Content string
}

// EngineInfo describes engine capabilities.
type EngineInfo struct {
	// Name of the engine
	Name string

	// SampleRate is the rate the engine consumes or produces, in Hz
	SampleRate int

	// Channels is always 1 for this pipeline
	Channels int

	// Language is the configured language code, if any
	Language string

	// Voice identifies the synthesis voice; together with Speed it keys the
	// segment cache
	Voice string
	Speed float64

	// IsOnline indicates if the engine requires network access
	IsOnline bool
}

// Transcriber converts a chunk of mono 16-bit audio into text.
// Implementations may block; callers offload them to a worker pool.
type Transcriber interface {
	// Transcribe returns the text spoken in samples. An empty string means
	// nothing was recognized.
	Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error)

	// GetInfo returns engine capabilities.
	GetInfo() EngineInfo
}

// Synthesizer converts text into mono 16-bit audio.
// Implementations may block; callers offload them to a worker pool.
type Synthesizer interface {
	// Synthesize returns audio samples at GetInfo().SampleRate.
	Synthesize(ctx context.Context, text string) ([]int16, error)

	// GetInfo returns engine capabilities.
	GetInfo() EngineInfo
}

// Generator produces a chat reply. onDelta, when non-nil, receives content
// fragments in order as they are generated. The full reply is returned.
type Generator interface {
	Generate(ctx context.Context, messages []Message, onDelta func(string)) (string, error)
}

// Transcript is emitted once per non-empty transcription of a flushed chunk.
type Transcript struct {
	// StreamID identifies the producing stream
	StreamID string

	// Seq is the zero-based flush sequence number within the stream
	Seq int

	// Text is the trimmed transcription
	Text string

	// Samples is the number of samples in the flushed chunk
	Samples int

	// Duration of the flushed chunk
	Duration time.Duration

	// Final is set on the remainder flushed when the input closes
	Final bool
}

// SynthesizedAudio is emitted once per successfully synthesized segment.
type SynthesizedAudio struct {
	// StreamID identifies the producing stream
	StreamID string

	// Seq is the zero-based segment sequence number within the stream
	Seq int

	// Text is the source segment
	Text string

	// Samples holds mono 16-bit audio
	Samples []int16

	// SampleRate of Samples in Hz
	SampleRate int

	// Cached is set when the audio came from the cache
	Cached bool
}

// Duration returns the playback length of the audio.
func (a SynthesizedAudio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}
