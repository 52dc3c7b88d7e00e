package engines

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicepipe/internal/audio"
	"github.com/dgnsrekt/voicepipe/internal/proc"
	"github.com/dgnsrekt/voicepipe/internal/ttypes"
)

// WhisperSampleRate is the only input rate whisper.cpp accepts.
const WhisperSampleRate = 16000

// nonSpeech matches whisper's annotations: anything in square brackets such
// as [BLANK_AUDIO], and the sound tags it puts in parentheses.
var nonSpeech = regexp.MustCompile(`(?i)\[[^\]]*\]|\(\s*(?:music|laughs?|laughter|applause|silence|inaudible|noise|static|coughs?|sighs?|clears throat|upbeat music|soft music|no audio|background noise)\s*\)`)

// Whisper transcribes audio with the whisper.cpp command line tool. Every
// call writes the chunk to a temporary WAV file and reads back the .txt
// output; both are removed afterwards.
type Whisper struct {
	binary    string
	modelPath string
	language  string
	threads   int
	timeout   time.Duration

	initOnce sync.Once
	initErr  error
	binPath  string
}

// WhisperConfig holds configuration for the Whisper engine.
type WhisperConfig struct {
	// Binary name or path (defaults to "whisper-cli")
	Binary string

	// ModelPath is the ggml model file (required)
	ModelPath string

	// Language code passed with -l (defaults to "en")
	Language string

	// Threads passed with -t; 0 leaves the choice to whisper
	Threads int

	// Timeout per transcription (defaults to 60s)
	Timeout time.Duration
}

// NewWhisper creates a Whisper engine. The binary and model are checked on
// first use.
func NewWhisper(config WhisperConfig) (*Whisper, error) {
	if config.ModelPath == "" {
		return nil, ttypes.NewEngineError(ttypes.ErrorCodeInvalidInput, "whisper", "model path is required", nil)
	}
	if config.Binary == "" {
		config.Binary = "whisper-cli"
	}
	if config.Language == "" {
		config.Language = "en"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Whisper{
		binary:    config.Binary,
		modelPath: config.ModelPath,
		language:  config.Language,
		threads:   config.Threads,
		timeout:   config.Timeout,
	}, nil
}

func (e *Whisper) init() error {
	e.initOnce.Do(func() {
		e.binPath, e.initErr = proc.Find(e.binary)
		if e.initErr != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "whisper", "binary not found", e.initErr)
			return
		}
		if _, err := os.Stat(e.modelPath); err != nil {
			e.initErr = ttypes.NewEngineError(ttypes.ErrorCodeEngineUnavailable, "whisper", "model file not accessible", err).
				WithContext("model", e.modelPath)
			return
		}
		log.Debug("whisper ready", "binary", e.binPath, "model", e.modelPath)
	})
	return e.initErr
}

// Transcribe returns the trimmed text spoken in samples.
func (e *Whisper) Transcribe(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if sampleRate <= 0 {
		return "", ttypes.NewEngineError(ttypes.ErrorCodeAudioFormat, "whisper",
			fmt.Sprintf("invalid sample rate %d", sampleRate), nil)
	}
	if err := e.init(); err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "voicepipe-whisper-*")
	if err != nil {
		return "", ttypes.NewEngineError(ttypes.ErrorCodeEngineFailure, "whisper", "cannot create temp dir", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	wav := filepath.Join(dir, "chunk.wav")
	if err := audio.WriteWAVFile(wav, audio.Resample(samples, sampleRate, WhisperSampleRate), WhisperSampleRate); err != nil {
		return "", ttypes.NewEngineError(ttypes.ErrorCodeAudioFormat, "whisper", "cannot write wav", err)
	}
	prefix := filepath.Join(dir, "chunk")

	if _, err := proc.Run(ctx, proc.Command{
		Path:    e.binPath,
		Args:    e.args(wav, prefix),
		Timeout: e.timeout,
	}); err != nil {
		return "", classify("whisper", err)
	}

	out, err := os.ReadFile(prefix + ".txt")
	if err != nil {
		return "", ttypes.NewEngineError(ttypes.ErrorCodeEngineFailure, "whisper", "no transcript written", err)
	}
	return cleanTranscript(string(out)), nil
}

func (e *Whisper) args(wav, prefix string) []string {
	args := []string{
		"-m", e.modelPath,
		"-f", wav,
		"-otxt",
		"-of", prefix,
		"-nt",
		"-np",
		"-l", e.language,
	}
	if e.threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.threads))
	}
	return args
}

// GetInfo returns engine capabilities.
func (e *Whisper) GetInfo() ttypes.EngineInfo {
	return ttypes.EngineInfo{
		Name:       string(ttypes.EngineWhisper),
		SampleRate: WhisperSampleRate,
		Channels:   1,
		Language:   e.language,
		Voice:      strings.TrimSuffix(filepath.Base(e.modelPath), filepath.Ext(e.modelPath)),
		IsOnline:   false,
	}
}

// Validate checks the engine can be initialized.
func (e *Whisper) Validate() error {
	return e.init()
}

// cleanTranscript joins whisper's output lines and drops annotations.
func cleanTranscript(s string) string {
	s = nonSpeech.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// classify maps subprocess and API failures onto engine error codes.
func classify(engine string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ttypes.NewEngineError(ttypes.ErrorCodeEngineTimeout, engine, "transcription timed out", err)
	case errors.Is(err, context.Canceled):
		return ttypes.NewEngineError(ttypes.ErrorCodeCanceled, engine, "transcription canceled", err)
	default:
		return ttypes.NewEngineError(ttypes.ErrorCodeEngineFailure, engine, "transcription failed", err)
	}
}

var _ ttypes.Transcriber = (*Whisper)(nil)
